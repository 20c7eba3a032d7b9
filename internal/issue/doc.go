// SPDX-License-Identifier: MPL-2.0

// Package issue provides actionable errors and a catalog of remediation pages.
//
// Pipeline stages wrap failures in an ActionableError carrying the failed
// operation, the image or function involved, suggestions, and optionally a
// catalog Id. The CLI prints the suggestions and, in verbose mode, renders the
// matching Markdown page with glamour.
package issue

// SPDX-License-Identifier: MPL-2.0

// Package registry talks to Amazon ECR: short-lived login credentials
// (through the API or the aws CLI) and repository cleanup.
package registry

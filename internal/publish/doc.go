// SPDX-License-Identifier: MPL-2.0

// Package publish pushes a locally built image to a registry and resolves
// the content digest it was stored under.
//
// The returned reference is digest-addressed, so whatever consumes it gets
// exactly the bytes that were pushed even if the tag moves afterwards.
package publish

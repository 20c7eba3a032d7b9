// SPDX-License-Identifier: MPL-2.0

// Package imageref parses and represents fully-qualified image repository
// addresses of the form host/name[:tag|@digest].
//
// A URI is an immutable value. Publishing always produces a digest-addressed
// URI (see URI.WithDigest), which pins the referenced bytes and removes the
// race where a tag is moved between push and deploy.
package imageref

// SPDX-License-Identifier: MPL-2.0

package imageref

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

const (
	// separatorTag introduces a mutable tag suffix.
	separatorTag = ":"
	// separatorDigest introduces an immutable content digest suffix.
	separatorDigest = "@"
	// regionSegmentFromEnd is the position of the region code in an ECR
	// hostname, counted from the end: <account>.dkr.ecr.<region>.amazonaws.com
	regionSegmentFromEnd = 3
)

// ErrMalformedReference is the sentinel error wrapped by MalformedReferenceError.
var ErrMalformedReference = errors.New("malformed image reference")

// uriPattern matches <host>/<name>[{:|@}<tag-or-digest>]. The host stops at the
// first slash; the name may contain further slashes for nested repositories.
var uriPattern = regexp.MustCompile(`^([^/]+)/([^@:]+)(?:([@:])(.+))?$`)

type (
	// URI is a parsed registry repository address: host/name[:tag|@digest].
	// A URI is either tag-addressed, digest-addressed or bare, never both.
	// The zero value is not a valid URI; construct with Parse.
	URI struct {
		Host   string
		Name   string
		Tag    string
		Digest digest.Digest
	}

	// MalformedReferenceError is returned when a string cannot be parsed as a URI.
	MalformedReferenceError struct {
		Value  string
		Reason string
	}
)

// Error implements the error interface.
func (e *MalformedReferenceError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed image reference %q: expected <host>/<name>[:tag|@digest]", e.Value)
	}
	return fmt.Sprintf("malformed image reference %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrMalformedReference for errors.Is() compatibility.
func (e *MalformedReferenceError) Unwrap() error { return ErrMalformedReference }

// Parse parses s as host/name[:tag|@digest].
func Parse(s string) (URI, error) {
	if strings.ContainsAny(s, " \t\r\n") {
		return URI{}, &MalformedReferenceError{Value: s, Reason: "contains whitespace"}
	}

	m := uriPattern.FindStringSubmatch(s)
	if m == nil {
		return URI{}, &MalformedReferenceError{Value: s}
	}

	u := URI{Host: m[1], Name: m[2]}
	if strings.HasSuffix(u.Name, "/") || strings.Contains(u.Name, "//") {
		return URI{}, &MalformedReferenceError{Value: s, Reason: "empty repository path segment"}
	}

	switch m[3] {
	case separatorTag:
		if strings.ContainsAny(m[4], "/:@") {
			return URI{}, &MalformedReferenceError{Value: s, Reason: fmt.Sprintf("invalid tag %q", m[4])}
		}
		u.Tag = m[4]
	case separatorDigest:
		d := digest.Digest(m[4])
		if !strings.Contains(m[4], ":") || d.Encoded() == "" {
			return URI{}, &MalformedReferenceError{Value: s, Reason: fmt.Sprintf("invalid digest %q", m[4])}
		}
		u.Digest = d
	}

	return u, nil
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// WithoutTag returns host/name with any tag or digest stripped.
func (u URI) WithoutTag() string {
	return u.Host + "/" + u.Name
}

// WithDigest returns a digest-addressed copy of u. Any tag is dropped.
func (u URI) WithDigest(d digest.Digest) URI {
	return URI{Host: u.Host, Name: u.Name, Digest: d}
}

// PushReference is the reference an image is tagged and pushed as:
// host/name:tag when u carries a tag, host/name otherwise.
func (u URI) PushReference() string {
	if u.Tag != "" {
		return u.WithoutTag() + separatorTag + u.Tag
	}
	return u.WithoutTag()
}

// IsDigest reports whether u is digest-addressed.
func (u URI) IsDigest() bool {
	return u.Digest != ""
}

// Region returns the region code embedded in an ECR-style hostname, i.e. the
// third dot-separated segment from the end of Host. This relies on the fixed
// <account>.dkr.ecr.<region>.amazonaws.com layout and is not meant to work
// for arbitrary registries: hosts with fewer than three segments yield "".
func (u URI) Region() string {
	parts := strings.Split(u.Host, ".")
	if len(parts) < regionSegmentFromEnd {
		return ""
	}
	return parts[len(parts)-regionSegmentFromEnd]
}

// String returns the canonical textual form of u.
func (u URI) String() string {
	switch {
	case u.Digest != "":
		return u.WithoutTag() + separatorDigest + u.Digest.String()
	case u.Tag != "":
		return u.WithoutTag() + separatorTag + u.Tag
	default:
		return u.WithoutTag()
	}
}

// SPDX-License-Identifier: MPL-2.0

// Package pushdigest recovers the content digest of a pushed image.
//
// docker push reports the digest only in its human-readable progress text,
// e.g. "latest: digest: sha256:d4c7... size: 2841". Scraping is confined to
// this package so callers depend on a typed digest.Digest; a structured
// source can be plugged in through the Extractor interface.
package pushdigest

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/opencontainers/go-digest"
)

// ErrDigestNotFound is the sentinel error wrapped by DigestNotFoundError.
var ErrDigestNotFound = errors.New("digest not found in push output")

var digestLine = regexp.MustCompile(`digest: (sha256:[0-9a-f]+)`)

// maxTranscriptExcerpt bounds how much transcript a DigestNotFoundError carries.
const maxTranscriptExcerpt = 2048

type (
	// Extractor recovers the digest of a pushed artifact from push output.
	Extractor interface {
		ExtractDigest(transcript string) (digest.Digest, error)
	}

	// TranscriptExtractor scrapes docker push progress output.
	TranscriptExtractor struct{}

	// DigestNotFoundError is returned when no digest line is present.
	// It usually means the registry client changed its output format.
	DigestNotFoundError struct {
		// Excerpt is the tail of the transcript, for diagnosis.
		Excerpt string
	}
)

// Error implements the error interface.
func (e *DigestNotFoundError) Error() string {
	return fmt.Sprintf("no line matching %q in push output", "digest: sha256:<hex>")
}

// Unwrap returns ErrDigestNotFound for errors.Is() compatibility.
func (e *DigestNotFoundError) Unwrap() error { return ErrDigestNotFound }

// ExtractDigest implements Extractor.
func (TranscriptExtractor) ExtractDigest(transcript string) (digest.Digest, error) {
	return Extract(transcript)
}

// Extract returns the first sha256 digest announced in transcript.
func Extract(transcript string) (digest.Digest, error) {
	m := digestLine.FindStringSubmatch(transcript)
	if m == nil {
		excerpt := transcript
		if len(excerpt) > maxTranscriptExcerpt {
			excerpt = excerpt[len(excerpt)-maxTranscriptExcerpt:]
		}
		return "", &DigestNotFoundError{Excerpt: excerpt}
	}
	return digest.Digest(m[1]), nil
}

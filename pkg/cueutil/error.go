// SPDX-License-Identifier: MPL-2.0

package cueutil

import (
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
)

type (
	// FieldError is one violation, located by its dotted path.
	FieldError struct {
		// Path is e.g. "poll.max_attempts" or "regions[1]"; empty for
		// violations that are not tied to a field.
		Path    string
		Message string
	}

	// ValidationError lists every violation CUE reported for one document.
	ValidationError struct {
		// Source names the validated document, e.g. "#Config".
		Source string
		Fields []FieldError
	}
)

// Error implements the error interface.
func (e *ValidationError) Error() string {
	lines := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Path == "" {
			lines = append(lines, f.Message)
			continue
		}
		lines = append(lines, f.Path+": "+f.Message)
	}
	if len(lines) == 1 {
		return fmt.Sprintf("%s: %s", e.Source, lines[0])
	}
	return fmt.Sprintf("%s: %d violations:\n  %s", e.Source, len(lines), strings.Join(lines, "\n  "))
}

// FormatError converts a CUE error into a *ValidationError. Errors that carry
// no CUE error list become a single pathless field.
func FormatError(err error, source string) error {
	if err == nil {
		return nil
	}

	verr := &ValidationError{Source: source}
	for _, e := range cueerrors.Errors(err) {
		segments := cueerrors.Path(e)
		path := formatPath(segments)
		msg := e.Error()

		// CUE repeats the path at the start of the message.
		if path != "" {
			for _, prefix := range []string{path, strings.Join(segments, ".")} {
				if trimmed, ok := strings.CutPrefix(msg, prefix+":"); ok {
					msg = strings.TrimSpace(trimmed)
					break
				}
			}
		}
		verr.Fields = append(verr.Fields, FieldError{Path: path, Message: msg})
	}
	if len(verr.Fields) == 0 {
		verr.Fields = []FieldError{{Message: err.Error()}}
	}
	return verr
}

// formatPath renders CUE's path segments in JSON-path style: numeric
// segments become indices ("regions", "1" -> "regions[1]").
func formatPath(path []string) string {
	var sb strings.Builder
	for i, part := range path {
		switch {
		case i > 0 && isIndex(part):
			sb.WriteString("[" + part + "]")
		case i > 0:
			sb.WriteString("." + part)
		default:
			sb.WriteString(part)
		}
	}
	return sb.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// SPDX-License-Identifier: MPL-2.0

package procrun

import (
	"context"
	"errors"
	"strings"
)

// transientMarkers are fragments of registry-client and AWS CLI output that
// indicate a failure caused by the environment rather than the inputs.
var transientMarkers = []string{
	"connection reset by peer",
	"connection refused",
	"i/o timeout",
	"TLS handshake timeout",
	"Temporary failure resolving",
	"Could not resolve host",
	"toomanyrequests",
	"503 Service Unavailable",
	"ThrottlingException",
	"RequestTimeout",
}

// IsTransient reports whether err is an external command failure that is
// likely to succeed when the whole pipeline is run again. It is advisory
// only: nothing in this module retries a failed command automatically.
//
// Context errors are never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var cmdErr *ExternalCommandError
	if !errors.As(err, &cmdErr) {
		return false
	}

	for _, marker := range transientMarkers {
		if strings.Contains(cmdErr.Output, marker) {
			return true
		}
	}
	return false
}

// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"

	"lambdado-cli/internal/config"
	"lambdado-cli/internal/container"
	"lambdado-cli/internal/deploy"
	"lambdado-cli/internal/smoke"
	"lambdado-cli/pkg/imageref"
)

const (
	// ExitFailure is returned when a pipeline stage fails.
	ExitFailure = 1
	// ExitInvalidInput is returned for malformed references, requests and configuration.
	ExitInvalidInput = 2
)

// ExitError signals a non-zero exit code without forcing os.Exit in RunE handlers.
type ExitError struct {
	Code int
	Err  error
	// rendered is set once the failure card has been written to stderr.
	rendered bool
}

// Error returns the error message for ExitError.
func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

// Unwrap returns the underlying error, if any.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// exitCodeFor maps a pipeline error to the process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, imageref.ErrMalformedReference),
		errors.Is(err, deploy.ErrInvalidRequest),
		errors.Is(err, config.ErrInvalidConfig),
		errors.Is(err, smoke.ErrInvalidExpectation),
		errors.Is(err, container.ErrInvalidPortMapping),
		errors.Is(err, container.ErrInvalidBuildOptions):
		return ExitInvalidInput
	default:
		return ExitFailure
	}
}

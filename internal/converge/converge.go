// SPDX-License-Identifier: MPL-2.0

package converge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
)

const (
	// DefaultInterval is the fixed delay between status queries.
	DefaultInterval = 5 * time.Second
	// DefaultMaxAttempts is the number of status queries before giving up.
	DefaultMaxAttempts = 60

	// StateSuccessful means the last configuration change has been applied.
	StateSuccessful State = "Successful"
	// StateInProgress means a configuration change is still being applied.
	StateInProgress State = "InProgress"
	// StateFailed means the platform rejected the last configuration change.
	StateFailed State = "Failed"
)

var (
	// ErrConvergenceTimeout is the sentinel error wrapped by ConvergenceTimeoutError.
	ErrConvergenceTimeout = errors.New("function did not converge")
	// ErrUpdateFailed is the sentinel error wrapped by UpdateFailedError.
	ErrUpdateFailed = errors.New("function update failed")
)

type (
	// State is the platform-reported status of a function's last update.
	State string

	// Status is one observation of a function's update status.
	Status struct {
		State  State
		Reason string
	}

	// StatusSource reports the update status of a managed function.
	StatusSource interface {
		FunctionStatus(ctx context.Context, function string) (Status, error)
	}

	// SleepFunc blocks for d or until ctx is done.
	SleepFunc func(ctx context.Context, d time.Duration) error

	// Option configures a Poller.
	Option func(*Poller)

	// Poller waits for a function to reach a terminal success status,
	// querying at a fixed interval within a fixed attempt budget.
	Poller struct {
		source      StatusSource
		interval    time.Duration
		maxAttempts int
		sleep       SleepFunc
		logger      *log.Logger
	}

	// ConvergenceTimeoutError is returned when the attempt budget runs out.
	ConvergenceTimeoutError struct {
		Function string
		Attempts int
		Interval time.Duration
		Last     Status
	}

	// UpdateFailedError is returned when the platform reports the update as failed.
	UpdateFailedError struct {
		Function string
		Reason   string
	}
)

// Error implements the error interface.
func (e *ConvergenceTimeoutError) Error() string {
	return fmt.Sprintf("function %q did not converge after %d attempts at %s intervals (last status %q)",
		e.Function, e.Attempts, e.Interval, e.Last.State)
}

// Unwrap returns ErrConvergenceTimeout for errors.Is() compatibility.
func (e *ConvergenceTimeoutError) Unwrap() error { return ErrConvergenceTimeout }

// Error implements the error interface.
func (e *UpdateFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("update of function %q failed", e.Function)
	}
	return fmt.Sprintf("update of function %q failed: %s", e.Function, e.Reason)
}

// Unwrap returns ErrUpdateFailed for errors.Is() compatibility.
func (e *UpdateFailedError) Unwrap() error { return ErrUpdateFailed }

// IsTerminal reports whether no further change is expected without a new update.
func (s State) IsTerminal() bool {
	return s == StateSuccessful || s == StateFailed
}

// WithInterval sets the delay between status queries.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d >= 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n >= 1 {
			p.maxAttempts = n
		}
	}
}

// WithSleep replaces the delay primitive, for tests.
func WithSleep(fn SleepFunc) Option {
	return func(p *Poller) {
		p.sleep = fn
	}
}

// WithLogger sets the logger that receives per-attempt progress at debug level.
func WithLogger(l *log.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPoller creates a Poller with the default 5s x 60 budget.
func NewPoller(source StatusSource, opts ...Option) *Poller {
	p := &Poller{
		source:      source,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		sleep:       sleepContext,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Budget returns the worst-case wall time spent sleeping between attempts.
func (p *Poller) Budget() time.Duration {
	return time.Duration(p.maxAttempts-1) * p.interval
}

// Await blocks until function reports StateSuccessful. It returns as soon as
// the first successful status is observed. A Failed status or a query error
// is returned immediately; only "not yet converged" is retried.
//
// Cancellation is honored between attempts.
func (p *Poller) Await(ctx context.Context, function string) error {
	var last Status
	for attempt := range p.maxAttempts {
		if attempt > 0 {
			if err := p.sleep(ctx, p.interval); err != nil {
				return fmt.Errorf("waiting for %q aborted: %w", function, err)
			}
		}

		status, err := p.source.FunctionStatus(ctx, function)
		if err != nil {
			return fmt.Errorf("query status of %q: %w", function, err)
		}
		last = status

		switch status.State {
		case StateSuccessful:
			p.logger.Debug("function converged", "function", function, "attempt", attempt+1)
			return nil
		case StateFailed:
			return &UpdateFailedError{Function: function, Reason: status.Reason}
		default:
			p.logger.Debug("function not yet converged",
				"function", function, "attempt", attempt+1, "of", p.maxAttempts, "state", status.State)
		}
	}

	return &ConvergenceTimeoutError{
		Function: function,
		Attempts: p.maxAttempts,
		Interval: p.interval,
		Last:     last,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

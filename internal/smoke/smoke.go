// SPDX-License-Identifier: MPL-2.0

// Package smoke checks that a locally running function image answers HTTP
// requests with the expected bodies.
package smoke

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	defaultInterval    = 500 * time.Millisecond
	defaultMaxAttempts = 60
	// maxBodyBytes bounds how much of a response body is read and reported.
	maxBodyBytes = 64 << 10
)

var (
	// ErrUnreachable is returned when the base URL never accepts connections.
	ErrUnreachable = errors.New("endpoint unreachable")
	// ErrCheckFailed is the sentinel error wrapped by MismatchError.
	ErrCheckFailed = errors.New("smoke check failed")
	// ErrInvalidExpectation is returned by ParseExpectation.
	ErrInvalidExpectation = errors.New("invalid expectation")
)

type (
	// Expectation is a path and the exact body it must return with 200 OK.
	Expectation struct {
		Path string
		Body string
	}

	// Option configures a Checker.
	Option func(*Checker)

	// Checker runs smoke checks against a base URL.
	Checker struct {
		client      *http.Client
		interval    time.Duration
		maxAttempts int
		logger      *log.Logger
	}

	// MismatchError is returned when a response differs from its expectation.
	MismatchError struct {
		URL        string
		StatusCode int
		Want       string
		Got        string
	}
)

// Error implements the error interface.
func (e *MismatchError) Error() string {
	if e.StatusCode != http.StatusOK {
		return fmt.Sprintf("GET %s: status %d, want 200", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("GET %s: body %q, want %q", e.URL, e.Got, e.Want)
}

// Unwrap returns ErrCheckFailed for errors.Is() compatibility.
func (e *MismatchError) Unwrap() error { return ErrCheckFailed }

// ParseExpectation parses "PATH=BODY", e.g. "/a=AAA".
func ParseExpectation(s string) (Expectation, error) {
	path, body, ok := strings.Cut(s, "=")
	if !ok || !strings.HasPrefix(path, "/") {
		return Expectation{}, fmt.Errorf("%w %q: expected /path=body", ErrInvalidExpectation, s)
	}
	return Expectation{Path: path, Body: body}, nil
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(ch *Checker) {
		ch.client = c
	}
}

// WithRetry sets how often and how many times WaitReachable tries to connect.
func WithRetry(interval time.Duration, maxAttempts int) Option {
	return func(ch *Checker) {
		if interval >= 0 {
			ch.interval = interval
		}
		if maxAttempts > 0 {
			ch.maxAttempts = maxAttempts
		}
	}
}

// WithLogger sets the checker's logger.
func WithLogger(l *log.Logger) Option {
	return func(ch *Checker) {
		if l != nil {
			ch.logger = l
		}
	}
}

// NewChecker creates a Checker.
func NewChecker(opts ...Option) *Checker {
	ch := &Checker{
		client:      &http.Client{Timeout: 10 * time.Second},
		interval:    defaultInterval,
		maxAttempts: defaultMaxAttempts,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(ch)
	}
	return ch
}

// WaitReachable retries GET baseURL while the connection is refused or
// reset. Any HTTP response, whatever its status, ends the wait.
func (c *Checker) WaitReachable(ctx context.Context, baseURL string) error {
	var lastErr error
	for attempt := range c.maxAttempts {
		if attempt > 0 {
			if err := sleep(ctx, c.interval); err != nil {
				return err
			}
		}

		_, _, err := c.get(ctx, baseURL)
		if err == nil {
			c.logger.Debug("endpoint reachable", "url", baseURL, "attempt", attempt+1)
			return nil
		}
		if !isConnectionError(err) {
			return err
		}
		lastErr = err
		c.logger.Debug("endpoint not reachable yet", "url", baseURL, "attempt", attempt+1, "err", err)
	}
	return fmt.Errorf("%w: %s after %d attempts: %w", ErrUnreachable, baseURL, c.maxAttempts, lastErr)
}

// Check requests every expectation's path below baseURL and compares bodies
// exactly. It stops at the first mismatch.
func (c *Checker) Check(ctx context.Context, baseURL string, expectations []Expectation) error {
	for _, exp := range expectations {
		target, err := url.JoinPath(baseURL, exp.Path)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidExpectation, err)
		}

		status, body, err := c.get(ctx, target)
		if err != nil {
			return err
		}
		if status != http.StatusOK || body != exp.Body {
			return &MismatchError{URL: target, StatusCode: status, Want: exp.Body, Got: body}
		}
		c.logger.Info("check passed", "url", target)
	}
	return nil
}

func (c *Checker) get(ctx context.Context, target string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return 0, "", err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("read %s: %w", target, err)
	}
	return resp.StatusCode, string(body), nil
}

// isConnectionError reports whether err happened before any HTTP exchange.
func isConnectionError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

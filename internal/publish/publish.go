// SPDX-License-Identifier: MPL-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"lambdado-cli/internal/container"
	"lambdado-cli/internal/procrun"
	"lambdado-cli/internal/pushdigest"
	"lambdado-cli/internal/registry"
	"lambdado-cli/pkg/imageref"
)

var (
	// ErrAuthentication is the sentinel error wrapped by AuthenticationError.
	ErrAuthentication = errors.New("registry authentication failed")
	// ErrTagging is the sentinel error wrapped by TaggingError.
	ErrTagging = errors.New("image tagging failed")
	// ErrPush is the sentinel error wrapped by PushError.
	ErrPush = errors.New("image push failed")
)

type (
	// CredentialProvider returns a short-lived login for the registry hosting target.
	CredentialProvider interface {
		Credentials(ctx context.Context, target imageref.URI) (registry.Credentials, error)
	}

	// Option configures a Publisher.
	Option func(*Publisher)

	// Publisher moves a locally built image into a registry and returns its
	// content-addressed reference.
	Publisher struct {
		engine      container.Engine
		credentials CredentialProvider
		extractor   pushdigest.Extractor
		logger      *log.Logger
	}

	// Result is a completed publish.
	Result struct {
		// URI is the digest-addressed reference of the pushed image.
		URI imageref.URI
		// Local is the local image that was published.
		Local string
		// Transcript is the raw push output, kept for diagnostics.
		Transcript string
	}

	// AuthenticationError is returned when no login could be obtained or the
	// registry client rejected it.
	AuthenticationError struct {
		Host string
		Err  error
	}

	// TaggingError is returned when the local image cannot be tagged.
	TaggingError struct {
		Source string
		Target string
		Err    error
	}

	// PushError is returned when the push process fails. ExitCode is -1 when
	// the process could not be started.
	PushError struct {
		Reference string
		ExitCode  int
		Err       error
	}
)

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authenticate to %s: %v", e.Host, e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *AuthenticationError) Unwrap() []error { return []error{ErrAuthentication, e.Err} }

// Error implements the error interface.
func (e *TaggingError) Error() string {
	return fmt.Sprintf("tag %s as %s: %v", e.Source, e.Target, e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *TaggingError) Unwrap() []error { return []error{ErrTagging, e.Err} }

// Error implements the error interface.
func (e *PushError) Error() string {
	return fmt.Sprintf("push %s (exit status %d): %v", e.Reference, e.ExitCode, e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *PushError) Unwrap() []error { return []error{ErrPush, e.Err} }

// WithExtractor replaces the transcript-scraping digest extractor.
func WithExtractor(ex pushdigest.Extractor) Option {
	return func(p *Publisher) {
		p.extractor = ex
	}
}

// WithLogger sets the publisher's logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Publisher.
func New(engine container.Engine, credentials CredentialProvider, opts ...Option) *Publisher {
	p := &Publisher{
		engine:      engine,
		credentials: credentials,
		extractor:   pushdigest.TranscriptExtractor{},
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish authenticates to target's registry, tags local with the target
// reference, pushes it and returns target re-addressed by the pushed digest.
// Each step fails independently; nothing is retried.
func (p *Publisher) Publish(ctx context.Context, local string, target imageref.URI) (*Result, error) {
	if target.IsDigest() {
		return nil, &imageref.MalformedReferenceError{
			Value:  target.String(),
			Reason: "cannot publish to a digest-addressed reference",
		}
	}

	if err := p.login(ctx, target); err != nil {
		return nil, err
	}

	ref := target.PushReference()
	p.logger.Info("tagging image", "local", local, "target", ref)
	if err := p.engine.Tag(ctx, local, ref); err != nil {
		return nil, &TaggingError{Source: local, Target: ref, Err: err}
	}

	p.logger.Info("pushing image", "reference", ref)
	res, err := p.engine.Push(ctx, ref)
	if err != nil {
		return nil, pushError(ref, err)
	}
	p.logger.Debug("push finished", "reference", ref, "transcript", res.Combined)

	d, err := p.extractor.ExtractDigest(res.Combined)
	if err != nil {
		return nil, fmt.Errorf("push %s: %w", ref, err)
	}

	uri := target.WithDigest(d)
	p.logger.Info("published", "uri", uri.String())
	return &Result{URI: uri, Local: local, Transcript: res.Combined}, nil
}

func (p *Publisher) login(ctx context.Context, target imageref.URI) error {
	p.logger.Info("logging in to registry", "host", target.Host)

	creds, err := p.credentials.Credentials(ctx, target)
	if err != nil {
		return &AuthenticationError{Host: target.Host, Err: err}
	}

	err = p.engine.Login(ctx, container.LoginOptions{
		Host:     target.Host,
		Username: creds.Username,
		Password: creds.Password,
	})
	if err != nil {
		return &AuthenticationError{Host: target.Host, Err: err}
	}
	return nil
}

func pushError(ref string, err error) error {
	exitCode := -1
	var cmdErr *procrun.ExternalCommandError
	if errors.As(err, &cmdErr) {
		exitCode = cmdErr.ExitCode
	}
	return &PushError{Reference: ref, ExitCode: exitCode, Err: err}
}

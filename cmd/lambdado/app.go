// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"lambdado-cli/internal/config"
	"lambdado-cli/internal/container"
	"lambdado-cli/internal/converge"
	"lambdado-cli/internal/deploy"
	"lambdado-cli/internal/functions"
	"lambdado-cli/internal/procrun"
	"lambdado-cli/internal/publish"
	"lambdado-cli/internal/registry"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type (
	// Services builds the pipeline collaborators for a resolved configuration.
	// Tests replace it with fakes.
	Services interface {
		Engine(cfg *config.Config, stdout, stderr io.Writer) container.Engine
		Credentials(cfg *config.Config, stdout, stderr io.Writer) publish.CredentialProvider
		Platforms(cfg *config.Config) deploy.PlatformFactory
		Repositories(cfg *config.Config) deploy.RepositoryFactory
	}

	// App wires CLI services and shared dependencies. Every cobra handler
	// receives it and delegates through its services.
	App struct {
		Config   config.Provider
		Services Services
		stdout   io.Writer
		stderr   io.Writer
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config   config.Provider
		Services Services
		Stdout   io.Writer
		Stderr   io.Writer
	}

	// session is the per-invocation state of one command.
	session struct {
		app    *App
		cfg    *config.Config
		logger *log.Logger
		engine container.Engine
		// subject names what the current banner is about (image or function).
		subject map[deploy.State]string
	}

	awsServices struct{}
)

// NewApp creates an App, filling nil dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	app := &App{
		Config:   deps.Config,
		Services: deps.Services,
		stdout:   deps.Stdout,
		stderr:   deps.Stderr,
	}
	if app.Config == nil {
		app.Config = config.NewProvider()
	}
	if app.Services == nil {
		app.Services = awsServices{}
	}
	if app.stdout == nil {
		app.stdout = os.Stdout
	}
	if app.stderr == nil {
		app.stderr = os.Stderr
	}
	return app
}

// newSession loads the configuration for cmd and builds the logger and engine.
func (a *App) newSession(cmd *cobra.Command) (*session, error) {
	cfg, err := a.Config.Load(cmd.Context(), config.LoadOptions{Flags: cmd.Flags()})
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(cfg.UI.EffectiveLogLevel().String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	logger := log.NewWithOptions(a.stderr, log.Options{
		Prefix: cfg.UI.HeaderPrefix,
		Level:  level,
	})

	return &session{
		app:     a,
		cfg:     cfg,
		logger:  logger,
		engine:  a.Services.Engine(cfg, a.stdout, a.stderr),
		subject: make(map[deploy.State]string),
	}, nil
}

// publisher builds the image publisher over the session's engine.
func (s *session) publisher() *publish.Publisher {
	creds := s.app.Services.Credentials(s.cfg, s.app.stdout, s.app.stderr)
	return publish.New(s.engine, creds, publish.WithLogger(s.logger))
}

// orchestrator builds the deployment state machine, printing a banner on
// every stage it enters.
func (s *session) orchestrator() *deploy.Orchestrator {
	return deploy.New(
		s.engine,
		s.publisher(),
		s.app.Services.Platforms(s.cfg),
		deploy.WithRepositories(s.app.Services.Repositories(s.cfg)),
		deploy.WithPollerOptions(
			converge.WithInterval(s.cfg.Poll.Interval),
			converge.WithMaxAttempts(s.cfg.Poll.MaxAttempts),
		),
		deploy.WithLogger(s.logger),
		deploy.WithObserver(s.observe),
	)
}

func (s *session) observe(t deploy.Transition) {
	if title := stageTitle(t.To, s.subject[t.To]); title != "" {
		s.banner(title)
	}
}

func (s *session) banner(title string) {
	fmt.Fprint(s.app.stderr, renderBanner(s.cfg.UI.HeaderPrefix, title))
}

// fail prints the failure card for err and wraps it with its exit code.
func (s *session) fail(err error) error {
	writeFailure(s.app.stderr, err, s.cfg.UI.Verbose)
	return &ExitError{Code: exitCodeFor(err), Err: err, rendered: true}
}

// fail is used before a session exists, e.g. when the configuration is invalid.
func (a *App) fail(err error) error {
	writeFailure(a.stderr, err, false)
	return &ExitError{Code: exitCodeFor(err), Err: err, rendered: true}
}

func stageTitle(state deploy.State, subject string) string {
	switch state {
	case deploy.StateBuilding:
		return "Building docker image " + subject
	case deploy.StatePushing:
		return "Pushing " + subject
	case deploy.StateAwaitingPriorConvergence:
		return "Waiting for function " + subject + " to settle"
	case deploy.StateUpdatingFunctionCode:
		return "Updating function " + subject
	case deploy.StateSucceeded:
		return "Function " + subject + " updated"
	default:
		return ""
	}
}

func (awsServices) Engine(cfg *config.Config, stdout, stderr io.Writer) container.Engine {
	runner := procrun.New(procrun.WithOutput(stdout, stderr))
	return container.NewDockerEngine(
		container.WithBinary(cfg.EngineBinary),
		container.WithRunner(runner),
	)
}

func (awsServices) Credentials(cfg *config.Config, stdout, stderr io.Writer) publish.CredentialProvider {
	if cfg.Credentials == config.CredentialsCLI {
		return registry.NewCLICredentials(procrun.New(procrun.WithOutput(stdout, stderr)), cfg.AWSBinary)
	}
	return registry.NewSDKCredentials(registry.NewClientFactory(cfg.AWSEndpoint))
}

func (awsServices) Platforms(cfg *config.Config) deploy.PlatformFactory {
	factory := functions.NewClientFactory(cfg.AWSEndpoint)
	return func(ctx context.Context, region string) (deploy.FunctionPlatform, error) {
		api, err := factory(ctx, region)
		if err != nil {
			return nil, err
		}
		return functions.New(api), nil
	}
}

func (awsServices) Repositories(cfg *config.Config) deploy.RepositoryFactory {
	factory := registry.NewClientFactory(cfg.AWSEndpoint)
	return func(ctx context.Context, region string) (deploy.ImageRepository, error) {
		api, err := factory(ctx, region)
		if err != nil {
			return nil, err
		}
		return registry.New(api), nil
	}
}

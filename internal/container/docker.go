// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"lambdado-cli/internal/issue"
	"lambdado-cli/internal/procrun"
)

const defaultDockerBinary = "docker"

type (
	// DockerOption configures a DockerEngine.
	DockerOption func(*DockerEngine)

	// DockerEngine implements Engine on top of the docker CLI.
	DockerEngine struct {
		binary string
		runner *procrun.Runner
		// lookPath resolves binary for Available; swapped out in tests.
		lookPath func(string) (string, error)
	}
)

// WithBinary overrides the docker executable name or path.
func WithBinary(binary string) DockerOption {
	return func(e *DockerEngine) {
		if binary != "" {
			e.binary = binary
		}
	}
}

// WithRunner sets the process runner used for every docker invocation.
func WithRunner(r *procrun.Runner) DockerOption {
	return func(e *DockerEngine) {
		e.runner = r
	}
}

// NewDockerEngine creates a new Docker engine.
func NewDockerEngine(opts ...DockerOption) *DockerEngine {
	e := &DockerEngine{
		binary:   defaultDockerBinary,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.runner == nil {
		e.runner = procrun.New()
	}
	return e
}

// Name returns the engine name.
func (e *DockerEngine) Name() string {
	return string(EngineTypeDocker)
}

// Binary returns the configured docker executable.
func (e *DockerEngine) Binary() string {
	return e.binary
}

// Available checks if the docker binary resolves and its daemon answers.
func (e *DockerEngine) Available(ctx context.Context) bool {
	if _, err := e.lookPath(e.binary); err != nil {
		return false
	}
	_, err := e.Version(ctx)
	return err == nil
}

// Version returns the Docker server version.
func (e *DockerEngine) Version(ctx context.Context) (string, error) {
	res, err := e.runner.ProbeRun(ctx, e.argv("version", "--format", "{{.Server.Version}}"), procrun.Options{})
	if err != nil {
		return "", fmt.Errorf("failed to get docker version: %w", err)
	}
	if res.ExitCode != 0 {
		return "", &ErrEngineNotAvailable{Engine: e.Name(), Reason: strings.TrimSpace(res.Stderr)}
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Build builds an image from a Dockerfile. Progress streams to the runner's writers.
func (e *DockerEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if _, err := e.runner.CheckedRun(ctx, e.argv(BuildArgs(opts)...), procrun.Options{}); err != nil {
		return buildImageError(e.binary, opts, err)
	}
	return nil
}

// Tag adds target as an additional name for source.
func (e *DockerEngine) Tag(ctx context.Context, source, target string) error {
	_, err := e.runner.CheckedRun(ctx, e.argv("tag", source, target), procrun.Options{Capture: true})
	return err
}

// Login runs "docker login --username <user> --password-stdin <host>".
// The password never appears in argv.
func (e *DockerEngine) Login(ctx context.Context, opts LoginOptions) error {
	argv := e.argv("login", "--username", opts.Username, "--password-stdin", opts.Host)
	_, err := e.runner.CheckedRun(ctx, argv, procrun.Options{
		Capture: true,
		Input:   append(slices.Clone(opts.Password), '\n'),
	})
	return err
}

// Push pushes ref and returns the captured transcript. A non-zero exit is
// returned as *procrun.ExternalCommandError alongside the partial result.
func (e *DockerEngine) Push(ctx context.Context, ref string) (*procrun.Result, error) {
	return e.runner.CheckedRun(ctx, e.argv("push", ref), procrun.Options{Capture: true})
}

// Run starts a container.
func (e *DockerEngine) Run(ctx context.Context, opts RunOptions) error {
	if _, err := e.runner.CheckedRun(ctx, e.argv(RunArgs(opts)...), procrun.Options{Capture: opts.Detach}); err != nil {
		return runContainerError(e.binary, opts, err)
	}
	return nil
}

// Stop stops the named container.
func (e *DockerEngine) Stop(ctx context.Context, name string) error {
	_, err := e.runner.CheckedRun(ctx, e.argv("stop", name), procrun.Options{Capture: true})
	return err
}

func (e *DockerEngine) argv(args ...string) []string {
	return append([]string{e.binary}, args...)
}

// BuildArgs constructs arguments for an image build.
//
// Generated command: build [-f <dockerfile>] -t <tag> [options] <context>
func BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	args = append(args, "-t", opts.Tag)

	if opts.Platform != "" {
		args = append(args, "--platform", opts.Platform)
	}
	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	// Sorted for a stable command line.
	keys := make([]string, 0, len(opts.BuildArgs))
	for k := range opts.BuildArgs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	return append(args, opts.ContextDir)
}

// RunArgs constructs arguments for a container run.
//
// Generated command: run [options] <image>
func RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Detach {
		args = append(args, "--detach")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	for _, p := range opts.Ports {
		args = append(args, "-p", p.String())
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+opts.Env[k])
	}

	return append(args, opts.Image)
}

// buildImageError creates an actionable error for image build failures.
func buildImageError(binary string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image").
		WithIssue(issue.ExternalCommandFailedId)

	switch {
	case opts.Dockerfile != "":
		ctx.WithResource(opts.Dockerfile)
	default:
		ctx.WithResource(filepath.Join(opts.ContextDir, "Dockerfile"))
	}

	ctx.WithSuggestion("Check Dockerfile syntax for errors")
	ctx.WithSuggestion("Verify the build context path exists and is accessible")
	ctx.WithSuggestion("Ensure base images are available (try: " + binary + " pull <base-image>)")

	return ctx.Wrap(cause).BuildError()
}

// runContainerError creates an actionable error for container run failures.
func runContainerError(binary string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run container").
		WithResource(opts.Image).
		WithIssue(issue.ExternalCommandFailedId)

	ctx.WithSuggestion("Verify the image exists (try: " + binary + " images)")
	ctx.WithSuggestion("Ensure port mappings don't conflict with running services")
	if opts.Name != "" {
		ctx.WithSuggestion("Remove a stale container with the same name (try: " + binary + " rm -f " + opts.Name + ")")
	}

	return ctx.Wrap(cause).BuildError()
}

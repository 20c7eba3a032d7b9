// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"lambdado-cli/internal/container"
	"lambdado-cli/internal/converge"
	"lambdado-cli/internal/functions"
	"lambdado-cli/internal/publish"
	"lambdado-cli/internal/registry"
	"lambdado-cli/pkg/imageref"
)

// Deployment states, in pipeline order. Succeeded and Failed are terminal.
const (
	StateIdle                     State = "Idle"
	StateBuilding                 State = "Building"
	StatePushing                  State = "Pushing"
	StateAwaitingPriorConvergence State = "AwaitingPriorConvergence"
	StateUpdatingFunctionCode     State = "UpdatingFunctionCode"
	StateAwaitingNewConvergence   State = "AwaitingNewConvergence"
	StateSucceeded                State = "Succeeded"
	StateFailed                   State = "Failed"
)

// ErrInvalidRequest is returned when a Request is missing required fields.
var ErrInvalidRequest = errors.New("invalid deployment request")

type (
	// State is a step of the deployment state machine.
	State string

	// Builder builds a local image. container.Engine satisfies it.
	Builder interface {
		Build(ctx context.Context, opts container.BuildOptions) error
	}

	// Publisher pushes a local image and returns its digest reference.
	Publisher interface {
		Publish(ctx context.Context, local string, target imageref.URI) (*publish.Result, error)
	}

	// FunctionPlatform is the managed function API for one region.
	FunctionPlatform interface {
		converge.StatusSource
		UpdateFunctionCode(ctx context.Context, function string, image imageref.URI) (*functions.UpdateResult, error)
	}

	// ImageRepository lists and deletes images in one region.
	ImageRepository interface {
		ListImageIDs(ctx context.Context, repository string) ([]registry.ImageID, error)
		BatchDelete(ctx context.Context, repository string, ids []registry.ImageID) (int, error)
	}

	// PlatformFactory returns the function platform for region.
	PlatformFactory func(ctx context.Context, region string) (FunctionPlatform, error)

	// RepositoryFactory returns the image repository client for region.
	RepositoryFactory func(ctx context.Context, region string) (ImageRepository, error)

	// Transition is one state change, delivered to observers.
	Transition struct {
		From State
		To   State
		At   time.Time
		// Err is set when To is StateFailed.
		Err error
	}

	// Observer is notified synchronously of every state transition.
	Observer func(Transition)

	// Option configures an Orchestrator.
	Option func(*Orchestrator)

	// Orchestrator sequences build, publish and function update.
	Orchestrator struct {
		builder      Builder
		publisher    Publisher
		platforms    PlatformFactory
		repositories RepositoryFactory
		pollerOpts   []converge.Option
		observers    []Observer
		logger       *log.Logger
		now          func() time.Time
	}

	// Request is the single unit of work for one pipeline run.
	Request struct {
		// SourceDir is the build context.
		SourceDir string
		// Dockerfile overrides the build file, relative to SourceDir.
		Dockerfile string
		// ImageName is the local image name the build produces.
		ImageName string
		// Platform pins the build platform, e.g. linux/arm64.
		Platform string
		// Registry is the publish target.
		Registry imageref.URI
		// Function is the name or ARN of the function to update.
		Function string
		// Region defaults to Registry.Region().
		Region string
	}

	// StageTiming records how long one stage ran.
	StageTiming struct {
		Stage    State
		Started  time.Time
		Duration time.Duration
	}

	// Result describes a pipeline run, successful or not.
	Result struct {
		Function string
		Region   string
		// Image is the digest reference the function was pointed at. It is
		// set as soon as the publish succeeds.
		Image  imageref.URI
		Update *functions.UpdateResult
		State  State
		Stages []StageTiming
	}

	// StageError attributes a failure to the stage it happened in.
	StageError struct {
		Stage State
		Err   error
	}

	// run tracks one execution of the state machine.
	run struct {
		o      *Orchestrator
		result *Result
	}
)

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap returns the stage's underlying error.
func (e *StageError) Unwrap() error { return e.Err }

// IsTerminal reports whether s ends a run.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// WithPollerOptions sets the convergence budget used for both waits.
func WithPollerOptions(opts ...converge.Option) Option {
	return func(o *Orchestrator) {
		o.pollerOpts = append(o.pollerOpts, opts...)
	}
}

// WithObserver registers fn for state transitions.
func WithObserver(fn Observer) Option {
	return func(o *Orchestrator) {
		o.observers = append(o.observers, fn)
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRepositories sets the factory used by PurgeAllImages.
func WithRepositories(f RepositoryFactory) Option {
	return func(o *Orchestrator) {
		o.repositories = f
	}
}

// New creates an Orchestrator. Any collaborator may be nil when the
// operations that need it are not used.
func New(builder Builder, publisher Publisher, platforms PlatformFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		builder:   builder,
		publisher: publisher,
		platforms: platforms,
		logger:    log.New(io.Discard),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate checks that every required field is set.
func (r Request) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SourceDir) == "" {
		missing = append(missing, "source directory")
	}
	if strings.TrimSpace(r.ImageName) == "" {
		missing = append(missing, "image name")
	}
	if r.Registry.Host == "" || r.Registry.Name == "" {
		missing = append(missing, "registry URI")
	}
	if strings.TrimSpace(r.Function) == "" {
		missing = append(missing, "function")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	if r.region() == "" {
		return fmt.Errorf("%w: region not given and not derivable from %q", ErrInvalidRequest, r.Registry.Host)
	}
	return nil
}

func (r Request) region() string {
	if r.Region != "" {
		return r.Region
	}
	return r.Registry.Region()
}

// Deploy builds req.SourceDir, publishes it, waits for any in-flight change
// on the function to settle, points the function at the published digest and
// waits for that change to settle.
//
// Every failure moves the run to StateFailed and is returned as *StageError.
// Nothing is retried apart from the convergence polls, and nothing is rolled
// back. The returned Result is non-nil whenever the request was valid.
func (o *Orchestrator) Deploy(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	r := o.newRun(req.Function, req.region())

	err := r.stage(StateBuilding, func() error {
		return o.builder.Build(ctx, container.BuildOptions{
			ContextDir: req.SourceDir,
			Dockerfile: req.Dockerfile,
			Tag:        req.ImageName,
			Platform:   req.Platform,
		})
	})
	if err != nil {
		return r.result, err
	}

	err = r.stage(StatePushing, func() error {
		published, err := o.publisher.Publish(ctx, req.ImageName, req.Registry)
		if err != nil {
			return err
		}
		r.result.Image = published.URI
		return nil
	})
	if err != nil {
		return r.result, err
	}

	return r.result, r.rollout(ctx)
}

// Rollout runs only the update half of Deploy for an already published,
// digest-addressed image.
func (o *Orchestrator) Rollout(ctx context.Context, function, region string, image imageref.URI) (*Result, error) {
	if !image.IsDigest() {
		return nil, &imageref.MalformedReferenceError{Value: image.String(), Reason: "function code must be digest-addressed"}
	}
	if region == "" {
		region = image.Region()
	}
	if function == "" || region == "" {
		return nil, fmt.Errorf("%w: function and region are required", ErrInvalidRequest)
	}

	r := o.newRun(function, region)
	r.result.Image = image
	return r.result, r.rollout(ctx)
}

// AwaitConvergence waits for function's current change to settle.
func (o *Orchestrator) AwaitConvergence(ctx context.Context, function, region string) error {
	platform, err := o.platforms(ctx, region)
	if err != nil {
		return err
	}
	return o.poller(platform).Await(ctx, function)
}

// PurgeAllImages deletes every image in uri's repository with a single batch
// request and returns how many were deleted. An empty repository is not an
// error and issues no delete.
func (o *Orchestrator) PurgeAllImages(ctx context.Context, uri imageref.URI) (int, error) {
	if o.repositories == nil {
		return 0, errors.New("no image repository configured")
	}
	repo, err := o.repositories(ctx, uri.Region())
	if err != nil {
		return 0, err
	}

	ids, err := repo.ListImageIDs(ctx, uri.Name)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		o.logger.Info("repository is empty, nothing to delete", "repository", uri.Name)
		return 0, nil
	}

	o.logger.Info("deleting images", "repository", uri.Name, "count", len(ids))
	return repo.BatchDelete(ctx, uri.Name, ids)
}

func (o *Orchestrator) poller(source converge.StatusSource) *converge.Poller {
	opts := append([]converge.Option{converge.WithLogger(o.logger)}, o.pollerOpts...)
	return converge.NewPoller(source, opts...)
}

func (o *Orchestrator) newRun(function, region string) *run {
	return &run{
		o: o,
		result: &Result{
			Function: function,
			Region:   region,
			State:    StateIdle,
		},
	}
}

// rollout runs AwaitingPriorConvergence, UpdatingFunctionCode and
// AwaitingNewConvergence, then marks the run Succeeded.
func (r *run) rollout(ctx context.Context) error {
	var (
		platform FunctionPlatform
		poller   *converge.Poller
	)

	err := r.stage(StateAwaitingPriorConvergence, func() error {
		var err error
		platform, err = r.o.platforms(ctx, r.result.Region)
		if err != nil {
			return err
		}
		poller = r.o.poller(platform)
		return poller.Await(ctx, r.result.Function)
	})
	if err != nil {
		return err
	}

	err = r.stage(StateUpdatingFunctionCode, func() error {
		update, err := platform.UpdateFunctionCode(ctx, r.result.Function, r.result.Image)
		if err != nil {
			return err
		}
		r.result.Update = update
		return nil
	})
	if err != nil {
		return err
	}

	err = r.stage(StateAwaitingNewConvergence, func() error {
		return poller.Await(ctx, r.result.Function)
	})
	if err != nil {
		return err
	}

	r.transition(StateSucceeded, nil)
	r.o.logger.Info("deployment succeeded", "function", r.result.Function, "image", r.result.Image.String())
	return nil
}

// stage enters s, runs fn and records its duration. A failure moves the run
// to StateFailed and is returned wrapped in *StageError.
func (r *run) stage(s State, fn func() error) error {
	started := r.o.now()
	r.transition(s, nil)
	r.o.logger.Info("entering stage", "stage", s, "function", r.result.Function)

	err := fn()
	r.result.Stages = append(r.result.Stages, StageTiming{
		Stage:    s,
		Started:  started,
		Duration: r.o.now().Sub(started),
	})
	if err == nil {
		return nil
	}

	stageErr := &StageError{Stage: s, Err: err}
	r.transition(StateFailed, stageErr)
	r.o.logger.Error("stage failed", "stage", s, "err", err)
	return stageErr
}

func (r *run) transition(to State, err error) {
	t := Transition{From: r.result.State, To: to, At: r.o.now(), Err: err}
	r.result.State = to
	for _, obs := range r.o.observers {
		obs(t)
	}
}

// SPDX-License-Identifier: MPL-2.0

package deploy

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"lambdado-cli/internal/container"
	"lambdado-cli/internal/converge"
	"lambdado-cli/internal/functions"
	"lambdado-cli/internal/publish"
	"lambdado-cli/internal/registry"
	"lambdado-cli/internal/testutil"
	"lambdado-cli/pkg/imageref"
)

const (
	testRegistry = "123456789012.dkr.ecr.us-east-1.amazonaws.com/lambda-docker"
	testDigest   = "sha256:d4c7852abfabaf3076bd6a84"
)

type fakeBuilder struct {
	err   error
	calls []container.BuildOptions
}

func (f *fakeBuilder) Build(_ context.Context, opts container.BuildOptions) error {
	f.calls = append(f.calls, opts)
	return f.err
}

type fakePublisher struct {
	err   error
	calls int
}

func (f *fakePublisher) Publish(_ context.Context, local string, target imageref.URI) (*publish.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &publish.Result{URI: target.WithDigest(testDigest), Local: local}, nil
}

// fakePlatform models a function with a single in-flight change slot.
type fakePlatform struct {
	image         string
	changes       int
	pendingPolls  int
	pending       int
	statusCalls   int
	updateCalls   []string
	updateErr     error
	alwaysPending bool
}

func (f *fakePlatform) FunctionStatus(context.Context, string) (converge.Status, error) {
	f.statusCalls++
	if f.alwaysPending || f.pending > 0 {
		f.pending--
		return converge.Status{State: converge.StateInProgress}, nil
	}
	return converge.Status{State: converge.StateSuccessful}, nil
}

func (f *fakePlatform) UpdateFunctionCode(_ context.Context, _ string, image imageref.URI) (*functions.UpdateResult, error) {
	f.updateCalls = append(f.updateCalls, image.String())
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	if f.image != image.String() {
		f.changes++
		f.image = image.String()
	}
	f.pending = f.pendingPolls
	return &functions.UpdateResult{ImageURI: image.String(), CodeSHA256: "abc"}, nil
}

type fixture struct {
	builder        *fakeBuilder
	publisher      *fakePublisher
	platform       *fakePlatform
	platformRegion string
	transitions    []Transition
	clock          *testutil.FakeClock
	orchestrator   *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		builder:   &fakeBuilder{},
		publisher: &fakePublisher{},
		platform:  &fakePlatform{},
		clock:     testutil.NewFakeClock(time.Time{}),
	}
	platforms := func(_ context.Context, region string) (FunctionPlatform, error) {
		f.platformRegion = region
		return f.platform, nil
	}
	f.orchestrator = New(f.builder, f.publisher, platforms,
		WithObserver(func(t Transition) { f.transitions = append(f.transitions, t) }),
		WithClock(f.clock.Now),
		WithPollerOptions(
			converge.WithMaxAttempts(3),
			converge.WithInterval(5*time.Second),
			converge.WithSleep(f.clock.Sleep),
		),
	)
	return f
}

func (f *fixture) states() []State {
	states := make([]State, 0, len(f.transitions))
	for _, t := range f.transitions {
		states = append(states, t.To)
	}
	return states
}

func validRequest() Request {
	return Request{
		SourceDir: "./app",
		ImageName: "lambda-docker",
		Registry:  imageref.MustParse(testRegistry),
		Function:  "my-function",
	}
}

func TestDeploy_Succeeds(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.platform.pendingPolls = 2

	res, err := f.orchestrator.Deploy(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}

	if res.State != StateSucceeded {
		t.Errorf("State = %s, want Succeeded", res.State)
	}
	want := []State{
		StateBuilding, StatePushing, StateAwaitingPriorConvergence,
		StateUpdatingFunctionCode, StateAwaitingNewConvergence, StateSucceeded,
	}
	if got := f.states(); !slices.Equal(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
	if res.Image.String() != testRegistry+"@"+testDigest {
		t.Errorf("Image = %s", res.Image)
	}
	if f.platformRegion != "us-east-1" {
		t.Errorf("region = %q, want derived us-east-1", f.platformRegion)
	}
	if got := f.platform.updateCalls; len(got) != 1 || got[0] != testRegistry+"@"+testDigest {
		t.Errorf("update calls = %v", got)
	}
	// one poll before the update, three after (two in progress + success)
	if f.platform.statusCalls != 4 {
		t.Errorf("status polled %d times, want 4", f.platform.statusCalls)
	}
	if len(res.Stages) != 5 {
		t.Fatalf("recorded %d stage timings, want 5", len(res.Stages))
	}
	// two in-progress polls after the update, each followed by one interval
	if awaitNew := res.Stages[4]; awaitNew.Stage != StateAwaitingNewConvergence || awaitNew.Duration != 10*time.Second {
		t.Errorf("AwaitingNewConvergence timing = %+v, want 10s", awaitNew)
	}
	if res.Stages[0].Duration != 0 {
		t.Errorf("Building took %v on a stopped clock", res.Stages[0].Duration)
	}

	build := f.builder.calls[0]
	if build.ContextDir != "./app" || build.Tag != "lambda-docker" {
		t.Errorf("unexpected build options: %+v", build)
	}
}

func TestDeploy_BuildFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture()
	buildErr := errors.New("docker build exited with status 1")
	f.builder.err = buildErr

	res, err := f.orchestrator.Deploy(context.Background(), validRequest())

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *StageError, got %v", err)
	}
	if stageErr.Stage != StateBuilding || !errors.Is(err, buildErr) {
		t.Errorf("unexpected stage error: %v", stageErr)
	}
	if res.State != StateFailed {
		t.Errorf("State = %s, want Failed", res.State)
	}
	if got := f.states(); !slices.Equal(got, []State{StateBuilding, StateFailed}) {
		t.Errorf("transitions = %v", got)
	}
	if f.publisher.calls != 0 {
		t.Error("push must not run after a failed build")
	}
	if f.platform.statusCalls != 0 || len(f.platform.updateCalls) != 0 {
		t.Error("convergence wait and update must not run after a failed build")
	}
	if last := f.transitions[len(f.transitions)-1]; last.From != StateBuilding || last.Err == nil {
		t.Errorf("failed transition = %+v", last)
	}
}

func TestDeploy_PushFailureStopsPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.publisher.err = &publish.PushError{Reference: testRegistry, ExitCode: 1, Err: errors.New("denied")}

	res, err := f.orchestrator.Deploy(context.Background(), validRequest())
	if !errors.Is(err, publish.ErrPush) {
		t.Fatalf("expected ErrPush, got %v", err)
	}
	if res.Image.IsDigest() {
		t.Error("no image should be recorded when the push failed")
	}
	if f.platform.statusCalls != 0 {
		t.Error("convergence wait must not run after a failed push")
	}
}

func TestDeploy_PriorChangeNeverSettles(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.platform.alwaysPending = true

	_, err := f.orchestrator.Deploy(context.Background(), validRequest())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StateAwaitingPriorConvergence {
		t.Fatalf("expected failure in AwaitingPriorConvergence, got %v", err)
	}
	if !errors.Is(err, converge.ErrConvergenceTimeout) {
		t.Errorf("expected ErrConvergenceTimeout, got %v", err)
	}
	if len(f.platform.updateCalls) != 0 {
		t.Error("update must not be issued while a prior change is in flight")
	}
}

func TestDeploy_UpdateRejected(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.platform.updateErr = functions.ErrUpdateConflict

	res, err := f.orchestrator.Deploy(context.Background(), validRequest())

	var stageErr *StageError
	if !errors.As(err, &stageErr) || stageErr.Stage != StateUpdatingFunctionCode {
		t.Fatalf("expected failure in UpdatingFunctionCode, got %v", err)
	}
	if f.platform.statusCalls != 1 {
		t.Errorf("status polled %d times, want only the prior wait", f.platform.statusCalls)
	}
	if !res.Image.IsDigest() {
		t.Error("published image should be kept on the result")
	}
}

func TestDeploy_Idempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	req := validRequest()

	first, err := f.orchestrator.Deploy(context.Background(), req)
	if err != nil {
		t.Fatalf("first Deploy() error = %v", err)
	}
	second, err := f.orchestrator.Deploy(context.Background(), req)
	if err != nil {
		t.Fatalf("second Deploy() error = %v", err)
	}

	if first.State != StateSucceeded || second.State != StateSucceeded {
		t.Errorf("states = %s, %s", first.State, second.State)
	}
	if first.Image != second.Image {
		t.Errorf("image changed between runs: %s != %s", first.Image, second.Image)
	}
	if len(f.platform.updateCalls) != 2 || f.platform.updateCalls[0] != f.platform.updateCalls[1] {
		t.Errorf("update calls = %v", f.platform.updateCalls)
	}
	if f.platform.changes != 1 {
		t.Errorf("platform saw %d changes, want 1 (second update is a no-op)", f.platform.changes)
	}
}

func TestDeploy_InvalidRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		edit func(*Request)
	}{
		{name: "no source dir", edit: func(r *Request) { r.SourceDir = "" }},
		{name: "no image", edit: func(r *Request) { r.ImageName = " " }},
		{name: "no function", edit: func(r *Request) { r.Function = "" }},
		{name: "no registry", edit: func(r *Request) { r.Registry = imageref.URI{} }},
		{name: "no region", edit: func(r *Request) { r.Registry = imageref.MustParse("localhost:5000/app") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture()
			req := validRequest()
			tt.edit(&req)

			res, err := f.orchestrator.Deploy(context.Background(), req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if res != nil || len(f.builder.calls) != 0 {
				t.Error("invalid request must not start the pipeline")
			}
		})
	}
}

func TestDeploy_ExplicitRegionWins(t *testing.T) {
	t.Parallel()

	f := newFixture()
	req := validRequest()
	req.Region = "eu-central-1"

	if _, err := f.orchestrator.Deploy(context.Background(), req); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if f.platformRegion != "eu-central-1" {
		t.Errorf("region = %q, want eu-central-1", f.platformRegion)
	}
}

func TestRollout(t *testing.T) {
	t.Parallel()

	f := newFixture()
	image := imageref.MustParse(testRegistry + "@" + testDigest)

	res, err := f.orchestrator.Rollout(context.Background(), "my-function", "", image)
	if err != nil {
		t.Fatalf("Rollout() error = %v", err)
	}
	want := []State{StateAwaitingPriorConvergence, StateUpdatingFunctionCode, StateAwaitingNewConvergence, StateSucceeded}
	if got := f.states(); !slices.Equal(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
	if res.Region != "us-east-1" {
		t.Errorf("Region = %q", res.Region)
	}
	if len(f.builder.calls) != 0 || f.publisher.calls != 0 {
		t.Error("rollout must not build or push")
	}
}

func TestRollout_RejectsTaggedImage(t *testing.T) {
	t.Parallel()

	f := newFixture()
	_, err := f.orchestrator.Rollout(context.Background(), "fn", "us-east-1", imageref.MustParse(testRegistry+":latest"))
	if !errors.Is(err, imageref.ErrMalformedReference) {
		t.Fatalf("expected ErrMalformedReference, got %v", err)
	}
}

func TestAwaitConvergence(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.platform.pending = 2

	if err := f.orchestrator.AwaitConvergence(context.Background(), "fn", "us-west-2"); err != nil {
		t.Fatalf("AwaitConvergence() error = %v", err)
	}
	if f.platform.statusCalls != 3 || f.platformRegion != "us-west-2" {
		t.Errorf("statusCalls=%d region=%q", f.platform.statusCalls, f.platformRegion)
	}
}

type fakeRepository struct {
	ids         []registry.ImageID
	listErr     error
	deleteCalls [][]registry.ImageID
}

func (f *fakeRepository) ListImageIDs(context.Context, string) ([]registry.ImageID, error) {
	return f.ids, f.listErr
}

func (f *fakeRepository) BatchDelete(_ context.Context, _ string, ids []registry.ImageID) (int, error) {
	f.deleteCalls = append(f.deleteCalls, ids)
	return len(ids), nil
}

func newPurgeOrchestrator(repo *fakeRepository, gotRegion *string) *Orchestrator {
	return New(nil, nil, nil, WithRepositories(func(_ context.Context, region string) (ImageRepository, error) {
		*gotRegion = region
		return repo, nil
	}))
}

func TestPurgeAllImages_EmptyRepositorySkipsDelete(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{ids: []registry.ImageID{}}
	var region string

	n, err := newPurgeOrchestrator(repo, &region).PurgeAllImages(context.Background(), imageref.MustParse(testRegistry))
	if err != nil {
		t.Fatalf("PurgeAllImages() error = %v", err)
	}
	if n != 0 {
		t.Errorf("deleted = %d, want 0", n)
	}
	if len(repo.deleteCalls) != 0 {
		t.Errorf("issued %d delete calls, want 0", len(repo.deleteCalls))
	}
}

func TestPurgeAllImages_SingleBatch(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{ids: []registry.ImageID{
		{Digest: "sha256:aa", Tag: "latest"},
		{Digest: "sha256:bb"},
		{Digest: "sha256:cc"},
	}}
	var region string

	n, err := newPurgeOrchestrator(repo, &region).PurgeAllImages(context.Background(), imageref.MustParse(testRegistry+":latest"))
	if err != nil {
		t.Fatalf("PurgeAllImages() error = %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
	if len(repo.deleteCalls) != 1 {
		t.Fatalf("issued %d delete calls, want exactly 1", len(repo.deleteCalls))
	}
	if !slices.Equal(repo.deleteCalls[0], repo.ids) {
		t.Errorf("deleted ids = %v", repo.deleteCalls[0])
	}
	if region != "us-east-1" {
		t.Errorf("region = %q", region)
	}
}

func TestPurgeAllImages_ListError(t *testing.T) {
	t.Parallel()

	repo := &fakeRepository{listErr: registry.ErrRepositoryNotFound}
	var region string

	_, err := newPurgeOrchestrator(repo, &region).PurgeAllImages(context.Background(), imageref.MustParse(testRegistry))
	if !errors.Is(err, registry.ErrRepositoryNotFound) {
		t.Fatalf("expected ErrRepositoryNotFound, got %v", err)
	}
	if len(repo.deleteCalls) != 0 {
		t.Error("no delete may be issued when listing fails")
	}
}

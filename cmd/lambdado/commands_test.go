// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"lambdado-cli/internal/config"
	"lambdado-cli/internal/container"
	"lambdado-cli/internal/converge"
	"lambdado-cli/internal/deploy"
	"lambdado-cli/internal/functions"
	"lambdado-cli/internal/procrun"
	"lambdado-cli/internal/publish"
	"lambdado-cli/internal/registry"
	"lambdado-cli/pkg/imageref"
)

const (
	testRegistry = "123456789012.dkr.ecr.us-east-1.amazonaws.com/my-fn"
	testDigest   = "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
)

type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	buildErr error
	pushErr  error
	runOpts  []container.RunOptions
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Name() string { return "docker" }
func (f *fakeEngine) Available(context.Context) bool { return true }
func (f *fakeEngine) Version(context.Context) (string, error) { return "27.0.0", nil }

func (f *fakeEngine) Build(_ context.Context, opts container.BuildOptions) error {
	f.record("build " + opts.Tag)
	return f.buildErr
}

func (f *fakeEngine) Tag(_ context.Context, source, target string) error {
	f.record("tag " + source + " " + target)
	return nil
}

func (f *fakeEngine) Login(_ context.Context, opts container.LoginOptions) error {
	f.record("login " + opts.Host)
	return nil
}

func (f *fakeEngine) Push(_ context.Context, ref string) (*procrun.Result, error) {
	f.record("push " + ref)
	if f.pushErr != nil {
		return nil, f.pushErr
	}
	return &procrun.Result{
		Argv:     []string{"docker", "push", ref},
		Combined: "abc123: Pushed\nlatest: digest: " + testDigest + " size: 528\n",
	}, nil
}

func (f *fakeEngine) Run(_ context.Context, opts container.RunOptions) error {
	f.record("run " + opts.Image)
	f.mu.Lock()
	f.runOpts = append(f.runOpts, opts)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Stop(_ context.Context, name string) error {
	f.record("stop " + name)
	return nil
}

type fakeCredentials struct{}

func (fakeCredentials) Credentials(context.Context, imageref.URI) (registry.Credentials, error) {
	return registry.Credentials{Username: "AWS", Password: []byte("token")}, nil
}

type fakePlatform struct {
	mu      sync.Mutex
	regions []string
	updated []imageref.URI
	status  converge.Status
}

func (f *fakePlatform) FunctionStatus(context.Context, string) (converge.Status, error) {
	if f.status.State == "" {
		return converge.Status{State: converge.StateSuccessful}, nil
	}
	return f.status, nil
}

func (f *fakePlatform) UpdateFunctionCode(_ context.Context, _ string, image imageref.URI) (*functions.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, image)
	return &functions.UpdateResult{CodeSHA256: "code-sha", ImageURI: image.String()}, nil
}

type fakeRepository struct {
	ids     []registry.ImageID
	deleted int
}

func (f *fakeRepository) ListImageIDs(context.Context, string) ([]registry.ImageID, error) {
	return f.ids, nil
}

func (f *fakeRepository) BatchDelete(_ context.Context, _ string, ids []registry.ImageID) (int, error) {
	f.deleted += len(ids)
	return len(ids), nil
}

type fakeServices struct {
	engine   *fakeEngine
	platform *fakePlatform
	repo     *fakeRepository
}

func newFakeServices() *fakeServices {
	return &fakeServices{engine: &fakeEngine{}, platform: &fakePlatform{}, repo: &fakeRepository{}}
}

func (f *fakeServices) Engine(*config.Config, io.Writer, io.Writer) container.Engine { return f.engine }

func (f *fakeServices) Credentials(*config.Config, io.Writer, io.Writer) publish.CredentialProvider {
	return fakeCredentials{}
}

func (f *fakeServices) Platforms(*config.Config) deploy.PlatformFactory {
	return func(_ context.Context, region string) (deploy.FunctionPlatform, error) {
		f.platform.mu.Lock()
		f.platform.regions = append(f.platform.regions, region)
		f.platform.mu.Unlock()
		return f.platform, nil
	}
}

func (f *fakeServices) Repositories(*config.Config) deploy.RepositoryFactory {
	return func(context.Context, string) (deploy.ImageRepository, error) {
		return f.repo, nil
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func (r cliResult) exitCode() int {
	var exitErr *ExitError
	if errors.As(r.err, &exitErr) {
		return exitErr.Code
	}
	if r.err != nil {
		return -1
	}
	return 0
}

func executeCLI(t *testing.T, svc Services, args ...string) cliResult {
	t.Helper()

	var stdout, stderr bytes.Buffer
	app := NewApp(Dependencies{Services: svc, Stdout: &stdout, Stderr: &stderr})
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&stderr)
	root.SetErr(&stderr)
	root.SilenceErrors = true
	root.SilenceUsage = true

	err := root.ExecuteContext(context.Background())
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestDeployCommand(t *testing.T) {
	t.Parallel()

	svc := newFakeServices()
	reportPath := filepath.Join(t.TempDir(), "report.toml")

	res := executeCLI(t, svc,
		"deploy", "--dir", "./service", "--image", "my-fn",
		"--registry", testRegistry, "--function", "my-fn",
		"--header-prefix", "[staging]", "--report", reportPath,
	)
	if res.err != nil {
		t.Fatalf("deploy failed: %v\nstderr:\n%s", res.err, res.stderr)
	}

	want := testRegistry + "@" + testDigest
	if strings.TrimSpace(res.stdout) != want {
		t.Errorf("stdout = %q, want %q", res.stdout, want)
	}

	wantCalls := []string{
		"build my-fn",
		"login 123456789012.dkr.ecr.us-east-1.amazonaws.com",
		"tag my-fn " + testRegistry,
		"push " + testRegistry,
	}
	if !slices.Equal(svc.engine.calls, wantCalls) {
		t.Errorf("engine calls = %v, want %v", svc.engine.calls, wantCalls)
	}

	if len(svc.platform.updated) != 1 || svc.platform.updated[0].String() != want {
		t.Errorf("function updated with %v, want %s", svc.platform.updated, want)
	}
	if !slices.Contains(svc.platform.regions, "us-east-1") {
		t.Errorf("platform regions = %v, want us-east-1", svc.platform.regions)
	}

	for _, banner := range []string{"[staging]", "BUILDING DOCKER IMAGE MY-FN", "UPDATING FUNCTION MY-FN"} {
		if !strings.Contains(res.stderr, banner) {
			t.Errorf("stderr missing banner %q:\n%s", banner, res.stderr)
		}
	}

	rep, err := deploy.ReadReport(reportPath)
	if err != nil {
		t.Fatalf("ReadReport() error = %v", err)
	}
	if rep.State != deploy.StateSucceeded || rep.Digest != testDigest || rep.CodeSHA256 != "code-sha" {
		t.Errorf("unexpected report: %+v", rep)
	}
}

func TestDeployCommand_BuildFailure(t *testing.T) {
	t.Parallel()

	svc := newFakeServices()
	svc.engine.buildErr = &procrun.ExternalCommandError{
		ExitCode: 1,
		Argv:     []string{"docker", "build", "-t", "my-fn", "./service"},
		Output:   "Step 3/5 : RUN make\nmake: *** No rule to make target\n",
	}

	res := executeCLI(t, svc,
		"deploy", "--dir", "./service", "--image", "my-fn",
		"--registry", testRegistry, "--function", "my-fn",
	)

	if res.exitCode() != ExitFailure {
		t.Fatalf("exit code = %d, want %d (err: %v)", res.exitCode(), ExitFailure, res.err)
	}
	for _, want := range []string{"Building failed", "docker build -t my-fn ./service", "No rule to make target"} {
		if !strings.Contains(res.stderr, want) {
			t.Errorf("stderr missing %q:\n%s", want, res.stderr)
		}
	}
	if len(svc.platform.updated) != 0 {
		t.Error("function must not be updated after a failed build")
	}
	if res.stdout != "" {
		t.Errorf("stdout should be empty on failure, got %q", res.stdout)
	}
}

func TestDeployCommand_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
	}{
		{
			name: "malformed registry",
			args: []string{"deploy", "--image", "my-fn", "--registry", "not a uri", "--function", "my-fn"},
		},
		{
			name: "region not derivable",
			args: []string{"deploy", "--image", "my-fn", "--registry", "localhost:5000/my-fn", "--function", "my-fn"},
		},
		{
			name: "invalid credentials mode",
			args: []string{"deploy", "--image", "my-fn", "--registry", testRegistry, "--function", "my-fn", "--credentials", "vault"},
		},
		{
			name: "update with tag reference",
			args: []string{"update", "--function", "my-fn", "--image-uri", testRegistry + ":latest"},
		},
		{
			name: "invalid port mapping",
			args: []string{"run", "--image", "my-fn", "--port", "9000"},
		},
		{
			name: "wait without region",
			args: []string{"wait", "--function", "my-fn"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := newFakeServices()
			res := executeCLI(t, svc, tt.args...)
			if res.exitCode() != ExitInvalidInput {
				t.Fatalf("exit code = %d, want %d (err: %v)", res.exitCode(), ExitInvalidInput, res.err)
			}
			if len(svc.engine.calls) != 0 || len(svc.platform.updated) != 0 {
				t.Errorf("nothing should run on invalid input: %v", svc.engine.calls)
			}
		})
	}
}

func TestPushCommand(t *testing.T) {
	t.Parallel()

	svc := newFakeServices()
	res := executeCLI(t, svc, "push", "--image", "my-fn", "--registry", testRegistry+":v2")
	if res.err != nil {
		t.Fatalf("push failed: %v\n%s", res.err, res.stderr)
	}

	if got := strings.TrimSpace(res.stdout); got != testRegistry+"@"+testDigest {
		t.Errorf("stdout = %q", got)
	}
	if !slices.Contains(svc.engine.calls, "push "+testRegistry+":v2") {
		t.Errorf("expected push of the tagged reference, calls = %v", svc.engine.calls)
	}
}

func TestUpdateCommand(t *testing.T) {
	t.Parallel()

	svc := newFakeServices()
	image := testRegistry + "@" + testDigest
	res := executeCLI(t, svc, "update", "--function", "my-fn", "--image-uri", image, "--region", "eu-west-1")
	if res.err != nil {
		t.Fatalf("update failed: %v\n%s", res.err, res.stderr)
	}

	if len(svc.engine.calls) != 0 {
		t.Errorf("update must not touch the engine, calls = %v", svc.engine.calls)
	}
	if len(svc.platform.updated) != 1 || svc.platform.updated[0].String() != image {
		t.Errorf("updated = %v", svc.platform.updated)
	}
	if !slices.Contains(svc.platform.regions, "eu-west-1") {
		t.Errorf("explicit region not used: %v", svc.platform.regions)
	}
}

func TestUpdateCommand_PlatformFailure(t *testing.T) {
	t.Parallel()

	svc := newFakeServices()
	svc.platform.status = converge.Status{State: converge.StateFailed, Reason: "image architecture mismatch"}

	res := executeCLI(t, svc, "update", "--function", "my-fn", "--image-uri", testRegistry+"@"+testDigest)
	if res.exitCode() != ExitFailure {
		t.Fatalf("exit code = %d, want %d", res.exitCode(), ExitFailure)
	}
	if !errors.Is(res.err, converge.ErrUpdateFailed) {
		t.Errorf("expected ErrUpdateFailed, got %v", res.err)
	}
	if !strings.Contains(res.stderr, "image architecture mismatch") {
		t.Errorf("stderr should carry the platform reason:\n%s", res.stderr)
	}
}

func TestWaitCommand(t *testing.T) {
	t.Parallel()

	svc := newFakeServices()
	res := executeCLI(t, svc, "wait", "--function", "my-fn", "--region", "us-east-1")
	if res.err != nil {
		t.Fatalf("wait failed: %v\n%s", res.err, res.stderr)
	}
	if !strings.Contains(res.stderr, "my-fn is up to date") {
		t.Errorf("stderr = %s", res.stderr)
	}
}

func TestPurgeCommand(t *testing.T) {
	t.Parallel()

	t.Run("empty repository", func(t *testing.T) {
		t.Parallel()

		svc := newFakeServices()
		res := executeCLI(t, svc, "purge", "--registry", testRegistry)
		if res.err != nil {
			t.Fatalf("purge failed: %v", res.err)
		}
		if !strings.Contains(res.stderr, "Nothing to delete") {
			t.Errorf("stderr = %s", res.stderr)
		}
	})

	t.Run("deletes every image", func(t *testing.T) {
		t.Parallel()

		svc := newFakeServices()
		svc.repo.ids = []registry.ImageID{{Digest: testDigest, Tag: "latest"}, {Digest: "sha256:0123"}}
		res := executeCLI(t, svc, "purge", "--registry", testRegistry)
		if res.err != nil {
			t.Fatalf("purge failed: %v", res.err)
		}
		if svc.repo.deleted != 2 || !strings.Contains(res.stderr, "Deleted 2 image(s)") {
			t.Errorf("deleted = %d, stderr = %s", svc.repo.deleted, res.stderr)
		}
	})
}

func TestRunAndStopCommands(t *testing.T) {
	t.Parallel()

	svc := newFakeServices()
	res := executeCLI(t, svc, "run", "--image", "my-fn", "--name", "fn-local", "-p", "9000:8080", "-e", "STAGE=dev", "--detach")
	if res.err != nil {
		t.Fatalf("run failed: %v\n%s", res.err, res.stderr)
	}
	if len(svc.engine.runOpts) != 1 {
		t.Fatalf("run options = %v", svc.engine.runOpts)
	}
	opts := svc.engine.runOpts[0]
	if opts.Name != "fn-local" || !opts.Detach || opts.Env["STAGE"] != "dev" {
		t.Errorf("unexpected run options: %+v", opts)
	}
	if len(opts.Ports) != 1 || opts.Ports[0].String() != "9000:8080/tcp" {
		t.Errorf("unexpected ports: %v", opts.Ports)
	}

	res = executeCLI(t, svc, "stop", "fn-local")
	if res.err != nil {
		t.Fatalf("stop failed: %v", res.err)
	}
	if svc.engine.calls[len(svc.engine.calls)-1] != "stop fn-local" {
		t.Errorf("calls = %v", svc.engine.calls)
	}
}

func TestSmokeCommand(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, _ *http.Request) { fmt.Fprint(w, "AAA") })
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	res := executeCLI(t, newFakeServices(), "smoke", srv.URL, "--expect", "/a=AAA")
	if res.err != nil {
		t.Fatalf("smoke failed: %v\n%s", res.err, res.stderr)
	}

	res = executeCLI(t, newFakeServices(), "smoke", srv.URL, "--expect", "/a=BBB", "--no-wait")
	if res.exitCode() != ExitFailure {
		t.Errorf("mismatch exit code = %d, want %d", res.exitCode(), ExitFailure)
	}

	res = executeCLI(t, newFakeServices(), "smoke", srv.URL, "--expect", "a=AAA")
	if res.exitCode() != ExitInvalidInput {
		t.Errorf("bad expectation exit code = %d, want %d", res.exitCode(), ExitInvalidInput)
	}
}

func TestConfigCommand(t *testing.T) {
	t.Parallel()

	res := executeCLI(t, newFakeServices(), "config", "--engine-binary", "podman", "--poll-max-attempts", "5")
	if res.err != nil {
		t.Fatalf("config failed: %v", res.err)
	}
	for _, want := range []string{`engine_binary: "podman"`, "max_attempts: 5"} {
		if !strings.Contains(res.stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, res.stdout)
		}
	}
}

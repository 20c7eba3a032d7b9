// SPDX-License-Identifier: MPL-2.0

package procrun

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"lambdado-cli/internal/testutil"
)

func TestHelperProcess(t *testing.T) { testutil.RunHelperProcess() }

func newMockRunner(t *testing.T, recorder *testutil.MockCommandRecorder, stdout *bytes.Buffer) *Runner {
	t.Helper()
	return New(
		WithExecCommand(recorder.ContextCommandFunc(t)),
		WithOutput(stdout, stdout),
	)
}

func TestRunner_Run_CapturesOutput(t *testing.T) {
	recorder := testutil.NewMockCommandRecorder(t)
	recorder.Default = testutil.MockResponse{Stdout: "hello", Stderr: "warn"}
	var streamed bytes.Buffer
	runner := newMockRunner(t, recorder, &streamed)

	result, err := runner.Run(context.Background(), []string{"docker", "version"}, Options{Capture: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Stdout != "hello" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "hello")
	}
	if result.Stderr != "warn" {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "warn")
	}
	if !strings.Contains(result.Combined, "hello") || !strings.Contains(result.Combined, "warn") {
		t.Errorf("Combined = %q, want both streams", result.Combined)
	}
	if streamed.Len() != 0 {
		t.Errorf("captured run must not stream, got %q", streamed.String())
	}
	recorder.AssertInvocationCount(t, 1)
}

func TestRunner_Run_StreamsWhenNotCaptured(t *testing.T) {
	recorder := testutil.NewMockCommandRecorder(t)
	recorder.Default = testutil.MockResponse{Stdout: "Step 1/3"}
	var streamed bytes.Buffer
	runner := newMockRunner(t, recorder, &streamed)

	result, err := runner.Run(context.Background(), []string{"docker", "build", "."}, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Stdout != "" {
		t.Errorf("streamed run should not buffer stdout, got %q", result.Stdout)
	}
	if !strings.Contains(streamed.String(), "Step 1/3") {
		t.Errorf("expected streamed output, got %q", streamed.String())
	}
}

func TestRunner_Run_ReportsNonZeroExit(t *testing.T) {
	recorder := testutil.NewMockCommandRecorder(t)
	recorder.Default = testutil.MockResponse{ExitCode: 3}
	runner := newMockRunner(t, recorder, &bytes.Buffer{})

	result, err := runner.Run(context.Background(), []string{"docker", "push", "x"}, Options{Capture: true})
	if err != nil {
		t.Fatalf("Run must not fail on non-zero exit: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
}

func TestRunner_Run_PipesInput(t *testing.T) {
	recorder := testutil.NewMockCommandRecorder(t)
	runner := newMockRunner(t, recorder, &bytes.Buffer{})

	_, err := runner.Run(context.Background(),
		[]string{"docker", "login", "--password-stdin", "host"},
		Options{Input: []byte("s3cret")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := recorder.LastInvocation().Stdin(t); got != "s3cret" {
		t.Errorf("stdin = %q, want %q", got, "s3cret")
	}
}

func TestRunner_Run_EmptyArgv(t *testing.T) {
	t.Parallel()

	if _, err := New().Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error for empty argv")
	}
}

func TestRunner_Run_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := New().Run(context.Background(), []string{"lambdado-definitely-not-installed"}, Options{Capture: true})
	if err == nil {
		t.Fatal("expected start error for missing binary")
	}
	if errors.Is(err, ErrExternalCommand) {
		t.Error("start failures must not be reported as external command exits")
	}
}

func TestRunner_CheckedRun(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		recorder := testutil.NewMockCommandRecorder(t)
		runner := newMockRunner(t, recorder, &bytes.Buffer{})

		if _, err := runner.CheckedRun(context.Background(), []string{"docker", "tag", "a", "b"}, Options{}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("non-zero exit becomes ExternalCommandError", func(t *testing.T) {
		recorder := testutil.NewMockCommandRecorder(t)
		recorder.Default = testutil.MockResponse{ExitCode: 1, Stderr: "denied: requested access to the resource is denied"}
		runner := newMockRunner(t, recorder, &bytes.Buffer{})

		argv := []string{"docker", "push", "repo/app:latest"}
		_, err := runner.CheckedRun(context.Background(), argv, Options{Capture: true})
		if !errors.Is(err, ErrExternalCommand) {
			t.Fatalf("expected ErrExternalCommand, got: %v", err)
		}

		var cmdErr *ExternalCommandError
		if !errors.As(err, &cmdErr) {
			t.Fatalf("expected *ExternalCommandError, got %T", err)
		}
		if cmdErr.ExitCode != 1 {
			t.Errorf("ExitCode = %d, want 1", cmdErr.ExitCode)
		}
		if strings.Join(cmdErr.Argv, " ") != strings.Join(argv, " ") {
			t.Errorf("Argv = %v, want %v", cmdErr.Argv, argv)
		}
		if !strings.Contains(cmdErr.Output, "denied") {
			t.Errorf("Output should carry captured stderr, got %q", cmdErr.Output)
		}
		if !strings.Contains(err.Error(), "docker push repo/app:latest") {
			t.Errorf("error should name the command, got: %v", err)
		}
	})
}

func TestRunner_ProbeRun_AlwaysCaptures(t *testing.T) {
	recorder := testutil.NewMockCommandRecorder(t)
	recorder.Default = testutil.MockResponse{ExitCode: 1, Stdout: "no such image"}
	var streamed bytes.Buffer
	runner := newMockRunner(t, recorder, &streamed)

	result, err := runner.ProbeRun(context.Background(), []string{"docker", "image", "inspect", "x"}, Options{})
	if err != nil {
		t.Fatalf("ProbeRun must not fail on non-zero exit: %v", err)
	}
	if result.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", result.ExitCode)
	}
	if result.Stdout != "no such image" {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if streamed.Len() != 0 {
		t.Errorf("ProbeRun must not stream, got %q", streamed.String())
	}
}

func TestQuoteArgv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		argv []string
		want string
	}{
		{name: "plain", argv: []string{"docker", "push", "repo/app"}, want: "docker push repo/app"},
		{name: "space", argv: []string{"echo", "a b"}, want: "echo 'a b'"},
		{name: "empty arg", argv: []string{"docker", ""}, want: "docker ''"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := QuoteArgv(tt.argv); got != tt.want {
				t.Errorf("QuoteArgv(%v) = %q, want %q", tt.argv, got, tt.want)
			}
		})
	}
}

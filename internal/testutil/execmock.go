// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type (
	// MockCommandRecorder captures arguments passed to exec.Command for verification.
	// It uses the TestHelperProcess pattern to simulate command execution: each
	// package that uses it must declare
	//
	//	func TestHelperProcess(t *testing.T) { testutil.RunHelperProcess() }
	MockCommandRecorder struct {
		// Invocations records each call to the mock exec.Command
		Invocations []MockInvocation
		// Default is the response used when no entry in Responses matches.
		Default MockResponse
		// Responses maps a subcommand (first argument) to its response.
		Responses map[string]MockResponse

		stdinDir string
	}

	// MockResponse configures what the helper process prints and how it exits.
	MockResponse struct {
		ExitCode int
		Stdout   string
		Stderr   string
	}

	// MockInvocation represents a single invocation of exec.Command.
	MockInvocation struct {
		// Name is the command name (e.g., "docker", "aws")
		Name string
		// Args are the arguments passed to the command
		Args []string

		stdinPath string
	}
)

// NewMockCommandRecorder creates a new recorder with default settings (success, no output).
// Standard input of every invocation is saved under t.TempDir().
func NewMockCommandRecorder(t *testing.T) *MockCommandRecorder {
	t.Helper()
	return &MockCommandRecorder{
		Invocations: make([]MockInvocation, 0),
		Responses:   make(map[string]MockResponse),
		stdinDir:    t.TempDir(),
	}
}

// On sets the response for invocations whose first argument is subcommand.
func (m *MockCommandRecorder) On(subcommand string, resp MockResponse) *MockCommandRecorder {
	m.Responses[subcommand] = resp
	return m
}

// ContextCommandFunc returns a function that can replace exec.CommandContext for testing.
// The function records invocations and returns a command that runs TestHelperProcess.
func (m *MockCommandRecorder) ContextCommandFunc(t *testing.T) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	t.Helper()
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		resp := m.Default
		if len(args) > 0 {
			if r, ok := m.Responses[args[0]]; ok {
				resp = r
			}
		}

		inv := MockInvocation{
			Name:      name,
			Args:      slices.Clone(args),
			stdinPath: filepath.Join(m.stdinDir, "stdin-"+strconv.Itoa(len(m.Invocations))),
		}

		// Build a helper process command that will return our configured output
		cs := []string{"-test.run=TestHelperProcess", "--", name}
		cs = append(cs, args...)
		//nolint:gosec // TestHelperProcess is a test-only pattern
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = []string{
			"GO_WANT_HELPER_PROCESS=1",
			fmt.Sprintf("GO_HELPER_EXIT_CODE=%d", resp.ExitCode),
			fmt.Sprintf("GO_HELPER_STDOUT=%s", resp.Stdout),
			fmt.Sprintf("GO_HELPER_STDERR=%s", resp.Stderr),
			fmt.Sprintf("GO_HELPER_STDIN_FILE=%s", inv.stdinPath),
		}

		m.Invocations = append(m.Invocations, inv)
		return cmd
	}
}

// Stdin returns what the invocation received on standard input.
func (inv MockInvocation) Stdin(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(inv.stdinPath)
	if err != nil {
		if os.IsNotExist(err) {
			return ""
		}
		t.Fatalf("failed to read recorded stdin: %v", err)
	}
	return string(data)
}

// LastInvocation returns the most recent invocation, or nil if none.
func (m *MockCommandRecorder) LastInvocation() *MockInvocation {
	if len(m.Invocations) == 0 {
		return nil
	}
	return &m.Invocations[len(m.Invocations)-1]
}

// LastArgs returns the arguments from the most recent invocation.
func (m *MockCommandRecorder) LastArgs() []string {
	if inv := m.LastInvocation(); inv != nil {
		return inv.Args
	}
	return nil
}

// Subcommands returns the first argument of every invocation in order.
func (m *MockCommandRecorder) Subcommands() []string {
	subs := make([]string, 0, len(m.Invocations))
	for _, inv := range m.Invocations {
		if len(inv.Args) > 0 {
			subs = append(subs, inv.Args[0])
		}
	}
	return subs
}

// AssertInvocationCount verifies the number of command invocations.
func (m *MockCommandRecorder) AssertInvocationCount(t *testing.T, expected int) {
	t.Helper()
	if len(m.Invocations) != expected {
		t.Errorf("expected %d invocations, got %d: %v", expected, len(m.Invocations), m.Subcommands())
	}
}

// AssertArgsContain verifies that the last invocation args contain the expected string.
func (m *MockCommandRecorder) AssertArgsContain(t *testing.T, expected string) {
	t.Helper()
	args := m.LastArgs()
	if !strings.Contains(strings.Join(args, " "), expected) {
		t.Errorf("expected args to contain %q, got: %v", expected, args)
	}
}

// HasArgPair checks if inv contains a flag-value pair (e.g., "-t", "myimage").
func (inv MockInvocation) HasArgPair(flag, value string) bool {
	for i := 0; i < len(inv.Args)-1; i++ {
		if inv.Args[i] == flag && inv.Args[i+1] == value {
			return true
		}
	}
	return false
}

// RunHelperProcess is the body of TestHelperProcess. It reads configuration
// from environment variables, records stdin and exits accordingly. It
// returns immediately when not running as a helper.
func RunHelperProcess() {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	if path := os.Getenv("GO_HELPER_STDIN_FILE"); path != "" {
		if data, err := io.ReadAll(os.Stdin); err == nil && len(data) > 0 {
			_ = os.WriteFile(path, data, 0o600)
		}
	}

	if stdout := os.Getenv("GO_HELPER_STDOUT"); stdout != "" {
		fmt.Fprint(os.Stdout, stdout)
	}
	if stderr := os.Getenv("GO_HELPER_STDERR"); stderr != "" {
		fmt.Fprint(os.Stderr, stderr)
	}

	exitCode := 0
	if code := os.Getenv("GO_HELPER_EXIT_CODE"); code != "" {
		exitCode, _ = strconv.Atoi(code)
	}

	os.Exit(exitCode)
}

// SPDX-License-Identifier: MPL-2.0

// Package procrun executes external commands for the release pipeline.
//
// Every invocation blocks until the child exits. Output is either streamed to
// the operator's terminal (build and push progress stay visible) or captured
// for parsing. A non-zero exit is never swallowed: CheckedRun turns it into an
// ExternalCommandError carrying the argv and captured output, while ProbeRun
// leaves the decision to the caller.
package procrun

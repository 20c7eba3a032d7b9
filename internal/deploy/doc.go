// SPDX-License-Identifier: MPL-2.0

// Package deploy sequences the release pipeline:
//
//	Idle → Building → Pushing → AwaitingPriorConvergence →
//	UpdatingFunctionCode → AwaitingNewConvergence → Succeeded
//
// Any stage failure moves the run straight to Failed. Stages run one after
// another on the caller's goroutine; the wait before the update is how a run
// claims the function's single in-flight change slot, since the platform
// rejects a second concurrent change.
//
// Runs keep no state between invocations. Re-running a successful deploy
// rebuilds from cache, pushes identical bytes (same digest) and re-points
// the function at the reference it already holds.
package deploy

// SPDX-License-Identifier: MPL-2.0

// Package converge waits for a managed function's pending configuration
// change to settle.
//
// The platform allows a single in-flight change per function, so the
// deployment pipeline awaits convergence both before issuing an update (to
// claim the slot) and after it (to confirm the change landed). Both waits use
// the same fixed-interval Poller; the total wait is bounded by
// interval x (attempts-1), which CI timeouts are sized against.
package converge

// SPDX-License-Identifier: MPL-2.0

// Package testutil provides shared test helpers.
//
// MockCommandRecorder replaces exec.CommandContext with a re-exec of the test
// binary (the TestHelperProcess pattern), so code that shells out to docker or
// the aws CLI can be exercised without either installed. FakeClock drives
// poll sleeps and stage timings without waiting. ContainerSemaphore
// bounds integration tests that need a real docker daemon. The Must* helpers
// fail the test on filesystem and environment errors.
package testutil

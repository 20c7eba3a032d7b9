// SPDX-License-Identifier: MPL-2.0

// Package container wraps the docker CLI used as image builder and registry client.
//
// The Engine interface covers the operations the release pipeline needs: Build,
// Tag, Login, Push, and the local Run/Stop pair used for smoke testing. The only
// implementation, DockerEngine, builds argv slices and hands them to a
// procrun.Runner, so every invocation is observable and mockable through
// procrun.WithExecCommand.
//
// Push output is always captured because the pushed digest is only reported in
// the human-readable transcript (see package pushdigest).
package container

// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for lambdado.
//
// The root command wires one subcommand per pipeline stage (build, push,
// update, wait, purge) plus deploy, which runs them in order, and the local
// run/stop/smoke helpers. Handlers receive an App and build a session holding
// the resolved configuration, the logger and the container engine.
package cmd

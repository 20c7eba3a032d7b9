// SPDX-License-Identifier: MPL-2.0

// Package config resolves lambdado's settings with Viper.
//
// Values come from built-in defaults, LAMBDADO_* environment variables
// (LAMBDADO_POLL_INTERVAL for poll.interval) and command-line flags, in
// increasing precedence. No configuration file is read. The resolved
// configuration is validated against an embedded CUE schema (schema.cue).
package config

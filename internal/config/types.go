// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"time"
)

const (
	// CredentialsSDK fetches registry tokens with the ECR API.
	CredentialsSDK CredentialsMode = "sdk"
	// CredentialsCLI fetches registry tokens with `aws ecr get-login-password`.
	CredentialsCLI CredentialsMode = "cli"

	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	// ErrInvalidCredentialsMode is returned when a CredentialsMode value is not recognized.
	ErrInvalidCredentialsMode = errors.New("invalid credentials mode")
	// ErrInvalidLogLevel is returned when a LogLevel value is not recognized.
	ErrInvalidLogLevel = errors.New("invalid log level")
	// ErrInvalidConfig is the sentinel error wrapped by every validation failure.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// CredentialsMode selects how registry credentials are obtained.
	CredentialsMode string

	// LogLevel is the minimum level the CLI logger prints.
	LogLevel string

	// Config is the resolved lambdado configuration.
	Config struct {
		// EngineBinary is the docker-compatible CLI used to build, tag, push and run images.
		EngineBinary string `json:"engine_binary" mapstructure:"engine_binary"`
		// AWSBinary is the aws CLI used when Credentials is "cli".
		AWSBinary string `json:"aws_binary" mapstructure:"aws_binary"`
		// Credentials selects the registry credential source.
		Credentials CredentialsMode `json:"credentials" mapstructure:"credentials"`
		// AWSEndpoint overrides the ECR and Lambda endpoints, e.g. for a local emulator.
		AWSEndpoint string `json:"aws_endpoint" mapstructure:"aws_endpoint"`
		// Poll is the convergence polling budget.
		Poll PollConfig `json:"poll" mapstructure:"poll"`
		// UI configures terminal output.
		UI UIConfig `json:"ui" mapstructure:"ui"`
	}

	// PollConfig bounds how long lambdado waits for a function to converge.
	PollConfig struct {
		Interval    time.Duration `json:"interval" mapstructure:"interval"`
		MaxAttempts int           `json:"max_attempts" mapstructure:"max_attempts"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
		// HeaderPrefix is printed in front of every stage header and log line.
		HeaderPrefix string   `json:"header_prefix" mapstructure:"header_prefix"`
		LogLevel     LogLevel `json:"log_level" mapstructure:"log_level"`
	}
)

// Validate returns an error wrapping ErrInvalidCredentialsMode for unknown modes.
func (m CredentialsMode) Validate() error {
	switch m {
	case CredentialsSDK, CredentialsCLI:
		return nil
	default:
		return fmt.Errorf("%w: %q (expected sdk or cli)", ErrInvalidCredentialsMode, string(m))
	}
}

// String returns the string representation of the CredentialsMode.
func (m CredentialsMode) String() string { return string(m) }

// Validate returns an error wrapping ErrInvalidLogLevel for unknown levels.
func (l LogLevel) Validate() error {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, string(l))
	}
}

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string { return string(l) }

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		EngineBinary: "docker",
		AWSBinary:    "aws",
		Credentials:  CredentialsSDK,
		Poll: PollConfig{
			Interval:    5 * time.Second,
			MaxAttempts: 60,
		},
		UI: UIConfig{
			LogLevel: LogLevelInfo,
		},
	}
}

// EffectiveLogLevel is LogLevelDebug when Verbose is set, LogLevel otherwise.
func (u UIConfig) EffectiveLogLevel() LogLevel {
	if u.Verbose {
		return LogLevelDebug
	}
	return u.LogLevel
}

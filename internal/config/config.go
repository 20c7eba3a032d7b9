// SPDX-License-Identifier: MPL-2.0

package config

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"lambdado-cli/internal/issue"
	"lambdado-cli/pkg/cueutil"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// AppName is the application name.
	AppName = "lambdado"
	// EnvPrefix prefixes every environment variable lambdado reads.
	EnvPrefix = "LAMBDADO"
)

//go:embed schema.cue
var configSchema string

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"engine-binary":     "engine_binary",
	"aws-binary":        "aws_binary",
	"credentials":       "credentials",
	"aws-endpoint":      "aws_endpoint",
	"poll-interval":     "poll.interval",
	"poll-max-attempts": "poll.max_attempts",
	"verbose":           "ui.verbose",
	"header-prefix":     "ui.header_prefix",
	"log-level":         "ui.log_level",
}

type (
	// LoadOptions defines explicit configuration loading inputs.
	LoadOptions struct {
		// Flags are bound over environment values. Only flags the user set
		// take precedence; unset flags fall through to the environment.
		Flags *pflag.FlagSet
	}

	// Provider loads configuration from explicit options.
	Provider interface {
		Load(ctx context.Context, opts LoadOptions) (*Config, error)
	}

	viperProvider struct{}
)

// NewProvider creates a configuration provider reading defaults, LAMBDADO_*
// environment variables and flags, in increasing precedence.
func NewProvider() Provider {
	return &viperProvider{}
}

// Load resolves and validates the configuration.
func (p *viperProvider) Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()
	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configError("parse configuration", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("engine_binary", defaults.EngineBinary)
	v.SetDefault("aws_binary", defaults.AWSBinary)
	v.SetDefault("credentials", string(defaults.Credentials))
	v.SetDefault("aws_endpoint", defaults.AWSEndpoint)
	v.SetDefault("poll.interval", defaults.Poll.Interval)
	v.SetDefault("poll.max_attempts", defaults.Poll.MaxAttempts)
	v.SetDefault("ui.verbose", defaults.UI.Verbose)
	v.SetDefault("ui.header_prefix", defaults.UI.HeaderPrefix)
	v.SetDefault("ui.log_level", string(defaults.UI.LogLevel))

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks cfg against the embedded CUE schema.
func Validate(cfg *Config) error {
	for _, err := range []error{cfg.Credentials.Validate(), cfg.UI.LogLevel.Validate()} {
		if err != nil {
			return configError("validate configuration", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
		}
	}

	if err := cueutil.Validate(configSchema, "#Config", schemaView(cfg)); err != nil {
		if errors.Is(err, cueutil.ErrSchema) {
			return fmt.Errorf("internal error: %w", err)
		}
		return configError("validate configuration", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}
	return nil
}

// schemaView flattens cfg into the shape #Config describes.
func schemaView(cfg *Config) map[string]any {
	return map[string]any{
		"engine_binary": cfg.EngineBinary,
		"aws_binary":    cfg.AWSBinary,
		"credentials":   string(cfg.Credentials),
		"aws_endpoint":  cfg.AWSEndpoint,
		"poll": map[string]any{
			"interval":     cfg.Poll.Interval.String(),
			"interval_ms":  cfg.Poll.Interval.Milliseconds(),
			"max_attempts": cfg.Poll.MaxAttempts,
		},
		"ui": map[string]any{
			"verbose":       cfg.UI.Verbose,
			"header_prefix": cfg.UI.HeaderPrefix,
			"log_level":     string(cfg.UI.LogLevel),
		},
	}
}

func configError(op string, err error) error {
	return issue.NewErrorContext().
		WithOperation(op).
		WithIssue(issue.ConfigInvalidId).
		WithSuggestion("Check the LAMBDADO_* environment variables and flags").
		WithSuggestion("Run 'lambdado config' to print the resolved configuration").
		Wrap(err).
		BuildError()
}

// GenerateCUE renders cfg as a CUE document matching #Config.
func GenerateCUE(cfg *Config) string {
	var sb strings.Builder

	sb.WriteString("// lambdado configuration (resolved)\n\n")

	fmt.Fprintf(&sb, "engine_binary: %q\n", cfg.EngineBinary)
	fmt.Fprintf(&sb, "aws_binary:    %q\n", cfg.AWSBinary)
	fmt.Fprintf(&sb, "credentials:   %q\n", cfg.Credentials)
	fmt.Fprintf(&sb, "aws_endpoint:  %q\n", cfg.AWSEndpoint)

	sb.WriteString("\npoll: {\n")
	fmt.Fprintf(&sb, "\tinterval:     %q\n", cfg.Poll.Interval.String())
	fmt.Fprintf(&sb, "\tinterval_ms:  %d\n", cfg.Poll.Interval.Milliseconds())
	fmt.Fprintf(&sb, "\tmax_attempts: %d\n", cfg.Poll.MaxAttempts)
	sb.WriteString("}\n")

	sb.WriteString("\nui: {\n")
	fmt.Fprintf(&sb, "\tverbose:       %v\n", cfg.UI.Verbose)
	fmt.Fprintf(&sb, "\theader_prefix: %q\n", cfg.UI.HeaderPrefix)
	fmt.Fprintf(&sb, "\tlog_level:     %q\n", cfg.UI.LogLevel)
	sb.WriteString("}\n")

	return sb.String()
}

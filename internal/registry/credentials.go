// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"lambdado-cli/internal/procrun"
	"lambdado-cli/pkg/imageref"
)

// ecrUsername is the fixed login name ECR tokens are issued for.
const ecrUsername = "AWS"

type (
	// Credentials is a short-lived registry login.
	Credentials struct {
		Username string
		Password []byte
	}

	// SDKCredentials obtains logins through the ECR GetAuthorizationToken API.
	SDKCredentials struct {
		factory ClientFactory
	}

	// CLICredentials obtains logins with "aws ecr get-login-password".
	CLICredentials struct {
		runner *procrun.Runner
		binary string
	}
)

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{Username: %q, Password: <redacted>}", c.Username)
}

// NewSDKCredentials creates a credential source backed by the ECR API.
func NewSDKCredentials(factory ClientFactory) *SDKCredentials {
	return &SDKCredentials{factory: factory}
}

// Credentials returns a login for the registry that hosts target.
func (s *SDKCredentials) Credentials(ctx context.Context, target imageref.URI) (Credentials, error) {
	api, err := s.factory(ctx, target.Region())
	if err != nil {
		return Credentials{}, err
	}
	return New(api).AuthorizationToken(ctx)
}

// NewCLICredentials creates a credential source that shells out to the aws CLI.
func NewCLICredentials(runner *procrun.Runner, binary string) *CLICredentials {
	if binary == "" {
		binary = "aws"
	}
	return &CLICredentials{runner: runner, binary: binary}
}

// Credentials returns a login for the registry that hosts target. The
// password is captured, never streamed.
func (c *CLICredentials) Credentials(ctx context.Context, target imageref.URI) (Credentials, error) {
	argv := []string{c.binary, "ecr", "get-login-password"}
	if region := target.Region(); region != "" {
		argv = append(argv, "--region", region)
	}

	res, err := c.runner.CheckedRun(ctx, argv, procrun.Options{Capture: true})
	if err != nil {
		// Stdout carries the secret on success only; keep stderr for diagnosis.
		var cmdErr *procrun.ExternalCommandError
		if errors.As(err, &cmdErr) && res != nil {
			cmdErr.Output = res.Stderr
		}
		return Credentials{}, err
	}

	password := bytes.TrimSpace([]byte(res.Stdout))
	if len(password) == 0 {
		return Credentials{}, fmt.Errorf("%w: %s returned an empty password", ErrInvalidToken, c.binary)
	}
	return Credentials{Username: ecrUsername, Password: password}, nil
}

// decodeToken splits a base64 "user:password" authorization token.
func decodeToken(token string) (Credentials, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	user, password, ok := bytes.Cut(raw, []byte(":"))
	if !ok || len(user) == 0 || len(password) == 0 {
		return Credentials{}, fmt.Errorf("%w: expected user:password", ErrInvalidToken)
	}
	return Credentials{Username: string(user), Password: password}, nil
}

// SPDX-License-Identifier: MPL-2.0

// Package functions drives the AWS Lambda API: reading a function's update
// status and pointing it at a new container image.
package functions

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"

	"lambdado-cli/internal/awscfg"
	"lambdado-cli/internal/converge"
	"lambdado-cli/pkg/imageref"
)

var (
	// ErrFunctionNotFound is returned when the function does not exist.
	ErrFunctionNotFound = errors.New("function not found")
	// ErrUpdateConflict is returned when the platform rejects an update
	// because another change is still in flight.
	ErrUpdateConflict = errors.New("function has an update in progress")
)

type (
	// LambdaAPI is the subset of the Lambda client used here.
	LambdaAPI interface {
		GetFunctionConfiguration(
			ctx context.Context,
			params *lambda.GetFunctionConfigurationInput,
			optFns ...func(*lambda.Options),
		) (*lambda.GetFunctionConfigurationOutput, error)
		UpdateFunctionCode(
			ctx context.Context,
			params *lambda.UpdateFunctionCodeInput,
			optFns ...func(*lambda.Options),
		) (*lambda.UpdateFunctionCodeOutput, error)
	}

	// ClientFactory returns a Lambda client scoped to region.
	ClientFactory func(ctx context.Context, region string) (LambdaAPI, error)

	// Platform reads and updates functions in one region.
	Platform struct {
		api LambdaAPI
	}

	// UpdateResult describes the function after an accepted code update.
	UpdateResult struct {
		FunctionARN string
		CodeSHA256  string
		ImageURI    string
	}
)

// NewClientFactory returns a ClientFactory that builds SDK clients, routing
// every call to endpoint when it is non-empty.
func NewClientFactory(endpoint string) ClientFactory {
	return func(ctx context.Context, region string) (LambdaAPI, error) {
		cfg, err := awscfg.Load(ctx, awscfg.Options{Region: region, Endpoint: endpoint})
		if err != nil {
			return nil, err
		}
		return lambda.NewFromConfig(cfg), nil
	}
}

// New wraps api.
func New(api LambdaAPI) *Platform {
	return &Platform{api: api}
}

// FunctionStatus implements converge.StatusSource.
//
// A function that is still being created (State Pending) counts as in
// progress; a function whose State is Failed counts as failed regardless of
// its last update status.
func (p *Platform) FunctionStatus(ctx context.Context, function string) (converge.Status, error) {
	out, err := p.api.GetFunctionConfiguration(ctx, &lambda.GetFunctionConfigurationInput{
		FunctionName: aws.String(function),
	})
	if err != nil {
		return converge.Status{}, mapError(function, err)
	}

	switch out.State {
	case types.StatePending:
		return converge.Status{State: converge.StateInProgress, Reason: aws.ToString(out.StateReason)}, nil
	case types.StateFailed:
		return converge.Status{State: converge.StateFailed, Reason: aws.ToString(out.StateReason)}, nil
	}

	reason := aws.ToString(out.LastUpdateStatusReason)
	switch out.LastUpdateStatus {
	case types.LastUpdateStatusSuccessful, "":
		return converge.Status{State: converge.StateSuccessful}, nil
	case types.LastUpdateStatusFailed:
		return converge.Status{State: converge.StateFailed, Reason: reason}, nil
	default:
		return converge.Status{State: converge.StateInProgress, Reason: reason}, nil
	}
}

// UpdateFunctionCode points function at image. Only digest-addressed
// references are accepted so the deployed bytes cannot change under a tag.
func (p *Platform) UpdateFunctionCode(ctx context.Context, function string, image imageref.URI) (*UpdateResult, error) {
	if !image.IsDigest() {
		return nil, &imageref.MalformedReferenceError{Value: image.String(), Reason: "function code must be digest-addressed"}
	}

	out, err := p.api.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(function),
		ImageUri:     aws.String(image.String()),
	})
	if err != nil {
		return nil, mapError(function, err)
	}

	return &UpdateResult{
		FunctionARN: aws.ToString(out.FunctionArn),
		CodeSHA256:  aws.ToString(out.CodeSha256),
		ImageURI:    image.String(),
	}, nil
}

// mapError maps Lambda API errors to package errors.
func mapError(function string, err error) error {
	var rnf *types.ResourceNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("%q: %w", function, ErrFunctionNotFound)
	}

	var conflict *types.ResourceConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%q: %w: %s", function, ErrUpdateConflict, aws.ToString(conflict.Message))
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("function %q: %s: %w", function, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("function %q: %w", function, err)
}

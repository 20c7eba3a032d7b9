// SPDX-License-Identifier: MPL-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecr/types"
	"github.com/aws/smithy-go"
	"github.com/opencontainers/go-digest"

	"lambdado-cli/internal/awscfg"
)

var (
	// ErrRepositoryNotFound is returned when the repository does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")
	// ErrInvalidToken is returned when an authorization token cannot be decoded.
	ErrInvalidToken = errors.New("invalid registry authorization token")
	// ErrBatchDelete is the sentinel error wrapped by BatchDeleteError.
	ErrBatchDelete = errors.New("batch delete reported failures")
)

type (
	// ECRAPI is the subset of the ECR client used here.
	// It allows the SDK client to be replaced by a fake in tests.
	ECRAPI interface {
		GetAuthorizationToken(
			ctx context.Context,
			params *ecr.GetAuthorizationTokenInput,
			optFns ...func(*ecr.Options),
		) (*ecr.GetAuthorizationTokenOutput, error)
		ListImages(
			ctx context.Context,
			params *ecr.ListImagesInput,
			optFns ...func(*ecr.Options),
		) (*ecr.ListImagesOutput, error)
		BatchDeleteImage(
			ctx context.Context,
			params *ecr.BatchDeleteImageInput,
			optFns ...func(*ecr.Options),
		) (*ecr.BatchDeleteImageOutput, error)
	}

	// ClientFactory returns an ECR client scoped to region.
	ClientFactory func(ctx context.Context, region string) (ECRAPI, error)

	// Client wraps ECRAPI with the operations the pipeline needs.
	Client struct {
		api ECRAPI
	}

	// ImageID identifies one image in a repository by digest and/or tag.
	ImageID struct {
		Digest digest.Digest
		Tag    string
	}

	// ImageFailure is one image the registry refused to delete.
	ImageFailure struct {
		ID     ImageID
		Code   string
		Reason string
	}

	// BatchDeleteError is returned when some images in a batch were not deleted.
	BatchDeleteError struct {
		Repository string
		Deleted    int
		Failures   []ImageFailure
	}
)

// Error implements the error interface.
func (e *BatchDeleteError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.ID, f.Code))
	}
	return fmt.Sprintf("deleting images from %q: %d failed (%s)", e.Repository, len(e.Failures), strings.Join(reasons, ", "))
}

// Unwrap returns ErrBatchDelete for errors.Is() compatibility.
func (e *BatchDeleteError) Unwrap() error { return ErrBatchDelete }

// String renders the id as digest, tag or both.
func (id ImageID) String() string {
	switch {
	case id.Digest != "" && id.Tag != "":
		return id.Tag + "@" + id.Digest.String()
	case id.Digest != "":
		return id.Digest.String()
	default:
		return id.Tag
	}
}

// NewClientFactory returns a ClientFactory that builds SDK clients, routing
// every call to endpoint when it is non-empty.
func NewClientFactory(endpoint string) ClientFactory {
	return func(ctx context.Context, region string) (ECRAPI, error) {
		cfg, err := awscfg.Load(ctx, awscfg.Options{Region: region, Endpoint: endpoint})
		if err != nil {
			return nil, err
		}
		return ecr.NewFromConfig(cfg), nil
	}
}

// New wraps api.
func New(api ECRAPI) *Client {
	return &Client{api: api}
}

// AuthorizationToken fetches a short-lived registry login and decodes it.
func (c *Client) AuthorizationToken(ctx context.Context) (Credentials, error) {
	out, err := c.api.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return Credentials{}, fmt.Errorf("get authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 || out.AuthorizationData[0].AuthorizationToken == nil {
		return Credentials{}, fmt.Errorf("%w: empty response", ErrInvalidToken)
	}
	return decodeToken(aws.ToString(out.AuthorizationData[0].AuthorizationToken))
}

// ListImageIDs returns every image identifier in repository, following pagination.
func (c *Client) ListImageIDs(ctx context.Context, repository string) ([]ImageID, error) {
	var ids []ImageID
	pager := ecr.NewListImagesPaginator(c.api, &ecr.ListImagesInput{
		RepositoryName: aws.String(repository),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, mapError(repository, "list images", err)
		}
		for _, id := range page.ImageIds {
			ids = append(ids, fromSDK(id))
		}
	}
	return ids, nil
}

// BatchDelete deletes ids from repository in a single request and returns how
// many were deleted. Per-image failures are reported as *BatchDeleteError.
func (c *Client) BatchDelete(ctx context.Context, repository string, ids []ImageID) (int, error) {
	sdkIDs := make([]types.ImageIdentifier, 0, len(ids))
	for _, id := range ids {
		sdkIDs = append(sdkIDs, toSDK(id))
	}

	out, err := c.api.BatchDeleteImage(ctx, &ecr.BatchDeleteImageInput{
		RepositoryName: aws.String(repository),
		ImageIds:       sdkIDs,
	})
	if err != nil {
		return 0, mapError(repository, "delete images", err)
	}

	deleted := len(out.ImageIds)
	if len(out.Failures) == 0 {
		return deleted, nil
	}

	failures := make([]ImageFailure, 0, len(out.Failures))
	for _, f := range out.Failures {
		failure := ImageFailure{Code: string(f.FailureCode), Reason: aws.ToString(f.FailureReason)}
		if f.ImageId != nil {
			failure.ID = fromSDK(*f.ImageId)
		}
		failures = append(failures, failure)
	}
	return deleted, &BatchDeleteError{Repository: repository, Deleted: deleted, Failures: failures}
}

func fromSDK(id types.ImageIdentifier) ImageID {
	return ImageID{
		Digest: digest.Digest(aws.ToString(id.ImageDigest)),
		Tag:    aws.ToString(id.ImageTag),
	}
}

func toSDK(id ImageID) types.ImageIdentifier {
	var out types.ImageIdentifier
	if id.Digest != "" {
		out.ImageDigest = aws.String(id.Digest.String())
	}
	if id.Tag != "" {
		out.ImageTag = aws.String(id.Tag)
	}
	return out
}

// mapError maps ECR API errors to package errors.
func mapError(repository, op string, err error) error {
	var rnf *types.RepositoryNotFoundException
	if errors.As(err, &rnf) {
		return fmt.Errorf("%s: %q: %w", op, repository, ErrRepositoryNotFound)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s in %q: %s: %w", op, repository, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("%s in %q: %w", op, repository, err)
}

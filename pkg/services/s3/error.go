package s3

import (
	"context"
	"errors"
	"net"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	serrors "github.com/stratastore/strata/pkg/errors"
)

// isErrorType reports whether err wraps a T anywhere in its chain.
func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

// mapError translates an SDK error into the error taxonomy. nil maps to nil.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if serr, ok := err.(*serrors.Error); ok {
		return serr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return serrors.FromContext(err)
	}

	switch {
	case isErrorType[*s3types.NoSuchKey](err),
		isErrorType[*s3types.NoSuchBucket](err),
		isErrorType[*s3types.NotFound](err):
		return serrors.New(serrors.KindNotFound, "object not found").WithScheme("s3").WithCause(err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound":
			return serrors.New(serrors.KindNotFound, "object not found").WithScheme("s3").WithCause(err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return serrors.New(serrors.KindPermissionDenied, apiErr.ErrorMessage()).WithScheme("s3").WithCause(err)
		case "SlowDown", "TooManyRequests", "RequestLimitExceeded", "Throttling", "ThrottlingException":
			return serrors.New(serrors.KindRateLimited, apiErr.ErrorMessage()).WithScheme("s3").WithCause(err)
		case "ServiceUnavailable", "InternalError":
			return serrors.New(serrors.KindServiceUnavailable, apiErr.ErrorMessage()).WithScheme("s3").WithCause(err)
		case "InvalidRange":
			return serrors.New(serrors.KindRangeNotSatisfiable, apiErr.ErrorMessage()).WithScheme("s3").WithCause(err)
		case "PreconditionFailed", "NotModified":
			return serrors.New(serrors.KindInvalidArgument, "precondition failed").WithScheme("s3").WithCause(err)
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return serrors.New(serrors.KindAlreadyExists, apiErr.ErrorMessage()).WithScheme("s3").WithCause(err)
		}
	}

	// Smithy surfaces some conditions only through the HTTP status.
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case 404:
			return serrors.New(serrors.KindNotFound, "object not found").WithScheme("s3").WithCause(err)
		case 403:
			return serrors.New(serrors.KindPermissionDenied, "access denied").WithScheme("s3").WithCause(err)
		case 412, 304:
			return serrors.New(serrors.KindInvalidArgument, "precondition failed").WithScheme("s3").WithCause(err)
		case 416:
			return serrors.New(serrors.KindRangeNotSatisfiable, "range not satisfiable").WithScheme("s3").WithCause(err)
		case 429:
			return serrors.New(serrors.KindRateLimited, "rate limited").WithScheme("s3").WithCause(err)
		case 500, 502, 503, 504:
			return serrors.New(serrors.KindServiceUnavailable, "service unavailable").WithScheme("s3").WithCause(err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return serrors.New(serrors.KindNetworkError, "network error").WithScheme("s3").WithCause(err)
	}

	return serrors.Unexpected("s3 request failed", err).WithScheme("s3")
}

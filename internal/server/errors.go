package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TanmayDhobale/miniForesight/internal/auth"
	"github.com/TanmayDhobale/miniForesight/internal/market"
)

var errBadRequest = errors.New("bad request")

func badRequest(msg string) error {
	return errors.Join(errBadRequest, errors.New(msg))
}

// codeOf maps an error from the engine, the query service or the auth
// layer to a gRPC status code.
func codeOf(err error) codes.Code {
	if s, ok := status.FromError(err); ok && s.Code() != codes.Unknown {
		return s.Code()
	}

	switch {
	case errors.Is(err, auth.ErrMissingCredentials), errors.Is(err, auth.ErrInvalidToken):
		return codes.Unauthenticated
	case errors.Is(err, errBadRequest):
		return codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	}

	switch {
	case errors.Is(err, market.ErrMarketNotFound), errors.Is(err, market.ErrPositionNotFound):
		return codes.NotFound
	case errors.Is(err, market.ErrAlreadyInitialized),
		errors.Is(err, market.ErrDuplicateMarket),
		errors.Is(err, market.ErrDuplicateRequest):
		return codes.AlreadyExists
	}

	switch market.KindOf(err) {
	case market.KindConfig, market.KindValidation:
		return codes.InvalidArgument
	case market.KindState, market.KindFunds:
		return codes.FailedPrecondition
	case market.KindAuthorization:
		return codes.PermissionDenied
	case market.KindArithmetic:
		return codes.OutOfRange
	default:
		return codes.Internal
	}
}

// toStatus converts err to a gRPC status error. Failures outside the
// settlement taxonomy are not described to the caller.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := codeOf(err)
	if code == codes.Internal && market.KindOf(err) == market.KindUnknown {
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}

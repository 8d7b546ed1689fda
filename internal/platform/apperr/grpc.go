package apperr

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Code maps a Kind to the gRPC status code returned to clients.
func Code(k Kind) codes.Code {
	switch k {
	case KindNotFound:
		return codes.NotFound
	case KindConflict:
		return codes.AlreadyExists
	case KindUnauthorized:
		return codes.Unauthenticated
	case KindNotAcceptable:
		return codes.FailedPrecondition
	case KindBadRequest:
		return codes.InvalidArgument
	case KindServiceUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// ToStatus converts err into a gRPC status error. The message is the error's key so
// internal causes never reach the client. A classified error wins over any status wrapped
// beneath it; a bare status passes through unchanged.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return status.Error(Code(ae.Kind), ae.Key)
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return status.Error(codes.Canceled, "request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}
	return status.Error(Code(KindOf(err)), KeyOf(err))
}

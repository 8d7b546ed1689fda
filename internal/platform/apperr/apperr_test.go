package apperr

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(KindConflict, "auth.user-existed", base))
	if KindOf(err) != KindConflict {
		t.Errorf("KindOf = %v, want conflict", KindOf(err))
	}
	if KeyOf(err) != "auth.user-existed" {
		t.Errorf("KeyOf = %q", KeyOf(err))
	}
	if !errors.Is(err, base) {
		t.Error("cause should be reachable with errors.Is")
	}
}

func TestKindOf_Plain(t *testing.T) {
	err := errors.New("plain")
	if KindOf(err) != KindInternal {
		t.Errorf("KindOf = %v, want internal", KindOf(err))
	}
	if KeyOf(err) != "internal-error" {
		t.Errorf("KeyOf = %q", KeyOf(err))
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		msg  string
	}{
		{NotFound("user.not-found"), codes.NotFound, "user.not-found"},
		{Conflict("auth.user-existed"), codes.AlreadyExists, "auth.user-existed"},
		{Unauthorized("auth.no-auth"), codes.Unauthenticated, "auth.no-auth"},
		{NotAcceptable("auth.otp-incorrect"), codes.FailedPrecondition, "auth.otp-incorrect"},
		{BadRequest("auth.unsupported-provider"), codes.InvalidArgument, "auth.unsupported-provider"},
		{ServiceUnavailable("directory.unavailable"), codes.Unavailable, "directory.unavailable"},
		{errors.New("db down"), codes.Internal, "internal-error"},
	}
	for _, tt := range tests {
		st, ok := status.FromError(ToStatus(tt.err))
		if !ok {
			t.Fatalf("ToStatus(%v) is not a status", tt.err)
		}
		if st.Code() != tt.code || st.Message() != tt.msg {
			t.Errorf("ToStatus(%v) = %v %q, want %v %q", tt.err, st.Code(), st.Message(), tt.code, tt.msg)
		}
	}
	if ToStatus(nil) != nil {
		t.Error("ToStatus(nil) should be nil")
	}
}

func TestToStatus_ClassifiedWinsOverWrappedStatus(t *testing.T) {
	remote := status.Error(codes.Unauthenticated, "pq: password authentication failed for user admin")
	err := Wrap(KindInternal, "internal-error", fmt.Errorf("directory: Get: %w", remote))

	st, ok := status.FromError(ToStatus(err))
	if !ok {
		t.Fatal("ToStatus should return a status")
	}
	if st.Code() != codes.Internal {
		t.Errorf("code = %v, want Internal", st.Code())
	}
	if st.Message() != "internal-error" {
		t.Errorf("message = %q, want the key only", st.Message())
	}
}

func TestToStatus_BareStatusPassesThrough(t *testing.T) {
	in := status.Error(codes.InvalidArgument, "auth.missing-code")
	st, _ := status.FromError(ToStatus(in))
	if st.Code() != codes.InvalidArgument || st.Message() != "auth.missing-code" {
		t.Errorf("ToStatus(bare) = %v %q", st.Code(), st.Message())
	}
}

package directory

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"credential-authority/internal/account/domain"
	"credential-authority/internal/platform/rpc"
)

// Caller is the transport RemoteDirectory sends requests through.
type Caller interface {
	Call(ctx context.Context, method string, in *structpb.Struct) (*structpb.Struct, error)
}

// RemoteDirectory satisfies the account directory contract over the network.
type RemoteDirectory struct {
	caller Caller
}

// NewRemoteDirectory returns a directory that sends every request through caller.
func NewRemoteDirectory(caller Caller) *RemoteDirectory {
	return &RemoteDirectory{caller: caller}
}

type getRequest struct {
	Filter domain.Filter  `json:"filter"`
	Select []domain.Field `json:"select,omitempty"`
}

type createRequest struct {
	Data domain.Account `json:"data"`
}

type updateRequest struct {
	Filter  domain.Filter `json:"filter"`
	Updates domain.Patch  `json:"updates"`
}

type accountReply struct {
	Data *domain.Account `json:"data"`
}

// Get returns nil when the directory reports the account as missing.
func (d *RemoteDirectory) Get(ctx context.Context, f domain.Filter, fields ...domain.Field) (*domain.Account, error) {
	a, err := d.do(ctx, MethodGet, getRequest{Filter: f, Select: fields})
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (d *RemoteDirectory) Create(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	return d.do(ctx, MethodCreate, createRequest{Data: *a})
}

func (d *RemoteDirectory) Update(ctx context.Context, f domain.Filter, p domain.Patch) (*domain.Account, error) {
	return d.do(ctx, MethodUpdate, updateRequest{Filter: f, Updates: p})
}

func (d *RemoteDirectory) do(ctx context.Context, method string, req any) (*domain.Account, error) {
	in, err := rpc.Encode(req)
	if err != nil {
		return nil, err
	}
	out, err := d.caller.Call(ctx, method, in)
	if err != nil {
		return nil, mapDirectoryError(method, err)
	}
	var reply accountReply
	if err := rpc.Decode(out, &reply); err != nil {
		return nil, fmt.Errorf("directory: decode %s reply: %w", method, err)
	}
	if reply.Data == nil {
		return nil, domain.ErrNotFound
	}
	return reply.Data, nil
}

// mapDirectoryError turns a service answer into the account package's errors.
func mapDirectoryError(method string, err error) error {
	if errors.Is(err, ErrServiceUnavailable) {
		return err
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.NotFound:
		return domain.ErrNotFound
	case codes.AlreadyExists:
		return domain.ErrDuplicate
	case codes.InvalidArgument:
		return fmt.Errorf("directory: %s: %w: %s", method, domain.ErrEmptyFilter, st.Message())
	default:
		return fmt.Errorf("directory: %s: %w", method, err)
	}
}

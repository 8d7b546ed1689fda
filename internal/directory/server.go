package directory

import (
	"context"
	"errors"
	"log"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"credential-authority/internal/account/domain"
	"credential-authority/internal/account/repository"
	"credential-authority/internal/platform/rpc"
)

// Server serves a local account repository as DirectoryServer.
type Server struct {
	repo repository.Directory
}

// NewServer returns a Server over repo.
func NewServer(repo repository.Directory) *Server {
	return &Server{repo: repo}
}

func (s *Server) Get(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req getRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	a, err := s.repo.Get(ctx, req.Filter, req.Select...)
	if err != nil {
		return nil, toStatus(err)
	}
	if a == nil {
		return nil, status.Error(codes.NotFound, "account not found")
	}
	return reply(a)
}

func (s *Server) Create(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req createRequest
	if err := rpc.Decode(in, &req); err != nil || req.Data.Email == "" {
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	a, err := s.repo.Create(ctx, &req.Data)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(a)
}

func (s *Server) Update(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req updateRequest
	if err := rpc.Decode(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed request")
	}
	a, err := s.repo.Update(ctx, req.Filter, req.Updates)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(a)
}

func reply(a *domain.Account) (*structpb.Struct, error) {
	out, err := rpc.Encode(accountReply{Data: a})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode reply")
	}
	return out, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, "account not found")
	case errors.Is(err, domain.ErrDuplicate):
		return status.Error(codes.AlreadyExists, "account already exists")
	case errors.Is(err, domain.ErrEmptyFilter):
		return status.Error(codes.InvalidArgument, "filter is empty")
	default:
		log.Printf("directory: repository error: %v", err)
		return status.Error(codes.Internal, "directory error")
	}
}

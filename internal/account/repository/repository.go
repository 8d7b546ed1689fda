package repository

import (
	"context"

	"credential-authority/internal/account/domain"
)

// Directory is the account contract the authentication engine depends on. It is satisfied
// by the local repositories here and by the remote directory client.
type Directory interface {
	// Get returns the first account matching f, or nil if none does.
	Get(ctx context.Context, f domain.Filter, fields ...domain.Field) (*domain.Account, error)
	// Create stores a and returns it without the password hash. A taken email or phone
	// number yields domain.ErrDuplicate.
	Create(ctx context.Context, a *domain.Account) (*domain.Account, error)
	// Update applies p to the account matching f; domain.ErrNotFound when none matches.
	Update(ctx context.Context, f domain.Filter, p domain.Patch) (*domain.Account, error)
}

// Repository is the full local directory used by the directory server and the worker.
type Repository interface {
	Directory
	Count(ctx context.Context, f domain.Filter) (int, error)
	Delete(ctx context.Context, f domain.Filter) (int, error)
}

package repository

import (
	"context"

	"credential-authority/internal/session/domain"
)

// Repository persists sessions. Update is a compare-and-swap: it only touches a row whose
// jit and account match the filter and that is still active, so of two concurrent rotations
// of the same token at most one succeeds.
type Repository interface {
	// Create stores s. Missing ID, CreatedAt and ExpiresAt are filled in.
	Create(ctx context.Context, s *domain.Session) (*domain.Session, error)
	// FindByJitAndAccount returns the session, or nil if none matches.
	FindByJitAndAccount(ctx context.Context, jit, accountID string) (*domain.Session, error)
	// Update applies p to the active session matching f and returns the updated row,
	// or domain.ErrSessionInactive when nothing matched.
	Update(ctx context.Context, f domain.Filter, p domain.Patch) (*domain.Session, error)
}

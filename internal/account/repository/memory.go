package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"credential-authority/internal/account/domain"
)

// MemoryRepository is an in-process directory with the same uniqueness rules as the
// accounts table. Used by tests and by the seed command's dry runs.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	nowF     func() time.Time
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]domain.Account), nowF: time.Now}
}

func (r *MemoryRepository) Get(_ context.Context, f domain.Filter, fields ...domain.Field) (*domain.Account, error) {
	if f.Empty() {
		return nil, domain.ErrEmptyFilter
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.find(f)
	if !ok {
		return nil, nil
	}
	if !domain.HasField(fields, domain.FieldPasswordHash) {
		a.PasswordHash = ""
	}
	return &a, nil
}

func (r *MemoryRepository) Create(_ context.Context, a *domain.Account) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row := *a
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if r.conflicts(row, "") {
		return nil, domain.ErrDuplicate
	}
	now := r.nowF().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	r.accounts[row.ID] = row
	row.PasswordHash = ""
	return &row, nil
}

func (r *MemoryRepository) Update(_ context.Context, f domain.Filter, p domain.Patch) (*domain.Account, error) {
	if f.Empty() {
		return nil, domain.ErrEmptyFilter
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.find(f)
	if !ok {
		return nil, domain.ErrNotFound
	}
	next := p.Apply(current)
	if r.conflicts(next, next.ID) {
		return nil, domain.ErrDuplicate
	}
	next.UpdatedAt = r.nowF().UTC()
	r.accounts[next.ID] = next
	next.PasswordHash = ""
	return &next, nil
}

func (r *MemoryRepository) Count(_ context.Context, f domain.Filter) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.accounts {
		if f.Empty() || matches(a, f) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Delete(_ context.Context, f domain.Filter) (int, error) {
	if f.Empty() {
		return 0, domain.ErrEmptyFilter
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, a := range r.accounts {
		if matches(a, f) {
			delete(r.accounts, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) find(f domain.Filter) (domain.Account, bool) {
	for _, a := range r.accounts {
		if matches(a, f) {
			return a, true
		}
	}
	return domain.Account{}, false
}

func (r *MemoryRepository) conflicts(a domain.Account, selfID string) bool {
	for id, other := range r.accounts {
		if id == selfID {
			continue
		}
		if id == a.ID || other.Email == a.Email {
			return true
		}
		if a.PhoneNumber != "" && other.PhoneNumber == a.PhoneNumber {
			return true
		}
	}
	return false
}

func matches(a domain.Account, f domain.Filter) bool {
	if f.ID != "" && a.ID != f.ID {
		return false
	}
	if f.Email != "" && a.Email != f.Email {
		return false
	}
	if f.PhoneNumber != "" && a.PhoneNumber != f.PhoneNumber {
		return false
	}
	return true
}

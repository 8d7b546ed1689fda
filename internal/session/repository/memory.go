package repository

import (
	"context"
	"sync"
	"time"

	"credential-authority/internal/session/domain"
)

// MemoryRepository keeps sessions in process. It follows the same compare-and-swap rules
// as PostgresRepository and is used by tests and single-node development runs.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]*domain.Session
	byJit map[string]string
	ttl   time.Duration
	nowF  func() time.Time
}

// NewMemoryRepository returns an empty repository; ttl as in NewPostgresRepository.
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	if ttl <= 0 {
		ttl = domain.DefaultTTL
	}
	return &MemoryRepository{
		byID:  make(map[string]*domain.Session),
		byJit: make(map[string]string),
		ttl:   ttl,
		nowF:  time.Now,
	}
}

func (r *MemoryRepository) Create(_ context.Context, s *domain.Session) (*domain.Session, error) {
	row := prepareNew(s, r.nowF().UTC(), r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[row.ID] = &row
	r.byJit[row.Jit] = row.ID
	out := row
	return &out, nil
}

func (r *MemoryRepository) FindByJitAndAccount(_ context.Context, jit, accountID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(jit, accountID)
	if s == nil {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (r *MemoryRepository) Update(_ context.Context, f domain.Filter, p domain.Patch) (*domain.Session, error) {
	if p.Empty() {
		return nil, domain.ErrEmptyPatch
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.lookup(f.Jit, f.AccountID)
	if s == nil || !s.Active(r.nowF()) {
		return nil, domain.ErrSessionInactive
	}
	updated := p.Apply(*s)
	if updated.Jit != s.Jit {
		delete(r.byJit, s.Jit)
		r.byJit[updated.Jit] = updated.ID
	}
	r.byID[updated.ID] = &updated
	out := updated
	return &out, nil
}

// Count returns the number of stored sessions, active or not.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func (r *MemoryRepository) lookup(jit, accountID string) *domain.Session {
	id, ok := r.byJit[jit]
	if !ok {
		return nil
	}
	s := r.byID[id]
	if s == nil || s.AccountID != accountID {
		return nil
	}
	return s
}

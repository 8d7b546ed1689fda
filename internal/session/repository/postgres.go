package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"credential-authority/internal/platform/ids"
	"credential-authority/internal/session/domain"
)

const sessionColumns = "id, jit, account_id, user_agent, ip, expires_at, created_at"

// PostgresRepository stores sessions in the sessions table.
type PostgresRepository struct {
	db   *sql.DB
	ttl  time.Duration
	nowF func() time.Time
}

// NewPostgresRepository returns a session repository over db. ttl is the lifetime given to
// sessions created without an explicit expiry; zero means domain.DefaultTTL.
func NewPostgresRepository(db *sql.DB, ttl time.Duration) *PostgresRepository {
	if ttl <= 0 {
		ttl = domain.DefaultTTL
	}
	return &PostgresRepository{db: db, ttl: ttl, nowF: time.Now}
}

// Create inserts the session and returns the stored row.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	row := prepareNew(s, r.nowF().UTC(), r.ttl)
	ua, err := json.Marshal(row.UserAgent)
	if err != nil {
		return nil, err
	}
	q := `INSERT INTO sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + sessionColumns
	out, err := scanSession(r.db.QueryRowContext(ctx, q,
		row.ID, row.Jit, row.AccountID, ua, nullString(row.IP), timeToNullTime(row.ExpiresAt), row.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	return out, nil
}

// FindByJitAndAccount returns the session for the pair, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) FindByJitAndAccount(ctx context.Context, jit, accountID string) (*domain.Session, error) {
	q := `SELECT ` + sessionColumns + ` FROM sessions WHERE jit = $1 AND account_id = $2`
	s, err := scanSession(r.db.QueryRowContext(ctx, q, jit, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

// Update runs a single conditional UPDATE guarded by the current jit, the account, and a live expiry.
func (r *PostgresRepository) Update(ctx context.Context, f domain.Filter, p domain.Patch) (*domain.Session, error) {
	if p.Empty() {
		return nil, domain.ErrEmptyPatch
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.Jit != "" {
		add("jit", p.Jit)
	}
	if p.Revoke {
		sets = append(sets, "expires_at = NULL")
	} else if p.ExpiresAt != nil {
		add("expires_at", p.ExpiresAt.UTC())
	}
	if p.IP != nil {
		add("ip", nullString(*p.IP))
	}
	if p.UserAgent != nil {
		ua, err := json.Marshal(p.UserAgent)
		if err != nil {
			return nil, err
		}
		add("user_agent", ua)
	}
	n := len(args)
	args = append(args, f.Jit, f.AccountID, r.nowF().UTC())
	q := fmt.Sprintf(`UPDATE sessions SET %s
WHERE jit = $%d AND account_id = $%d AND expires_at IS NOT NULL AND expires_at > $%d
RETURNING %s`, strings.Join(sets, ", "), n+1, n+2, n+3, sessionColumns)

	s, err := scanSession(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionInactive
		}
		return nil, fmt.Errorf("session: update: %w", err)
	}
	return s, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s       domain.Session
		ua      []byte
		ip      sql.NullString
		expires sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Jit, &s.AccountID, &ua, &ip, &expires, &s.CreatedAt); err != nil {
		return nil, err
	}
	if len(ua) > 0 {
		if err := json.Unmarshal(ua, &s.UserAgent); err != nil {
			return nil, fmt.Errorf("session: decode user agent: %w", err)
		}
	}
	s.IP = ip.String
	s.ExpiresAt = nullTimeToPtr(expires)
	return &s, nil
}

func prepareNew(s *domain.Session, now time.Time, ttl time.Duration) domain.Session {
	row := *s
	if row.ID == "" {
		row.ID = ids.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.ExpiresAt == nil {
		exp := now.Add(ttl)
		row.ExpiresAt = &exp
	}
	return row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time
	return &t
}

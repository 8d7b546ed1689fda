package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"credential-authority/internal/account/domain"
)

const (
	accountColumns  = "id, email, phone_number, full_name, avatar_url, is_verified, will_delete_at, created_at, updated_at"
	uniqueViolation = "23505"
)

// PostgresRepository stores accounts in the accounts table.
type PostgresRepository struct {
	db   *sql.DB
	nowF func() time.Time
}

// NewPostgresRepository returns an account repository over db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, nowF: time.Now}
}

// Get returns the account for f, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, f domain.Filter, fields ...domain.Field) (*domain.Account, error) {
	if f.Empty() {
		return nil, domain.ErrEmptyFilter
	}
	withHash := domain.HasField(fields, domain.FieldPasswordHash)
	cols := accountColumns
	if withHash {
		cols += ", password_hash"
	}
	where, args := filterClause(f, 0)
	q := "SELECT " + cols + " FROM accounts WHERE " + where + " LIMIT 1"
	a, err := scanAccount(r.db.QueryRowContext(ctx, q, args...), withHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("account: get: %w", err)
	}
	return a, nil
}

// Create inserts a. ID and timestamps are assigned when empty.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) (*domain.Account, error) {
	row := *a
	now := r.nowF().UTC()
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	q := `INSERT INTO accounts (id, email, phone_number, full_name, avatar_url, password_hash, is_verified, will_delete_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + accountColumns
	out, err := scanAccount(r.db.QueryRowContext(ctx, q,
		row.ID, row.Email, nullString(row.PhoneNumber), nullString(row.FullName), nullString(row.AvatarURL),
		row.PasswordHash, row.IsVerified, timeToNullTime(row.WillDeleteAt), row.CreatedAt, row.UpdatedAt,
	), false)
	if err != nil {
		return nil, mapWriteError("create", err)
	}
	return out, nil
}

// Update applies p to the first account matching f and returns the new row.
func (r *PostgresRepository) Update(ctx context.Context, f domain.Filter, p domain.Patch) (*domain.Account, error) {
	if f.Empty() {
		return nil, domain.ErrEmptyFilter
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.PasswordHash != nil {
		add("password_hash", *p.PasswordHash)
	}
	if p.IsVerified != nil {
		add("is_verified", *p.IsVerified)
	}
	if p.FullName != nil {
		add("full_name", nullString(*p.FullName))
	}
	if p.PhoneNumber != nil {
		add("phone_number", nullString(*p.PhoneNumber))
	}
	if p.AvatarURL != nil {
		add("avatar_url", nullString(*p.AvatarURL))
	}
	if p.Restore {
		sets = append(sets, "will_delete_at = NULL")
	} else if p.WillDeleteAt != nil {
		add("will_delete_at", p.WillDeleteAt.UTC())
	}
	add("updated_at", r.nowF().UTC())

	where, whereArgs := filterClause(f, len(args))
	args = append(args, whereArgs...)
	q := "UPDATE accounts SET " + strings.Join(sets, ", ") + " WHERE " + where + " RETURNING " + accountColumns
	out, err := scanAccount(r.db.QueryRowContext(ctx, q, args...), false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, mapWriteError("update", err)
	}
	return out, nil
}

// Count returns the number of accounts matching f; an empty filter counts all accounts.
func (r *PostgresRepository) Count(ctx context.Context, f domain.Filter) (int, error) {
	q := "SELECT count(*) FROM accounts"
	var args []any
	if !f.Empty() {
		var where string
		where, args = filterClause(f, 0)
		q += " WHERE " + where
	}
	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("account: count: %w", err)
	}
	return n, nil
}

// Delete removes the accounts matching f and reports how many were removed.
func (r *PostgresRepository) Delete(ctx context.Context, f domain.Filter) (int, error) {
	if f.Empty() {
		return 0, domain.ErrEmptyFilter
	}
	where, args := filterClause(f, 0)
	res, err := r.db.ExecContext(ctx, "DELETE FROM accounts WHERE "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("account: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// filterClause renders f as an AND of equality predicates numbered from offset+1.
func filterClause(f domain.Filter, offset int) (string, []any) {
	var (
		preds []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		preds = append(preds, fmt.Sprintf("%s = $%d", col, offset+len(args)))
	}
	add("id", f.ID)
	add("email", f.Email)
	add("phone_number", f.PhoneNumber)
	return strings.Join(preds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner, withHash bool) (*domain.Account, error) {
	var (
		a                   domain.Account
		phone, name, avatar sql.NullString
		willDelete          sql.NullTime
	)
	dest := []any{&a.ID, &a.Email, &phone, &name, &avatar, &a.IsVerified, &willDelete, &a.CreatedAt, &a.UpdatedAt}
	if withHash {
		dest = append(dest, &a.PasswordHash)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	a.PhoneNumber = phone.String
	a.FullName = name.String
	a.AvatarURL = avatar.String
	if willDelete.Valid {
		t := willDelete.Time
		a.WillDeleteAt = &t
	}
	return &a, nil
}

func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicate
	}
	return fmt.Errorf("account: %s: %w", op, err)
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

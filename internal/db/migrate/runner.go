// Package migrate applies the embedded schema migrations with golang-migrate.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"credential-authority/internal/db"
)

// Direction selects which way Apply moves the schema.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

var (
	// ErrNoChange means the schema already sits at the requested version.
	ErrNoChange = migrate.ErrNoChange
	// ErrDirty means a previous run failed halfway. The schema must be repaired by hand
	// and the version set with Force before Apply runs again.
	ErrDirty = errors.New("migrate: schema is dirty")
	errNoDSN = errors.New("migrate: DATABASE_URL is not set")
)

// ParseDirection accepts exactly "up" or "down".
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Up, Down:
		return d, nil
	}
	return "", fmt.Errorf("migrate: direction must be up or down, got %q", s)
}

// Version describes the schema state recorded in schema_migrations.
type Version struct {
	Number uint
	Dirty  bool
	// Empty is set when no migration was ever applied.
	Empty bool
}

func (v Version) String() string {
	switch {
	case v.Empty:
		return "none"
	case v.Dirty:
		return fmt.Sprintf("%d (dirty)", v.Number)
	}
	return fmt.Sprint(v.Number)
}

// Runner owns one golang-migrate instance over the embedded SQL files.
type Runner struct {
	m *migrate.Migrate
}

// logger routes golang-migrate's progress lines through the standard logger.
type logger struct{ verbose bool }

func (l logger) Printf(format string, v ...any) { log.Printf("migrate: "+format, v...) }
func (l logger) Verbose() bool                  { return l.verbose }

// New connects to dsn. Caller must Close the runner.
func New(dsn string, verbose bool) (*Runner, error) {
	if dsn == "" {
		return nil, errNoDSN
	}
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: connect: %w", err)
	}
	m.Log = logger{verbose: verbose}
	return &Runner{m: m}, nil
}

// Version reports the current schema version.
func (r *Runner) Version() (Version, error) {
	n, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return Version{Empty: true}, nil
	}
	if err != nil {
		return Version{}, fmt.Errorf("migrate: version: %w", err)
	}
	return Version{Number: n, Dirty: dirty}, nil
}

// Apply moves the schema in direction d. steps <= 0 applies every pending migration
// (Up) or reverts all of them (Down); otherwise at most steps migrations run. Cancelling
// ctx stops after the migration in progress.
func (r *Runner) Apply(ctx context.Context, d Direction, steps int) error {
	if _, err := ParseDirection(string(d)); err != nil {
		return err
	}
	v, err := r.Version()
	if err != nil {
		return err
	}
	if v.Dirty {
		return fmt.Errorf("%w at version %d", ErrDirty, v.Number)
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.m.GracefulStop <- true
		case <-done:
		}
	}()

	switch {
	case steps > 0 && d == Down:
		err = r.m.Steps(-steps)
	case steps > 0:
		err = r.m.Steps(steps)
	case d == Down:
		err = r.m.Down()
	default:
		err = r.m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate: %s: %w", d, err)
	}
	return err
}

// Force records version as clean without running any SQL.
func (r *Runner) Force(version int) error {
	if err := r.m.Force(version); err != nil {
		return fmt.Errorf("migrate: force %d: %w", version, err)
	}
	return nil
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

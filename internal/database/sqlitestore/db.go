// Package sqlitestore provides the SQLite-backed moderation store.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Options configures the SQLite database.
type Options struct {
	// Path is the database file.
	Path string
	// BusyTimeout is how long a writer waits for the lock before failing.
	BusyTimeout time.Duration
	// MaxOpenConns caps the connection pool. Zero leaves the default.
	MaxOpenConns int
}

// DefaultOptions returns sensible defaults for the database.
func DefaultOptions(path string) Options {
	return Options{
		Path:         path,
		BusyTimeout:  5 * time.Second,
		MaxOpenConns: 8,
	}
}

// dsn builds the modernc.org/sqlite connection string. Transactions take the
// write lock at BEGIN so that concurrent writers queue on busy_timeout
// instead of failing on lock upgrade.
func dsn(opts Options) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Set("_txlock", "immediate")
	return "file:" + opts.Path + "?" + q.Encode()
}

// Open applies pending migrations and opens the database with tracing
// instrumentation.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	if opts.Path == "" {
		return nil, errors.New("sqlite: database path is required")
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = DefaultOptions(opts.Path).BusyTimeout
	}

	if err := Migrate(opts.Path); err != nil {
		return nil, err
	}

	db, err := otelsql.Open("sqlite", dsn(opts),
		otelsql.WithAttributes(attribute.String("db.system", "sqlite")),
	)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	log.Info().Str("path", opts.Path).Msg("SQLite moderation database opened")
	return db, nil
}

// Migrate applies the embedded schema migrations to the database at path.
// It uses its own connection, closed before returning.
func Migrate(path string) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite://"+path)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Debug().Uint("version", version).Bool("dirty", dirty).Msg("SQLite migrations applied")
	return nil
}

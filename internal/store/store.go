package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// migration upgrades a journal whose user_version is below version.
type migration struct {
	version int
	stmt    string
}

// migrations run in order after the base schema. Append only.
var migrations = []migration{
	{1, `CREATE INDEX IF NOT EXISTS idx_writes_owner ON writes(run_id, owner, property)`},
	{2, `ALTER TABLE instance_events ADD COLUMN flow INTEGER NOT NULL DEFAULT 0`},
}

// schemaVersion is the user_version of a fully migrated journal.
var schemaVersion = migrations[len(migrations)-1].version

// Store is the SQLite journal.
type Store struct {
	db *sql.DB
}

type options struct {
	busyTimeout time.Duration
	synchronous string
}

// Option configures Open.
type Option func(*options)

// WithBusyTimeout sets how long a connection waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) { o.busyTimeout = d }
}

// WithSynchronous sets the synchronous pragma (OFF, NORMAL, FULL).
func WithSynchronous(mode string) Option {
	return func(o *options) { o.synchronous = mode }
}

// Open creates or opens the journal at path. The connection runs in WAL
// mode with foreign keys on; the schema and pending migrations are applied
// before Open returns.
func Open(path string, opts ...Option) (*Store, error) {
	o := options{busyTimeout: 5 * time.Second, synchronous: "NORMAL"}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite3", dsn(path, o))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// dsn puts the pragmas in go-sqlite3 connection parameters so every
// pooled connection gets them.
func dsn(path string, o options) string {
	q := url.Values{}
	q.Set("_journal_mode", "WAL")
	q.Set("_synchronous", o.synchronous)
	q.Set("_busy_timeout", strconv.FormatInt(o.busyTimeout.Milliseconds(), 10))
	q.Set("_foreign_keys", "on")
	return path + "?" + q.Encode()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration: %w", err)
	}
	defer tx.Rollback()
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if _, err := tx.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(schemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return tx.Commit()
}

// SchemaVersion returns the applied user_version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	v, err := s.pragma(ctx, "user_version")
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (s *Store) pragma(ctx context.Context, name string) (string, error) {
	var v string
	if err := s.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return v, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

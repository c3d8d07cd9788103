// Package store persists pages, the link graph, crawl runs and the inverted
// index in SQLite. Writes go through a single-connection writer pool; reads
// use a separate pool so queries see a consistent WAL snapshot while a crawl
// is writing.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"
)

var (
	// ErrNotFound is returned when a page, run or document does not exist
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable wraps every failure of the underlying database
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Options configures Open
type Options struct {
	BusyTimeout time.Duration
	MaxReaders  int
	Logger      *slog.Logger
}

// Store is the SQLite-backed link graph, run log and index
type Store struct {
	writer *sql.DB
	reader *sql.DB
	path   string
	retry  *retryPolicy
	logger *slog.Logger

	// afterPageWrite runs inside RecordPage between the page row and its
	// edges. Tests use it to simulate a crash mid-write.
	afterPageWrite func() error
}

// Open opens (creating if needed) the database at path. Call
// EnsureInitialized before use.
func Open(path string, opts Options) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrStoreUnavailable)
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = 5 * time.Second
	}
	if opts.MaxReaders <= 0 {
		opts.MaxReaders = 4
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	busy := fmt.Sprintf("busy_timeout(%d)", opts.BusyTimeout.Milliseconds())

	writer, err := sql.Open("sqlite", dsn(path, map[string][]string{
		"_pragma": {busy, "journal_mode(WAL)", "foreign_keys(1)", "synchronous(NORMAL)"},
		"_txlock": {"immediate"},
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single writer prevents lock conflicts inside the process
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(30 * time.Minute)

	reader, err := sql.Open("sqlite", dsn(path, map[string][]string{
		"_pragma": {busy, "foreign_keys(1)", "query_only(1)"},
	}))
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	reader.SetMaxOpenConns(opts.MaxReaders)
	reader.SetMaxIdleConns(opts.MaxReaders)
	reader.SetConnMaxLifetime(30 * time.Minute)

	return &Store{
		writer: writer,
		reader: reader,
		path:   path,
		retry:  newRetryPolicy(),
		logger: opts.Logger,
	}, nil
}

func dsn(path string, params url.Values) string {
	return path + "?" + params.Encode()
}

// EnsureInitialized creates the schema if it does not exist. It is
// idempotent and safe to call on every startup.
func (s *Store) EnsureInitialized(ctx context.Context) error {
	return s.withRetry(ctx, "ensure initialized", func() error {
		tx, err := s.writer.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		var version string
		err = tx.QueryRowContext(ctx, "SELECT value FROM crawl_meta WHERE key = 'schema_version'").Scan(&version)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			version = schemaVersion
		case err != nil:
			return err
		}

		for version != schemaVersion {
			m, ok := migrations[version]
			if !ok {
				return fmt.Errorf("unsupported schema version %q", version)
			}
			if _, err := tx.ExecContext(ctx, m.sql); err != nil {
				return fmt.Errorf("failed to migrate schema from version %s: %w", version, err)
			}
			version = m.next
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES ('schema_version', ?)",
			schemaVersion,
		); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Close closes both connection pools
func (s *Store) Close() error {
	return errors.Join(s.reader.Close(), s.writer.Close())
}

// GetMeta retrieves a metadata value, "" when unset
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withRetry(ctx, "get meta", func() error {
		err := s.reader.QueryRowContext(ctx, "SELECT value FROM crawl_meta WHERE key = ?", key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			value = ""
			return nil
		}
		return err
	})
	return value, err
}

// SetMeta stores a metadata value
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.withRetry(ctx, "set meta", func() error {
		_, err := s.writer.ExecContext(ctx,
			"INSERT OR REPLACE INTO crawl_meta (key, value) VALUES (?, ?)",
			key, value,
		)
		return err
	})
}

func toNanos(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) time.Time {
	if !n.Valid {
		return time.Time{}
	}
	return time.Unix(0, n.Int64).UTC()
}

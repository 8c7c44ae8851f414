package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonathan/job-harvester/internal/jobs"
)

// SQLiteStore writes batches to a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
	writer
}

// OpenSQLite opens a SQLite database. A plain path is opened with a busy
// timeout; file: and :memory: DSNs are used as given.
func OpenSQLite(ctx context.Context, opts Options) (*SQLiteStore, error) {
	dsn := opts.DSN
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", dsn)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	return &SQLiteStore{db: db, writer: newWriter(sqliteDialect, opts)}, nil
}

// Persist writes the batch in one transaction.
func (s *SQLiteStore) Persist(ctx context.Context, batch *jobs.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail(batch, fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	err = s.insert(ctx, batch.Records, func(ctx context.Context, query string, args []any) error {
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return s.fail(batch, err)
	}

	if err := tx.Commit(); err != nil {
		return s.fail(batch, fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// Migrate creates the table if it does not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTableSQL(s.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Ping verifies the connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

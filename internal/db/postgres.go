package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/job-harvester/internal/jobs"
)

// PostgresStore writes batches through a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	writer
}

// OpenPostgres establishes a connection pool to the database.
func OpenPostgres(ctx context.Context, opts Options) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		cfg.MaxConns = int32(opts.MaxOpenConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	return &PostgresStore{pool: pool, writer: newWriter(postgresDialect, opts)}, nil
}

// Persist writes the batch in one transaction.
func (s *PostgresStore) Persist(ctx context.Context, batch *jobs.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return s.fail(batch, fmt.Errorf("failed to begin transaction: %w", err))
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	err = s.insert(ctx, batch.Records, func(ctx context.Context, query string, args []any) error {
		_, err := tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return s.fail(batch, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return s.fail(batch, fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// Migrate creates the table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, s.dialect.createTableSQL(s.table)); err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Ping verifies the connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Package db persists harvested batches. Each batch is written in a single
// transaction using multi-row inserts; a failure rolls the whole batch back.
package db

import (
	"context"
	"fmt"

	"github.com/jonathan/job-harvester/internal/jobs"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// DefaultTable is the table postings are written to.
const DefaultTable = "jobs"

// DefaultChunkRows is the number of rows per INSERT statement.
const DefaultChunkRows = 200

// Store persists batches of normalized records.
type Store interface {
	// Persist writes a batch atomically. An empty batch is a no-op.
	Persist(ctx context.Context, batch *jobs.Batch) error
	// Migrate creates the table if it does not exist.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Options configures a Store.
type Options struct {
	Driver       string
	DSN          string
	Table        string
	ChunkRows    int
	MaxOpenConns int
}

// PersistenceError is a batch that could not be committed. None of its rows
// were stored.
type PersistenceError struct {
	Driver string
	Table  string
	Rows   int
	Cause  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist %d rows to %s table %q: %v", e.Rows, e.Driver, e.Table, e.Cause)
}

func (e *PersistenceError) Unwrap() error {
	return e.Cause
}

// Open connects to the configured store and verifies the connection.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("missing DSN for %s store", opts.Driver)
	}

	var (
		store Store
		err   error
	)
	switch opts.Driver {
	case DriverPostgres:
		store, err = OpenPostgres(ctx, opts)
	case DriverMySQL:
		store, err = OpenMySQL(ctx, opts)
	case DriverSQLite:
		store, err = OpenSQLite(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// execFunc runs one statement inside the current transaction.
type execFunc func(ctx context.Context, query string, args []any) error

// writer holds what every backend shares: the dialect, the target table
// and the chunk size.
type writer struct {
	dialect   dialect
	table     string
	chunkRows int
}

func newWriter(d dialect, opts Options) writer {
	return writer{dialect: d, table: opts.Table, chunkRows: d.chunkRows(opts.ChunkRows)}
}

// insert writes records in chunks of w.chunkRows rows.
func (w writer) insert(ctx context.Context, records []jobs.Record, exec execFunc) error {
	width := len(jobs.Columns)
	for start := 0; start < len(records); start += w.chunkRows {
		end := min(start+w.chunkRows, len(records))
		chunk := records[start:end]

		args := make([]any, 0, len(chunk)*width)
		for i, rec := range chunk {
			if len(rec) != width {
				return fmt.Errorf("record %d has %d values, want %d", start+i, len(rec), width)
			}
			for _, v := range rec {
				args = append(args, w.dialect.value(v))
			}
		}

		if err := exec(ctx, w.dialect.insertSQL(w.table, len(chunk)), args); err != nil {
			return fmt.Errorf("failed to insert rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (w writer) fail(batch *jobs.Batch, err error) error {
	return &PersistenceError{Driver: w.dialect.name, Table: w.table, Rows: batch.Len(), Cause: err}
}

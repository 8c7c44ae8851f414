package db

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jonathan/job-harvester/internal/jobs"
)

// MySQLStore writes batches through gorm. Statements are raw multi-row
// inserts; gorm supplies the connection and the transaction.
type MySQLStore struct {
	db    *gorm.DB
	sqlDB *sql.DB
	writer
}

// OpenMySQL connects to MySQL. The DSN should carry charset=utf8mb4.
func OpenMySQL(ctx context.Context, opts Options) (*MySQLStore, error) {
	db, err := gorm.Open(mysql.Open(opts.DSN), &gorm.Config{
		Logger:                 logger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if opts.Table == "" {
		opts.Table = DefaultTable
	}
	return &MySQLStore{db: db, sqlDB: sqlDB, writer: newWriter(mysqlDialect, opts)}, nil
}

// Persist writes the batch in one transaction.
func (s *MySQLStore) Persist(ctx context.Context, batch *jobs.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.insert(ctx, batch.Records, func(_ context.Context, query string, args []any) error {
			return tx.Exec(query, args...).Error
		})
	})
	if err != nil {
		return s.fail(batch, err)
	}
	return nil
}

// Migrate creates the table if it does not exist.
func (s *MySQLStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Exec(s.dialect.createTableSQL(s.table)).Error; err != nil {
		return fmt.Errorf("failed to create table %s: %w", s.table, err)
	}
	return nil
}

// Ping verifies the connection.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	return s.sqlDB.Close()
}

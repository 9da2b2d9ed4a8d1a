package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nijaru/reelflow/config"
	"github.com/nijaru/reelflow/errors"
)

type DBConfig struct {
	MaxRetries         int
	RetryDelay         time.Duration
	QueryTimeout       time.Duration
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxRetries:         3,
		RetryDelay:         time.Second,
		QueryTimeout:       30 * time.Second,
		MaxConnections:     10,
		MaxIdleConnections: 5,
		ConnMaxLifetime:    time.Hour,
	}
}

// Store is the JobStore backed by database/sql.
type Store struct {
	db         *sql.DB
	dialect    dialect
	config     DBConfig
	statements *PreparedStatements
}

// Open connects to the configured database, applies the schema and
// prepares statements.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	const op = "sqlstore.Open"

	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, errors.Internal(op, err, "unsupported database driver")
	}

	dsn := cfg.DSN
	if d.name == driverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, errors.Internal(op, err, "failed to create database directory")
		}
		dsn = cfg.Path + "?_busy_timeout=5000"
	}

	db, err := sql.Open(d.name, dsn)
	if err != nil {
		return nil, errors.Internal(op, err, "failed to open database")
	}

	dbConfig := DefaultDBConfig()
	if cfg.MaxConnections > 0 {
		dbConfig.MaxConnections = cfg.MaxConnections
	}
	if cfg.MaxIdleConnections > 0 {
		dbConfig.MaxIdleConnections = cfg.MaxIdleConnections
	}
	if cfg.ConnMaxLifetime > 0 {
		dbConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	ConfigureDB(db, dbConfig)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Internal(op, err, "failed to connect to database")
	}

	if err := configurePragmas(ctx, db, d); err != nil {
		db.Close()
		return nil, err
	}

	if err := execSchema(ctx, db, d); err != nil {
		db.Close()
		return nil, err
	}

	stmts := &PreparedStatements{}
	if err := stmts.Prepare(ctx, db, d); err != nil {
		stmts.Close()
		db.Close()
		return nil, err
	}

	return &Store{
		db:         db,
		dialect:    d,
		config:     dbConfig,
		statements: stmts,
	}, nil
}

// Configure database with the provided settings
func ConfigureDB(db *sql.DB, config DBConfig) {
	db.SetMaxOpenConns(config.MaxConnections)
	db.SetMaxIdleConns(config.MaxIdleConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
}

func (s *Store) Close() error {
	if err := s.statements.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func configurePragmas(ctx context.Context, db *sql.DB, d dialect) error {
	const op = "sqlstore.configurePragmas"

	for _, pragma := range d.pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Internal(op, err, fmt.Sprintf("failed to set pragma: %s", pragma))
		}
	}

	return nil
}

func execSchema(ctx context.Context, db *sql.DB, d dialect) error {
	const op = "sqlstore.execSchema"

	// Split into individual statements
	statements := strings.Split(d.schema, ";")

	return WithTransaction(ctx, db, func(tx Executor) error {
		for _, stmt := range statements {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}

			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.Internal(
					op,
					err,
					fmt.Sprintf("failed to execute schema statement: %s", stmt),
				)
			}
		}
		return nil
	})
}

// withRetry retries fn while the database reports lock contention.
func withRetry(ctx context.Context, config DBConfig, op string, fn func() error) error {
	var lastErr error
	for i := 0; i < config.MaxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !isLockError(err) {
			return err
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return errors.Internal(op, ctx.Err(), "context cancelled")
		case <-time.After(config.RetryDelay * time.Duration(i+1)):
		}
	}
	return errors.Internal(op, lastErr, "max retries exceeded")
}

func isLockError(err error) bool {
	return strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "busy")
}

type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// TxFn is a function that will be called with a transaction
type TxFn func(tx Executor) error

// WithTransaction wraps a transaction with proper rollback/commit logic
func WithTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// exec runs a non-prepared statement written with ? placeholders.
func (s *Store) exec(ctx context.Context, ex Executor, query string, args ...interface{}) (sql.Result, error) {
	return ex.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, ex Executor, query string, args ...interface{}) *sql.Row {
	return ex.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, ex Executor, query string, args ...interface{}) (*sql.Rows, error) {
	return ex.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func now() time.Time {
	return time.Now().UTC()
}

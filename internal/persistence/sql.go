package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

// SQL wraps a database/sql handle for the sqlite and mysql drivers.
type SQL struct {
	DB      *sql.DB
	Dialect repository.Dialect
}

// NewSQL opens the database for driver, verifies it and creates the schema.
func NewSQL(ctx context.Context, driver string, cfg config.SQLConfig, logger *zap.Logger) (*SQL, error) {
	var (
		driverName string
		dialect    repository.Dialect
	)
	switch driver {
	case config.DriverSQLite:
		driverName, dialect = "sqlite3", repository.DialectSQLite
		if err := ensureSQLiteDir(cfg.DSN); err != nil {
			return nil, err
		}
	case config.DriverMySQL:
		driverName, dialect = "mysql", repository.DialectMySQL
	default:
		return nil, fmt.Errorf("sql: unsupported driver %q", driver)
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if err := repository.EnsureSchema(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("connected to sql store", zap.String("driver", driver))
	return &SQL{DB: db, Dialect: dialect}, nil
}

// Close releases the database handle.
func (s *SQL) Close() {
	if s != nil && s.DB != nil {
		_ = s.DB.Close()
	}
}

// Ping verifies connectivity.
func (s *SQL) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// ensureSQLiteDir creates the parent directory of a file: DSN.
func ensureSQLiteDir(dsn string) error {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}
	return nil
}

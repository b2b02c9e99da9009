package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Dialect selects the SQL flavour spoken by a database/sql backend.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

var sqlSchemas = map[Dialect][]string{
	DialectSQLite: {
		`CREATE TABLE IF NOT EXISTS tickets (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			closed_at INTEGER,
			category_id TEXT NOT NULL DEFAULT '',
			creator_id TEXT NOT NULL DEFAULT '',
			claimed_by TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_messages (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			author_id TEXT NOT NULL,
			author_name TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			sent_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_messages_ticket ON ticket_messages (ticket_id, sent_at)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			user_id TEXT PRIMARY KEY,
			expires_at INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_history (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			ticket_id TEXT NOT NULL,
			event TEXT NOT NULL,
			actor_type TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticket_history_ticket ON ticket_history (ticket_id, created_at)`,
	},
	DialectMySQL: {
		`CREATE TABLE IF NOT EXISTS tickets (
			id VARCHAR(191) PRIMARY KEY,
			status VARCHAR(16) NOT NULL,
			created_at BIGINT NOT NULL,
			closed_at BIGINT NULL,
			category_id VARCHAR(191) NOT NULL DEFAULT '',
			creator_id VARCHAR(191) NOT NULL DEFAULT '',
			claimed_by VARCHAR(191) NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_messages (
			id VARCHAR(64) PRIMARY KEY,
			ticket_id VARCHAR(191) NOT NULL,
			author_id VARCHAR(191) NOT NULL,
			author_name VARCHAR(255) NOT NULL DEFAULT '',
			body TEXT NOT NULL,
			sent_at BIGINT NOT NULL,
			INDEX idx_ticket_messages_ticket (ticket_id, sent_at)
		)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
			user_id VARCHAR(191) PRIMARY KEY,
			expires_at BIGINT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ticket_history (
			seq BIGINT AUTO_INCREMENT PRIMARY KEY,
			id VARCHAR(64) NOT NULL UNIQUE,
			ticket_id VARCHAR(191) NOT NULL,
			event VARCHAR(32) NOT NULL,
			actor_type VARCHAR(16) NOT NULL,
			actor_id VARCHAR(191) NOT NULL DEFAULT '',
			detail TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			INDEX idx_ticket_history_ticket (ticket_id, created_at)
		)`,
	},
}

// EnsureSchema creates the tables used by the SQL stores if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB, dialect Dialect) error {
	statements, ok := sqlSchemas[dialect]
	if !ok {
		return fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure %s schema: %w", dialect, err)
		}
	}
	return nil
}

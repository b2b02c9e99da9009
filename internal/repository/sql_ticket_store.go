package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// Timestamps are stored as Unix nanoseconds so the same columns work on
// sqlite and mysql without driver-specific time parsing.

var upsertTicketSQL = map[Dialect]string{
	DialectSQLite: `INSERT INTO tickets (id, status, created_at, closed_at, category_id, creator_id, claimed_by)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, created_at=excluded.created_at,
			closed_at=excluded.closed_at, category_id=excluded.category_id,
			creator_id=excluded.creator_id, claimed_by=excluded.claimed_by`,
	DialectMySQL: `INSERT INTO tickets (id, status, created_at, closed_at, category_id, creator_id, claimed_by)
		VALUES (?,?,?,?,?,?,?)
		ON DUPLICATE KEY UPDATE status=VALUES(status), created_at=VALUES(created_at),
			closed_at=VALUES(closed_at), category_id=VALUES(category_id),
			creator_id=VALUES(creator_id), claimed_by=VALUES(claimed_by)`,
}

type sqlTicketStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLTicketStore returns a TicketStore over a sqlite or mysql database.
// EnsureSchema must have been run on db.
func NewSQLTicketStore(db *sql.DB, dialect Dialect) TicketStore {
	return &sqlTicketStore{db: db, dialect: dialect}
}

func (s *sqlTicketStore) Has(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM tickets WHERE id=?`, id).Scan(&n)
	return n > 0, err
}

func (s *sqlTicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=?`, id)
	ticket, err := scanSQLTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return ticket, err
}

func (s *sqlTicketStore) Set(ctx context.Context, ticket domain.Ticket) error {
	var closedAt sql.NullInt64
	if ticket.ClosedAt != nil {
		closedAt = sql.NullInt64{Int64: ticket.ClosedAt.UnixNano(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, upsertTicketSQL[s.dialect],
		ticket.ID,
		string(ticket.Status),
		ticket.CreatedAt.UnixNano(),
		closedAt,
		ticket.CategoryID,
		ticket.CreatorID,
		ticket.ClaimedBy,
	)
	return err
}

func (s *sqlTicketStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, id)
	return err
}

func (s *sqlTicketStore) All(ctx context.Context) ([]domain.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ticketColumns+` FROM tickets ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanSQLTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLTicket(row rowScanner) (*domain.Ticket, error) {
	var (
		ticket    domain.Ticket
		status    string
		createdAt int64
		closedAt  sql.NullInt64
	)
	if err := row.Scan(
		&ticket.ID,
		&status,
		&createdAt,
		&closedAt,
		&ticket.CategoryID,
		&ticket.CreatorID,
		&ticket.ClaimedBy,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.CreatedAt = time.Unix(0, createdAt).UTC()
	if closedAt.Valid {
		t := time.Unix(0, closedAt.Int64).UTC()
		ticket.ClosedAt = &t
	}
	return &ticket, nil
}

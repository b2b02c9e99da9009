package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

const ticketColumns = `id, status, created_at, closed_at, category_id, creator_id, claimed_by`

type postgresTicketStore struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketStore returns a TicketStore backed by the tickets table.
func NewPostgresTicketStore(pool *pgxpool.Pool) TicketStore {
	return &postgresTicketStore{pool: pool}
}

func (r *postgresTicketStore) Has(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM tickets WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *postgresTicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *postgresTicketStore) Set(ctx context.Context, ticket domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, status, created_at, closed_at, category_id, creator_id, claimed_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO UPDATE SET
            status=EXCLUDED.status, created_at=EXCLUDED.created_at, closed_at=EXCLUDED.closed_at,
            category_id=EXCLUDED.category_id, creator_id=EXCLUDED.creator_id,
            claimed_by=EXCLUDED.claimed_by, updated_at=NOW()`
	_, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.Status,
		ticket.CreatedAt,
		ticket.ClosedAt,
		ticket.CategoryID,
		ticket.CreatorID,
		ticket.ClaimedBy,
	)
	return err
}

func (r *postgresTicketStore) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	return err
}

func (r *postgresTicketStore) All(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Status,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.CategoryID,
		&ticket.CreatorID,
		&ticket.ClaimedBy,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

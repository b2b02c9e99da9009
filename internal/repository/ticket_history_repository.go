package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-lifecycle/internal/codec"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// TicketHistoryRepository stores audit entries in insertion order.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error)
}

type memoryHistoryRepository struct {
	mu      sync.RWMutex
	entries map[string][]domain.TicketHistory
}

// NewMemoryTicketHistoryRepository returns a process-local audit trail.
func NewMemoryTicketHistoryRepository() TicketHistoryRepository {
	return &memoryHistoryRepository{entries: make(map[string][]domain.TicketHistory)}
}

func (r *memoryHistoryRepository) Create(_ context.Context, history domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[history.TicketID] = append(r.entries[history.TicketID], history)
	return nil
}

func (r *memoryHistoryRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.TicketHistory(nil), r.entries[ticketID]...), nil
}

type postgresHistoryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketHistoryRepository builds repository.
func NewPostgresTicketHistoryRepository(pool *pgxpool.Pool) TicketHistoryRepository {
	return &postgresHistoryRepository{pool: pool}
}

func (r *postgresHistoryRepository) Create(ctx context.Context, history domain.TicketHistory) error {
	const query = `
        INSERT INTO ticket_history (id, ticket_id, event, actor_type, actor_id, detail, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.pool.Exec(ctx, query,
		history.ID,
		history.TicketID,
		history.Event,
		history.ActorType,
		history.ActorID,
		history.Detail,
		history.CreatedAt,
	)
	return err
}

func (r *postgresHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	const query = `
        SELECT id, ticket_id, event, actor_type, actor_id, detail, created_at
        FROM ticket_history WHERE ticket_id=$1 ORDER BY created_at ASC, seq ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var history domain.TicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TicketID,
			&history.Event,
			&history.ActorType,
			&history.ActorID,
			&history.Detail,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

type sqlHistoryRepository struct {
	db *sql.DB
}

// NewSQLTicketHistoryRepository returns the audit trail for sqlite or mysql.
func NewSQLTicketHistoryRepository(db *sql.DB) TicketHistoryRepository {
	return &sqlHistoryRepository{db: db}
}

func (r *sqlHistoryRepository) Create(ctx context.Context, history domain.TicketHistory) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO ticket_history
		(id, ticket_id, event, actor_type, actor_id, detail, created_at) VALUES (?,?,?,?,?,?,?)`,
		history.ID,
		history.TicketID,
		history.Event,
		history.ActorType,
		history.ActorID,
		history.Detail,
		history.CreatedAt.UnixNano(),
	)
	return err
}

func (r *sqlHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, ticket_id, event, actor_type, actor_id, detail, created_at
		FROM ticket_history WHERE ticket_id=? ORDER BY created_at ASC, seq ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketHistory
	for rows.Next() {
		var (
			history   domain.TicketHistory
			createdAt int64
		)
		if err := rows.Scan(&history.ID, &history.TicketID, &history.Event, &history.ActorType, &history.ActorID, &history.Detail, &createdAt); err != nil {
			return nil, err
		}
		history.CreatedAt = time.Unix(0, createdAt).UTC()
		result = append(result, history)
	}
	return result, rows.Err()
}

// redisHistoryRepository appends CBOR entries to one list per ticket.
type redisHistoryRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisTicketHistoryRepository stores entries under
// "<prefix>:ticket:<id>:history".
func NewRedisTicketHistoryRepository(client *redis.Client, prefix string) TicketHistoryRepository {
	return &redisHistoryRepository{client: client, prefix: prefix}
}

func (r *redisHistoryRepository) key(ticketID string) string {
	return fmt.Sprintf("%s:ticket:%s:history", r.prefix, ticketID)
}

func (r *redisHistoryRepository) Create(ctx context.Context, history domain.TicketHistory) error {
	raw, err := codec.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", history.ID, err)
	}
	return r.client.RPush(ctx, r.key(history.TicketID), raw).Err()
}

func (r *redisHistoryRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketHistory, error) {
	items, err := r.client.LRange(ctx, r.key(ticketID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.TicketHistory, 0, len(items))
	for _, raw := range items {
		var history domain.TicketHistory
		if err := codec.Unmarshal([]byte(raw), &history); err != nil {
			return nil, fmt.Errorf("decode history in %s: %w", ticketID, err)
		}
		result = append(result, history)
	}
	return result, nil
}

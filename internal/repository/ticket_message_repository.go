package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-lifecycle/internal/codec"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// TicketMessageRepository stores the chat messages seen in ticket channels.
// LastSentAt returns nil when the channel has no recorded messages.
type TicketMessageRepository interface {
	Append(ctx context.Context, msg domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
	LastSentAt(ctx context.Context, ticketID string) (*time.Time, error)
	DeleteByTicket(ctx context.Context, ticketID string) error
}

type memoryMessageRepository struct {
	mu       sync.RWMutex
	messages map[string][]domain.TicketMessage
}

// NewMemoryTicketMessageRepository returns a process-local message log.
func NewMemoryTicketMessageRepository() TicketMessageRepository {
	return &memoryMessageRepository{messages: make(map[string][]domain.TicketMessage)}
}

func (r *memoryMessageRepository) Append(_ context.Context, msg domain.TicketMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.TicketID] = append(r.messages[msg.TicketID], msg)
	return nil
}

func (r *memoryMessageRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.mu.RLock()
	result := append([]domain.TicketMessage(nil), r.messages[ticketID]...)
	r.mu.RUnlock()
	sort.SliceStable(result, func(i, j int) bool { return result[i].SentAt.Before(result[j].SentAt) })
	return result, nil
}

func (r *memoryMessageRepository) LastSentAt(_ context.Context, ticketID string) (*time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var last *time.Time
	for _, msg := range r.messages[ticketID] {
		if last == nil || msg.SentAt.After(*last) {
			sentAt := msg.SentAt
			last = &sentAt
		}
	}
	return last, nil
}

func (r *memoryMessageRepository) DeleteByTicket(_ context.Context, ticketID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, ticketID)
	return nil
}

type postgresMessageRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketMessageRepository builds the ticket_messages repository.
func NewPostgresTicketMessageRepository(pool *pgxpool.Pool) TicketMessageRepository {
	return &postgresMessageRepository{pool: pool}
}

func (r *postgresMessageRepository) Append(ctx context.Context, msg domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, author_id, author_name, body, sent_at)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (id) DO NOTHING`
	_, err := r.pool.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.AuthorID,
		msg.AuthorName,
		msg.Body,
		msg.SentAt,
	)
	return err
}

func (r *postgresMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, author_id, author_name, body, sent_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY sent_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorID,
			&msg.AuthorName,
			&msg.Body,
			&msg.SentAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *postgresMessageRepository) LastSentAt(ctx context.Context, ticketID string) (*time.Time, error) {
	var last *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(sent_at) FROM ticket_messages WHERE ticket_id=$1`, ticketID).Scan(&last)
	return last, err
}

func (r *postgresMessageRepository) DeleteByTicket(ctx context.Context, ticketID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM ticket_messages WHERE ticket_id=$1`, ticketID)
	return err
}

var insertMessageSQL = map[Dialect]string{
	DialectSQLite: `INSERT OR IGNORE INTO ticket_messages (id, ticket_id, author_id, author_name, body, sent_at) VALUES (?,?,?,?,?,?)`,
	DialectMySQL:  `INSERT IGNORE INTO ticket_messages (id, ticket_id, author_id, author_name, body, sent_at) VALUES (?,?,?,?,?,?)`,
}

type sqlMessageRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLTicketMessageRepository returns the message log for sqlite or mysql.
func NewSQLTicketMessageRepository(db *sql.DB, dialect Dialect) TicketMessageRepository {
	return &sqlMessageRepository{db: db, dialect: dialect}
}

func (r *sqlMessageRepository) Append(ctx context.Context, msg domain.TicketMessage) error {
	_, err := r.db.ExecContext(ctx, insertMessageSQL[r.dialect],
		msg.ID,
		msg.TicketID,
		msg.AuthorID,
		msg.AuthorName,
		msg.Body,
		msg.SentAt.UnixNano(),
	)
	return err
}

func (r *sqlMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, ticket_id, author_id, author_name, body, sent_at
		FROM ticket_messages WHERE ticket_id=? ORDER BY sent_at ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var (
			msg    domain.TicketMessage
			sentAt int64
		)
		if err := rows.Scan(&msg.ID, &msg.TicketID, &msg.AuthorID, &msg.AuthorName, &msg.Body, &sentAt); err != nil {
			return nil, err
		}
		msg.SentAt = time.Unix(0, sentAt).UTC()
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *sqlMessageRepository) LastSentAt(ctx context.Context, ticketID string) (*time.Time, error) {
	var last sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(sent_at) FROM ticket_messages WHERE ticket_id=?`, ticketID).Scan(&last); err != nil {
		return nil, err
	}
	if !last.Valid {
		return nil, nil
	}
	t := time.Unix(0, last.Int64).UTC()
	return &t, nil
}

func (r *sqlMessageRepository) DeleteByTicket(ctx context.Context, ticketID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ticket_messages WHERE ticket_id=?`, ticketID)
	return err
}

// redisMessageRepository keeps one sorted set per ticket, scored by the
// send time in milliseconds.
type redisMessageRepository struct {
	client *redis.Client
	prefix string
}

// NewRedisTicketMessageRepository returns a message log stored under
// "<prefix>:ticket:<id>:messages".
func NewRedisTicketMessageRepository(client *redis.Client, prefix string) TicketMessageRepository {
	return &redisMessageRepository{client: client, prefix: prefix}
}

func (r *redisMessageRepository) key(ticketID string) string {
	return fmt.Sprintf("%s:ticket:%s:messages", r.prefix, ticketID)
}

func (r *redisMessageRepository) Append(ctx context.Context, msg domain.TicketMessage) error {
	raw, err := codec.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message %s: %w", msg.ID, err)
	}
	return r.client.ZAdd(ctx, r.key(msg.TicketID), redis.Z{
		Score:  float64(msg.SentAt.UnixMilli()),
		Member: raw,
	}).Err()
}

func (r *redisMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	members, err := r.client.ZRange(ctx, r.key(ticketID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.TicketMessage, 0, len(members))
	for _, raw := range members {
		var msg domain.TicketMessage
		if err := codec.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("decode message in %s: %w", ticketID, err)
		}
		result = append(result, msg)
	}
	return result, nil
}

func (r *redisMessageRepository) LastSentAt(ctx context.Context, ticketID string) (*time.Time, error) {
	members, err := r.client.ZRevRange(ctx, r.key(ticketID), 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}
	var msg domain.TicketMessage
	if err := codec.Unmarshal([]byte(members[0]), &msg); err != nil {
		return nil, fmt.Errorf("decode message in %s: %w", ticketID, err)
	}
	return &msg.SentAt, nil
}

func (r *redisMessageRepository) DeleteByTicket(ctx context.Context, ticketID string) error {
	return r.client.Del(ctx, r.key(ticketID)).Err()
}

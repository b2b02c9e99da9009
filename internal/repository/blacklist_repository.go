package repository

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// BlacklistRepository tracks users barred from opening tickets. A nil until
// means the entry never expires; otherwise it lapses once now passes until.
type BlacklistRepository interface {
	Add(ctx context.Context, userID string, until *time.Time) error
	Remove(ctx context.Context, userID string) error
	Contains(ctx context.Context, userID string, now time.Time) (bool, error)
	RemoveExpired(ctx context.Context, now time.Time) (int, error)
}

func active(until *time.Time, now time.Time) bool {
	return until == nil || !now.After(*until)
}

type memoryBlacklist struct {
	mu      sync.Mutex
	entries map[string]*time.Time
}

// NewMemoryBlacklistRepository returns a process-local blacklist.
func NewMemoryBlacklistRepository() BlacklistRepository {
	return &memoryBlacklist{entries: make(map[string]*time.Time)}
}

func (b *memoryBlacklist) Add(_ context.Context, userID string, until *time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if until != nil {
		u := *until
		until = &u
	}
	b.entries[userID] = until
	return nil
}

func (b *memoryBlacklist) Remove(_ context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, userID)
	return nil
}

func (b *memoryBlacklist) Contains(_ context.Context, userID string, now time.Time) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	until, ok := b.entries[userID]
	return ok && active(until, now), nil
}

func (b *memoryBlacklist) RemoveExpired(_ context.Context, now time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for userID, until := range b.entries {
		if !active(until, now) {
			delete(b.entries, userID)
			removed++
		}
	}
	return removed, nil
}

// redisBlacklist is a sorted set scored by expiry in Unix seconds; permanent
// entries score +inf.
type redisBlacklist struct {
	client *redis.Client
	key    string
}

// NewRedisBlacklistRepository stores the blacklist in "<prefix>:blacklist".
func NewRedisBlacklistRepository(client *redis.Client, prefix string) BlacklistRepository {
	return &redisBlacklist{client: client, key: prefix + ":blacklist"}
}

func (b *redisBlacklist) Add(ctx context.Context, userID string, until *time.Time) error {
	score := math.Inf(1)
	if until != nil {
		score = float64(until.Unix())
	}
	return b.client.ZAdd(ctx, b.key, redis.Z{Score: score, Member: userID}).Err()
}

func (b *redisBlacklist) Remove(ctx context.Context, userID string) error {
	return b.client.ZRem(ctx, b.key, userID).Err()
}

func (b *redisBlacklist) Contains(ctx context.Context, userID string, now time.Time) (bool, error) {
	score, err := b.client.ZScore(ctx, b.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return score >= float64(now.Unix()), nil
}

func (b *redisBlacklist) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	n, err := b.client.ZRemRangeByScore(ctx, b.key, "-inf", "("+strconv.FormatInt(now.Unix(), 10)).Result()
	return int(n), err
}

type sqlBlacklist struct {
	db      *sql.DB
	dialect Dialect
}

var upsertBlacklistSQL = map[Dialect]string{
	DialectSQLite: `INSERT INTO blacklist (user_id, expires_at) VALUES (?,?) ON CONFLICT(user_id) DO UPDATE SET expires_at=excluded.expires_at`,
	DialectMySQL:  `INSERT INTO blacklist (user_id, expires_at) VALUES (?,?) ON DUPLICATE KEY UPDATE expires_at=VALUES(expires_at)`,
}

// NewSQLBlacklistRepository returns the blacklist for sqlite or mysql.
func NewSQLBlacklistRepository(db *sql.DB, dialect Dialect) BlacklistRepository {
	return &sqlBlacklist{db: db, dialect: dialect}
}

func (b *sqlBlacklist) Add(ctx context.Context, userID string, until *time.Time) error {
	var u sql.NullInt64
	if until != nil {
		u = sql.NullInt64{Int64: until.Unix(), Valid: true}
	}
	_, err := b.db.ExecContext(ctx, upsertBlacklistSQL[b.dialect], userID, u)
	return err
}

func (b *sqlBlacklist) Remove(ctx context.Context, userID string) error {
	_, err := b.db.ExecContext(ctx, `DELETE FROM blacklist WHERE user_id=?`, userID)
	return err
}

func (b *sqlBlacklist) Contains(ctx context.Context, userID string, now time.Time) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM blacklist WHERE user_id=? AND (expires_at IS NULL OR expires_at >= ?)`,
		userID, now.Unix()).Scan(&n)
	return n > 0, err
}

func (b *sqlBlacklist) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM blacklist WHERE expires_at IS NOT NULL AND expires_at < ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type postgresBlacklist struct {
	pool *pgxpool.Pool
}

// NewPostgresBlacklistRepository returns the blacklist table repository.
func NewPostgresBlacklistRepository(pool *pgxpool.Pool) BlacklistRepository {
	return &postgresBlacklist{pool: pool}
}

func (b *postgresBlacklist) Add(ctx context.Context, userID string, until *time.Time) error {
	const query = `
        INSERT INTO blacklist (user_id, expires_at) VALUES ($1,$2)
        ON CONFLICT (user_id) DO UPDATE SET expires_at=EXCLUDED.expires_at`
	_, err := b.pool.Exec(ctx, query, userID, until)
	return err
}

func (b *postgresBlacklist) Remove(ctx context.Context, userID string) error {
	_, err := b.pool.Exec(ctx, `DELETE FROM blacklist WHERE user_id=$1`, userID)
	return err
}

func (b *postgresBlacklist) Contains(ctx context.Context, userID string, now time.Time) (bool, error) {
	var exists bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM blacklist WHERE user_id=$1 AND (expires_at IS NULL OR expires_at >= $2))`,
		userID, now).Scan(&exists)
	return exists, err
}

func (b *postgresBlacklist) RemoveExpired(ctx context.Context, now time.Time) (int, error) {
	cmd, err := b.pool.Exec(ctx, `DELETE FROM blacklist WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return int(cmd.RowsAffected()), nil
}

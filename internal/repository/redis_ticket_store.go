package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/ticket-lifecycle/internal/codec"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// redisTicketStore keeps every ticket as a CBOR value in one hash.
type redisTicketStore struct {
	client *redis.Client
	key    string
}

// NewRedisTicketStore returns a TicketStore stored in the hash "<prefix>:tickets".
func NewRedisTicketStore(client *redis.Client, prefix string) TicketStore {
	return &redisTicketStore{client: client, key: prefix + ":tickets"}
}

func (s *redisTicketStore) Has(ctx context.Context, id string) (bool, error) {
	return s.client.HExists(ctx, s.key, id).Result()
}

func (s *redisTicketStore) Get(ctx context.Context, id string) (*domain.Ticket, error) {
	raw, err := s.client.HGet(ctx, s.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var ticket domain.Ticket
	if err := codec.Unmarshal(raw, &ticket); err != nil {
		return nil, fmt.Errorf("decode ticket %s: %w", id, err)
	}
	return &ticket, nil
}

func (s *redisTicketStore) Set(ctx context.Context, ticket domain.Ticket) error {
	raw, err := codec.Marshal(ticket)
	if err != nil {
		return fmt.Errorf("encode ticket %s: %w", ticket.ID, err)
	}
	return s.client.HSet(ctx, s.key, ticket.ID, raw).Err()
}

func (s *redisTicketStore) Delete(ctx context.Context, id string) error {
	return s.client.HDel(ctx, s.key, id).Err()
}

func (s *redisTicketStore) All(ctx context.Context) ([]domain.Ticket, error) {
	values, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, err
	}
	result := make([]domain.Ticket, 0, len(values))
	for id, raw := range values {
		var ticket domain.Ticket
		if err := codec.Unmarshal([]byte(raw), &ticket); err != nil {
			return nil, fmt.Errorf("decode ticket %s: %w", id, err)
		}
		result = append(result, ticket)
	}
	sortTickets(result)
	return result, nil
}

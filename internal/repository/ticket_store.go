package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TicketStore is the persistent map of ticket records keyed by channel ID.
// Delete is idempotent. All returns a point-in-time snapshot; concurrent
// writers may change the store while a caller iterates it.
type TicketStore interface {
	Has(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*domain.Ticket, error)
	Set(ctx context.Context, ticket domain.Ticket) error
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]domain.Ticket, error)
}

type memoryTicketStore struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
}

// NewMemoryTicketStore returns a process-local store, used by tests and the
// memory driver.
func NewMemoryTicketStore() TicketStore {
	return &memoryTicketStore{tickets: make(map[string]domain.Ticket)}
}

func (s *memoryTicketStore) Has(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.tickets[id]
	return ok, nil
}

func (s *memoryTicketStore) Get(_ context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := ticket.Clone()
	return &out, nil
}

func (s *memoryTicketStore) Set(_ context.Context, ticket domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (s *memoryTicketStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tickets, id)
	return nil
}

func (s *memoryTicketStore) All(_ context.Context) ([]domain.Ticket, error) {
	s.mu.RLock()
	result := make([]domain.Ticket, 0, len(s.tickets))
	for _, ticket := range s.tickets {
		result = append(result, ticket.Clone())
	}
	s.mu.RUnlock()
	sortTickets(result)
	return result, nil
}

func sortTickets(tickets []domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		if !tickets[i].CreatedAt.Equal(tickets[j].CreatedAt) {
			return tickets[i].CreatedAt.Before(tickets[j].CreatedAt)
		}
		return tickets[i].ID < tickets[j].ID
	})
}

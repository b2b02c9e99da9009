package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-lifecycle/internal/domain"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, EnsureSchema(context.Background(), db, DialectSQLite))
	return db
}

type storeFactory struct {
	name string
	new  func(t *testing.T) TicketStore
}

func ticketStores() []storeFactory {
	return []storeFactory{
		{name: "memory", new: func(*testing.T) TicketStore { return NewMemoryTicketStore() }},
		{name: "sqlite", new: func(t *testing.T) TicketStore { return NewSQLTicketStore(openSQLite(t), DialectSQLite) }},
	}
}

func openTicket(id string, created time.Time) domain.Ticket {
	return domain.Ticket{ID: id, Status: domain.TicketStatusOpen, CreatedAt: created, CategoryID: "general", CreatorID: "user-1"}
}

func TestTicketStore_SetGetHas(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, f := range ticketStores() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.new(t)

			ok, err := store.Has(ctx, "chan-1")
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = store.Get(ctx, "chan-1")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Set(ctx, openTicket("chan-1", base)))
			ok, err = store.Has(ctx, "chan-1")
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := store.Get(ctx, "chan-1")
			require.NoError(t, err)
			assert.Equal(t, domain.TicketStatusOpen, got.Status)
			assert.Nil(t, got.ClosedAt)
			assert.True(t, base.Equal(got.CreatedAt))
			assert.Equal(t, "general", got.CategoryID)
		})
	}
}

func TestTicketStore_SetReplacesRecord(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	closedAt := base.Add(2 * time.Hour)
	for _, f := range ticketStores() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.new(t)
			ticket := openTicket("chan-1", base)
			require.NoError(t, store.Set(ctx, ticket))

			ticket.Status = domain.TicketStatusClosed
			ticket.ClosedAt = &closedAt
			ticket.ClaimedBy = "staff-7"
			require.NoError(t, store.Set(ctx, ticket))

			got, err := store.Get(ctx, "chan-1")
			require.NoError(t, err)
			assert.Equal(t, domain.TicketStatusClosed, got.Status)
			require.NotNil(t, got.ClosedAt)
			assert.True(t, closedAt.Equal(*got.ClosedAt))
			assert.Equal(t, "staff-7", got.ClaimedBy)

			all, err := store.All(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestTicketStore_DeleteIsIdempotent(t *testing.T) {
	for _, f := range ticketStores() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.new(t)
			require.NoError(t, store.Set(ctx, openTicket("chan-1", time.Now())))

			require.NoError(t, store.Delete(ctx, "chan-1"))
			require.NoError(t, store.Delete(ctx, "chan-1"))
			require.NoError(t, store.Delete(ctx, "never-existed"))

			ok, err := store.Has(ctx, "chan-1")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestTicketStore_AllOrdersByCreation(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for _, f := range ticketStores() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.new(t)
			require.NoError(t, store.Set(ctx, openTicket("c", base.Add(2*time.Minute))))
			require.NoError(t, store.Set(ctx, openTicket("a", base)))
			require.NoError(t, store.Set(ctx, openTicket("b", base.Add(time.Minute))))

			all, err := store.All(ctx)
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
		})
	}
}

func TestMemoryTicketStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTicketStore()
	closedAt := time.Now()
	ticket := openTicket("chan-1", closedAt)
	ticket.Status = domain.TicketStatusClosed
	ticket.ClosedAt = &closedAt
	require.NoError(t, store.Set(ctx, ticket))

	got, err := store.Get(ctx, "chan-1")
	require.NoError(t, err)
	*got.ClosedAt = got.ClosedAt.Add(time.Hour)

	again, err := store.Get(ctx, "chan-1")
	require.NoError(t, err)
	assert.True(t, closedAt.Equal(*again.ClosedAt))
}

func TestMessageRepository_LastSentAt(t *testing.T) {
	repos := map[string]func(t *testing.T) TicketMessageRepository{
		"memory": func(*testing.T) TicketMessageRepository { return NewMemoryTicketMessageRepository() },
		"sqlite": func(t *testing.T) TicketMessageRepository {
			return NewSQLTicketMessageRepository(openSQLite(t), DialectSQLite)
		},
	}
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)

			last, err := repo.LastSentAt(ctx, "chan-1")
			require.NoError(t, err)
			assert.Nil(t, last)

			require.NoError(t, repo.Append(ctx, domain.TicketMessage{ID: "m2", TicketID: "chan-1", AuthorID: "u", Body: "later", SentAt: base.Add(time.Minute)}))
			require.NoError(t, repo.Append(ctx, domain.TicketMessage{ID: "m1", TicketID: "chan-1", AuthorID: "u", Body: "first", SentAt: base}))
			require.NoError(t, repo.Append(ctx, domain.TicketMessage{ID: "x1", TicketID: "chan-2", AuthorID: "u", Body: "other", SentAt: base.Add(time.Hour)}))

			last, err = repo.LastSentAt(ctx, "chan-1")
			require.NoError(t, err)
			require.NotNil(t, last)
			assert.True(t, base.Add(time.Minute).Equal(*last))

			msgs, err := repo.ListByTicket(ctx, "chan-1")
			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, "first", msgs[0].Body)

			require.NoError(t, repo.DeleteByTicket(ctx, "chan-1"))
			last, err = repo.LastSentAt(ctx, "chan-1")
			require.NoError(t, err)
			assert.Nil(t, last)
		})
	}
}

func TestBlacklist_Expiry(t *testing.T) {
	repos := map[string]func(t *testing.T) BlacklistRepository{
		"memory": func(*testing.T) BlacklistRepository { return NewMemoryBlacklistRepository() },
		"sqlite": func(t *testing.T) BlacklistRepository {
			return NewSQLBlacklistRepository(openSQLite(t), DialectSQLite)
		},
	}
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			expired := now.Add(-time.Minute)
			future := now.Add(time.Hour)

			require.NoError(t, repo.Add(ctx, "gone", &expired))
			require.NoError(t, repo.Add(ctx, "temp", &future))
			require.NoError(t, repo.Add(ctx, "forever", nil))

			for user, want := range map[string]bool{"gone": false, "temp": true, "forever": true, "nobody": false} {
				got, err := repo.Contains(ctx, user, now)
				require.NoError(t, err)
				assert.Equal(t, want, got, user)
			}

			removed, err := repo.RemoveExpired(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			removed, err = repo.RemoveExpired(ctx, now)
			require.NoError(t, err)
			assert.Zero(t, removed)

			require.NoError(t, repo.Remove(ctx, "forever"))
			got, err := repo.Contains(ctx, "forever", now)
			require.NoError(t, err)
			assert.False(t, got)
		})
	}
}

func TestTicketHistory_Order(t *testing.T) {
	repos := map[string]func(t *testing.T) TicketHistoryRepository{
		"memory": func(*testing.T) TicketHistoryRepository { return NewMemoryTicketHistoryRepository() },
		"sqlite": func(t *testing.T) TicketHistoryRepository { return NewSQLTicketHistoryRepository(openSQLite(t)) },
	}
	at := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for name, newRepo := range repos {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			repo := newRepo(t)
			// same timestamp: insertion order breaks the tie
			for _, e := range []domain.TicketHistory{
				{ID: "h1", TicketID: "a", Event: "ticket_opened", ActorType: "bridge", CreatedAt: at},
				{ID: "h2", TicketID: "a", Event: "ticket_closed", ActorType: "system", Detail: "auto", CreatedAt: at},
				{ID: "h3", TicketID: "b", Event: "ticket_opened", ActorType: "bridge", CreatedAt: at},
			} {
				require.NoError(t, repo.Create(ctx, e))
			}

			got, err := repo.ListByTicket(ctx, "a")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "h1", got[0].ID)
			assert.Equal(t, "h2", got[1].ID)
			assert.Equal(t, "auto", got[1].Detail)
			assert.True(t, at.Equal(got[1].CreatedAt))

			none, err := repo.ListByTicket(ctx, "zzz")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

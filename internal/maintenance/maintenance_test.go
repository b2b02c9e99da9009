package maintenance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-lifecycle/internal/activity"
	"github.com/spec-kit/ticket-lifecycle/internal/domain"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/lifecycle"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
)

var now = time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)

// flakyStore fails writes for selected ticket IDs.
type flakyStore struct {
	repository.TicketStore
	failSet    map[string]bool
	failDelete map[string]bool
	failAll    bool
}

func (s *flakyStore) Set(ctx context.Context, ticket domain.Ticket) error {
	if s.failSet[ticket.ID] {
		return errors.New("disk full")
	}
	return s.TicketStore.Set(ctx, ticket)
}

func (s *flakyStore) Delete(ctx context.Context, id string) error {
	if s.failDelete[id] {
		return errors.New("locked")
	}
	return s.TicketStore.Delete(ctx, id)
}

func (s *flakyStore) All(ctx context.Context) ([]domain.Ticket, error) {
	if s.failAll {
		return nil, errors.New("connection refused")
	}
	return s.TicketStore.All(ctx)
}

type fakeArchiver struct {
	mu         sync.Mutex
	archived   []string
	deleted    []string
	archiveErr error
	deleteErr  map[string]error
}

func (a *fakeArchiver) ArchiveAndClose(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, id)
	return a.archiveErr
}

func (a *fakeArchiver) DeleteChannel(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.deleteErr[id]; err != nil {
		return err
	}
	a.deleted = append(a.deleted, id)
	return nil
}

func seed(t *testing.T, store repository.TicketStore, tickets ...domain.Ticket) {
	t.Helper()
	for _, ticket := range tickets {
		require.NoError(t, store.Set(context.Background(), ticket))
	}
}

func open(id string) domain.Ticket {
	return domain.Ticket{ID: id, Status: domain.TicketStatusOpen, CreatedAt: now.Add(-72 * time.Hour), CreatorID: "u-" + id}
}

func closedAt(id string, at *time.Time) domain.Ticket {
	return domain.Ticket{ID: id, Status: domain.TicketStatusClosed, CreatedAt: now.Add(-96 * time.Hour), ClosedAt: at}
}

func ago(d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func deps(store repository.TicketStore, probe activity.Probe, archiver *fakeArchiver, dispatcher events.Dispatcher) Dependencies {
	return Dependencies{
		Engine:     lifecycle.NewEngine(24*time.Hour, 24*time.Hour),
		Tickets:    store,
		Probe:      probe,
		Archiver:   archiver,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(),
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return now },
	}
}

func status(t *testing.T, store repository.TicketStore, id string) domain.TicketStatus {
	t.Helper()
	ticket, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	return ticket.Status
}

func TestAutoCloser_ClosesOnlyStaleTickets(t *testing.T) {
	store := repository.NewMemoryTicketStore()
	seed(t, store, open("stale"), open("fresh"), open("boundary"), open("silent"), open("probe-err"),
		closedAt("already", ago(time.Hour)))

	probe := activity.ProbeFunc(func(_ context.Context, id string) (*time.Time, error) {
		switch id {
		case "stale":
			return ago(24*time.Hour + time.Second), nil
		case "fresh":
			return ago(24*time.Hour - time.Second), nil
		case "boundary":
			return ago(24 * time.Hour), nil
		case "probe-err":
			return nil, errors.New("channel not found")
		}
		return nil, nil
	})
	archiver := &fakeArchiver{}
	dispatcher := events.NewInMemoryDispatcher()
	var published []events.Event
	dispatcher.Subscribe(events.EventTicketClosed, func(_ context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})
	d := deps(store, probe, archiver, dispatcher)

	summary, err := NewAutoCloser(d, false).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Scanned)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, []string{"stale"}, summary.TicketIDs)
	assert.Equal(t, domain.TicketStatusClosed, status(t, store, "stale"))
	for _, id := range []string{"fresh", "boundary", "silent", "probe-err"} {
		assert.Equal(t, domain.TicketStatusOpen, status(t, store, id), id)
	}

	closed, err := store.Get(context.Background(), "stale")
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)
	assert.True(t, now.Equal(*closed.ClosedAt))
	assert.Equal(t, "u-stale", closed.CreatorID)
	assert.Equal(t, []string{"stale"}, archiver.archived)

	require.Len(t, published, 1)
	payload := published[0].Payload.(events.TicketClosedPayload)
	assert.True(t, payload.Automatic)
	assert.Equal(t, events.SystemActor, published[0].Actor)
	assert.EqualValues(t, 1, d.Metrics.Snapshot().Tickets["auto_closed"])
}

func TestAutoCloser_ArchiveFailureKeepsClose(t *testing.T) {
	store := repository.NewMemoryTicketStore()
	seed(t, store, open("chan-1"))
	archiver := &fakeArchiver{archiveErr: errors.New("bridge down")}
	d := deps(store, activity.Static{"chan-1": now.Add(-48 * time.Hour)}, archiver, nil)

	summary, err := NewAutoCloser(d, false).Sweep(context.Background())

	require.NoError(t, err, "archive failure is logged, not returned")
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, domain.TicketStatusClosed, status(t, store, "chan-1"))
}

func TestAutoCloser_StoreErrorSkipsOnlyThatTicket(t *testing.T) {
	store := &flakyStore{TicketStore: repository.NewMemoryTicketStore(), failSet: map[string]bool{"a": true}}
	seed(t, store.TicketStore, open("a"), open("b"))
	probe := activity.Static{"a": now.Add(-48 * time.Hour), "b": now.Add(-48 * time.Hour)}
	archiver := &fakeArchiver{}

	summary, err := NewAutoCloser(deps(store, probe, archiver, nil), false).Sweep(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "auto-close a")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, domain.TicketStatusOpen, status(t, store, "a"))
	assert.Equal(t, domain.TicketStatusClosed, status(t, store, "b"))
	assert.Equal(t, []string{"b"}, archiver.archived, "no archival for a ticket whose close was not stored")
}

func TestAutoCloser_DryRunChangesNothing(t *testing.T) {
	store := repository.NewMemoryTicketStore()
	seed(t, store, open("chan-1"))
	archiver := &fakeArchiver{}

	summary, err := NewAutoCloser(deps(store, activity.Static{"chan-1": now.Add(-48 * time.Hour)}, archiver, nil), true).Sweep(context.Background())

	require.NoError(t, err)
	assert.True(t, summary.DryRun)
	assert.Equal(t, 1, summary.Candidates)
	assert.Zero(t, summary.Applied)
	assert.Equal(t, domain.TicketStatusOpen, status(t, store, "chan-1"))
	assert.Empty(t, archiver.archived)
}

func TestAutoCloser_ListFailureIsReturned(t *testing.T) {
	store := &flakyStore{TicketStore: repository.NewMemoryTicketStore(), failAll: true}
	err := NewAutoCloser(deps(store, activity.Static{}, &fakeArchiver{}, nil), false).Run(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}

func TestAutoDeleter_DeletesAfterRetention(t *testing.T) {
	store := repository.NewMemoryTicketStore()
	seed(t, store,
		closedAt("old", ago(24*time.Hour+time.Second)),
		closedAt("recent", ago(time.Hour)),
		closedAt("no-close-time", nil),
		open("open"))
	archiver := &fakeArchiver{}
	dispatcher := events.NewInMemoryDispatcher()
	var deleted []string
	dispatcher.Subscribe(events.EventTicketDeleted, func(_ context.Context, e events.Event) error {
		deleted = append(deleted, e.TicketID)
		return nil
	})

	summary, err := NewAutoDeleter(deps(store, nil, archiver, dispatcher), false).Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, []string{"old"}, archiver.deleted)
	assert.Equal(t, []string{"old"}, deleted)

	ok, err := store.Has(context.Background(), "old")
	require.NoError(t, err)
	assert.False(t, ok)
	for _, id := range []string{"recent", "no-close-time", "open"} {
		ok, err := store.Has(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, ok, id)
	}
}

func TestAutoDeleter_ChannelFailureKeepsRecord(t *testing.T) {
	store := repository.NewMemoryTicketStore()
	seed(t, store, closedAt("a", ago(48*time.Hour)), closedAt("b", ago(48*time.Hour)))
	archiver := &fakeArchiver{deleteErr: map[string]error{"a": errors.New("rate limited")}}
	d := deps(store, nil, archiver, nil)

	summary, err := NewAutoDeleter(d, false).Sweep(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "rate limited")
	assert.Equal(t, 1, summary.Failed)
	ok, _ := store.Has(context.Background(), "a")
	assert.True(t, ok, "record kept for retry")
	ok, _ = store.Has(context.Background(), "b")
	assert.False(t, ok)

	// next pass retries once the platform recovers
	archiver.deleteErr = nil
	summary, err = NewAutoDeleter(d, false).Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, []string{"b", "a"}, archiver.deleted)
}

func TestAutoDeleter_StoreDeleteFailureIsReported(t *testing.T) {
	store := &flakyStore{TicketStore: repository.NewMemoryTicketStore(), failDelete: map[string]bool{"a": true}}
	seed(t, store.TicketStore, closedAt("a", ago(48*time.Hour)))

	summary, err := NewAutoDeleter(deps(store, nil, &fakeArchiver{}, nil), false).Sweep(context.Background())

	assert.ErrorContains(t, err, "locked")
	assert.Equal(t, 1, summary.Failed)
}

func TestAutoDeleter_DryRun(t *testing.T) {
	store := repository.NewMemoryTicketStore()
	seed(t, store, closedAt("a", ago(48*time.Hour)))
	archiver := &fakeArchiver{}

	summary, err := NewAutoDeleter(deps(store, nil, archiver, nil), true).Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, summary.TicketIDs)
	assert.Empty(t, archiver.deleted)
	ok, _ := store.Has(context.Background(), "a")
	assert.True(t, ok)
}

func TestBlacklistCleaner(t *testing.T) {
	blacklist := repository.NewMemoryBlacklistRepository()
	ctx := context.Background()
	require.NoError(t, blacklist.Add(ctx, "expired", ago(time.Minute)))
	require.NoError(t, blacklist.Add(ctx, "permanent", nil))

	require.NoError(t, NewBlacklistCleaner(blacklist, nil, func() time.Time { return now }).Run(ctx))

	banned, err := blacklist.Contains(ctx, "permanent", now)
	require.NoError(t, err)
	assert.True(t, banned)
	removed, err := blacklist.RemoveExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

type recordingSink struct{ got []Stats }

func (s *recordingSink) PublishStats(_ context.Context, stats Stats) error {
	s.got = append(s.got, stats)
	return nil
}

func TestStatsPublisher(t *testing.T) {
	store := repository.NewMemoryTicketStore()
	seed(t, store, open("a"), open("b"), closedAt("c", ago(time.Hour)))
	sink := &recordingSink{}

	require.NoError(t, NewStatsPublisher(store, nil, func() time.Time { return now }, sink).Run(context.Background()))

	require.Len(t, sink.got, 1)
	assert.Equal(t, Stats{Open: 2, Closed: 1, Total: 3, UpdatedAt: now}, sink.got[0])
}

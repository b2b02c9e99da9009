package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_FailingHandlerDoesNotStopOthers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var seen []string
	d.Subscribe(EventTicketClosed, func(context.Context, Event) error {
		seen = append(seen, "first")
		return errors.New("telegram down")
	})
	d.Subscribe(EventTicketClosed, func(_ context.Context, e Event) error {
		seen = append(seen, "second:"+e.TicketID)
		return nil
	})
	d.Subscribe(EventTicketReopened, func(context.Context, Event) error {
		seen = append(seen, "wrong type")
		return nil
	})

	err := d.Publish(context.Background(), New(EventTicketClosed, "chan-1", SystemActor, time.Now(), TicketClosedPayload{Automatic: true}))

	assert.ErrorContains(t, err, "telegram down")
	assert.Equal(t, []string{"first", "second:chan-1"}, seen)
}

func TestNew(t *testing.T) {
	at := time.Unix(1700000000, 0)
	e := New(EventTicketClaimed, "chan-1", Actor{Type: ActorStaff, ID: "s1"}, at, TicketClaimedPayload{StaffID: "s1"})
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, at, e.Timestamp)
	assert.Equal(t, EventTicketClaimed, e.Type)
}

func TestDispatcher_PanickingHandlerIsIsolated(t *testing.T) {
	d := NewInMemoryDispatcher()
	ran := false
	d.Subscribe(EventTicketDeleted, func(context.Context, Event) error {
		panic("boom")
	})
	d.Subscribe(EventTicketDeleted, func(context.Context, Event) error {
		ran = true
		return nil
	})

	err := d.Publish(context.Background(), New(EventTicketDeleted, "chan-1", SystemActor, time.Now(), nil))

	assert.ErrorContains(t, err, "ticket_deleted handler panicked: boom")
	assert.True(t, ran)
}

package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishReachesTypedSubscriber(t *testing.T) {
	b := New()
	var got []Event
	b.Subscribe(EventSeatLocked, func(ctx context.Context, e Event) {
		got = append(got, e)
	})

	b.Publish(context.Background(), Event{
		Type:    EventSeatLocked,
		Payload: map[string]interface{}{"seat_label": "A1"},
	})

	assert.Len(t, got, 1)
	assert.Equal(t, "A1", got[0].Payload["seat_label"])
}

func TestPublishSkipsOtherTypes(t *testing.T) {
	b := New()
	called := false
	b.Subscribe(EventSeatReleased, func(ctx context.Context, e Event) {
		called = true
	})

	b.Publish(context.Background(), Event{Type: EventSeatLocked})

	assert.False(t, called)
}

func TestWildcardSubscriberSeesEverything(t *testing.T) {
	b := New()
	var types []string
	b.Subscribe("", func(ctx context.Context, e Event) {
		types = append(types, e.Type)
	})

	b.Publish(context.Background(), Event{Type: EventSeatLocked})
	b.Publish(context.Background(), Event{Type: EventBookingConfirmed})

	assert.Equal(t, []string{EventSeatLocked, EventBookingConfirmed}, types)
}

func TestPanickingHandlerDoesNotStopOthers(t *testing.T) {
	b := New()
	b.Subscribe(EventSeatBooked, func(ctx context.Context, e Event) {
		panic("boom")
	})
	called := false
	b.Subscribe(EventSeatBooked, func(ctx context.Context, e Event) {
		called = true
	})

	assert.NotPanics(t, func() {
		b.Publish(context.Background(), Event{Type: EventSeatBooked})
	})
	assert.True(t, called)
}

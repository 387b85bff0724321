package bus

import (
	"context"
	"fmt"
	"sync"

	"ticketly/pkg/logger"
)

// Event types published on the in-process bus. The realtime hub relays
// them to websocket clients; cache layers subscribe for invalidation.
const (
	EventSeatLocked       = "seat_locked"
	EventSeatReleased     = "seat_released"
	EventSeatBooked       = "seat_booked"
	EventBookingExpired   = "booking_expired"
	EventBookingConfirmed = "booking_confirmed"
	EventEventUpdated     = "event_updated"
)

// Event is a broadcast message. Origin optionally carries the websocket
// client id that triggered the change so the hub can skip echoing it back.
type Event struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	Origin  string                 `json:"-"`
}

// Publisher is the side services depend on. Booking and seat services
// publish state changes without knowing who listens.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Subscriber registers handlers for event types. An empty eventType
// subscribes to everything.
type Subscriber interface {
	Subscribe(eventType string, handler Handler)
}

// Handler processes one published event. Handlers must not block; slow
// work belongs on the handler's own goroutine or queue.
type Handler func(ctx context.Context, event Event)

type originKey struct{}

// WithOrigin tags the context with the realtime client id that initiated
// the mutation. Publish stamps it onto events so the hub can skip
// echoing the change back to its originator.
func WithOrigin(ctx context.Context, clientID string) context.Context {
	if clientID == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey{}, clientID)
}

// OriginOf returns the originating client id, if any.
func OriginOf(ctx context.Context) string {
	if id, ok := ctx.Value(originKey{}).(string); ok {
		return id
	}
	return ""
}

// Detach returns a background context keeping only the origin tag.
// Post-commit publishes run on it so they survive request cancellation.
func Detach(ctx context.Context) context.Context {
	return WithOrigin(context.Background(), OriginOf(ctx))
}

// Bus is an in-process publish/subscribe fan-out.
type Bus interface {
	Publisher
	Subscriber
}

type memoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *logger.Logger
}

// New creates an in-memory bus
func New() Bus {
	return &memoryBus{
		handlers: make(map[string][]Handler),
		logger:   logger.GetDefault(),
	}
}

func (b *memoryBus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish dispatches the event to every matching handler synchronously,
// recovering per handler so one bad subscriber cannot break a booking.
func (b *memoryBus) Publish(ctx context.Context, event Event) {
	if event.Origin == "" {
		event.Origin = OriginOf(ctx)
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[event.Type])+len(b.handlers[""]))
	handlers = append(handlers, b.handlers[event.Type]...)
	handlers = append(handlers, b.handlers[""]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(ctx, event, h)
	}
}

func (b *memoryBus) dispatch(ctx context.Context, event Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorWithContext(ctx, "bus handler panicked", fmt.Errorf("%v", r),
				map[string]interface{}{"event_type": event.Type})
		}
	}()
	h(ctx, event)
}

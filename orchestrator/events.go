package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonwraymond/svcops/observe"
)

// EventType identifies a lifecycle event emitted by the orchestrator.
type EventType string

const (
	// EventServiceStarted fires when a starting service passes its first check.
	EventServiceStarted EventType = "service_started"
	// EventServiceRecovered fires when a service returns to healthy.
	EventServiceRecovered EventType = "service_recovered"
	// EventServiceDegraded fires when a service crosses half its failure threshold.
	EventServiceDegraded EventType = "service_degraded"
	// EventServiceUnhealthy fires when a service crosses its failure threshold.
	EventServiceUnhealthy EventType = "service_unhealthy"
	// EventFailoverTriggered fires when an unhealthy service hands off to
	// its configured fallback.
	EventFailoverTriggered EventType = "failover_triggered"
	// EventRecoveryFailed fires when recovery attempts are exhausted.
	EventRecoveryFailed EventType = "recovery_failed"
	// EventStateRestored fires when a recovery snapshot is handed back
	// after a successful recovery.
	EventStateRestored EventType = "state_restored"
)

// Event is one lifecycle notification. Only the fields relevant to the
// event type are populated.
type Event struct {
	Type      EventType
	ServiceID string
	Timestamp time.Time

	// PrevState is the state the service recovered from (service_recovered).
	PrevState ServiceState

	// Error is the probe diagnostic (service_degraded, service_unhealthy).
	Error string

	// FallbackID is the fallback service (failover_triggered).
	FallbackID string

	// Attempts is the number of recovery attempts used (recovery_failed).
	Attempts int

	// SavedAt is when the restored snapshot was taken (state_restored).
	SavedAt time.Time
}

// Handler receives one event. Handlers run synchronously on the emitting
// path and should return quickly, offloading long work themselves.
type Handler func(Event)

// Bus fans lifecycle events out to registered handlers.
//
// Dispatch is synchronous and in registration order. A panicking handler is
// recovered and logged; it never stops subsequent handlers or aborts the
// operation that emitted the event.
type Bus struct {
	log observe.Logger

	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus. A nil logger disables panic logging.
func NewBus(log observe.Logger) *Bus {
	if log == nil {
		log = observe.NoopLogger()
	}
	return &Bus{
		log:      log,
		handlers: make(map[EventType][]Handler),
	}
}

// On registers a handler for the given event type. Multiple handlers per
// type are invoked in registration order.
func (b *Bus) On(eventType EventType, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit dispatches the event to every handler registered for its type.
func (b *Bus) Emit(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := b.handlers[event.Type]
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(ctx, handler, event)
	}
}

func (b *Bus) dispatch(ctx context.Context, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error(ctx, "event handler panicked",
				observe.Field{Key: "event", Value: string(event.Type)},
				observe.Field{Key: "service.id", Value: event.ServiceID},
				observe.Field{Key: "panic", Value: fmt.Sprint(r)},
			)
		}
	}()
	handler(event)
}

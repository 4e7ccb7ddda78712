// Package eventbus is the single-process, typed, in-memory publish/subscribe
// mechanism coordinating per-aggregate domain handlers and cross-aggregate
// coordinators.
package eventbus

import (
	"context"
	"log/slog"
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// CorrelationID is minted by the top-most command entry and inherited by
// every envelope derived downstream; coordinators rely on it as the stable
// join key.
type CorrelationID string

func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.NewString())
}

// Envelope wraps a payload with routing metadata. ParentEventID is the id of
// the envelope whose handler produced this one, or zero for a top-level
// command.
type Envelope[E any] struct {
	Payload       E
	AggregateID   int64
	Version       int64
	CorrelationID CorrelationID
	EventID       uuid.UUID
	ParentEventID uuid.UUID
}

// Inherit builds a child envelope for a derivative event, carrying the same
// correlation id forward and pointing ParentEventID at this envelope.
func Inherit[E any](parent any, payload E, aggregateID, version int64) Envelope[E] {
	corr, parentID := correlationOf(parent)
	return Envelope[E]{
		Payload:       payload,
		AggregateID:   aggregateID,
		Version:       version,
		CorrelationID: corr,
		EventID:       uuid.New(),
		ParentEventID: parentID,
	}
}

func correlationOf(parent any) (CorrelationID, uuid.UUID) {
	v := reflect.ValueOf(parent)
	if v.Kind() != reflect.Struct {
		return NewCorrelationID(), uuid.Nil
	}
	corrField := v.FieldByName("CorrelationID")
	idField := v.FieldByName("EventID")
	corr := NewCorrelationID()
	if corrField.IsValid() {
		if c, ok := corrField.Interface().(CorrelationID); ok {
			corr = c
		}
	}
	var parentID uuid.UUID
	if idField.IsValid() {
		if id, ok := idField.Interface().(uuid.UUID); ok {
			parentID = id
		}
	}
	return corr, parentID
}

// Handler is an ordered async subscriber for one event type.
type Handler[E any] interface {
	Handle(ctx context.Context, env Envelope[E])
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc[E any] func(ctx context.Context, env Envelope[E])

func (f HandlerFunc[E]) Handle(ctx context.Context, env Envelope[E]) { f(ctx, env) }

// typedBus holds the ordered handler list for exactly one event type.
type typedBus[E any] struct {
	mu       sync.RWMutex
	handlers []Handler[E]
}

func (b *typedBus[E]) subscribe(h Handler[E]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *typedBus[E]) publish(ctx context.Context, env Envelope[E], log *slog.Logger) {
	b.mu.RLock()
	handlers := append([]Handler[E](nil), b.handlers...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("event handler panicked", "recover", r)
				}
			}()
			h.Handle(ctx, env)
		}()
	}
}

// registries is a type-erased map from event type to its typedBus(E),
// resolved at Subscribe/Publish call sites so callers never see the map.
var registries sync.Map // map[reflect.Type]any

// Bus is the process-wide typed pub/sub: subscribe(handler) registers an
// ordered async handler for event type E; publish(envelope) returns when
// every subscribed handler has completed. Handler errors are logged, never
// propagated — publish itself always succeeds once handlers finish.
type Bus struct {
	log *slog.Logger
}

func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log}
}

func busFor[E any]() *typedBus[E] {
	var zero E
	t := reflect.TypeOf(zero)
	actual, _ := registries.LoadOrStore(t, &typedBus[E]{})
	return actual.(*typedBus[E])
}

// Subscribe registers an ordered handler for event type E. Registration is
// expected only during startup; it is safe to call concurrently but handler
// order is registration order, which callers should keep deterministic.
func Subscribe[E any](b *Bus, h Handler[E]) {
	busFor[E]().subscribe(h)
}

// SubscribeFunc is the functional-handler convenience form of Subscribe.
func SubscribeFunc[E any](b *Bus, f func(ctx context.Context, env Envelope[E])) {
	Subscribe[E](b, HandlerFunc[E](f))
}

// Publish awaits every subscribed handler for E in registration order. A
// handler panic is recovered and logged; it never aborts the remaining
// handlers or the publish call.
func Publish[E any](ctx context.Context, b *Bus, env Envelope[E]) {
	busFor[E]().publish(ctx, env, b.log)
}

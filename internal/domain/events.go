package domain

// Event is implemented by every domain event so the bus can extract routing
// metadata without knowing the concrete payload type.
type Event interface {
	AggregateID() int64
	Version() int64
}

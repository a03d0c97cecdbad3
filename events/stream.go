package events

// Stream is a read-only view over an EventEmitter which may narrow the events delivered to its subscribers with
// predicates. Streams are live: a subscriber only receives events published after it subscribed.
type Stream[T any] struct {
	// emitter is the underlying broadcast source.
	emitter *EventEmitter[T]

	// filters are predicates which must all hold for an event to be delivered.
	filters []func(T) bool
}

// NewStream creates a Stream over the provided EventEmitter.
func NewStream[T any](emitter *EventEmitter[T]) *Stream[T] {
	return &Stream[T]{emitter: emitter}
}

// Filter returns a new Stream which only delivers the events of this Stream that satisfy the predicate.
// The receiver is left unchanged.
func (s *Stream[T]) Filter(predicate func(T) bool) *Stream[T] {
	filters := make([]func(T) bool, 0, len(s.filters)+1)
	filters = append(filters, s.filters...)
	filters = append(filters, predicate)
	return &Stream[T]{
		emitter: s.emitter,
		filters: filters,
	}
}

// Subscribe registers an EventHandler for every event of this Stream.
func (s *Stream[T]) Subscribe(handler EventHandler[T]) *Subscription[T] {
	filters := s.filters
	return s.emitter.Subscribe(func(event T) error {
		for _, filter := range filters {
			if !filter(event) {
				return nil
			}
		}
		return handler(event)
	})
}

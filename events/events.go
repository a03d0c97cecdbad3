package events

import (
	"errors"
	"sync"

	"golang.org/x/exp/slices"
)

// EventHandler defines a function type where its input type is the generic type.
type EventHandler[T any] func(T) error

// EventEmitter describes a provider which can subscribe EventHandler methods for callback when the event type (generic)
// is published. It additionally provides methods for publishing events. An EventEmitter is a broadcast source: every
// active subscription receives every event published after it subscribed, in subscription order.
type EventEmitter[T any] struct {
	// subscriptions defines the Subscription objects whose handlers should be invoked when a new event is published
	// to this emitter.
	subscriptions []*Subscription[T]

	// subscriptionsLock provides thread synchronization when modifying subscriptions.
	subscriptionsLock sync.Mutex
}

// Subscription describes a single EventHandler registered with an EventEmitter.
type Subscription[T any] struct {
	// emitter is the EventEmitter this subscription was registered with.
	emitter *EventEmitter[T]

	// handler is the callback invoked for each published event.
	handler EventHandler[T]
}

// Publish emits the provided event by calling every EventHandler subscribed. A failing handler does not prevent
// delivery to the remaining handlers. Returns the joined errors of every handler which failed, or nil.
func (e *EventEmitter[T]) Publish(event T) error {
	// Take a snapshot of our subscriptions, so handlers may subscribe or unsubscribe while we deliver.
	e.subscriptionsLock.Lock()
	subscriptions := slices.Clone(e.subscriptions)
	e.subscriptionsLock.Unlock()

	var errs []error
	for _, subscription := range subscriptions {
		if err := subscription.handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Subscribe adds an EventHandler to the list of subscribed EventHandler objects for this emitter. When an event is
// published, the callback will be triggered with the event data.
// Returns the Subscription which can later be used to unsubscribe.
func (e *EventEmitter[T]) Subscribe(callback EventHandler[T]) *Subscription[T] {
	subscription := &Subscription[T]{
		emitter: e,
		handler: callback,
	}

	e.subscriptionsLock.Lock()
	e.subscriptions = append(e.subscriptions, subscription)
	e.subscriptionsLock.Unlock()
	return subscription
}

// SubscriberCount returns the amount of active subscriptions on this emitter.
func (e *EventEmitter[T]) SubscriberCount() int {
	e.subscriptionsLock.Lock()
	defer e.subscriptionsLock.Unlock()
	return len(e.subscriptions)
}

// Unsubscribe removes the subscription from its emitter. Calling it more than once is a no-op.
func (s *Subscription[T]) Unsubscribe() {
	e := s.emitter
	e.subscriptionsLock.Lock()
	defer e.subscriptionsLock.Unlock()

	if i := slices.Index(e.subscriptions, s); i >= 0 {
		e.subscriptions = slices.Delete(e.subscriptions, i, i+1)
	}
}

package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestEventPublishingAndSubscribing creates EventEmitter objects, subscribes EventHandler callbacks to them, and
// ensures that the events are received as intended.
func TestEventPublishingAndSubscribing(t *testing.T) {
	// Define some event types
	type TestEventA struct{}
	type TestEventB struct{}

	// Create event emitters for both events.
	eventAEmitter1 := EventEmitter[TestEventA]{}
	eventAEmitter2 := EventEmitter[TestEventA]{}
	eventBEmitter := EventEmitter[TestEventB]{}

	var eventAEmitter1PublishCount, eventAEmitter2PublishCount, eventBEmitterPublishCount int

	// Create our callback methods for each event, where we update our count of published events.
	eventAEmitter1.Subscribe(func(event TestEventA) error {
		eventAEmitter1PublishCount++
		return nil
	})
	eventAEmitter2.Subscribe(func(event TestEventA) error {
		eventAEmitter2PublishCount++
		return nil
	})
	eventBEmitter.Subscribe(func(event TestEventB) error {
		eventBEmitterPublishCount++
		return nil
	})

	// Publish events a given amount of times.
	const (
		expectedEventAEmitter1PublishCount = 2
		expectedEventAEmitter2PublishCount = 5
		expectedEventBEmitterPublishCount  = 9
	)
	for i := 0; i < expectedEventAEmitter1PublishCount; i++ {
		assert.NoError(t, eventAEmitter1.Publish(TestEventA{}))
	}
	for i := 0; i < expectedEventAEmitter2PublishCount; i++ {
		assert.NoError(t, eventAEmitter2.Publish(TestEventA{}))
	}
	for i := 0; i < expectedEventBEmitterPublishCount; i++ {
		assert.NoError(t, eventBEmitter.Publish(TestEventB{}))
	}

	// Assert we received the expected amount of callbacks.
	assert.EqualValues(t, expectedEventAEmitter1PublishCount, eventAEmitter1PublishCount)
	assert.EqualValues(t, expectedEventAEmitter2PublishCount, eventAEmitter2PublishCount)
	assert.EqualValues(t, expectedEventBEmitterPublishCount, eventBEmitterPublishCount)
}

// TestEventHandlerFailureIsolation ensures a failing handler does not stop delivery to other handlers, and that the
// failure is surfaced to the publisher.
func TestEventHandlerFailureIsolation(t *testing.T) {
	emitter := EventEmitter[int]{}
	handlerErr := errors.New("handler failed")

	var received []int
	emitter.Subscribe(func(event int) error {
		return handlerErr
	})
	emitter.Subscribe(func(event int) error {
		received = append(received, event)
		return nil
	})

	err := emitter.Publish(7)
	assert.ErrorIs(t, err, handlerErr)
	assert.EqualValues(t, []int{7}, received)
}

// TestEventUnsubscribe ensures that an unsubscribed handler receives no further events while others continue to.
func TestEventUnsubscribe(t *testing.T) {
	emitter := EventEmitter[string]{}

	var first, second int
	subscription := emitter.Subscribe(func(event string) error {
		first++
		return nil
	})
	emitter.Subscribe(func(event string) error {
		second++
		return nil
	})
	assert.EqualValues(t, 2, emitter.SubscriberCount())

	assert.NoError(t, emitter.Publish("a"))
	subscription.Unsubscribe()
	subscription.Unsubscribe()
	assert.NoError(t, emitter.Publish("b"))

	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 2, second)
	assert.EqualValues(t, 1, emitter.SubscriberCount())
}

// TestUnsubscribeDuringPublish ensures a handler may remove itself while an event is being delivered without
// affecting delivery of that event to the remaining handlers.
func TestUnsubscribeDuringPublish(t *testing.T) {
	emitter := EventEmitter[int]{}

	var subscription *Subscription[int]
	var selfCount, otherCount int
	subscription = emitter.Subscribe(func(event int) error {
		selfCount++
		subscription.Unsubscribe()
		return nil
	})
	emitter.Subscribe(func(event int) error {
		otherCount++
		return nil
	})

	assert.NoError(t, emitter.Publish(1))
	assert.NoError(t, emitter.Publish(2))
	assert.EqualValues(t, 1, selfCount)
	assert.EqualValues(t, 2, otherCount)
}

// TestStreamFilter ensures filtered streams only deliver matching events and that filtering does not alter the
// parent stream.
func TestStreamFilter(t *testing.T) {
	emitter := EventEmitter[int]{}
	stream := NewStream(&emitter)
	evens := stream.Filter(func(i int) bool { return i%2 == 0 })
	bigEvens := evens.Filter(func(i int) bool { return i > 10 })

	var all, even, bigEven []int
	stream.Subscribe(func(i int) error {
		all = append(all, i)
		return nil
	})
	evens.Subscribe(func(i int) error {
		even = append(even, i)
		return nil
	})
	bigEvens.Subscribe(func(i int) error {
		bigEven = append(bigEven, i)
		return nil
	})

	for _, i := range []int{1, 2, 3, 12, 13, 14} {
		assert.NoError(t, emitter.Publish(i))
	}

	assert.EqualValues(t, []int{1, 2, 3, 12, 13, 14}, all)
	assert.EqualValues(t, []int{2, 12, 14}, even)
	assert.EqualValues(t, []int{12, 14}, bigEven)
}

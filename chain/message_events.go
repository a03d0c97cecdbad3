package chain

import (
	"math/big"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/tracing"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-geth/eth/tracers"
	"github.com/crytic/medusa-smock/chain/types"
	"golang.org/x/exp/slices"
)

// MessageEventListener describes a callback registered on a MessageEmitter. The event is a *types.MessageEvent for
// types.BeforeMessageEventName and a *types.MessageResult for types.AfterMessageEventName.
type MessageEventListener func(event any)

// MessageEmitter is the named-event emitter a TestChain exposes for observing every invocation executed by its EVM.
type MessageEmitter interface {
	// On registers a listener for the given event name.
	On(eventName string, listener MessageEventListener)

	// ListenerCount returns the amount of listeners registered for the given event name.
	ListenerCount(eventName string) int
}

// messageEventEmitter is the MessageEmitter implementation backing a TestChain.
type messageEventEmitter struct {
	listeners     map[string][]MessageEventListener
	listenersLock sync.Mutex
}

// newMessageEventEmitter returns a messageEventEmitter with no listeners.
func newMessageEventEmitter() *messageEventEmitter {
	return &messageEventEmitter{
		listeners: make(map[string][]MessageEventListener),
	}
}

// On registers a listener for the given event name.
func (e *messageEventEmitter) On(eventName string, listener MessageEventListener) {
	e.listenersLock.Lock()
	defer e.listenersLock.Unlock()
	e.listeners[eventName] = append(e.listeners[eventName], listener)
}

// ListenerCount returns the amount of listeners registered for the given event name.
func (e *messageEventEmitter) ListenerCount(eventName string) int {
	e.listenersLock.Lock()
	defer e.listenersLock.Unlock()
	return len(e.listeners[eventName])
}

// emit delivers an event to every listener of the given event name, in registration order.
func (e *messageEventEmitter) emit(eventName string, event any) {
	e.listenersLock.Lock()
	listeners := slices.Clone(e.listeners[eventName])
	e.listenersLock.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// messageEventTracer is a TestChainTracer which translates call frame tracing hooks into native message events.
type messageEventTracer struct {
	// emitter is the emitter events are published to.
	emitter *messageEventEmitter

	// nativeTracer is the underlying tracer this tracer exposes to the TestChain.
	nativeTracer *TestChainTracer

	// suppressedFrames holds, for every frame currently entered, whether its events are withheld. Frames which are
	// not invocations, such as the balance transfer of a SELFDESTRUCT, are withheld on entry and exit.
	suppressedFrames []bool
}

// newMessageEventTracer returns a messageEventTracer which publishes to the provided emitter.
func newMessageEventTracer(emitter *messageEventEmitter) *messageEventTracer {
	tracer := &messageEventTracer{
		emitter: emitter,
	}
	innerTracer := &tracers.Tracer{
		Hooks: &tracing.Hooks{
			OnEnter: tracer.OnEnter,
			OnExit:  tracer.OnExit,
		},
	}
	tracer.nativeTracer = &TestChainTracer{Tracer: innerTracer}
	return tracer
}

// NativeTracer returns the underlying TestChainTracer.
func (t *messageEventTracer) NativeTracer() *TestChainTracer {
	return t.nativeTracer
}

// OnEnter publishes a types.MessageEvent for the call frame being entered. SELFDESTRUCT frames only move the
// balance to the beneficiary and are not published.
func (t *messageEventTracer) OnEnter(depth int, typ byte, from common.Address, to common.Address, input []byte, gas uint64, value *big.Int) {
	suppressed := vm.OpCode(typ) == vm.SELFDESTRUCT
	t.suppressedFrames = append(t.suppressedFrames, suppressed)
	if suppressed {
		return
	}

	event := &types.MessageEvent{
		Depth:    depth,
		CallType: vm.OpCode(typ),
		From:     from,
		Data:     slices.Clone(input),
		GasLimit: gas,
		Value:    new(big.Int),
	}
	if value != nil {
		event.Value.Set(value)
	}

	// Creations have no target yet from the perspective of an observer.
	callType := vm.OpCode(typ)
	if callType != vm.CREATE && callType != vm.CREATE2 {
		target := to
		event.To = &target
	}

	t.emitter.emit(types.BeforeMessageEventName, event)
}

// OnExit publishes a types.MessageResult for the call frame being exited, unless its entry was withheld.
func (t *messageEventTracer) OnExit(depth int, output []byte, gasUsed uint64, err error, reverted bool) {
	if n := len(t.suppressedFrames); n > 0 {
		suppressed := t.suppressedFrames[n-1]
		t.suppressedFrames = t.suppressedFrames[:n-1]
		if suppressed {
			return
		}
	}

	t.emitter.emit(types.AfterMessageEventName, &types.MessageResult{
		Depth:      depth,
		Success:    err == nil,
		Reverted:   reverted,
		ReturnData: slices.Clone(output),
		GasUsed:    gasUsed,
		Err:        err,
	})
}

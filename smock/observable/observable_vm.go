package observable

import (
	"sync"

	"github.com/crytic/medusa-smock/chain"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/crytic/medusa-smock/events"
	"github.com/crytic/medusa-smock/logging"
	"github.com/pkg/errors"
)

// VM describes the virtual machine handle an ObservableVM is built over. chain.TestChain implements it.
type VM interface {
	// MessageEvents returns the VM's native emitter of invocation lifecycle events.
	MessageEvents() chain.MessageEmitter

	// StateManager returns the handle used to read and write the VM's state directly.
	StateManager() *chain.StateManager

	// OnClose registers a hook run when the VM is released.
	OnClose(hook func())
}

// ObservableVM fans the native invocation lifecycle events of a VM out to any number of independent subscribers.
// Exactly one native listener is registered per event name for the lifetime of the VM, no matter how many
// subscribers or ObservableVM lookups exist.
type ObservableVM struct {
	// vm is the observed VM.
	vm VM

	// beforeMessages broadcasts every invocation before it executes.
	beforeMessages events.EventEmitter[*types.MessageEvent]

	// afterMessages broadcasts the result of every invocation after it executes.
	afterMessages events.EventEmitter[*types.MessageResult]

	// logger describes the ObservableVM's log object that can be used to log important events
	logger *logging.Logger
}

var (
	// observedVMs maps each VM to the ObservableVM registered its native listeners.
	observedVMs = make(map[VM]*ObservableVM)

	// observedVMsLock guards observedVMs.
	observedVMsLock sync.Mutex
)

// New returns the ObservableVM for the provided VM, registering the native listeners on first use. The VM is
// forgotten once it is closed.
// Returns an error if no VM is provided.
func New(vm VM) (*ObservableVM, error) {
	if vm == nil {
		return nil, errors.New("could not observe VM, no VM was provided")
	}

	observedVMsLock.Lock()
	defer observedVMsLock.Unlock()

	if observableVM, ok := observedVMs[vm]; ok {
		return observableVM, nil
	}

	observableVM := &ObservableVM{
		vm:     vm,
		logger: logging.GlobalLogger.NewSubLogger("module", logging.SMOCK_SERVICE),
	}
	emitter := vm.MessageEvents()
	emitter.On(types.BeforeMessageEventName, func(event any) {
		if message, ok := event.(*types.MessageEvent); ok {
			observableVM.deliver(observableVM.beforeMessages.Publish(message))
		}
	})
	emitter.On(types.AfterMessageEventName, func(event any) {
		if result, ok := event.(*types.MessageResult); ok {
			observableVM.deliver(observableVM.afterMessages.Publish(result))
		}
	})
	observedVMs[vm] = observableVM
	vm.OnClose(func() {
		observedVMsLock.Lock()
		defer observedVMsLock.Unlock()
		delete(observedVMs, vm)
	})
	return observableVM, nil
}

// deliver reports the subscriber errors of a publish. Subscriber errors never reach the VM.
func (o *ObservableVM) deliver(err error) {
	if err != nil {
		o.logger.Warn("An invocation subscriber failed", err)
	}
}

// PreInvocations returns the live stream of invocations before they execute. Creations, which have no target, are
// not delivered.
func (o *ObservableVM) PreInvocations() *events.Stream[*types.MessageEvent] {
	return events.NewStream(&o.beforeMessages).Filter(func(message *types.MessageEvent) bool {
		return message.To != nil
	})
}

// PostInvocations returns the live stream of invocation results, including those of creations.
func (o *ObservableVM) PostInvocations() *events.Stream[*types.MessageResult] {
	return events.NewStream(&o.afterMessages)
}

// Manager returns the state manager of the observed VM.
func (o *ObservableVM) Manager() *chain.StateManager {
	return o.vm.StateManager()
}

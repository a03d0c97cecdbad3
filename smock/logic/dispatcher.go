package logic

import (
	"sync"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/crytic/medusa-smock/config"
	"github.com/crytic/medusa-smock/events"
	"github.com/crytic/medusa-smock/logging"
	"github.com/crytic/medusa-smock/smock/observable"
	"github.com/crytic/medusa-smock/utils"
	"github.com/pkg/errors"
)

// DispatcherAddress is the reserved address of the pre-compile which mock forwarding stubs consult before executing
// the real contract code.
var DispatcherAddress = common.HexToAddress("0x00000000000000000000000000000000536d6f63")

// invocationFrame describes an executing invocation of a fake or mock.
type invocationFrame struct {
	// program is the program of the invoked contract.
	program *ContractProgram

	// depth is the call depth of the invocation.
	depth int
}

// Dispatcher intercepts invocations of fakes and mocks through an observable.ObservableVM, records them, and answers
// them with their programmed behavior through the VM's normal pre-compile result path.
type Dispatcher struct {
	// bridge provides the invocation streams and state manager of the VM.
	bridge *observable.ObservableVM

	// nextSequence returns the sequence number of the next recorded call.
	nextSequence func() uint64

	// config describes the gas cost and call recording of fakes and mocks.
	config config.SmockConfig

	// programs maps the address of every installed fake or mock to its program.
	programs map[common.Address]*ContractProgram

	// frames is the stack of executing invocations of fakes and mocks, innermost last.
	frames []invocationFrame

	// lastInvocation is the most recent invocation observed before execution.
	lastInvocation *types.MessageEvent

	// preSubscription and postSubscription are the dispatcher's subscriptions to the bridge's streams.
	preSubscription  *events.Subscription[*types.MessageEvent]
	postSubscription *events.Subscription[*types.MessageResult]

	// lock guards programs, frames and lastInvocation.
	lock sync.Mutex

	// logger describes the Dispatcher's log object that can be used to log important events
	logger *logging.Logger
}

// NewDispatcher creates a Dispatcher over the provided bridge, installing its pre-compile at DispatcherAddress and
// subscribing to the bridge's invocation streams. Recorded calls are sequenced with nextSequence. A nil config uses
// the default smock configuration.
// Returns the Dispatcher, or an error if the dispatcher pre-compile could not be installed.
func NewDispatcher(bridge *observable.ObservableVM, nextSequence func() uint64, cfg *config.SmockConfig) (*Dispatcher, error) {
	if bridge == nil || nextSequence == nil {
		return nil, errors.New("could not create dispatcher, a bridge and sequence source must be provided")
	}
	if cfg == nil {
		cfg = &config.GetDefaultProjectConfig().Smock
	}

	d := &Dispatcher{
		bridge:       bridge,
		nextSequence: nextSequence,
		config:       *cfg,
		programs:     make(map[common.Address]*ContractProgram),
		logger:       logging.GlobalLogger.NewSubLogger("module", logging.SMOCK_SERVICE),
	}
	err := bridge.Manager().InstallPrecompile(DispatcherAddress, &dispatchPrecompile{dispatcher: d})
	if err != nil {
		return nil, errors.Wrap(err, "could not install the dispatcher pre-compile")
	}

	d.preSubscription = bridge.PreInvocations().Subscribe(d.onPreInvocation)
	d.postSubscription = bridge.PostInvocations().Subscribe(d.onPostInvocation)
	return d, nil
}

// Address returns the address of the dispatcher pre-compile.
func (d *Dispatcher) Address() common.Address {
	return DispatcherAddress
}

// Close stops the dispatcher from observing invocations. Installed fakes and mocks stop answering.
func (d *Dispatcher) Close() {
	d.preSubscription.Unsubscribe()
	d.postSubscription.Unsubscribe()
}

// NewProgram creates a ContractProgram recording calls as configured for the dispatcher. It must still be installed
// with InstallFake or InstallMock.
func (d *Dispatcher) NewProgram(kind ContractKind, name string, address common.Address, contractAbi abi.ABI) *ContractProgram {
	return NewContractProgram(kind, name, address, contractAbi, d.config.RecordCalls)
}

// Program returns the program of the fake or mock installed at the provided address, if any.
func (d *Dispatcher) Program(address common.Address) (*ContractProgram, bool) {
	d.lock.Lock()
	defer d.lock.Unlock()
	program, ok := d.programs[address]
	return program, ok
}

// InstallFake installs the pre-compile answering for the provided fake program at its address.
// Returns an error if the program is not a fake or its address already holds code.
func (d *Dispatcher) InstallFake(program *ContractProgram) error {
	if program.Kind() != ContractKindFake {
		return errors.Errorf("could not install %s %s as a fake", program.Kind().String(), program.Name())
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	err := d.bridge.Manager().InstallPrecompile(program.Address(), &fakePrecompile{dispatcher: d, program: program})
	if err != nil {
		return errors.Wrapf(err, "could not install fake %s", program.Name())
	}
	d.programs[program.Address()] = program
	d.logger.Debug("Installed fake ", program.Name(), " at ", program.Address().String())
	return nil
}

// InstallMock relocates the code deployed at the provided mock program's address to a random shadow address and
// replaces it with a forwarding stub, which answers through the dispatcher and executes the shadow code when nothing
// was programmed. Storage and balance remain at the mock's address.
// Returns the shadow address, or an error if the program is not a mock or no code is deployed at its address.
func (d *Dispatcher) InstallMock(program *ContractProgram) (common.Address, error) {
	if program.Kind() != ContractKindMock {
		return common.Address{}, errors.Errorf("could not install %s %s as a mock", program.Kind().String(), program.Name())
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	manager := d.bridge.Manager()
	runtimeCode := manager.GetContractCode(program.Address())
	if len(runtimeCode) == 0 {
		return common.Address{}, errors.Errorf("could not install mock %s, no code is deployed at %s", program.Name(), program.Address().String())
	}
	if _, ok := d.programs[program.Address()]; ok {
		return common.Address{}, errors.Errorf("could not install mock %s, %s is already programmed", program.Name(), program.Address().String())
	}

	shadow := utils.MakeRandomAddress()
	stub, err := NewForwardingStub(DispatcherAddress, shadow)
	if err != nil {
		return common.Address{}, errors.Wrapf(err, "could not build the forwarding stub of mock %s", program.Name())
	}
	manager.PutContractCode(shadow, runtimeCode)
	manager.PutContractCode(program.Address(), stub)

	d.programs[program.Address()] = program
	d.logger.Debug("Installed mock ", program.Name(), " at ", program.Address().String(), " executing code relocated to ", shadow.String())
	return shadow, nil
}

// onPreInvocation records invocations of fakes and mocks and tracks their execution frames.
func (d *Dispatcher) onPreInvocation(message *types.MessageEvent) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	// A new transaction or call starts, frames left by an aborted execution are stale.
	if message.Depth == 0 {
		d.frames = d.frames[:0]
	}
	d.lastInvocation = message

	program, ok := d.programs[*message.To]
	if !ok {
		return nil
	}
	d.frames = append(d.frames, invocationFrame{program: program, depth: message.Depth})

	function := program.record(message, d.nextSequence())
	d.logger.Debug("Invocation of ", program.Kind().String(), " ", program.Name(), ".", function.Name(),
		" from ", message.From.String(), " with value ", utils.FormatWei(message.Value))
	return nil
}

// onPostInvocation pops the frame of a finished invocation of a fake or mock.
func (d *Dispatcher) onPostInvocation(result *types.MessageResult) error {
	d.lock.Lock()
	defer d.lock.Unlock()

	if n := len(d.frames); n > 0 && d.frames[n-1].depth == result.Depth {
		d.frames = d.frames[:n-1]
	}
	return nil
}

// forwardedProgram returns the program of the mock whose forwarding stub is consulting the dispatcher, or nil if the
// dispatcher was called by anything else.
func (d *Dispatcher) forwardedProgram() *ContractProgram {
	d.lock.Lock()
	defer d.lock.Unlock()

	if len(d.frames) == 0 || d.lastInvocation == nil || *d.lastInvocation.To != DispatcherAddress {
		return nil
	}
	frame := d.frames[len(d.frames)-1]
	if frame.program.Kind() != ContractKindMock || frame.depth+1 != d.lastInvocation.Depth {
		return nil
	}
	return frame.program
}

// answer resolves the programmed answer for an invocation of the provided program.
// Returns the output a pre-compile returns for it, whether the invocation was answered, and the error the pre-compile
// fails with, if any.
func (d *Dispatcher) answer(program *ContractProgram, input []byte) ([]byte, bool, error) {
	answer, answered, err := program.Resolve(input)
	if err != nil {
		d.logger.Error("Failed to answer an invocation of "+program.Name(), err)
		return EncodeRejection(err.Error()), true, vm.ErrExecutionReverted
	}
	if !answered {
		return []byte{}, false, nil
	}
	if answer.Reverts {
		d.logger.Trace(program.Name(), " answered with a failure")
		return answer.Data, true, vm.ErrExecutionReverted
	}
	d.logger.Trace(program.Name(), " answered with ", len(answer.Data), " bytes")
	return answer.Data, true, nil
}

// fakePrecompile is the pre-compile installed at the address of a fake.
type fakePrecompile struct {
	dispatcher *Dispatcher
	program    *ContractProgram
}

// RequiredGas returns the configured gas cost of a fake invocation.
func (p *fakePrecompile) RequiredGas(input []byte) uint64 {
	return p.dispatcher.config.DefaultFakeGasCost
}

// Run answers the invocation with the fake's programmed behavior.
func (p *fakePrecompile) Run(input []byte) ([]byte, error) {
	output, _, err := p.dispatcher.answer(p.program, input)
	return output, err
}

// Name returns the name of the pre-compile.
func (p *fakePrecompile) Name() string {
	return "smockFake"
}

// dispatchPrecompile is the pre-compile mock forwarding stubs consult before executing the real contract code. It
// answers with no data when the real code should execute, with a 0x01 byte followed by the return data when a
// programmed answer applies, and fails with the programmed payload otherwise.
type dispatchPrecompile struct {
	dispatcher *Dispatcher
}

// RequiredGas returns the configured gas cost of a fake invocation.
func (p *dispatchPrecompile) RequiredGas(input []byte) uint64 {
	return p.dispatcher.config.DefaultFakeGasCost
}

// Run answers the consulting mock's invocation.
func (p *dispatchPrecompile) Run(input []byte) ([]byte, error) {
	program := p.dispatcher.forwardedProgram()
	if program == nil {
		return []byte{}, nil
	}

	output, answered, err := p.dispatcher.answer(program, input)
	if !answered || err != nil {
		return output, err
	}
	return append([]byte{0x01}, output...), nil
}

// Name returns the name of the pre-compile.
func (p *dispatchPrecompile) Name() string {
	return "smockDispatcher"
}

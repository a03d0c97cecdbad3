package logic

import (
	"bytes"
	"math/big"
	"sync"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-smock/chain/types"
	"github.com/crytic/medusa-smock/utils/reflectionutils"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Answer describes how a programmed function answers an invocation.
type Answer struct {
	// Data is the return data, or the failure payload if Reverts is set.
	Data []byte

	// Reverts indicates the invocation fails with Data as its payload.
	Reverts bool
}

// Call describes a recorded invocation of a programmed function.
type Call struct {
	// Sequence orders the call against every other call recorded in the same session.
	Sequence uint64

	// Function is the name of the function which was called.
	Function string

	// CallType is the opcode the call was made with.
	CallType vm.OpCode

	// From is the caller.
	From common.Address

	// To is the address of the fake or mock which was called.
	To common.Address

	// Value is the amount of wei sent with the call.
	Value *big.Int

	// Data is the full calldata.
	Data []byte

	// Args are the decoded arguments, or nil if the calldata could not be decoded against the function's inputs.
	Args []any

	// Depth is the call depth the call was made at.
	Depth int
}

// conditionalAnswer is an Answer which only applies to invocations with the given packed arguments.
type conditionalAnswer struct {
	args   []byte
	answer *Answer
}

// ProgrammableFunctionLogic holds the programmed answers and recorded calls of a single function of a fake or mock.
// Answers are resolved in order of precedence: by call index, by exact arguments, then the default answer.
type ProgrammableFunctionLogic struct {
	// name is the name of the function, as keyed in the ABI's methods.
	name string

	// method is the ABI definition of the function, or nil for the fallback function.
	method *abi.Method

	// defaultAnswer is the answer used when no more specific answer applies.
	defaultAnswer *Answer

	// answersByIndex maps a zero-based invocation index to the answer for that invocation.
	answersByIndex map[uint64]*Answer

	// answersByArgs are answers scoped to invocations with exact arguments, in the order they were programmed.
	answersByArgs []conditionalAnswer

	// invocations counts the invocations of the function since the last reset.
	invocations uint64

	// calls are the recorded invocations of the function.
	calls []*Call

	// recordCalls indicates whether invocations are recorded in calls.
	recordCalls bool

	// lock guards the programmed answers and recorded calls.
	lock sync.Mutex
}

// newProgrammableFunctionLogic returns a ProgrammableFunctionLogic for the provided method. A nil method describes the
// fallback function.
func newProgrammableFunctionLogic(name string, method *abi.Method, recordCalls bool) *ProgrammableFunctionLogic {
	return &ProgrammableFunctionLogic{
		name:           name,
		method:         method,
		answersByIndex: make(map[uint64]*Answer),
		recordCalls:    recordCalls,
	}
}

// Name returns the name of the function.
func (f *ProgrammableFunctionLogic) Name() string {
	return f.name
}

// Method returns the ABI definition of the function, or nil for the fallback function.
func (f *ProgrammableFunctionLogic) Method() *abi.Method {
	return f.method
}

// PackReturnValues ABI encodes the provided values against the function's outputs.
// Returns the encoded return data, or an error if the values do not match the outputs.
func (f *ProgrammableFunctionLogic) PackReturnValues(values ...any) ([]byte, error) {
	if f.method == nil {
		return nil, errors.Errorf("could not encode return values for %s, it has no outputs, provide raw data instead", f.name)
	}
	data, err := f.method.Outputs.Pack(values...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode return values for %s", f.name)
	}
	return data, nil
}

// PackArgs ABI encodes the provided arguments against the function's inputs.
// Returns the encoded arguments, or an error if the arguments do not match the inputs.
func (f *ProgrammableFunctionLogic) PackArgs(args ...any) ([]byte, error) {
	if f.method == nil {
		return nil, errors.Errorf("could not encode arguments for %s, it has no inputs", f.name)
	}
	data, err := f.method.Inputs.Pack(args...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode arguments for %s", f.name)
	}
	return data, nil
}

// SetAnswer sets the default answer of the function.
func (f *ProgrammableFunctionLogic) SetAnswer(answer *Answer) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.defaultAnswer = answer
}

// SetAnswerAtCall sets the answer for the invocation with the provided zero-based index.
func (f *ProgrammableFunctionLogic) SetAnswerAtCall(index uint64, answer *Answer) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.answersByIndex[index] = answer
}

// SetAnswerForArgs sets the answer for invocations whose encoded arguments equal the provided ones, replacing any
// answer previously set for the same arguments.
func (f *ProgrammableFunctionLogic) SetAnswerForArgs(args []byte, answer *Answer) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for i := range f.answersByArgs {
		if bytes.Equal(f.answersByArgs[i].args, args) {
			f.answersByArgs[i].answer = answer
			return
		}
	}
	f.answersByArgs = append(f.answersByArgs, conditionalAnswer{args: slices.Clone(args), answer: answer})
}

// Reset clears every programmed answer and recorded call, and restarts invocation indexes at zero.
func (f *ProgrammableFunctionLogic) Reset() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.defaultAnswer = nil
	f.answersByIndex = make(map[uint64]*Answer)
	f.answersByArgs = nil
	f.invocations = 0
	f.calls = nil
}

// CallCount returns the amount of invocations since the last reset.
func (f *ProgrammableFunctionLogic) CallCount() uint64 {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.invocations
}

// Calls returns the recorded invocations since the last reset, in the order they were made.
func (f *ProgrammableFunctionLogic) Calls() []*Call {
	f.lock.Lock()
	defer f.lock.Unlock()
	return slices.Clone(f.calls)
}

// record counts an invocation of the function, recording it if call recording is enabled.
func (f *ProgrammableFunctionLogic) record(message *types.MessageEvent, sequence uint64) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.invocations++
	if !f.recordCalls {
		return
	}

	call := &Call{
		Sequence: sequence,
		Function: f.name,
		CallType: message.CallType,
		From:     message.From,
		To:       *message.To,
		Value:    new(big.Int).Set(message.Value),
		Data:     slices.Clone(message.Data),
		Depth:    message.Depth,
	}
	if f.method != nil && len(message.Data) >= 4 {
		if args, err := f.method.Inputs.Unpack(message.Data[4:]); err == nil {
			call.Args = args
		}
	}
	f.calls = append(f.calls, call)
}

// resolve returns the answer programmed for the invocation being executed, or nil if none applies. The invocation
// must already be counted by record.
func (f *ProgrammableFunctionLogic) resolve(data []byte) *Answer {
	f.lock.Lock()
	defer f.lock.Unlock()

	if f.invocations > 0 {
		if answer, ok := f.answersByIndex[f.invocations-1]; ok {
			return answer
		}
	}
	if f.method != nil && len(data) >= 4 {
		for _, conditional := range f.answersByArgs {
			if bytes.Equal(conditional.args, data[4:]) {
				return conditional.answer
			}
		}
	}
	return f.defaultAnswer
}

// zeroReturnData returns the encoding of the zero values of the function's outputs.
func (f *ProgrammableFunctionLogic) zeroReturnData() ([]byte, error) {
	if f.method == nil || len(f.method.Outputs) == 0 {
		return []byte{}, nil
	}
	values := make([]any, len(f.method.Outputs))
	for i, output := range f.method.Outputs {
		values[i] = reflectionutils.ZeroValue(output.Type.GetType()).Interface()
	}
	return f.PackReturnValues(values...)
}

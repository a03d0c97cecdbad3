package contracts

import (
	"bytes"

	"github.com/crytic/medusa-smock/smock/logic"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// ProgrammableFunction programs the answers of a single function of a fake or mock and inspects its calls.
type ProgrammableFunction struct {
	// logic holds the function's answers and recorded calls.
	logic *logic.ProgrammableFunctionLogic
}

// newProgrammableFunction wraps the provided function logic.
func newProgrammableFunction(functionLogic *logic.ProgrammableFunctionLogic) *ProgrammableFunction {
	return &ProgrammableFunction{logic: functionLogic}
}

// Name returns the name of the function.
func (f *ProgrammableFunction) Name() string {
	return f.logic.Name()
}

// Returns makes every invocation return the provided values, encoded against the function's outputs.
func (f *ProgrammableFunction) Returns(values ...any) error {
	answer, err := returnsAnswer(f.logic, values)
	if err != nil {
		return err
	}
	f.logic.SetAnswer(answer)
	return nil
}

// ReturnsRaw makes every invocation return the provided data as is.
func (f *ProgrammableFunction) ReturnsRaw(data []byte) {
	f.logic.SetAnswer(&logic.Answer{Data: slices.Clone(data)})
}

// ReturnsAtCall makes the invocation with the provided zero-based index return the provided values.
func (f *ProgrammableFunction) ReturnsAtCall(index uint64, values ...any) error {
	answer, err := returnsAnswer(f.logic, values)
	if err != nil {
		return err
	}
	f.logic.SetAnswerAtCall(index, answer)
	return nil
}

// Reverts makes every invocation fail without a reason.
func (f *ProgrammableFunction) Reverts() {
	f.logic.SetAnswer(revertsAnswer(""))
}

// RevertsWith makes every invocation fail with the provided reason.
func (f *ProgrammableFunction) RevertsWith(reason string) {
	f.logic.SetAnswer(revertsAnswer(reason))
}

// RevertsWithData makes every invocation fail with the provided payload, such as an encoded custom error. The
// payload is not marked as synthetic, so it is decoded like a failure of real code.
func (f *ProgrammableFunction) RevertsWithData(data []byte) {
	f.logic.SetAnswer(&logic.Answer{Data: slices.Clone(data), Reverts: true})
}

// RevertsAtCall makes the invocation with the provided zero-based index fail with the provided reason.
func (f *ProgrammableFunction) RevertsAtCall(index uint64, reason string) {
	f.logic.SetAnswerAtCall(index, revertsAnswer(reason))
}

// WhenCalledWith scopes the answers programmed through the returned ConditionalFunction to invocations with exactly
// the provided arguments.
// Returns an error if the arguments do not match the function's inputs.
func (f *ProgrammableFunction) WhenCalledWith(args ...any) (*ConditionalFunction, error) {
	packedArgs, err := f.logic.PackArgs(args...)
	if err != nil {
		return nil, err
	}
	return &ConditionalFunction{function: f, args: packedArgs}, nil
}

// Reset clears the function's answers and recorded calls.
func (f *ProgrammableFunction) Reset() {
	f.logic.Reset()
}

// CallCount returns the amount of invocations since the last reset.
func (f *ProgrammableFunction) CallCount() uint64 {
	return f.logic.CallCount()
}

// Called indicates whether the function was invoked since the last reset.
func (f *ProgrammableFunction) Called() bool {
	return f.CallCount() > 0
}

// CalledOnce indicates whether the function was invoked exactly once since the last reset.
func (f *ProgrammableFunction) CalledOnce() bool {
	return f.CallCount() == 1
}

// Calls returns the recorded invocations since the last reset, in the order they were made.
func (f *ProgrammableFunction) Calls() []*logic.Call {
	return f.logic.Calls()
}

// GetCall returns the recorded invocation with the provided zero-based index.
// Returns an error if no such invocation was recorded.
func (f *ProgrammableFunction) GetCall(index int) (*logic.Call, error) {
	calls := f.logic.Calls()
	if index < 0 || index >= len(calls) {
		return nil, errors.Errorf("could not get call %d of %s, %d calls were recorded", index, f.Name(), len(calls))
	}
	return calls[index], nil
}

// CalledWith indicates whether any recorded invocation was made with exactly the provided arguments.
// Returns an error if the arguments do not match the function's inputs.
func (f *ProgrammableFunction) CalledWith(args ...any) (bool, error) {
	packedArgs, err := f.logic.PackArgs(args...)
	if err != nil {
		return false, err
	}
	for _, call := range f.logic.Calls() {
		if len(call.Data) >= 4 && bytes.Equal(call.Data[4:], packedArgs) {
			return true, nil
		}
	}
	return false, nil
}

// CalledBefore indicates whether the first recorded invocation of this function was made before the last recorded
// invocation of the other function.
func (f *ProgrammableFunction) CalledBefore(other *ProgrammableFunction) bool {
	calls := f.logic.Calls()
	otherCalls := other.logic.Calls()
	if len(calls) == 0 || len(otherCalls) == 0 {
		return false
	}
	return calls[0].Sequence < otherCalls[len(otherCalls)-1].Sequence
}

// ConditionalFunction programs the answers of a function for invocations with specific arguments.
type ConditionalFunction struct {
	// function is the function being programmed.
	function *ProgrammableFunction

	// args are the encoded arguments the answers apply to.
	args []byte
}

// Returns makes matching invocations return the provided values.
func (c *ConditionalFunction) Returns(values ...any) error {
	answer, err := returnsAnswer(c.function.logic, values)
	if err != nil {
		return err
	}
	c.function.logic.SetAnswerForArgs(c.args, answer)
	return nil
}

// ReturnsRaw makes matching invocations return the provided data as is.
func (c *ConditionalFunction) ReturnsRaw(data []byte) {
	c.function.logic.SetAnswerForArgs(c.args, &logic.Answer{Data: slices.Clone(data)})
}

// RevertsWith makes matching invocations fail with the provided reason.
func (c *ConditionalFunction) RevertsWith(reason string) {
	c.function.logic.SetAnswerForArgs(c.args, revertsAnswer(reason))
}

// RevertsWithData makes matching invocations fail with the provided payload.
func (c *ConditionalFunction) RevertsWithData(data []byte) {
	c.function.logic.SetAnswerForArgs(c.args, &logic.Answer{Data: slices.Clone(data), Reverts: true})
}

// returnsAnswer encodes the provided values into a successful answer of the function.
func returnsAnswer(functionLogic *logic.ProgrammableFunctionLogic, values []any) (*logic.Answer, error) {
	data, err := functionLogic.PackReturnValues(values...)
	if err != nil {
		return nil, err
	}
	return &logic.Answer{Data: data}, nil
}

// revertsAnswer returns a marked failure answer carrying the provided reason.
func revertsAnswer(reason string) *logic.Answer {
	return &logic.Answer{Data: logic.EncodeRejection(reason), Reverts: true}
}

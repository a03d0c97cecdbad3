package bytecode

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
)

// DeploymentBytecode wraps runtime bytecode in init bytecode which deploys it unchanged. Any constructor arguments
// appended to the result are ignored.
func DeploymentBytecode(runtime []byte) ([]byte, error) {
	// The prefix length is fixed because every push below uses PUSH2 or PUSH1.
	const prefixLength = 15
	length := uint16(len(runtime))
	lengthBytes := []byte{byte(length >> 8), byte(length)}

	prefix := NewAssembler().
		Op(vm.PUSH2).Raw(lengthBytes).
		Op(vm.PUSH2).Raw([]byte{0x00, prefixLength}).
		Push(0x00).
		Op(vm.CODECOPY).
		Op(vm.PUSH2).Raw(lengthBytes).
		Push(0x00).
		Op(vm.RETURN)
	code, err := prefix.Bytes()
	if err != nil {
		return nil, err
	}
	return append(code, runtime...), nil
}

// CallForwardingRuntime returns runtime bytecode which forwards its calldata to the target with CALL and returns or
// reverts with the target's return data.
func CallForwardingRuntime(target common.Address) ([]byte, error) {
	return forwardingRuntime(target, vm.CALL)
}

// DelegateForwardingRuntime returns runtime bytecode which forwards its calldata to the target with DELEGATECALL and
// returns or reverts with the target's return data.
func DelegateForwardingRuntime(target common.Address) ([]byte, error) {
	return forwardingRuntime(target, vm.DELEGATECALL)
}

// forwardingRuntime assembles a calldata forwarder using the provided call opcode.
func forwardingRuntime(target common.Address, callOp vm.OpCode) ([]byte, error) {
	asm := NewAssembler()
	copyCalldata(asm)
	emitCall(asm, target, callOp)
	bubbleReturnData(asm, "forwarded")
	return asm.Bytes()
}

// copyCalldata emits code copying all calldata to memory offset zero.
func copyCalldata(asm *Assembler) {
	asm.Op(vm.CALLDATASIZE).Push(0x00).Push(0x00).Op(vm.CALLDATACOPY)
}

// emitCall emits a call to the target with the calldata in memory, leaving the success flag on the stack.
// Output is not written to memory, it is read back with RETURNDATACOPY.
func emitCall(asm *Assembler, target common.Address, callOp vm.OpCode) {
	asm.Push(0x00).Push(0x00).Op(vm.CALLDATASIZE).Push(0x00)
	if callOp == vm.CALL {
		asm.Push(0x00)
	}
	asm.PushAddress(target).Op(vm.GAS, callOp)
}

// bubbleReturnData emits code which consumes the success flag on the stack and returns the last return data on
// success, or reverts with it otherwise.
func bubbleReturnData(asm *Assembler, successLabel string) {
	asm.Op(vm.RETURNDATASIZE).Push(0x00).Push(0x00).Op(vm.RETURNDATACOPY)
	asm.PushLabel(successLabel).Op(vm.JUMPI)
	asm.Op(vm.RETURNDATASIZE).Push(0x00).Op(vm.REVERT)
	asm.Label(successLabel)
	asm.Op(vm.RETURNDATASIZE).Push(0x00).Op(vm.RETURN)
}

// ReturnWordRuntime returns runtime bytecode which returns the provided value as a single 32-byte word for any call.
func ReturnWordRuntime(value uint64) ([]byte, error) {
	return NewAssembler().
		PushUint(value).Push(0x00).Op(vm.MSTORE).
		Push(0x20).Push(0x00).Op(vm.RETURN).
		Bytes()
}

// EchoRevertRuntime returns runtime bytecode which reverts with its calldata as the revert payload.
func EchoRevertRuntime() ([]byte, error) {
	asm := NewAssembler()
	copyCalldata(asm)
	asm.Op(vm.CALLDATASIZE).Push(0x00).Op(vm.REVERT)
	return asm.Bytes()
}

// CounterRuntime returns runtime bytecode which increments storage slot zero on every call and returns the new value
// as a single 32-byte word.
func CounterRuntime() ([]byte, error) {
	return NewAssembler().
		Push(0x00).Op(vm.SLOAD).Push(0x01).Op(vm.ADD).
		Op(vm.DUP1).Push(0x00).Op(vm.SSTORE).
		Push(0x00).Op(vm.MSTORE).
		Push(0x20).Push(0x00).Op(vm.RETURN).
		Bytes()
}

// DispatchingForwarderRuntime returns runtime bytecode which first forwards its calldata to the dispatcher with CALL.
// If the dispatcher fails, its return data is used to revert. If the dispatcher returns data, the first byte is
// dropped and the rest is returned. If the dispatcher returns no data, the calldata is forwarded to the
// implementation with DELEGATECALL and its return data is returned or reverted with.
func DispatchingForwarderRuntime(dispatcher common.Address, implementation common.Address) ([]byte, error) {
	asm := NewAssembler()
	copyCalldata(asm)
	emitCall(asm, dispatcher, vm.CALL)
	asm.PushLabel("dispatched").Op(vm.JUMPI)
	asm.Op(vm.RETURNDATASIZE).Push(0x00).Push(0x00).Op(vm.RETURNDATACOPY)
	asm.Op(vm.RETURNDATASIZE).Push(0x00).Op(vm.REVERT)

	// An empty answer leaves the invocation to the implementation.
	asm.Label("dispatched")
	asm.Op(vm.RETURNDATASIZE, vm.ISZERO).PushLabel("delegate").Op(vm.JUMPI)
	asm.Push(0x01).Op(vm.RETURNDATASIZE, vm.SUB, vm.DUP1)
	asm.Push(0x01).Push(0x00).Op(vm.RETURNDATACOPY)
	asm.Push(0x00).Op(vm.RETURN)

	// The calldata copied at offset zero was not overwritten by the dispatcher call.
	asm.Label("delegate")
	emitCall(asm, implementation, vm.DELEGATECALL)
	bubbleReturnData(asm, "forwarded")
	return asm.Bytes()
}

// SelfDestructRuntime returns runtime bytecode which self-destructs on any call, sending its balance to the
// beneficiary.
func SelfDestructRuntime(beneficiary common.Address) ([]byte, error) {
	return NewAssembler().PushAddress(beneficiary).Op(vm.SELFDESTRUCT).Bytes()
}

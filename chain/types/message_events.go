package types

import (
	"errors"
	"math/big"

	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core/vm"
)

const (
	// BeforeMessageEventName is the native event name published when a call frame is entered.
	BeforeMessageEventName = "beforeMessage"

	// AfterMessageEventName is the native event name published when a call frame exits.
	AfterMessageEventName = "afterMessage"
)

// MessageEvent describes an invocation which is about to execute in the EVM. It is published to listeners of
// BeforeMessageEventName.
type MessageEvent struct {
	// Depth is the call depth of the invocation, where zero is the top level transaction or call.
	Depth int

	// CallType is the opcode which produced this invocation (CALL, STATICCALL, DELEGATECALL, CREATE, ...).
	CallType vm.OpCode

	// From is the caller of the invocation.
	From common.Address

	// To is the target of the invocation. It is nil for contract creations.
	To *common.Address

	// Data is the input data (calldata or init code).
	Data []byte

	// Value is the amount of wei transferred with the invocation.
	Value *big.Int

	// GasLimit is the gas provided to the invocation.
	GasLimit uint64
}

// IsCreation indicates whether the invocation deploys a new contract.
func (e *MessageEvent) IsCreation() bool {
	return e.To == nil
}

// MessageResult describes the outcome of an invocation which finished executing in the EVM. It is published to
// listeners of AfterMessageEventName.
type MessageResult struct {
	// Depth is the call depth of the invocation this result belongs to.
	Depth int

	// Success indicates the invocation completed without an error.
	Success bool

	// Reverted indicates the state changes of the invocation were discarded. This is true for any error, use
	// IsRevert to distinguish an explicit REVERT from other faults.
	Reverted bool

	// ReturnData is the data returned (or the revert payload) by the invocation.
	ReturnData []byte

	// GasUsed is the amount of gas consumed by the invocation.
	GasUsed uint64

	// Err is the error the invocation ended with, nil on success.
	Err error
}

// IsRevert indicates the invocation ended with an explicit REVERT, in which case ReturnData holds the revert payload.
func (r *MessageResult) IsRevert() bool {
	return errors.Is(r.Err, vm.ErrExecutionReverted)
}

package node

import (
	"fmt"

	"github.com/crytic/medusa-geth/core/vm"
	"github.com/crytic/medusa-smock/compilation/abiutils"
)

// vmExceptionPrefix prefixes the message of every error describing a failed execution.
const vmExceptionPrefix = "VM Exception while processing transaction: "

// TransactionExecutionError describes a transaction or call which failed during execution.
type TransactionExecutionError struct {
	// Message is the readable description of the failure.
	Message string

	// Reason is the decoded revert reason, if one could be decoded.
	Reason string

	// ReasonOffset is the offset into ReturnData at which the revert payload Reason was decoded from starts.
	ReasonOffset int

	// ExitKind describes how the execution ended.
	ExitKind ExitKind

	// GasUsed is the amount of gas consumed by the execution.
	GasUsed uint64

	// ReturnData is the raw data the execution ended with.
	ReturnData []byte

	// Err is the error the EVM ended the execution with.
	Err error
}

// Error returns the message of the TransactionExecutionError.
func (e *TransactionExecutionError) Error() string {
	return e.Message
}

// Unwrap returns the error the EVM ended the execution with.
func (e *TransactionExecutionError) Unwrap() error {
	return e.Err
}

// ErrorManager converts the ExecutionResult of a failed execution into the error reported to the caller. It is only
// invoked for executions which did not succeed.
type ErrorManager func(result *ExecutionResult) error

// DefaultErrorManager is the ErrorManager a Node starts with. It decodes Solidity revert payloads into readable
// messages.
func DefaultErrorManager(result *ExecutionResult) error {
	executionError := &TransactionExecutionError{
		ExitKind:   result.ExitKind,
		GasUsed:    result.GasUsed,
		ReturnData: result.ReturnData,
		Err:        result.Err,
	}

	switch result.ExitKind {
	case ExitKindSuccess:
		return nil
	case ExitKindRevert:
		executionError.Reason = abiutils.DecodeRevertReason(result.ReturnData)
		if reasonString := abiutils.GetSolidityRevertErrorString(vm.ErrExecutionReverted, result.ReturnData); reasonString != nil {
			executionError.Message = fmt.Sprintf("%sreverted with reason string '%s'", vmExceptionPrefix, *reasonString)
		} else if executionError.Reason != "" {
			executionError.Message = vmExceptionPrefix + executionError.Reason
		} else {
			executionError.Message = vmExceptionPrefix + "reverted without a reason string"
		}
	case ExitKindOutOfGas:
		executionError.Message = "Transaction ran out of gas"
	case ExitKindInvalidOpcode:
		executionError.Message = vmExceptionPrefix + "invalid opcode"
	default:
		executionError.Message = vmExceptionPrefix + result.Err.Error()
	}
	return executionError
}

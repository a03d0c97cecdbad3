package node

import (
	"errors"

	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/vm"
)

// ExitKind describes how the execution of a transaction or call ended.
type ExitKind int

const (
	// ExitKindSuccess describes an execution which completed without error.
	ExitKindSuccess ExitKind = iota
	// ExitKindRevert describes an execution which ended with the REVERT opcode.
	ExitKindRevert
	// ExitKindOutOfGas describes an execution which ran out of gas.
	ExitKindOutOfGas
	// ExitKindInvalidOpcode describes an execution which hit an undefined opcode.
	ExitKindInvalidOpcode
	// ExitKindError describes an execution which failed for any other reason.
	ExitKindError
)

// String returns a readable name for the ExitKind.
func (k ExitKind) String() string {
	switch k {
	case ExitKindSuccess:
		return "success"
	case ExitKindRevert:
		return "revert"
	case ExitKindOutOfGas:
		return "out of gas"
	case ExitKindInvalidOpcode:
		return "invalid opcode"
	default:
		return "error"
	}
}

// ExitKindFromError derives the ExitKind of an execution from the error it ended with.
func ExitKindFromError(err error) ExitKind {
	var invalidOpCodeErr *vm.ErrInvalidOpCode
	switch {
	case err == nil:
		return ExitKindSuccess
	case errors.Is(err, vm.ErrExecutionReverted):
		return ExitKindRevert
	case errors.Is(err, vm.ErrOutOfGas), errors.Is(err, vm.ErrCodeStoreOutOfGas):
		return ExitKindOutOfGas
	case errors.As(err, &invalidOpCodeErr):
		return ExitKindInvalidOpcode
	default:
		return ExitKindError
	}
}

// ExecutionResult describes the outcome of executing a transaction or call on a Node.
type ExecutionResult struct {
	// ExitKind describes how the execution ended.
	ExitKind ExitKind

	// ReturnData is the data returned, or the revert payload if the execution reverted.
	ReturnData []byte

	// GasUsed is the amount of gas consumed by the execution.
	GasUsed uint64

	// Err is the error the EVM ended the execution with, if any.
	Err error
}

// newExecutionResult converts a core.ExecutionResult into an ExecutionResult.
func newExecutionResult(result *core.ExecutionResult) *ExecutionResult {
	return &ExecutionResult{
		ExitKind:   ExitKindFromError(result.Err),
		ReturnData: result.ReturnData,
		GasUsed:    result.UsedGas,
		Err:        result.Err,
	}
}

// Failed indicates whether the execution ended with any error.
func (r *ExecutionResult) Failed() bool {
	return r.ExitKind != ExitKindSuccess
}

package types

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/types"
)

// MessageResults represents metadata obtained from the execution of a core.Message in a Block.
type MessageResults struct {
	// PostStateRoot refers to the state root hash after the execution of this transaction.
	PostStateRoot common.Hash

	// ExecutionResult describes the core.ExecutionResult returned after processing a given call.
	ExecutionResult *core.ExecutionResult

	// Receipt represents the transaction receipt
	Receipt *types.Receipt

	// AdditionalResults represents results of arbitrary types which can be stored by any part of the application,
	// such as a tracers.
	AdditionalResults map[string]any
}

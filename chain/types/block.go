package types

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/types"
)

// Block represents a rudimentary block structure generated by sending messages to a test chain.
type Block struct {
	// Hash represents the block hash for this block.
	Hash common.Hash

	// Header represents the block header for this block.
	Header *types.Header

	// Messages represents the core.Message objects sent to the chain for this block.
	Messages []*core.Message

	// MessageResults represents the results recorded while executing transactions.
	MessageResults []*MessageResults
}

// NewBlock returns a new Block with the provided parameters.
func NewBlock(header *types.Header) *Block {
	return &Block{
		Hash:           header.Hash(),
		Header:         header,
		Messages:       make([]*core.Message, 0),
		MessageResults: make([]*MessageResults, 0),
	}
}

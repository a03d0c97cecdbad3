package node

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
)

// Signer sends transactions and calls from a single account of a Node.
type Signer struct {
	// node is the Node transactions are sent to.
	node *Node

	// address is the account transactions are sent from.
	address common.Address
}

// Address returns the account the Signer sends from.
func (s *Signer) Address() common.Address {
	return s.address
}

// SendTransaction sends a transaction to the provided address from the Signer's account.
func (s *Signer) SendTransaction(to common.Address, data []byte, value *big.Int) (*TransactionResult, error) {
	return s.node.SendTransaction(TransactionRequest{
		From:  s.address,
		To:    &to,
		Data:  data,
		Value: value,
	})
}

// Call executes a call to the provided address from the Signer's account without persisting any changes.
func (s *Signer) Call(to common.Address, data []byte) (*ExecutionResult, error) {
	return s.node.Call(TransactionRequest{
		From: s.address,
		To:   &to,
		Data: data,
	})
}

package utils

import (
	"github.com/crytic/medusa-geth/core"
	"github.com/crytic/medusa-geth/core/types"
)

// MessageToTransaction derives the unsigned types.Transaction a receipt is recorded for from a core.Message. Messages
// sent from impersonated accounts carry no signature, so the sender is stored in S to keep hashes distinct.
func MessageToTransaction(msg *core.Message) *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    msg.Nonce,
		GasPrice: msg.GasPrice,
		Gas:      msg.GasLimit,
		To:       msg.To,
		Value:    msg.Value,
		Data:     msg.Data,
		S:        msg.From.Big(),
	})
}

package types

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
)

// BaseBlockContext describes the block-level values (block.number, block.timestamp, basefee and coinbase) a pending
// block is created with, so a block can be created with explicit parameters instead of ones derived from the head.
type BaseBlockContext struct {
	// Number represents the block number of the block when it was first created.
	Number *big.Int
	// Time represents the timestamp of the block when it was first created.
	Time uint64
	// BaseFee represents the base fee of the block when it was first created.
	BaseFee *big.Int
	// Coinbase represents the coinbase of the block when it was first created.
	Coinbase common.Address
}

// NewBaseBlockContext returns a new BaseBlockContext with the provided parameters. The base fee is copied.
func NewBaseBlockContext(number uint64, time uint64, baseFee *big.Int, coinbase common.Address) *BaseBlockContext {
	return &BaseBlockContext{
		Number:   new(big.Int).SetUint64(number),
		Time:     time,
		BaseFee:  new(big.Int).Set(baseFee),
		Coinbase: coinbase,
	}
}

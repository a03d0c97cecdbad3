package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// etherDecimals is the amount of decimal places between wei and ether.
const etherDecimals = 18

// WeiToEther converts a wei amount into a decimal amount of ether.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -etherDecimals)
}

// FormatWei formats a wei amount as an ether string, e.g. "1.5 ETH".
func FormatWei(wei *big.Int) string {
	return WeiToEther(wei).String() + " ETH"
}

// ParseEther parses a decimal ether amount (e.g. "1000" or "0.25") into wei.
// Returns the wei amount, or an error if the value could not be parsed.
func ParseEther(ether string) (*big.Int, error) {
	amount, err := decimal.NewFromString(ether)
	if err != nil {
		return nil, err
	}
	return amount.Shift(etherDecimals).BigInt(), nil
}

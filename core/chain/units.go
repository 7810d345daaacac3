package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the ETH/wei exponent.
const Decimals = 18

// ToWei converts an ETH amount, truncating below one wei.
func ToWei(eth decimal.Decimal) *big.Int {
	return eth.Shift(Decimals).BigInt()
}

// FromWei converts wei to ETH.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}

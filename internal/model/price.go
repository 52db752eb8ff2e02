package model

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var twoPow64 = decimal.NewFromInt(2).Pow(decimal.NewFromInt(64))

// DisplayPrice renders a Q64.64 square-root price as the human-readable
// full price (quote per base), i.e. (p / 2^64)^2.
func DisplayPrice(priceRoot *uint256.Int) string {
	if priceRoot == nil || priceRoot.IsZero() {
		return "0"
	}
	root := decimal.NewFromBigInt(priceRoot.ToBig(), 0).Div(twoPow64)
	return root.Mul(root).StringFixed(12)
}

// Package types provides common value types.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

func init() {
	// Money is a JSON number on the wire.
	decimal.MarshalJSONWithoutQuotes = true
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// LineTotal returns price × quantity.
func LineTotal(price Money, quantity int64) Money {
	return price.Mul(decimal.NewFromInt(quantity))
}

// MoneyEqual compares values ignoring scale ("100" == "100.00").
func MoneyEqual(a, b Money) bool {
	return a.Cmp(b) == 0
}

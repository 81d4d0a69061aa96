// Package payout derives agent earnings from a campaign's price and target views.
package payout

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Places is the number of fractional digits kept on currency amounts
const Places = 2

var (
	ErrDivisionByZero = errors.New("campaign target views must be positive")
	ErrNegativeViews  = errors.New("views must not be negative")
)

// Calculate returns (viewsCommitted / targetViews) * price rounded to Places.
// The multiplication happens first so exact ratios stay exact.
func Calculate(viewsCommitted, targetViews int64, price decimal.Decimal) (decimal.Decimal, error) {
	if targetViews <= 0 {
		return decimal.Zero, ErrDivisionByZero
	}
	if viewsCommitted < 0 {
		return decimal.Zero, ErrNegativeViews
	}

	amount := price.
		Mul(decimal.NewFromInt(viewsCommitted)).
		Div(decimal.NewFromInt(targetViews))

	return amount.Round(Places), nil
}

package exchange

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// amountPrecision is the number of decimals sent for quantities and quote
// amounts. Binance spot never accepts more than 8.
const amountPrecision = 8

var errZeroAmount = errors.New("amount rounds to zero")

// formatAmount renders v with at most amountPrecision decimals, truncating
// so a sell never asks for more than the position holds.
func formatAmount(v float64) (string, error) {
	d := decimal.NewFromFloat(v).Truncate(amountPrecision)
	if !d.IsPositive() {
		return "", fmt.Errorf("%w: %v", errZeroAmount, v)
	}
	return d.String(), nil
}

// parseAmount reads a decimal string from the API.
func parseAmount(s string) (float64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	return d.InexactFloat64(), nil
}

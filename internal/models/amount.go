package models

import "github.com/shopspring/decimal"

// NewAmount normalizes a monetary amount to two decimal places, rounding
// halves away from zero. Normalization happens here, at construction, never
// at display time, so a stored amount and a recomputed one can be compared
// with exact equality.
func NewAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// AmountFromString parses and normalizes a monetary amount.
func AmountFromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return NewAmount(d), nil
}

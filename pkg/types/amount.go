package types

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Amount is a monetary value that tolerates malformed input. Missing, null or
// non-numeric values decode into an invalid Amount instead of failing the
// surrounding document.
type Amount struct {
	decimal.Decimal
	Valid bool
}

// NewAmount wraps a decimal as a valid Amount.
func NewAmount(value decimal.Decimal) Amount {
	return Amount{Decimal: value, Valid: true}
}

// AmountFromInt is a convenience for whole-unit prices.
func AmountFromInt(value int64) Amount {
	return NewAmount(decimal.NewFromInt(value))
}

// OrZero returns the decimal value, or zero when the amount is invalid.
func (a Amount) OrZero() decimal.Decimal {
	if !a.Valid {
		return decimal.Zero
	}
	return a.Decimal
}

func (a Amount) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = Amount{}
	raw := bytes.TrimSpace(data)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	text := string(raw)
	if raw[0] == '"' {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return nil
		}
		text = unquoted
	}
	value, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	*a = NewAmount(value)
	return nil
}

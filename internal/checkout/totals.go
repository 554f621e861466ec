package checkout

import (
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/shopspring/decimal"
)

// ShippingRule is a flat fee waived once the subtotal reaches the threshold.
type ShippingRule struct {
	FreeThreshold decimal.Decimal
	FlatFee       decimal.Decimal
}

// DefaultShippingRule matches the storefront defaults.
func DefaultShippingRule() ShippingRule {
	return ShippingRule{
		FreeThreshold: decimal.NewFromInt(2500),
		FlatFee:       decimal.NewFromInt(220),
	}
}

// ShippingRuleFromConfig reads the rule from validated configuration.
func ShippingRuleFromConfig(cfg config.CheckoutConfig) ShippingRule {
	return ShippingRule{
		FreeThreshold: cfg.Threshold(),
		FlatFee:       cfg.FlatFee(),
	}
}

// Shipping returns the fee owed for subtotal. The threshold is inclusive.
func (r ShippingRule) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(r.FreeThreshold) {
		return decimal.Zero
	}
	return r.FlatFee
}

// Totals is the derived price breakdown of a line list.
type Totals struct {
	Subtotal   decimal.Decimal `json:"subtotal"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`
	ItemsCount int             `json:"itemsCount"`
	// InvalidLines lists tokens of lines whose price was missing or
	// non-numeric and was counted as zero.
	InvalidLines []string `json:"invalidLines,omitempty"`
}

// HasInvalidPrices reports whether any line price was coerced to zero.
func (t Totals) HasInvalidPrices() bool {
	return len(t.InvalidLines) > 0
}

// Calculate derives subtotal, shipping and total without modifying lines.
func Calculate(lines []cart.Line, rule ShippingRule) Totals {
	subtotal := decimal.Zero
	count := 0
	var invalid []string
	for _, l := range lines {
		if !l.Price.Valid {
			invalid = append(invalid, l.ID().Token())
		}
		subtotal = subtotal.Add(l.Subtotal())
		count += l.Quantity
	}
	shipping := rule.Shipping(subtotal)
	return Totals{
		Subtotal:     subtotal,
		Shipping:     shipping,
		Total:        subtotal.Add(shipping),
		ItemsCount:   count,
		InvalidLines: invalid,
	}
}

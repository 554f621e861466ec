package checkout

import (
	"fmt"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// LineValidationInput describes the data required to verify a line before an
// order is placed.
type LineValidationInput struct {
	LineID     string
	ProductID  string
	Title      string
	PriceValid bool
	Quantity   int
}

// LineViolationDetail exposes the data returned to callers when a validation fails.
type LineViolationDetail struct {
	LineID    string `json:"line_id"`
	ProductID string `json:"product_id"`
	Title     string `json:"title,omitempty"`
	Reason    string `json:"reason"`
}

const (
	ReasonInvalidPrice    = "invalid_price"
	ReasonInvalidQuantity = "invalid_quantity"
)

// ValidateLines ensures every line carries a usable price and a positive
// quantity. Display totals tolerate bad prices; placing an order does not.
func ValidateLines(items []LineValidationInput) error {
	var violations []LineViolationDetail
	for _, item := range items {
		switch {
		case !item.PriceValid:
			violations = append(violations, violation(item, ReasonInvalidPrice))
		case item.Quantity < 1:
			violations = append(violations, violation(item, ReasonInvalidQuantity))
		}
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("%d item(s) cannot be ordered", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}

func violation(item LineValidationInput, reason string) LineViolationDetail {
	return LineViolationDetail{
		LineID:    item.LineID,
		ProductID: item.ProductID,
		Title:     item.Title,
		Reason:    reason,
	}
}

package checkout

import (
	"context"
	"errors"

	"github.com/angelmondragon/storefront-backend/internal/cart"
)

// View is the checkout page model.
type View struct {
	Lines    []cart.Line `json:"items"`
	Source   Source      `json:"source"`
	Totals   Totals      `json:"totals"`
	Currency string      `json:"currency"`
}

// Service builds checkout views.
type Service interface {
	View(ctx context.Context, profileID string) (*View, error)
}

type resolver interface {
	Resolve(ctx context.Context, profileID string) (Resolved, error)
}

type service struct {
	staging  resolver
	rule     ShippingRule
	currency string
}

// NewService builds a checkout service over the staging list.
func NewService(staging resolver, rule ShippingRule, currency string) (Service, error) {
	if staging == nil {
		return nil, errors.New("staging resolver required")
	}
	return &service{staging: staging, rule: rule, currency: currency}, nil
}

func (s *service) View(ctx context.Context, profileID string) (*View, error) {
	resolved, err := s.staging.Resolve(ctx, profileID)
	if err != nil {
		return nil, err
	}
	lines := resolved.Lines
	if lines == nil {
		lines = []cart.Line{}
	}
	return &View{
		Lines:    lines,
		Source:   resolved.Source,
		Totals:   Calculate(resolved.Lines, s.rule),
		Currency: s.currency,
	}, nil
}

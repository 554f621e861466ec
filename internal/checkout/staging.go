package checkout

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/storage"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/google/uuid"
)

// Source names the list a checkout was resolved from.
type Source string

const (
	SourceCart    Source = "cart"
	SourceStaging Source = "staging"
)

// String implements fmt.Stringer.
func (s Source) String() string {
	return string(s)
}

// IsValid reports whether the value is a known Source.
func (s Source) IsValid() bool {
	return s == SourceCart || s == SourceStaging
}

// CartSource reads and clears a profile's cart.
type CartSource interface {
	CartLines(ctx context.Context, profileID string) ([]cart.Line, error)
	ClearCart(ctx context.Context, profileID string) error
}

// Resolved is the item list a checkout operates on.
type Resolved struct {
	Lines  []cart.Line
	Source Source
}

// Staging manages the checkout staging list written right before a
// checkout-bound navigation.
type Staging struct {
	storage storage.Store
	carts   CartSource
	origin  string
}

// NewStaging wires the staging list to its storage and the cart it falls
// back to.
func NewStaging(st storage.Store, carts CartSource) (*Staging, error) {
	if st == nil {
		return nil, errors.New("staging storage is required")
	}
	if carts == nil {
		return nil, errors.New("cart source is required")
	}
	return &Staging{storage: st, carts: carts, origin: uuid.NewString()}, nil
}

// Stage replaces the staging list with a copy of lines.
func (s *Staging) Stage(ctx context.Context, profileID string, lines []cart.Line) error {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "nothing to check out")
	}
	raw, err := cart.Encode(cart.CloneLines(lines))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode staging list")
	}
	if err := s.storage.Set(ctx, storage.Key(profileID, storage.CheckoutItemsKey), raw, s.origin); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist staging list")
	}
	return nil
}

// StageSingle stages one synthesized line for an express checkout that
// leaves the cart untouched.
func (s *Staging) StageSingle(ctx context.Context, profileID string, product cart.Product, opts cart.AddOptions) ([]cart.Line, error) {
	if strings.TrimSpace(product.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	quantity := opts.Quantity
	if quantity < 1 {
		quantity = 1
	}
	lines := []cart.Line{cart.NewLine(product, quantity, opts.Size, opts.Color)}
	if err := s.Stage(ctx, profileID, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// Resolve returns the staging list when one exists, otherwise the cart.
func (s *Staging) Resolve(ctx context.Context, profileID string) (Resolved, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return Resolved{}, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	raw, ok, err := s.storage.Get(ctx, storage.Key(profileID, storage.CheckoutItemsKey))
	if err != nil {
		return Resolved{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load staging list")
	}
	if ok {
		lines, err := cart.Decode(raw)
		if err == nil && len(lines) > 0 {
			return Resolved{Lines: lines, Source: SourceStaging}, nil
		}
	}

	lines, err := s.carts.CartLines(ctx, profileID)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Lines: lines, Source: SourceCart}, nil
}

// Clear empties exactly the list the checkout was resolved from.
func (s *Staging) Clear(ctx context.Context, profileID string, source Source) error {
	switch source {
	case SourceStaging:
		if err := s.storage.Delete(ctx, storage.Key(profileID, storage.CheckoutItemsKey), s.origin); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear staging list")
		}
		return nil
	case SourceCart:
		return s.carts.ClearCart(ctx, profileID)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "unknown checkout source")
}

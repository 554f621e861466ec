package actions

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/shopspring/decimal"
)

// Navigator performs a checkout-bound navigation.
type Navigator interface {
	Navigate(ctx context.Context, path string)
}

// RecordingNavigator remembers the last requested path.
type RecordingNavigator struct {
	mu   sync.Mutex
	path string
}

func (n *RecordingNavigator) Navigate(_ context.Context, path string) {
	n.mu.Lock()
	n.path = path
	n.mu.Unlock()
}

// Path returns the last navigation target, or "" when none happened.
func (n *RecordingNavigator) Path() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

// CartStore is the cart surface the controls act on.
type CartStore interface {
	ProfileID() string
	AddToCart(ctx context.Context, product *cart.Product, opts cart.AddOptions) (cart.Line, error)
	IsInCart(productID, size, color string) bool
	Lines() []cart.Line
	Total() decimal.Decimal
	ItemsCount() int
}

// Stager writes the checkout staging list.
type Stager interface {
	Stage(ctx context.Context, profileID string, lines []cart.Line) error
	StageSingle(ctx context.Context, profileID string, product cart.Product, opts cart.AddOptions) ([]cart.Line, error)
}

// Request is the payload of an add-to-cart or buy-now click.
type Request struct {
	Product *cart.Product
	Options cart.AddOptions
}

func (r Request) valid() bool {
	return r.Product != nil && strings.TrimSpace(r.Product.ID) != ""
}

// Result reports what a click did.
type Result struct {
	Outcome   Outcome
	Line      *cart.Line
	Navigated bool
}

// Handler runs the control actions.
type Handler struct {
	stager       Stager
	tracker      analytics.Tracker
	checkoutPath string
	currency     string
}

// NewHandler builds the control actions.
func NewHandler(stager Stager, tracker analytics.Tracker, checkoutPath, currency string) (*Handler, error) {
	if stager == nil {
		return nil, errors.New("checkout stager required")
	}
	if strings.TrimSpace(checkoutPath) == "" {
		return nil, errors.New("checkout path required")
	}
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	return &Handler{
		stager:       stager,
		tracker:      tracker,
		checkoutPath: checkoutPath,
		currency:     currency,
	}, nil
}

// AddToCart performs one guarded add.
func (h *Handler) AddToCart(ctx context.Context, guard *Guard, store CartStore, req Request, cb Callbacks) (Result, error) {
	if !req.valid() {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	var added cart.Line
	outcome, err := guard.Do(ctx, func(ctx context.Context) error {
		line, err := store.AddToCart(ctx, req.Product, req.Options)
		if err != nil {
			return err
		}
		added = line
		return nil
	}, cb)
	result := Result{Outcome: outcome}
	if outcome == OutcomeSucceeded {
		result.Line = &added
	}
	return result, err
}

// BuyNow adds the product, then goes to checkout only when the product was
// already in the cart before this click. A first add stays on the page.
func (h *Handler) BuyNow(ctx context.Context, guard *Guard, store CartStore, nav Navigator, req Request, cb Callbacks) (Result, error) {
	if !req.valid() {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	var (
		added     cart.Line
		navigated bool
	)
	outcome, err := guard.Do(ctx, func(ctx context.Context) error {
		wasInCart := store.IsInCart(req.Product.ID, req.Options.Size, req.Options.Color)

		line, err := store.AddToCart(ctx, req.Product, req.Options)
		if err != nil {
			return err
		}
		added = line
		if !wasInCart {
			return nil
		}
		if err := h.startCheckout(ctx, store, nav); err != nil {
			return err
		}
		navigated = true
		return nil
	}, cb)
	result := Result{Outcome: outcome}
	// added and navigated are only safe to read once fn has returned
	if outcome == OutcomeSucceeded {
		result.Line = &added
		result.Navigated = navigated
	}
	return result, err
}

// Checkout stages the whole cart and navigates. An empty cart is a no-op.
func (h *Handler) Checkout(ctx context.Context, guard *Guard, store CartStore, nav Navigator, cb Callbacks) (Result, error) {
	if store.ItemsCount() == 0 {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	outcome, err := guard.Do(ctx, func(ctx context.Context) error {
		return h.startCheckout(ctx, store, nav)
	}, cb)
	return Result{Outcome: outcome, Navigated: outcome == OutcomeSucceeded}, err
}

// Express stages a single line for profileID and navigates to checkout
// without touching the cart.
func (h *Handler) Express(ctx context.Context, guard *Guard, profileID string, nav Navigator, req Request, cb Callbacks) (Result, error) {
	if !req.valid() {
		return Result{Outcome: OutcomeIgnored}, nil
	}
	outcome, err := guard.Do(ctx, func(ctx context.Context) error {
		lines, err := h.stager.StageSingle(ctx, profileID, *req.Product, req.Options)
		if err != nil {
			return err
		}
		h.trackCheckout(ctx, profileID, lines)
		if nav != nil {
			nav.Navigate(ctx, h.checkoutPath)
		}
		return nil
	}, cb)
	return Result{Outcome: outcome, Navigated: outcome == OutcomeSucceeded}, err
}

func (h *Handler) startCheckout(ctx context.Context, store CartStore, nav Navigator) error {
	lines := store.Lines()
	if err := h.stager.Stage(ctx, store.ProfileID(), lines); err != nil {
		return err
	}
	h.trackCheckout(ctx, store.ProfileID(), lines)
	if nav != nil {
		nav.Navigate(ctx, h.checkoutPath)
	}
	return nil
}

func (h *Handler) trackCheckout(ctx context.Context, profileID string, lines []cart.Line) {
	value := decimal.Zero
	quantity := 0
	for _, l := range lines {
		value = value.Add(l.Subtotal())
		quantity += l.Quantity
	}
	h.tracker.Track(ctx, analytics.Event{
		Name:      analytics.EventInitiateCheckout,
		ProfileID: profileID,
		Currency:  h.currency,
		Value:     value,
		Quantity:  quantity,
		Items:     cart.EventItems(lines),
	})
}

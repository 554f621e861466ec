package actions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingTracker) Track(_ context.Context, e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingTracker) count(name analytics.EventName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

type fixture struct {
	clock    *fakeClock
	controls *Controls
	store    *cart.Store
	staging  *checkout.Staging
	registry *cart.Registry
	tracker  *recordingTracker
	handler  *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := storage.NewMemory()
	tracker := &recordingTracker{}
	registry, err := cart.NewRegistry(mem, cart.Options{Tracker: tracker, Currency: "BDT"})
	require.NoError(t, err)
	t.Cleanup(registry.Close)

	store, err := registry.Get(context.Background(), "p1")
	require.NoError(t, err)
	staging, err := checkout.NewStaging(mem, registry)
	require.NoError(t, err)
	handler, err := NewHandler(staging, tracker, "/checkout", "BDT")
	require.NoError(t, err)

	clock := newFakeClock()
	return &fixture{
		clock:    clock,
		controls: NewSessions(SessionOptions{Guard: DefaultGuardConfig(), Clock: clock}).For("p1"),
		store:    store,
		staging:  staging,
		registry: registry,
		tracker:  tracker,
		handler:  handler,
	}
}

func tee() *cart.Product {
	return &cart.Product{ID: "tee", Title: "Tee", Price: types.AmountFromInt(800)}
}

func TestBuyNowFirstClickStaysSecondClickNavigates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := Request{Product: tee(), Options: cart.AddOptions{Quantity: 1, Size: "M"}}
	guard := f.controls.Guard(BuyNowControl("tee"))

	nav := &RecordingNavigator{}
	result, err := f.handler.BuyNow(ctx, guard, f.store, nav, req, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.False(t, result.Navigated)
	assert.Empty(t, nav.Path())
	assert.Equal(t, 1, f.store.ItemQuantity("tee", "M", ""))

	resolved, err := f.staging.Resolve(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, checkout.SourceCart, resolved.Source, "first click must not stage")

	f.clock.Advance(2 * time.Second)
	nav = &RecordingNavigator{}
	result, err = f.handler.BuyNow(ctx, guard, f.store, nav, req, Callbacks{})
	require.NoError(t, err)
	assert.True(t, result.Navigated)
	assert.Equal(t, "/checkout", nav.Path())
	assert.Equal(t, 2, f.store.ItemQuantity("tee", "M", ""))

	resolved, err = f.staging.Resolve(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, checkout.SourceStaging, resolved.Source)
	assert.Equal(t, lineKeys(f.store.Lines()), lineKeys(resolved.Lines))
	assert.Equal(t, 1, f.tracker.count(analytics.EventInitiateCheckout))
}

func TestBuyNowDifferentVariantIsFirstAdd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.AddToCart(ctx, tee(), cart.AddOptions{Quantity: 1, Size: "M"})
	require.NoError(t, err)

	nav := &RecordingNavigator{}
	result, err := f.handler.BuyNow(ctx, f.controls.Guard(BuyNowControl("tee")), f.store, nav,
		Request{Product: tee(), Options: cart.AddOptions{Quantity: 1, Size: "L"}}, Callbacks{})
	require.NoError(t, err)
	assert.False(t, result.Navigated)
	assert.Len(t, f.store.Lines(), 2)
}

func TestBuyNowRapidClicksMutateOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guard := f.controls.Guard(BuyNowControl("tee"))
	req := Request{Product: tee(), Options: cart.AddOptions{Quantity: 1}}

	first, err := f.handler.BuyNow(ctx, guard, f.store, &RecordingNavigator{}, req, Callbacks{})
	require.NoError(t, err)
	f.clock.Advance(200 * time.Millisecond)
	second, err := f.handler.BuyNow(ctx, guard, f.store, &RecordingNavigator{}, req, Callbacks{})
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, first.Outcome)
	assert.Equal(t, OutcomeIgnored, second.Outcome)
	assert.Equal(t, 1, f.store.ItemQuantity("tee", "", ""))
	assert.Equal(t, 1, f.tracker.count(analytics.EventAddToCart))
}

func TestAddToCartControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guard := f.controls.Guard(AddToCartControl("tee"))

	var succeeded bool
	result, err := f.handler.AddToCart(ctx, guard, f.store, Request{Product: tee(), Options: cart.AddOptions{Quantity: 3}}, Callbacks{
		OnSuccess: func() { succeeded = true },
	})
	require.NoError(t, err)
	require.NotNil(t, result.Line)
	assert.Equal(t, 3, result.Line.Quantity)
	assert.True(t, succeeded)
	assert.Equal(t, StateSuccess, guard.State())

	result, err = f.handler.AddToCart(ctx, f.controls.Guard(AddToCartControl("")), f.store, Request{}, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome)
}

type failingStore struct {
	*cart.Store
}

func (failingStore) AddToCart(context.Context, *cart.Product, cart.AddOptions) (cart.Line, error) {
	return cart.Line{}, errors.New("storage full")
}

func TestAddToCartControlFailureCallsErrorCallback(t *testing.T) {
	f := newFixture(t)
	var got error
	result, err := f.handler.AddToCart(context.Background(), f.controls.Guard(AddToCartControl("tee")), failingStore{f.store},
		Request{Product: tee()}, Callbacks{OnError: func(err error) { got = err }})
	assert.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)
	assert.Nil(t, result.Line)
	assert.Equal(t, err, got)
}

func TestCheckoutControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	guard := f.controls.Guard(CheckoutControl)

	nav := &RecordingNavigator{}
	result, err := f.handler.Checkout(ctx, guard, f.store, nav, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, result.Outcome, "empty cart is a no-op")
	assert.Empty(t, nav.Path())

	_, err = f.store.AddToCart(ctx, tee(), cart.AddOptions{Quantity: 2})
	require.NoError(t, err)
	_, err = f.store.AddToCart(ctx, &cart.Product{ID: "cap", Price: types.AmountFromInt(300)}, cart.AddOptions{Quantity: 1})
	require.NoError(t, err)

	result, err = f.handler.Checkout(ctx, guard, f.store, nav, Callbacks{})
	require.NoError(t, err)
	assert.True(t, result.Navigated)
	assert.Equal(t, "/checkout", nav.Path())

	resolved, err := f.staging.Resolve(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, checkout.SourceStaging, resolved.Source)
	assert.Len(t, resolved.Lines, 2)

	f.tracker.mu.Lock()
	last := f.tracker.events[len(f.tracker.events)-1]
	f.tracker.mu.Unlock()
	assert.Equal(t, analytics.EventInitiateCheckout, last.Name)
	assert.Equal(t, "1900", last.Value.String())
	assert.Equal(t, 3, last.Quantity)
}

func TestExpressControlLeavesCartUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.store.AddToCart(ctx, &cart.Product{ID: "cap", Price: types.AmountFromInt(300)}, cart.AddOptions{Quantity: 1})
	require.NoError(t, err)

	nav := &RecordingNavigator{}
	result, err := f.handler.Express(ctx, f.controls.Guard(ExpressControl("tee")), "p1", nav,
		Request{Product: tee(), Options: cart.AddOptions{Quantity: 2, Color: "Black"}}, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.True(t, result.Navigated)
	assert.Equal(t, "/checkout", nav.Path())

	resolved, err := f.staging.Resolve(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, checkout.SourceStaging, resolved.Source)
	require.Len(t, resolved.Lines, 1)
	assert.Equal(t, "tee", resolved.Lines[0].ProductID)
	assert.Equal(t, 2, resolved.Lines[0].Quantity)

	require.Len(t, f.store.Lines(), 1)
	assert.Equal(t, "cap", f.store.Lines()[0].ProductID)
	assert.Equal(t, 1, f.tracker.count(analytics.EventInitiateCheckout))
}

func TestNewHandlerValidates(t *testing.T) {
	_, err := NewHandler(nil, nil, "/checkout", "BDT")
	assert.Error(t, err)
	f := newFixture(t)
	_, err = NewHandler(f.staging, nil, " ", "BDT")
	assert.Error(t, err)
}

func lineKeys(lines []cart.Line) map[cart.LineID]int {
	out := map[cart.LineID]int{}
	for _, l := range lines {
		out[l.ID()] = l.Quantity
	}
	return out
}

type slowStorage struct {
	*storage.Memory
	delay    time.Duration
	slow     bool
	returned chan error
}

func (s *slowStorage) Set(ctx context.Context, key string, value []byte, origin string) error {
	if !s.slow {
		return s.Memory.Set(ctx, key, value, origin)
	}
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
	}
	err := s.Memory.Set(ctx, key, value, origin)
	s.returned <- err
	return err
}

func TestAddToCartTimeoutLeavesCartUnchanged(t *testing.T) {
	ctx := context.Background()
	slow := &slowStorage{Memory: storage.NewMemory(), delay: 200 * time.Millisecond, slow: true, returned: make(chan error, 1)}
	registry, err := cart.NewRegistry(slow, cart.Options{Currency: "BDT"})
	require.NoError(t, err)
	t.Cleanup(registry.Close)
	store, err := registry.Get(ctx, "p1")
	require.NoError(t, err)
	staging, err := checkout.NewStaging(slow, registry)
	require.NoError(t, err)
	handler, err := NewHandler(staging, nil, "/checkout", "BDT")
	require.NoError(t, err)

	cfg := DefaultGuardConfig()
	cfg.Timeout = 20 * time.Millisecond
	clock := newFakeClock()
	guard := NewSessions(SessionOptions{Guard: cfg, Clock: clock}).For("p1").Guard(AddToCartControl("tee"))
	req := Request{Product: tee(), Options: cart.AddOptions{Quantity: 1}}

	result, err := handler.AddToCart(ctx, guard, store, req, Callbacks{})
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, result.Outcome)

	select {
	case setErr := <-slow.returned:
		require.Error(t, setErr)
	case <-time.After(2 * time.Second):
		t.Fatal("abandoned persist never returned")
	}
	assert.Zero(t, store.ItemQuantity("tee", "", ""))
	_, ok, err := slow.Get(ctx, storage.Key("p1", storage.CartKey))
	require.NoError(t, err)
	assert.False(t, ok)

	slow.slow = false
	clock.Advance(2 * time.Second)
	result, err = handler.AddToCart(ctx, guard, store, req, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSucceeded, result.Outcome)
	assert.Equal(t, 1, store.ItemQuantity("tee", "", ""))
}

// Package cart keeps the per-profile shopping cart in memory, persists every
// mutation as a whole document and follows writes made by other stores that
// share the same persistent key.
//
// Cross-store synchronization is last writer wins. Two stores mutating the
// same profile at the same moment can lose one of the updates; a change
// delivered from another store always replaces the in-memory cart, even if a
// local mutation was persisted in between.
package cart

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/storage"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Options carries the collaborators shared by every store and the Registry
// eviction limits. A zero IdleTTL or MaxProfiles disables that limit.
type Options struct {
	Tracker  analytics.Tracker
	Logger   *logger.Logger
	Currency string

	IdleTTL     time.Duration
	MaxProfiles int
	Now         func() time.Time
}

// AddOptions selects the quantity and variants of an add.
type AddOptions struct {
	Quantity int
	Size     string
	Color    string
}

// Listener receives the cart after every local or external change.
type Listener func([]Line)

// Store is the cart state manager for one profile.
type Store struct {
	profileID string
	key       string
	origin    string
	storage   storage.Store
	tracker   analytics.Tracker
	logg      *logger.Logger
	currency  string

	// mu serializes mutations, including their persist call.
	mu sync.Mutex

	stateMu sync.RWMutex
	lines   []Line
	loaded  bool

	subsMu    sync.Mutex
	subs      map[int]Listener
	nextSubID int

	unsubscribe func()
}

// NewStore creates a store for profileID and starts following external
// writes to its cart key. The cart is not read until Load or the first
// mutation.
func NewStore(profileID string, st storage.Store, opts Options) (*Store, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	if st == nil {
		return nil, errors.New("cart storage is required")
	}
	tracker := opts.Tracker
	if tracker == nil {
		tracker = analytics.Nop{}
	}
	s := &Store{
		profileID: profileID,
		key:       storage.Key(profileID, storage.CartKey),
		origin:    uuid.NewString(),
		storage:   st,
		tracker:   tracker,
		logg:      opts.Logger,
		currency:  opts.Currency,
		subs:      map[int]Listener{},
	}
	s.unsubscribe = st.Subscribe(s.key, s.origin, s.handleExternal)
	return s, nil
}

// ProfileID returns the owning profile.
func (s *Store) ProfileID() string {
	return s.profileID
}

// Load hydrates the in-memory cart from storage.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	lines, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(lines)
	return nil
}

// Loaded reports whether the cart has been hydrated.
func (s *Store) Loaded() bool {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.loaded
}

func (s *Store) loadLocked(ctx context.Context) ([]Line, error) {
	raw, ok, err := s.storage.Get(ctx, s.key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	var lines []Line
	if ok {
		lines, err = Decode(raw)
		if err != nil {
			// a corrupt document is treated as an empty cart
			s.warn(ctx, "discarding unreadable persisted cart", err)
			lines = nil
		}
	}
	s.stateMu.Lock()
	s.lines = lines
	s.loaded = true
	s.stateMu.Unlock()
	return lines, nil
}

// AddToCart merges the product into the cart and returns the resulting line.
// A quantity below one adds a single unit.
func (s *Store) AddToCart(ctx context.Context, product *Product, opts AddOptions) (Line, error) {
	if product == nil || strings.TrimSpace(product.ID) == "" {
		return Line{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	quantity := opts.Quantity
	if quantity < 1 {
		quantity = 1
	}
	incoming := NewLine(*product, quantity, opts.Size, opts.Color)
	id := incoming.ID()

	var result Line
	_, err := s.mutate(ctx, func(lines []Line) ([]Line, bool) {
		next, _ := Merge(lines, incoming)
		result, _ = find(next, id)
		return next, true
	})
	if err != nil {
		return Line{}, err
	}

	s.track(ctx, analytics.EventAddToCart, incoming, quantity)
	return result, nil
}

// RemoveFromCart deletes the line. Removing an unknown line is a no-op.
func (s *Store) RemoveFromCart(ctx context.Context, id LineID) error {
	var removed Line
	changed, err := s.mutate(ctx, func(lines []Line) ([]Line, bool) {
		idx := indexOf(lines, id)
		if idx < 0 {
			return lines, false
		}
		removed = lines[idx]
		return append(lines[:idx], lines[idx+1:]...), true
	})
	if err != nil || !changed {
		return err
	}
	s.track(ctx, analytics.EventRemoveFromCart, removed, removed.Quantity)
	return nil
}

// UpdateQuantity sets the quantity of a line. A quantity of zero or less
// removes the line; an unknown line is a no-op.
func (s *Store) UpdateQuantity(ctx context.Context, id LineID, quantity int) error {
	if quantity <= 0 {
		return s.RemoveFromCart(ctx, id)
	}
	var updated Line
	changed, err := s.mutate(ctx, func(lines []Line) ([]Line, bool) {
		idx := indexOf(lines, id)
		if idx < 0 || lines[idx].Quantity == quantity {
			return lines, false
		}
		lines[idx].Quantity = quantity
		updated = lines[idx]
		return lines, true
	})
	if err != nil || !changed {
		return err
	}
	s.track(ctx, analytics.EventUpdateCart, updated, quantity)
	return nil
}

// ClearCart empties the cart.
func (s *Store) ClearCart(ctx context.Context) error {
	_, err := s.mutate(ctx, func(lines []Line) ([]Line, bool) {
		return nil, len(lines) > 0
	})
	return err
}

// Lines returns a copy of the current cart.
func (s *Store) Lines() []Line {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return CloneLines(s.lines)
}

// Total is the sum of price times quantity; invalid prices count as zero.
func (s *Store) Total() decimal.Decimal {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// ItemsCount is the sum of quantities.
func (s *Store) ItemsCount() int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return countItems(s.lines)
}

// IsInCart reports whether a line with the given identity exists.
func (s *Store) IsInCart(productID, size, color string) bool {
	return s.ItemQuantity(productID, size, color) > 0
}

// ItemQuantity returns the quantity of the identified line, or zero.
func (s *Store) ItemQuantity(productID, size, color string) int {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	line, ok := find(s.lines, NewLineID(productID, size, color))
	if !ok {
		return 0
	}
	return line.Quantity
}

// Subscribe registers fn for every cart change. The returned func cancels it.
func (s *Store) Subscribe(fn Listener) func() {
	s.subsMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Close stops following external writes.
func (s *Store) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// mutate applies fn to a copy of the cart and persists the result before it
// becomes visible. A failed persist leaves the in-memory cart untouched.
func (s *Store) mutate(ctx context.Context, fn func([]Line) ([]Line, bool)) (bool, error) {
	s.mu.Lock()
	next, changed, err := s.mutateLocked(ctx, fn)
	s.mu.Unlock()
	if err != nil || !changed {
		return false, err
	}
	s.notify(next)
	return true, nil
}

func (s *Store) mutateLocked(ctx context.Context, fn func([]Line) ([]Line, bool)) ([]Line, bool, error) {
	// a caller that gave up while waiting for mu must not write
	if err := ctx.Err(); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "cart mutation abandoned")
	}
	if !s.Loaded() {
		if _, err := s.loadLocked(ctx); err != nil {
			return nil, false, err
		}
	}

	next, changed := fn(s.Lines())
	if !changed {
		return nil, false, nil
	}

	raw, err := Encode(next)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode cart")
	}
	if err := s.storage.Set(ctx, s.key, raw, s.origin); err != nil {
		s.logError(ctx, "persist cart failed", err)
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist cart")
	}

	s.stateMu.Lock()
	s.lines = next
	s.stateMu.Unlock()
	return next, true, nil
}

func (s *Store) handleExternal(change storage.Change) {
	var lines []Line
	if !change.Deleted {
		decoded, err := Decode(change.Value)
		if err != nil {
			s.warn(context.Background(), "ignoring unreadable cart change", err)
			return
		}
		lines = decoded
	}
	s.stateMu.Lock()
	s.lines = lines
	s.loaded = true
	s.stateMu.Unlock()
	s.notify(lines)
}

func (s *Store) notify(lines []Line) {
	s.subsMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range listeners {
		fn(CloneLines(lines))
	}
}

func (s *Store) track(ctx context.Context, name analytics.EventName, line Line, quantity int) {
	price := line.Price.OrZero()
	s.tracker.Track(ctx, analytics.Event{
		Name:      name,
		ProfileID: s.profileID,
		Currency:  s.currency,
		Value:     price.Mul(decimal.NewFromInt(int64(quantity))),
		Quantity:  quantity,
		Items:     []analytics.Item{EventItem(line, quantity)},
	})
}

func (s *Store) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithProfileID(ctx, s.profileID)
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func (s *Store) logError(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Error(s.logg.WithProfileID(ctx, s.profileID), msg, err)
}

// EventItem converts a line to its analytics representation.
func EventItem(line Line, quantity int) analytics.Item {
	return analytics.Item{
		ProductID: line.ProductID,
		Title:     line.Title,
		Price:     line.Price.OrZero(),
		Quantity:  quantity,
		Size:      deref(line.SelectedSize),
		Color:     deref(line.SelectedColor),
	}
}

// EventItems converts every line.
func EventItems(lines []Line) []analytics.Item {
	items := make([]analytics.Item, 0, len(lines))
	for _, l := range lines {
		items = append(items, EventItem(l, l.Quantity))
	}
	return items
}

func countItems(lines []Line) int {
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return count
}

func indexOf(lines []Line, id LineID) int {
	for i := range lines {
		if lines[i].ID() == id {
			return i
		}
	}
	return -1
}

func find(lines []Line, id LineID) (Line, bool) {
	idx := indexOf(lines, id)
	if idx < 0 {
		return Line{}, false
	}
	return lines[idx], true
}

package orders

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/internal/storage"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubRepo struct {
	mu       sync.Mutex
	creates  int
	created  []*models.Order
	createFn func(ctx context.Context, order *models.Order) (*models.Order, error)
	byID     map[string]*models.Order
	affected int64
}

func newStubRepo() *stubRepo {
	return &stubRepo{byID: map[string]*models.Order{}, affected: 1}
}

func (r *stubRepo) WithTx(*gorm.DB) Repository { return r }

func (r *stubRepo) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	r.mu.Lock()
	r.creates++
	fn := r.createFn
	r.mu.Unlock()
	if fn != nil {
		return fn(ctx, order)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, order)
	r.byID[order.TrackingID] = order
	return order, nil
}

func (r *stubRepo) FindByTrackingID(_ context.Context, _ string, trackingID string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.byID[trackingID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *order
	return &cp, nil
}

func (r *stubRepo) List(context.Context, string, pagination.Params, *enums.OrderStatus) ([]models.Order, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Order, 0, len(r.created))
	for _, o := range r.created {
		out = append(out, *o)
	}
	return out, "", nil
}

func (r *stubRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _, _ enums.OrderStatus) (int64, error) {
	return r.affected, nil
}

type stubSources struct {
	resolved checkout.Resolved
	err      error
	clearErr error
	resolves int
	cleared  []checkout.Source
}

func (s *stubSources) Resolve(context.Context, string) (checkout.Resolved, error) {
	s.resolves++
	return s.resolved, s.err
}

func (s *stubSources) Clear(_ context.Context, _ string, source checkout.Source) error {
	if s.clearErr != nil {
		return s.clearErr
	}
	s.cleared = append(s.cleared, source)
	return nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recordingTracker) Track(_ context.Context, e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingTracker) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func validDetails() CustomerDetails {
	return CustomerDetails{
		FullName: "  Rahim Uddin ",
		Phone:    "01700000000",
		Address:  "House 1, Road 2",
		City:     "Dhaka",
	}
}

func testLine(id string, price int64, qty int) cart.Line {
	return cart.NewLine(cart.Product{ID: id, Title: strings.ToUpper(id), Price: types.AmountFromInt(price), Images: []string{id + ".jpg"}}, qty, "", "")
}

func newTestService(t *testing.T, repo Repository, sources SourceResolver, tracker analytics.Tracker, timeout time.Duration) Service {
	t.Helper()
	svc, err := NewService(repo, sources, Options{
		Scope:         "storefront",
		SubmitTimeout: timeout,
		Currency:      "BDT",
		Tracker:       tracker,
	})
	require.NoError(t, err)
	return svc
}

func TestSubmitCreatesOrderAndClearsSource(t *testing.T) {
	repo := newStubRepo()
	sources := &stubSources{resolved: checkout.Resolved{
		Lines:  []cart.Line{testLine("tee", 1200, 2)},
		Source: checkout.SourceStaging,
	}}
	tracker := &recordingTracker{}
	svc := newTestService(t, repo, sources, tracker, time.Second)

	conf, err := svc.Submit(context.Background(), "p1", validDetails())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.creates)
	require.Len(t, repo.created, 1)
	order := repo.created[0]
	assert.Equal(t, "Rahim Uddin", order.FullName)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, "storefront", order.Scope)
	assert.Equal(t, "staging", order.Source)
	assert.Nil(t, order.Email)
	require.Len(t, order.Items, 1)
	require.NotNil(t, order.Items[0].Image)
	assert.Equal(t, "tee.jpg", *order.Items[0].Image)

	assert.True(t, conf.Subtotal.Equal(decimal.NewFromInt(2400)))
	assert.True(t, conf.Shipping.Equal(decimal.NewFromInt(220)))
	assert.True(t, conf.Total.Equal(decimal.NewFromInt(2620)))
	assert.Equal(t, "/order-status?trackingId="+conf.TrackingID, conf.Redirect)
	assert.Equal(t, []checkout.Source{checkout.SourceStaging}, sources.cleared)

	require.Equal(t, 1, tracker.count())
	assert.Equal(t, analytics.EventPurchase, tracker.events[0].Name)
	assert.Equal(t, conf.TrackingID, tracker.events[0].TrackingID)
	assert.Equal(t, 2, tracker.events[0].Quantity)
}

func TestSubmitFailureLeavesSourceIntact(t *testing.T) {
	repo := newStubRepo()
	repo.createFn = func(context.Context, *models.Order) (*models.Order, error) {
		return nil, errors.New("connection refused")
	}
	sources := &stubSources{resolved: checkout.Resolved{
		Lines:  []cart.Line{testLine("tee", 1200, 1)},
		Source: checkout.SourceCart,
	}}
	tracker := &recordingTracker{}
	svc := newTestService(t, repo, sources, tracker, time.Second)

	_, err := svc.Submit(context.Background(), "p1", validDetails())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 1, repo.creates)
	assert.Empty(t, sources.cleared)
	assert.Zero(t, tracker.count())
}

func TestSubmitTimeout(t *testing.T) {
	repo := newStubRepo()
	repo.createFn = func(ctx context.Context, _ *models.Order) (*models.Order, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sources := &stubSources{resolved: checkout.Resolved{
		Lines:  []cart.Line{testLine("tee", 1200, 1)},
		Source: checkout.SourceCart,
	}}
	svc := newTestService(t, repo, sources, analytics.Nop{}, 20*time.Millisecond)

	_, err := svc.Submit(context.Background(), "p1", validDetails())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeTimeout))
	assert.Equal(t, 1, repo.creates)
	assert.Empty(t, sources.cleared)
}

func TestSubmitDuplicateMapsToConflict(t *testing.T) {
	repo := newStubRepo()
	repo.createFn = func(context.Context, *models.Order) (*models.Order, error) {
		return nil, errors.New("UNIQUE constraint failed: orders.tracking_id")
	}
	sources := &stubSources{resolved: checkout.Resolved{
		Lines:  []cart.Line{testLine("tee", 1200, 1)},
		Source: checkout.SourceCart,
	}}
	svc := newTestService(t, repo, sources, analytics.Nop{}, time.Second)

	_, err := svc.Submit(context.Background(), "p1", validDetails())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
}

func TestSubmitValidatesCustomerDetails(t *testing.T) {
	repo := newStubRepo()
	sources := &stubSources{}
	svc := newTestService(t, repo, sources, analytics.Nop{}, time.Second)

	details := validDetails()
	details.Phone = "   "
	_, err := svc.Submit(context.Background(), "p1", details)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	details = validDetails()
	details.Email = "not-an-email"
	_, err = svc.Submit(context.Background(), "p1", details)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	assert.Zero(t, sources.resolves)
	assert.Zero(t, repo.creates)
}

func TestSubmitRejectsEmptyList(t *testing.T) {
	repo := newStubRepo()
	sources := &stubSources{resolved: checkout.Resolved{Source: checkout.SourceCart}}
	svc := newTestService(t, repo, sources, analytics.Nop{}, time.Second)

	_, err := svc.Submit(context.Background(), "p1", validDetails())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, repo.creates)
}

func TestSubmitRejectsInvalidPrices(t *testing.T) {
	repo := newStubRepo()
	bad := testLine("mystery", 0, 1)
	bad.Price = types.Amount{}
	sources := &stubSources{resolved: checkout.Resolved{
		Lines:  []cart.Line{testLine("tee", 1200, 1), bad},
		Source: checkout.SourceCart,
	}}
	svc := newTestService(t, repo, sources, analytics.Nop{}, time.Second)

	_, err := svc.Submit(context.Background(), "p1", validDetails())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Zero(t, repo.creates)
}

func TestSubmitClearErrorStillConfirms(t *testing.T) {
	repo := newStubRepo()
	sources := &stubSources{
		resolved: checkout.Resolved{Lines: []cart.Line{testLine("tee", 3000, 1)}, Source: checkout.SourceCart},
		clearErr: errors.New("redis down"),
	}
	svc := newTestService(t, repo, sources, analytics.Nop{}, time.Second)

	conf, err := svc.Submit(context.Background(), "p1", validDetails())
	require.NoError(t, err)
	assert.True(t, conf.Shipping.IsZero())
}

func TestSubmitWithStagingClearsOnlyStaging(t *testing.T) {
	ctx := context.Background()
	db := setupOrdersTestDB(t)
	repo := NewRepository(db)
	mem := storage.NewMemory()
	carts := &cartLines{lines: []cart.Line{testLine("cart-item", 500, 1)}}
	staging, err := checkout.NewStaging(mem, carts)
	require.NoError(t, err)
	require.NoError(t, staging.Stage(ctx, "p1", []cart.Line{testLine("tee", 1300, 2)}))

	svc := newTestService(t, repo, staging, analytics.Nop{}, time.Second)
	conf, err := svc.Submit(ctx, "p1", validDetails())
	require.NoError(t, err)
	assert.True(t, conf.Total.Equal(decimal.NewFromInt(2600)))

	resolved, err := staging.Resolve(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, checkout.SourceCart, resolved.Source)
	require.Len(t, resolved.Lines, 1)
	assert.Equal(t, "cart-item", resolved.Lines[0].ProductID)

	tracked, err := svc.Track(ctx, strings.ToLower(conf.TrackingID))
	require.NoError(t, err)
	assert.Equal(t, conf.TrackingID, tracked.TrackingID)
	assert.True(t, tracked.Total.Equal(decimal.NewFromInt(2600)))
	require.Len(t, tracked.Items, 1)
}

func TestTrackOmitsCustomerDetails(t *testing.T) {
	ctx := context.Background()
	repo := newStubRepo()
	sources := &stubSources{resolved: checkout.Resolved{Source: checkout.SourceCart, Lines: []cart.Line{testLine("tee", 1300, 1)}}}
	svc := newTestService(t, repo, sources, analytics.Nop{}, time.Second)

	conf, err := svc.Submit(ctx, "p1", validDetails())
	require.NoError(t, err)

	tracked, err := svc.Track(ctx, conf.TrackingID)
	require.NoError(t, err)
	raw, err := json.Marshal(tracked)
	require.NoError(t, err)
	for _, field := range []string{"customer", "fullName", "phone", "email", "address", "city", "notes", "Rahim"} {
		assert.NotContains(t, string(raw), field)
	}
	assert.Contains(t, string(raw), `"status":"Pending"`)

	list, err := svc.List(ctx, ListParams{Limit: 10})
	require.NoError(t, err)
	for _, o := range list.Orders {
		if o.TrackingID == conf.TrackingID {
			assert.Equal(t, "Rahim Uddin", o.Customer.FullName)
		}
	}
}

type cartLines struct {
	lines []cart.Line
}

func (c *cartLines) CartLines(context.Context, string) ([]cart.Line, error) {
	return cart.CloneLines(c.lines), nil
}

func (c *cartLines) ClearCart(context.Context, string) error {
	c.lines = nil
	return nil
}

func TestTrackNotFound(t *testing.T) {
	svc := newTestService(t, newStubRepo(), &stubSources{}, analytics.Nop{}, time.Second)

	_, err := svc.Track(context.Background(), "NOPE")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Track(context.Background(), "  ")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusTransitions(t *testing.T) {
	repo := newStubRepo()
	repo.byID["T1"] = &models.Order{ID: uuid.New(), TrackingID: "T1", Status: enums.OrderStatusShipped}
	repo.byID["T2"] = &models.Order{ID: uuid.New(), TrackingID: "T2", Status: enums.OrderStatusDelivered}
	svc := newTestService(t, repo, &stubSources{}, analytics.Nop{}, time.Second)
	ctx := context.Background()

	updated, err := svc.UpdateStatus(ctx, "t1", enums.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, updated.Status)

	_, err = svc.UpdateStatus(ctx, "T2", enums.OrderStatusCancelled)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.UpdateStatus(ctx, "T1", enums.OrderStatus("Lost"))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	repo.affected = 0
	_, err = svc.UpdateStatus(ctx, "T1", enums.OrderStatusCancelled)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestListRejectsBadCursor(t *testing.T) {
	svc := newTestService(t, newStubRepo(), &stubSources{}, analytics.Nop{}, time.Second)

	_, err := svc.List(context.Background(), ListParams{Cursor: "%%%"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	list, err := svc.List(context.Background(), ListParams{Limit: 10})
	require.NoError(t, err)
	assert.NotNil(t, list.Orders)
}

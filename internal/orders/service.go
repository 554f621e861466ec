package orders

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/analytics"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/checkout"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultScope           = "storefront"
	defaultSubmitTimeout   = 15 * time.Second
	defaultOrderStatusPath = "/order-status"
)

// SourceResolver resolves and clears the list an order is placed from.
type SourceResolver interface {
	Resolve(ctx context.Context, profileID string) (checkout.Resolved, error)
	Clear(ctx context.Context, profileID string, source checkout.Source) error
}

// Service exposes order submission, tracking and admin operations.
type Service interface {
	Submit(ctx context.Context, profileID string, details CustomerDetails) (*Confirmation, error)
	Track(ctx context.Context, trackingID string) (*TrackingView, error)
	List(ctx context.Context, params ListParams) (*OrderList, error)
	UpdateStatus(ctx context.Context, trackingID string, next enums.OrderStatus) (*OrderDTO, error)
}

// Options configures the order service.
type Options struct {
	Scope           string
	SubmitTimeout   time.Duration
	Rule            checkout.ShippingRule
	Currency        string
	OrderStatusPath string
	Tracker         analytics.Tracker
	Logger          *logger.Logger
	Now             func() time.Time
	// Tx runs status updates in a transaction when set.
	Tx TxRunner
}

// TxRunner executes fn inside a database transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	sources  SourceResolver
	validate *validator.Validate
	tracking *TrackingGenerator
	opts     Options
}

// NewService builds the order service.
func NewService(repo Repository, sources SourceResolver, opts Options) (Service, error) {
	if repo == nil {
		return nil, errors.New("orders repository required")
	}
	if sources == nil {
		return nil, errors.New("order source resolver required")
	}
	if strings.TrimSpace(opts.Scope) == "" {
		opts.Scope = defaultScope
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = defaultSubmitTimeout
	}
	if opts.Rule.FreeThreshold.IsZero() && opts.Rule.FlatFee.IsZero() {
		opts.Rule = checkout.DefaultShippingRule()
	}
	if opts.OrderStatusPath == "" {
		opts.OrderStatusPath = defaultOrderStatusPath
	}
	if opts.Tracker == nil {
		opts.Tracker = analytics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &service{
		repo:     repo,
		sources:  sources,
		validate: validator.New(),
		tracking: NewTrackingGenerator(opts.Now),
		opts:     opts,
	}, nil
}

func (s *service) Submit(ctx context.Context, profileID string, details CustomerDetails) (*Confirmation, error) {
	profileID = strings.TrimSpace(profileID)
	if profileID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "profile id is required")
	}
	details = details.trimmed()
	if err := s.validate.Struct(details); err != nil {
		return nil, validationError(err)
	}

	resolved, err := s.sources.Resolve(ctx, profileID)
	if err != nil {
		return nil, err
	}
	if len(resolved.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no items to order")
	}
	if err := pkgcheckout.ValidateLines(validationInputs(resolved.Lines)); err != nil {
		return nil, err
	}
	totals := checkout.Calculate(resolved.Lines, s.opts.Rule)

	trackingID, err := s.tracking.Next()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate tracking id")
	}
	now := s.opts.Now().UTC()
	order := &models.Order{
		ID:         uuid.New(),
		TrackingID: trackingID,
		Scope:      s.opts.Scope,
		ProfileID:  profileID,
		Status:     enums.OrderStatusPending,
		FullName:   details.FullName,
		Phone:      details.Phone,
		Email:      optional(details.Email),
		Address:    details.Address,
		City:       details.City,
		Notes:      optional(details.Notes),
		Items:      orderItems(resolved.Lines),
		Subtotal:   totals.Subtotal,
		Shipping:   totals.Shipping,
		Total:      totals.Total,
		Currency:   s.opts.Currency,
		Source:     resolved.Source.String(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	createCtx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()
	created, err := s.repo.Create(createCtx, order)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(createCtx.Err(), context.DeadlineExceeded):
			return nil, pkgerrors.Wrap(pkgerrors.CodeTimeout, err, "order submission timed out")
		case db.IsUniqueViolation(err, ""):
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "order already exists")
		default:
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
	}

	if err := s.sources.Clear(ctx, profileID, resolved.Source); err != nil && s.opts.Logger != nil {
		logCtx := s.opts.Logger.WithFields(ctx, map[string]any{
			"tracking_id": created.TrackingID,
			"source":      resolved.Source.String(),
		})
		s.opts.Logger.Error(logCtx, "failed to clear order source", err)
	}

	s.opts.Tracker.Track(ctx, analytics.Event{
		Name:       analytics.EventPurchase,
		ProfileID:  profileID,
		Currency:   s.opts.Currency,
		Value:      totals.Total,
		Quantity:   totals.ItemsCount,
		Items:      cart.EventItems(resolved.Lines),
		TrackingID: created.TrackingID,
	})

	if s.opts.Logger != nil {
		logCtx := s.opts.Logger.WithField(ctx, "tracking_id", created.TrackingID)
		s.opts.Logger.Info(logCtx, "order submitted")
	}

	return &Confirmation{
		OrderID:    created.ID,
		TrackingID: created.TrackingID,
		Status:     created.Status,
		Subtotal:   created.Subtotal,
		Shipping:   created.Shipping,
		Total:      created.Total,
		Currency:   created.Currency,
		Redirect:   s.redirectFor(created.TrackingID),
	}, nil
}

func (s *service) Track(ctx context.Context, trackingID string) (*TrackingView, error) {
	order, err := s.find(ctx, trackingID)
	if err != nil {
		return nil, err
	}
	view := toTrackingView(*order)
	return &view, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*OrderList, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.List(ctx, s.opts.Scope, pagination.Params{Limit: params.Limit, Cursor: params.Cursor}, params.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Orders = append(list.Orders, toDTO(row))
	}
	return list, nil
}

func (s *service) UpdateStatus(ctx context.Context, trackingID string, next enums.OrderStatus) (*OrderDTO, error) {
	if !next.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	var order *models.Order
	err := s.inTx(ctx, func(repo Repository) error {
		found, err := s.findWith(ctx, repo, trackingID)
		if err != nil {
			return err
		}
		if !found.Status.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").WithDetails(map[string]any{
				"from": found.Status,
				"to":   next,
			})
		}
		affected, err := repo.UpdateStatus(ctx, found.ID, found.Status, next)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
		}
		order = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Status = next
	order.UpdatedAt = s.opts.Now().UTC()
	dto := toDTO(*order)
	return &dto, nil
}

func (s *service) inTx(ctx context.Context, fn func(repo Repository) error) error {
	if s.opts.Tx == nil {
		return fn(s.repo)
	}
	return s.opts.Tx.WithTx(ctx, func(tx *gorm.DB) error {
		return fn(s.repo.WithTx(tx))
	})
}

func (s *service) find(ctx context.Context, trackingID string) (*models.Order, error) {
	return s.findWith(ctx, s.repo, trackingID)
}

func (s *service) findWith(ctx context.Context, repo Repository, trackingID string) (*models.Order, error) {
	trackingID = NormalizeTrackingID(trackingID)
	if trackingID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking id is required")
	}
	order, err := repo.FindByTrackingID(ctx, s.opts.Scope, trackingID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) redirectFor(trackingID string) string {
	return s.opts.OrderStatusPath + "?trackingId=" + url.QueryEscape(trackingID)
}

func (d CustomerDetails) trimmed() CustomerDetails {
	return CustomerDetails{
		FullName: strings.TrimSpace(d.FullName),
		Phone:    strings.TrimSpace(d.Phone),
		Email:    strings.TrimSpace(d.Email),
		Address:  strings.TrimSpace(d.Address),
		City:     strings.TrimSpace(d.City),
		Notes:    strings.TrimSpace(d.Notes),
	}
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		details := map[string]string{}
		for _, fe := range fieldErrs {
			details[fe.Field()] = fe.Tag()
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid customer details").WithDetails(details)
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid customer details")
}

func validationInputs(lines []cart.Line) []pkgcheckout.LineValidationInput {
	inputs := make([]pkgcheckout.LineValidationInput, 0, len(lines))
	for _, l := range lines {
		inputs = append(inputs, pkgcheckout.LineValidationInput{
			LineID:     l.ID().Token(),
			ProductID:  l.ProductID,
			Title:      l.Title,
			PriceValid: l.Price.Valid,
			Quantity:   l.Quantity,
		})
	}
	return inputs
}

func orderItems(lines []cart.Line) []models.OrderItem {
	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		item := models.OrderItem{
			ProductID: l.ProductID,
			Title:     l.Title,
			Price:     l.Price.OrZero(),
			Quantity:  l.Quantity,
			Size:      copyString(l.SelectedSize),
			Color:     copyString(l.SelectedColor),
		}
		if len(l.Images) > 0 {
			item.Image = optional(l.Images[0])
		}
		items = append(items, item)
	}
	return items
}

func copyString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

package orders

import (
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CustomerDetails are the contact and delivery fields of the checkout form.
type CustomerDetails struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Phone    string `json:"phone" validate:"required,max=32"`
	Email    string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Address  string `json:"address" validate:"required,max=500"`
	City     string `json:"city" validate:"required,max=120"`
	Notes    string `json:"notes,omitempty" validate:"max=1000"`
}

// Confirmation is returned after a successful submission.
type Confirmation struct {
	OrderID    uuid.UUID         `json:"orderId"`
	TrackingID string            `json:"trackingId"`
	Status     enums.OrderStatus `json:"status"`
	Subtotal   decimal.Decimal   `json:"subtotal"`
	Shipping   decimal.Decimal   `json:"shipping"`
	Total      decimal.Decimal   `json:"total"`
	Currency   string            `json:"currency"`
	Redirect   string            `json:"redirect"`
}

// OrderDTO is the staff representation of an order, customer details
// included.
type OrderDTO struct {
	ID         uuid.UUID          `json:"id"`
	TrackingID string             `json:"trackingId"`
	Status     enums.OrderStatus  `json:"status"`
	Customer   CustomerDetails    `json:"customer"`
	Items      []models.OrderItem `json:"items"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	Shipping   decimal.Decimal    `json:"shipping"`
	Total      decimal.Decimal    `json:"total"`
	Currency   string             `json:"currency"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// TrackingView is what the public order-status lookup returns. It carries no
// customer contact or delivery details.
type TrackingView struct {
	TrackingID string             `json:"trackingId"`
	Status     enums.OrderStatus  `json:"status"`
	Items      []models.OrderItem `json:"items"`
	Subtotal   decimal.Decimal    `json:"subtotal"`
	Shipping   decimal.Decimal    `json:"shipping"`
	Total      decimal.Decimal    `json:"total"`
	Currency   string             `json:"currency"`
	CreatedAt  time.Time          `json:"createdAt"`
	UpdatedAt  time.Time          `json:"updatedAt"`
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

// ListParams are the admin list inputs.
type ListParams struct {
	Limit  int
	Cursor string
	Status *enums.OrderStatus
}

func toDTO(o models.Order) OrderDTO {
	items := o.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	return OrderDTO{
		ID:         o.ID,
		TrackingID: o.TrackingID,
		Status:     o.Status,
		Customer: CustomerDetails{
			FullName: o.FullName,
			Phone:    o.Phone,
			Email:    deref(o.Email),
			Address:  o.Address,
			City:     o.City,
			Notes:    deref(o.Notes),
		},
		Items:     items,
		Subtotal:  o.Subtotal,
		Shipping:  o.Shipping,
		Total:     o.Total,
		Currency:  o.Currency,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

func toTrackingView(o models.Order) TrackingView {
	items := o.Items
	if items == nil {
		items = []models.OrderItem{}
	}
	return TrackingView{
		TrackingID: o.TrackingID,
		Status:     o.Status,
		Items:      items,
		Subtotal:   o.Subtotal,
		Shipping:   o.Shipping,
		Total:      o.Total,
		Currency:   o.Currency,
		CreatedAt:  o.CreatedAt,
		UpdatedAt:  o.UpdatedAt,
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is a placed storefront order.
type Order struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TrackingID string            `gorm:"column:tracking_id;not null;uniqueIndex"`
	Scope      string            `gorm:"column:scope;not null"`
	ProfileID  string            `gorm:"column:profile_id;not null"`
	Status     enums.OrderStatus `gorm:"column:status;not null;default:'Pending'"`
	FullName   string            `gorm:"column:full_name;not null"`
	Phone      string            `gorm:"column:phone;not null"`
	Email      *string           `gorm:"column:email"`
	Address    string            `gorm:"column:address;not null"`
	City       string            `gorm:"column:city;not null"`
	Notes      *string           `gorm:"column:notes"`
	Items      []OrderItem       `gorm:"column:items;type:jsonb;serializer:json;not null"`
	Subtotal   decimal.Decimal   `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Shipping   decimal.Decimal   `gorm:"column:shipping;type:numeric(12,2);not null"`
	Total      decimal.Decimal   `gorm:"column:total;type:numeric(12,2);not null"`
	Currency   string            `gorm:"column:currency;not null"`
	Source     string            `gorm:"column:source;not null"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// OrderItem is the purchased line snapshot stored with an order.
type OrderItem struct {
	ProductID string          `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Size      *string         `json:"size,omitempty"`
	Color     *string         `json:"color,omitempty"`
	Image     *string         `json:"image,omitempty"`
}

func (Order) TableName() string { return "orders" }

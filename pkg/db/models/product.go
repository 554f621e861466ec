package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product is a catalog listing. IDs are stable slugs shared with cart lines.
type Product struct {
	ID             string           `gorm:"column:id;primaryKey"`
	Title          string           `gorm:"column:title;not null"`
	Description    *string          `gorm:"column:description"`
	Price          decimal.Decimal  `gorm:"column:price;type:numeric(12,2);not null"`
	CompareAtPrice *decimal.Decimal `gorm:"column:compare_at_price;type:numeric(12,2)"`
	Images         pq.StringArray   `gorm:"column:images;type:text[];not null;default:'{}'"`
	Sizes          pq.StringArray   `gorm:"column:sizes;type:text[];not null;default:'{}'"`
	Colors         pq.StringArray   `gorm:"column:colors;type:text[];not null;default:'{}'"`
	Collection     string           `gorm:"column:collection;not null;index"`
	IsActive       bool             `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

// Review is a customer rating of a product.
type Review struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID string    `gorm:"column:product_id;not null;index"`
	Author    string    `gorm:"column:author;not null"`
	Rating    int       `gorm:"column:rating;not null"`
	Comment   *string   `gorm:"column:comment"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (Review) TableName() string { return "reviews" }

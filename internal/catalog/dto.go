package catalog

import (
	"time"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductDTO is the public product representation.
type ProductDTO struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Description    string           `json:"description,omitempty"`
	Price          decimal.Decimal  `json:"price"`
	CompareAtPrice *decimal.Decimal `json:"compareAtPrice,omitempty"`
	Images         []string         `json:"images"`
	Sizes          []string         `json:"sizes"`
	Colors         []string         `json:"colors"`
	Collection     string           `json:"collection"`
}

// CartProduct returns the snapshot denormalized into cart lines.
func (p ProductDTO) CartProduct() cart.Product {
	return cart.Product{
		ID:     p.ID,
		Title:  p.Title,
		Price:  types.NewAmount(p.Price),
		Images: append([]string(nil), p.Images...),
	}
}

// HasSize reports whether size is one of the offered sizes. Products without
// sizes accept only a blank selection.
func (p ProductDTO) HasSize(size string) bool {
	return offers(p.Sizes, size)
}

// HasColor reports whether color is one of the offered colors.
func (p ProductDTO) HasColor(color string) bool {
	return offers(p.Colors, color)
}

func offers(options []string, value string) bool {
	if value == "" {
		return true
	}
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}

// ProductList wraps a page of products.
type ProductList struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// ReviewDTO is the public review representation.
type ReviewDTO struct {
	ID        uuid.UUID `json:"id"`
	ProductID string    `json:"productId"`
	Author    string    `json:"author"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReviewList wraps a page of reviews plus the product's rating summary.
type ReviewList struct {
	Reviews    []ReviewDTO `json:"reviews"`
	Count      int64       `json:"count"`
	Average    float64     `json:"average"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

// CreateReviewInput is the review submission payload.
type CreateReviewInput struct {
	Author  string `json:"author" validate:"required,max=80"`
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment,omitempty" validate:"max=2000"`
}

// RatingSummary aggregates review ratings for a product.
type RatingSummary struct {
	Count   int64
	Average float64
}

func toProductDTO(p models.Product) ProductDTO {
	dto := ProductDTO{
		ID:             p.ID,
		Title:          p.Title,
		Price:          p.Price,
		CompareAtPrice: p.CompareAtPrice,
		Images:         nonNil(p.Images),
		Sizes:          nonNil(p.Sizes),
		Colors:         nonNil(p.Colors),
		Collection:     p.Collection,
	}
	if p.Description != nil {
		dto.Description = *p.Description
	}
	return dto
}

func toReviewDTO(r models.Review) ReviewDTO {
	dto := ReviewDTO{
		ID:        r.ID,
		ProductID: r.ProductID,
		Author:    r.Author,
		Rating:    r.Rating,
		CreatedAt: r.CreatedAt,
	}
	if r.Comment != nil {
		dto.Comment = *r.Comment
	}
	return dto
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return append([]string(nil), values...)
}

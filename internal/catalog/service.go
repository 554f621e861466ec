package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service exposes catalog reads and review creation.
type Service interface {
	ProductByID(ctx context.Context, id string) (*ProductDTO, error)
	ProductsByCollection(ctx context.Context, collection string, params pagination.Params) (*ProductList, error)
	Reviews(ctx context.Context, productID string, params pagination.Params) (*ReviewList, error)
	CreateReview(ctx context.Context, productID string, input CreateReviewInput) (*ReviewDTO, error)
}

type service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

// NewService builds the catalog service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, errors.New("catalog repository required")
	}
	return &service{repo: repo, validate: validator.New(), now: time.Now}, nil
}

func (s *service) ProductByID(ctx context.Context, id string) (*ProductDTO, error) {
	product, err := s.product(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toProductDTO(*product)
	return &dto, nil
}

func (s *service) ProductsByCollection(ctx context.Context, collection string, params pagination.Params) (*ProductList, error) {
	rows, next, err := s.repo.ListByCollection(ctx, strings.TrimSpace(collection), params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	list := &ProductList{Products: make([]ProductDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		list.Products = append(list.Products, toProductDTO(row))
	}
	return list, nil
}

func (s *service) Reviews(ctx context.Context, productID string, params pagination.Params) (*ReviewList, error) {
	if _, err := s.product(ctx, productID); err != nil {
		return nil, err
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	productID = strings.TrimSpace(productID)
	rows, next, err := s.repo.ListReviews(ctx, productID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	summary, err := s.repo.RatingSummary(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "summarize reviews")
	}
	list := &ReviewList{
		Reviews:    make([]ReviewDTO, 0, len(rows)),
		Count:      summary.Count,
		Average:    summary.Average,
		NextCursor: next,
	}
	for _, row := range rows {
		list.Reviews = append(list.Reviews, toReviewDTO(row))
	}
	return list, nil
}

func (s *service) CreateReview(ctx context.Context, productID string, input CreateReviewInput) (*ReviewDTO, error) {
	input.Author = strings.TrimSpace(input.Author)
	input.Comment = strings.TrimSpace(input.Comment)
	if err := s.validate.Struct(input); err != nil {
		return nil, reviewValidationError(err)
	}
	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	review := &models.Review{
		ID:        uuid.New(),
		ProductID: product.ID,
		Author:    input.Author,
		Rating:    input.Rating,
		CreatedAt: s.now().UTC(),
	}
	if input.Comment != "" {
		comment := input.Comment
		review.Comment = &comment
	}
	created, err := s.repo.CreateReview(ctx, review)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
	}
	dto := toReviewDTO(*created)
	return &dto, nil
}

func (s *service) product(ctx context.Context, id string) (*models.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	product, err := s.repo.FindProduct(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func reviewValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid review")
	}
	details := map[string]string{}
	for _, fe := range fieldErrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid review").WithDetails(details)
}

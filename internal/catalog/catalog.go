// Package catalog manages categories and products.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrInUse is returned by deletes blocked by rows that still reference
	// the record.
	ErrInUse = errors.New("record is still referenced")
)

type Store interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, id domain.CategoryID) (domain.Category, error)
	CreateCategory(ctx context.Context, c *domain.Category) error
	UpdateCategory(ctx context.Context, id domain.CategoryID, patch domain.CategoryPatch) (domain.Category, error)
	DeleteCategory(ctx context.Context, id domain.CategoryID) error

	ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, int, error)
	GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error)
	CreateProduct(ctx context.Context, p *domain.Product) error
	UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) (domain.Product, error)
	DeleteProduct(ctx context.Context, id domain.ProductID) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

func (s *Service) ListCategories(ctx context.Context) ([]domain.Category, error) {
	cs, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cs, nil
}

// GetCategory returns the category together with its products.
func (s *Service) GetCategory(ctx context.Context, id domain.CategoryID) (domain.Category, error) {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return domain.Category{}, categoryErr(id, err)
	}
	return c, nil
}

func (s *Service) CreateCategory(ctx context.Context, name, description string) (domain.Category, error) {
	c := domain.Category{Name: strings.TrimSpace(name), Description: strings.TrimSpace(description)}
	if c.Name == "" {
		return domain.Category{}, apperr.New(apperr.KindInvalidInput, "category name is required")
	}
	if err := s.store.CreateCategory(ctx, &c); err != nil {
		return domain.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (s *Service) UpdateCategory(ctx context.Context, id domain.CategoryID, patch domain.CategoryPatch) (domain.Category, error) {
	if patch.Empty() {
		return domain.Category{}, apperr.New(apperr.KindInvalidInput, "no fields to update")
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return domain.Category{}, apperr.New(apperr.KindInvalidInput, "category name cannot be empty")
	}
	c, err := s.store.UpdateCategory(ctx, id, patch)
	if err != nil {
		return domain.Category{}, categoryErr(id, err)
	}
	return c, nil
}

// DeleteCategory refuses while any product still belongs to the category.
func (s *Service) DeleteCategory(ctx context.Context, id domain.CategoryID) error {
	err := s.store.DeleteCategory(ctx, id)
	if errors.Is(err, ErrInUse) {
		return apperr.New(apperr.KindConflict, "category still has products").WithKey(id)
	}
	if err != nil {
		return categoryErr(id, err)
	}
	return nil
}

// ListProducts returns one page of products ordered by name.
func (s *Service) ListProducts(ctx context.Context, f domain.ProductFilter) (domain.Page[domain.Product], error) {
	if !f.Page.Valid() {
		return domain.Page[domain.Product]{}, apperr.New(apperr.KindInvalidInput, "invalid pagination parameters")
	}
	f.Search = strings.TrimSpace(f.Search)
	ps, total, err := s.store.ListProducts(ctx, f)
	if err != nil {
		return domain.Page[domain.Product]{}, fmt.Errorf("list products: %w", err)
	}
	return domain.NewPage(ps, total, f.Page), nil
}

// ListByCategory lists a category's products, failing when the category
// does not exist.
func (s *Service) ListByCategory(ctx context.Context, id domain.CategoryID, page domain.PageRequest) (domain.Page[domain.Product], error) {
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return domain.Page[domain.Product]{}, categoryErr(id, err)
	}
	return s.ListProducts(ctx, domain.ProductFilter{CategoryID: id, Page: page})
}

func (s *Service) GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, productErr(id, err)
	}
	return p, nil
}

func (s *Service) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.Name = strings.TrimSpace(p.Name)
	switch {
	case p.Name == "":
		return domain.Product{}, apperr.New(apperr.KindInvalidInput, "product name is required")
	case p.Stock < 0:
		return domain.Product{}, apperr.New(apperr.KindInvalidInput, "stock cannot be negative")
	}
	if err := checkPrice(p.Price); err != nil {
		return domain.Product{}, err
	}
	if err := s.requireCategory(ctx, p.CategoryID); err != nil {
		return domain.Product{}, err
	}
	if err := s.store.CreateProduct(ctx, &p); err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id domain.ProductID, patch domain.ProductPatch) (domain.Product, error) {
	if patch.Empty() {
		return domain.Product{}, apperr.New(apperr.KindInvalidInput, "no fields to update")
	}
	switch {
	case patch.Name != nil && strings.TrimSpace(*patch.Name) == "":
		return domain.Product{}, apperr.New(apperr.KindInvalidInput, "product name cannot be empty")
	case patch.Stock != nil && *patch.Stock < 0:
		return domain.Product{}, apperr.New(apperr.KindInvalidInput, "stock cannot be negative")
	}
	if patch.Price != nil {
		if err := checkPrice(*patch.Price); err != nil {
			return domain.Product{}, err
		}
	}
	if patch.CategoryID != nil {
		if err := s.requireCategory(ctx, *patch.CategoryID); err != nil {
			return domain.Product{}, err
		}
	}
	p, err := s.store.UpdateProduct(ctx, id, patch)
	if err != nil {
		return domain.Product{}, productErr(id, err)
	}
	return p, nil
}

// DeleteProduct refuses while any order line references the product, so
// order history keeps its price snapshots.
func (s *Service) DeleteProduct(ctx context.Context, id domain.ProductID) error {
	err := s.store.DeleteProduct(ctx, id)
	if errors.Is(err, ErrInUse) {
		return apperr.New(apperr.KindConflict, "product is referenced by orders").WithKey(id)
	}
	if err != nil {
		return productErr(id, err)
	}
	return nil
}

func (s *Service) requireCategory(ctx context.Context, id domain.CategoryID) error {
	if id <= 0 {
		return apperr.New(apperr.KindInvalidInput, "category id is required")
	}
	if _, err := s.store.GetCategory(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.Newf(apperr.KindInvalidInput, "category %d does not exist", id).WithKey(id)
		}
		return fmt.Errorf("get category %d: %w", id, err)
	}
	return nil
}

func categoryErr(id domain.CategoryID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.KindNotFound, "category not found").WithKey(id)
	}
	return fmt.Errorf("category %d: %w", id, err)
}

func productErr(id domain.ProductID, err error) error {
	if errors.Is(err, ErrNotFound) {
		return apperr.New(apperr.KindProductNotFound, "product not found").WithKey(id)
	}
	return fmt.Errorf("product %d: %w", id, err)
}

// maxPrice is the first value a NUMERIC(12,2) column cannot hold.
var maxPrice = decimal.New(1, 10)

func checkPrice(price decimal.Decimal) error {
	switch {
	case !price.IsPositive():
		return apperr.New(apperr.KindInvalidInput, "price must be greater than zero")
	case !price.Equal(price.Round(2)):
		return apperr.New(apperr.KindInvalidInput, "price must have at most 2 decimal places")
	case price.GreaterThanOrEqual(maxPrice):
		return apperr.Newf(apperr.KindInvalidInput, "price must be less than %s", maxPrice)
	}
	return nil
}

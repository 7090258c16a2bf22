package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

type CategoryID int64

type Category struct {
	ID          CategoryID `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Products    []Product  `json:"products,omitempty"`
}

type Product struct {
	ID          ProductID       `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Brand       string          `json:"brand,omitempty"`
	Description string          `json:"description,omitempty"`
	Features    string          `json:"features,omitempty"`
	Stock       int             `json:"stock"`
	ImageURL    string          `json:"image_url,omitempty"`
	CategoryID  CategoryID      `json:"category_id"`
	Category    *Category       `json:"category,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CategoryPatch carries only the fields a caller wants to change.
type CategoryPatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (p CategoryPatch) Empty() bool {
	return p.Name == nil && p.Description == nil
}

type ProductPatch struct {
	Name        *string          `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Brand       *string          `json:"brand"`
	Description *string          `json:"description"`
	Features    *string          `json:"features"`
	Stock       *int             `json:"stock"`
	ImageURL    *string          `json:"image_url"`
	CategoryID  *CategoryID      `json:"category_id"`
}

func (p ProductPatch) Empty() bool {
	return p.Name == nil && p.Price == nil && p.Brand == nil && p.Description == nil &&
		p.Features == nil && p.Stock == nil && p.ImageURL == nil && p.CategoryID == nil
}

type ProductFilter struct {
	CategoryID CategoryID
	Search     string
	Page       PageRequest
}

// MaxPageLimit caps how many rows one page may hold.
const MaxPageLimit = 100

type PageRequest struct {
	Page  int
	Limit int
}

// Valid reports whether p is within bounds: both fields positive, Limit at
// most MaxPageLimit and an offset that fits in 32 bits.
func (p PageRequest) Valid() bool {
	if p.Page < 1 || p.Limit < 1 || p.Limit > MaxPageLimit {
		return false
	}
	return p.Page-1 <= math.MaxInt32/p.Limit
}

func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

type Page[T any] struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Pages int `json:"pages"`
	Items []T `json:"items"`
}

func NewPage[T any](items []T, total int, req PageRequest) Page[T] {
	pages := 0
	if req.Limit > 0 {
		pages = (total + req.Limit - 1) / req.Limit
	}
	if items == nil {
		items = []T{}
	}
	return Page[T]{Total: total, Page: req.Page, Pages: pages, Items: items}
}

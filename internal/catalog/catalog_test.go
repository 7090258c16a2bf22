package catalog_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/internal/store/memstore"
)

func ptr[T any](v T) *T { return &v }

func TestCategories(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := catalog.NewService(st)

	_, err := svc.CreateCategory(ctx, "  ", "")
	assert.True(t, errors.Is(err, apperr.InvalidInput))

	c, err := svc.CreateCategory(ctx, "Peripherals", "Input devices")
	require.NoError(t, err)
	assert.NotZero(t, c.ID)

	_, err = svc.UpdateCategory(ctx, c.ID, domain.CategoryPatch{})
	assert.True(t, errors.Is(err, apperr.InvalidInput))
	_, err = svc.UpdateCategory(ctx, 999, domain.CategoryPatch{Name: ptr("x")})
	assert.True(t, errors.Is(err, apperr.NotFound))

	c, err = svc.UpdateCategory(ctx, c.ID, domain.CategoryPatch{Description: ptr("Keyboards and mice")})
	require.NoError(t, err)
	assert.Equal(t, "Peripherals", c.Name)
	assert.Equal(t, "Keyboards and mice", c.Description)

	_, err = svc.CreateProduct(ctx, domain.Product{Name: "Mouse", Price: decimal.NewFromInt(20), Stock: 3, CategoryID: c.ID})
	require.NoError(t, err)

	got, err := svc.GetCategory(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, got.Products, 1)

	err = svc.DeleteCategory(ctx, c.ID)
	assert.True(t, errors.Is(err, apperr.Conflict))
	err = svc.DeleteCategory(ctx, 999)
	assert.True(t, errors.Is(err, apperr.NotFound))
}

func TestCreateProduct_Validation(t *testing.T) {
	ctx := context.Background()
	svc := catalog.NewService(memstore.New())
	c, err := svc.CreateCategory(ctx, "Audio", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		p    domain.Product
	}{
		{"no name", domain.Product{Price: decimal.NewFromInt(1), CategoryID: c.ID}},
		{"zero price", domain.Product{Name: "x", CategoryID: c.ID}},
		{"sub-cent price", domain.Product{Name: "x", Price: decimal.RequireFromString("0.001"), CategoryID: c.ID}},
		{"price beyond column", domain.Product{Name: "x", Price: decimal.New(1, 10), CategoryID: c.ID}},
		{"negative stock", domain.Product{Name: "x", Price: decimal.NewFromInt(1), Stock: -1, CategoryID: c.ID}},
		{"missing category", domain.Product{Name: "x", Price: decimal.NewFromInt(1)}},
		{"unknown category", domain.Product{Name: "x", Price: decimal.NewFromInt(1), CategoryID: 77}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, tt.p)
			assert.True(t, errors.Is(err, apperr.InvalidInput), "got %v", err)
		})
	}
}

func TestListProducts(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := catalog.NewService(st)
	audio, err := svc.CreateCategory(ctx, "Audio", "")
	require.NoError(t, err)
	input, err := svc.CreateCategory(ctx, "Input", "")
	require.NoError(t, err)

	for _, p := range []domain.Product{
		{Name: "Speaker", Brand: "Acme", Price: decimal.NewFromInt(50), CategoryID: audio.ID},
		{Name: "Headphones", Description: "Wireless over-ear", Price: decimal.NewFromInt(80), CategoryID: audio.ID},
		{Name: "Keyboard", Brand: "ACME", Price: decimal.NewFromInt(40), CategoryID: input.ID},
	} {
		_, err := svc.CreateProduct(ctx, p)
		require.NoError(t, err)
	}

	page, err := svc.ListProducts(ctx, domain.ProductFilter{Page: domain.PageRequest{Page: 1, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Headphones", page.Items[0].Name)
	require.NotNil(t, page.Items[0].Category)
	assert.Equal(t, "Audio", page.Items[0].Category.Name)

	page, err = svc.ListProducts(ctx, domain.ProductFilter{Search: "acme", Page: domain.PageRequest{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)

	page, err = svc.ListProducts(ctx, domain.ProductFilter{Search: "wireless", CategoryID: audio.ID, Page: domain.PageRequest{Page: 1, Limit: 10}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)

	page, err = svc.ListByCategory(ctx, input.ID, domain.PageRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Keyboard", page.Items[0].Name)

	_, err = svc.ListByCategory(ctx, 999, domain.PageRequest{Page: 1, Limit: 10})
	assert.True(t, errors.Is(err, apperr.NotFound))
	_, err = svc.ListProducts(ctx, domain.ProductFilter{Page: domain.PageRequest{Page: 1, Limit: 0}})
	assert.True(t, errors.Is(err, apperr.InvalidInput))
}

func TestUpdateAndDeleteProduct(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := catalog.NewService(st)
	c, err := svc.CreateCategory(ctx, "Audio", "")
	require.NoError(t, err)
	p, err := svc.CreateProduct(ctx, domain.Product{Name: "Speaker", Price: decimal.NewFromInt(50), Stock: 4, CategoryID: c.ID})
	require.NoError(t, err)
	spare, err := svc.CreateProduct(ctx, domain.Product{Name: "Cable", Price: decimal.NewFromInt(5), Stock: 4, CategoryID: c.ID})
	require.NoError(t, err)

	_, err = svc.UpdateProduct(ctx, p.ID, domain.ProductPatch{})
	assert.True(t, errors.Is(err, apperr.InvalidInput))
	_, err = svc.UpdateProduct(ctx, p.ID, domain.ProductPatch{CategoryID: ptr(domain.CategoryID(42))})
	assert.True(t, errors.Is(err, apperr.InvalidInput))
	_, err = svc.UpdateProduct(ctx, p.ID, domain.ProductPatch{Price: ptr(decimal.RequireFromString("9.999"))})
	assert.True(t, errors.Is(err, apperr.InvalidInput), "got %v", err)
	_, err = svc.UpdateProduct(ctx, p.ID, domain.ProductPatch{Price: ptr(decimal.RequireFromString("12345678901.00"))})
	assert.True(t, errors.Is(err, apperr.InvalidInput), "got %v", err)
	_, err = svc.UpdateProduct(ctx, 999, domain.ProductPatch{Stock: ptr(1)})
	assert.True(t, errors.Is(err, apperr.ProductNotFound))

	p, err = svc.UpdateProduct(ctx, p.ID, domain.ProductPatch{Price: ptr(decimal.RequireFromString("45.50")), Stock: ptr(10)})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("45.50").Equal(p.Price))
	assert.Equal(t, 10, p.Stock)
	assert.Equal(t, "Speaker", p.Name)

	_, err = order.NewEngine(st, nil).CreateOrder(ctx, order.CreateInput{
		Owner: 1, ShippingAddress: "addr", Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)

	err = svc.DeleteProduct(ctx, p.ID)
	assert.True(t, errors.Is(err, apperr.Conflict))
	require.NoError(t, svc.DeleteProduct(ctx, spare.ID))
	_, err = svc.GetProduct(ctx, spare.ID)
	assert.True(t, errors.Is(err, apperr.ProductNotFound))
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/jlpozo/DesafioFinalBack/internal/account"
	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/outbox"
)

// startPostgres runs a disposable Postgres. Set STOREFRONT_IT=1 to enable.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if os.Getenv("STOREFRONT_IT") == "" {
		t.Skip("STOREFRONT_IT not set")
	}
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "storefront",
				"POSTGRES_PASSWORD": "storefront",
				"POSTGRES_DB":       "storefront",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	url := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())
	pool, err := Open(ctx, url, 20)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func seed(t *testing.T, s *Store, stock int) (domain.User, domain.Product) {
	t.Helper()
	ctx := context.Background()
	u := domain.User{Name: "Ana", Email: fmt.Sprintf("ana-%d@example.com", time.Now().UnixNano()), PasswordHash: "x"}
	require.NoError(t, s.CreateUser(ctx, &u))
	c := domain.Category{Name: "Input"}
	require.NoError(t, s.CreateCategory(ctx, &c))
	p := domain.Product{Name: "Keyboard", Price: decimal.RequireFromString("100.00"), Stock: stock, CategoryID: c.ID}
	require.NoError(t, s.CreateProduct(ctx, &p))
	return u, p
}

func TestPostgres_EngineScenarios(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	s := New(pool, WithRetries(3, nil))
	eng := order.NewEngine(s, nil)
	u, p := seed(t, s, 5)
	caller := u.Caller()

	res, err := eng.CreateOrder(ctx, order.CreateInput{
		Owner: u.ID, ShippingAddress: "addr", IdempotencyKey: "k1",
		Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	o := res.Order
	assert.True(t, decimal.RequireFromString("300").Equal(o.Total))
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "Keyboard", o.Lines[0].ProductName)

	again, err := eng.CreateOrder(ctx, order.CreateInput{
		Owner: u.ID, ShippingAddress: "addr", IdempotencyKey: "k1",
		Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, o.ID, again.Order.ID)

	o, err = eng.UpdateLineQuantity(ctx, o.ID, p.ID, 1, caller)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(o.Total))

	_, err = eng.AppendLines(ctx, o.ID, caller, []domain.OrderItem{{ProductID: p.ID, Quantity: 1}})
	assert.True(t, errors.Is(err, apperr.DuplicateLine))

	_, err = eng.UpdateLineQuantity(ctx, o.ID, p.ID, 99, caller)
	assert.True(t, errors.Is(err, apperr.InsufficientStock))

	o, err = eng.RemoveLine(ctx, o.ID, p.ID, caller)
	require.NoError(t, err)
	assert.True(t, decimal.Zero.Equal(o.Total))
	assert.Empty(t, o.Lines)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	recs, err := outbox.FetchPending(ctx, pool, 100)
	require.NoError(t, err)
	assert.Len(t, recs, 3)
	assert.Equal(t, DefaultTopic, recs[0].Topic)

	orders, total, err := s.ListOrders(ctx, u.ID, domain.PageRequest{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	assert.Empty(t, orders[0].Lines)
}

func TestPostgres_ConcurrentCreatesNeverOversell(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	s := New(pool, WithRetries(3, nil))
	eng := order.NewEngine(s, nil)
	u, p := seed(t, s, 10)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.CreateOrder(ctx, order.CreateInput{
				Owner: u.ID, ShippingAddress: "addr",
				Items: []domain.OrderItem{{ProductID: p.ID, Quantity: 1}},
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, apperr.InsufficientStock), "got %v", err)
		}()
	}
	wg.Wait()

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Stock)
	assert.Equal(t, 10, ok)
}

func TestPostgres_CatalogAndUsers(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	s := New(pool)
	u, p := seed(t, s, 1)

	dup := domain.User{Name: "Other", Email: u.Email, PasswordHash: "x"}
	assert.ErrorIs(t, s.CreateUser(ctx, &dup), account.ErrEmailTaken)

	name := "Mechanical keyboard"
	got, err := s.UpdateProduct(ctx, p.ID, domain.ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	require.NotNil(t, got.Category)

	ps, total, err := s.ListProducts(ctx, domain.ProductFilter{Search: "MECH", Page: domain.PageRequest{Page: 1, Limit: 5}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, total, 1)
	assert.NotEmpty(t, ps)

	assert.ErrorIs(t, s.DeleteCategory(ctx, p.CategoryID), catalog.ErrInUse)
	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	require.NoError(t, s.DeleteCategory(ctx, p.CategoryID))
	assert.ErrorIs(t, s.DeleteCategory(ctx, p.CategoryID), catalog.ErrNotFound)
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlpozo/DesafioFinalBack/internal/account"
	"github.com/jlpozo/DesafioFinalBack/internal/api"
	"github.com/jlpozo/DesafioFinalBack/internal/auth"
	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/internal/store/memstore"
)

type env struct {
	t      *testing.T
	srv    *httptest.Server
	store  *memstore.Store
	dbDown atomic.Bool
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{t: t, store: memstore.New()}
	issuer := auth.NewIssuer("test-secret", time.Hour)
	e.srv = httptest.NewServer(api.NewRouter(api.Deps{
		Orders:   order.NewEngine(e.store, nil),
		Catalog:  catalog.NewService(e.store),
		Accounts: account.NewService(e.store, issuer),
		Tokens:   issuer,
		Health: func(context.Context) error {
			if e.dbDown.Load() {
				return errors.New("db down")
			}
			return nil
		},
	}))
	t.Cleanup(e.srv.Close)
	return e
}

type errBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Key     string `json:"key"`
	} `json:"error"`
}

func (e *env) do(method, path, token string, body any, header ...string) (*http.Response, []byte) {
	e.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(e.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(e.t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(e.t, err)
	return resp, buf.Bytes()
}

func (e *env) decode(raw []byte, v any) {
	e.t.Helper()
	require.NoError(e.t, json.Unmarshal(raw, v), string(raw))
}

func (e *env) errCode(raw []byte) string {
	var b errBody
	e.decode(raw, &b)
	return b.Error.Code
}

// signup registers a user and returns a token for it.
func (e *env) signup(email string, admin bool) (domain.User, string) {
	e.t.Helper()
	resp, raw := e.do(http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"name": "User " + email, "email": email, "password": "secret123",
	})
	require.Equal(e.t, http.StatusCreated, resp.StatusCode, string(raw))
	var u domain.User
	e.decode(raw, &u)
	if admin {
		e.store.SetAdmin(u.ID, true)
	}
	resp, raw = e.do(http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(e.t, http.StatusOK, resp.StatusCode, string(raw))
	var s account.Session
	e.decode(raw, &s)
	return s.User, s.Token
}

func TestHealth(t *testing.T) {
	e := newEnv(t)
	resp, _ := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	e.dbDown.Store(true)
	resp, raw := e.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(raw), "db_error")
}

func TestUnknownRoute(t *testing.T) {
	e := newEnv(t)
	resp, raw := e.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", e.errCode(raw))
}

func TestUsers(t *testing.T) {
	e := newEnv(t)
	u, token := e.signup("ana@example.com", false)
	assert.False(t, u.Admin)

	resp, raw := e.do(http.MethodPost, "/api/v1/users/register", "", map[string]string{
		"name": "Again", "email": "ANA@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", e.errCode(raw))

	resp, _ = e.do(http.MethodPost, "/api/v1/users/login", "", map[string]string{
		"email": "ana@example.com", "password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.do(http.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, raw = e.do(http.MethodPut, "/api/v1/users/me", token, map[string]string{"phone": "+56 9 1234 5678"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = e.do(http.MethodGet, "/api/v1/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me domain.User
	e.decode(raw, &me)
	assert.Equal(t, "+56 9 1234 5678", me.Phone)
	assert.NotContains(t, string(raw), "password")
}

func TestCatalogAdminOnly(t *testing.T) {
	e := newEnv(t)
	_, userToken := e.signup("user@example.com", false)
	_, adminToken := e.signup("admin@example.com", true)

	body := map[string]string{"name": "Audio", "description": "speakers"}
	resp, _ := e.do(http.MethodPost, "/api/v1/categories", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, _ = e.do(http.MethodPost, "/api/v1/categories", userToken, body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, raw := e.do(http.MethodPost, "/api/v1/categories", adminToken, body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var cat domain.Category
	e.decode(raw, &cat)

	resp, raw = e.do(http.MethodPost, "/api/v1/products", adminToken, map[string]any{
		"name": "Speaker", "price": "49.90", "stock": 4, "category_id": cat.ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var p domain.Product
	e.decode(raw, &p)
	assert.True(t, decimal.RequireFromString("49.90").Equal(p.Price))

	resp, raw = e.do(http.MethodGet, "/api/v1/products?q=speak&limit=5", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page domain.Page[domain.Product]
	e.decode(raw, &page)
	require.Len(t, page.Items, 1)
	assert.Equal(t, p.ID, page.Items[0].ID)

	resp, _ = e.do(http.MethodGet, "/api/v1/products/category/999", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, raw = e.do(http.MethodDelete, "/api/v1/categories/"+itoa(int64(cat.ID)), adminToken, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", e.errCode(raw))

	resp, _ = e.do(http.MethodGet, "/api/v1/products?page=0", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = e.do(http.MethodGet, "/api/v1/products/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOrderLifecycle(t *testing.T) {
	e := newEnv(t)
	owner, token := e.signup("buyer@example.com", false)
	_, other := e.signup("other@example.com", false)
	_, admin := e.signup("boss@example.com", true)

	p1 := e.store.PutProduct(domain.Product{Name: "Mouse", Price: decimal.RequireFromString("10.50"), Stock: 5})
	p2 := e.store.PutProduct(domain.Product{Name: "Pad", Price: decimal.RequireFromString("3.00"), Stock: 2})

	resp, raw := e.do(http.MethodPost, "/api/v1/orders", token, map[string]any{
		"shipping_address": "Av. Siempre Viva 742",
		"items":            []map[string]any{{"product_id": p1.ID, "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var o domain.Order
	e.decode(raw, &o)
	assert.Equal(t, owner.ID, o.Owner)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.True(t, decimal.RequireFromString("21.00").Equal(o.Total))
	path := "/api/v1/orders/" + itoa(int64(o.ID))

	resp, raw = e.do(http.MethodPost, path+"/lines", token, map[string]any{
		"items": []map[string]any{{"product_id": p2.ID, "quantity": 3}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_STOCK", e.errCode(raw))

	resp, raw = e.do(http.MethodPost, path+"/lines", token, map[string]any{
		"items": []map[string]any{{"product_id": p1.ID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_LINE", e.errCode(raw))

	resp, raw = e.do(http.MethodPut, path+"/lines/"+itoa(int64(p1.ID)), token, map[string]any{"quantity": 4})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	e.decode(raw, &o)
	assert.True(t, decimal.RequireFromString("42.00").Equal(o.Total))
	stock, _ := e.store.Product(p1.ID)
	assert.Equal(t, 1, stock.Stock)

	resp, _ = e.do(http.MethodPut, path+"/lines/"+itoa(int64(p1.ID)), token, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(http.MethodGet, path, other, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(http.MethodGet, path, admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(http.MethodPatch, path, token, map[string]string{"status": "paid"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, raw = e.do(http.MethodPatch, path, admin, map[string]string{"status": "paid"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	resp, raw = e.do(http.MethodDelete, path+"/lines/"+itoa(int64(p1.ID)), token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_STATE", e.errCode(raw))

	resp, raw = e.do(http.MethodGet, "/api/v1/orders", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page domain.Page[domain.Order]
	e.decode(raw, &page)
	assert.Equal(t, 1, page.Total)

	resp, _ = e.do(http.MethodGet, "/api/v1/orders/999", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateOrder_Idempotent(t *testing.T) {
	e := newEnv(t)
	_, token := e.signup("repeat@example.com", false)
	p := e.store.PutProduct(domain.Product{Name: "Cable", Price: decimal.RequireFromString("2.00"), Stock: 10})
	body := map[string]any{
		"shipping_address": "Calle 1",
		"items":            []map[string]any{{"product_id": p.ID, "quantity": 3}},
	}

	resp, raw := e.do(http.MethodPost, "/api/v1/orders", token, body, "Idempotency-Key", "abc-1")
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	var first domain.Order
	e.decode(raw, &first)

	resp, raw = e.do(http.MethodPost, "/api/v1/orders", token, body, "Idempotency-Key", "abc-1")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	var second domain.Order
	e.decode(raw, &second)
	assert.Equal(t, first.ID, second.ID)

	got, _ := e.store.Product(p.ID)
	assert.Equal(t, 7, got.Stock)
	assert.Equal(t, 1, e.store.OrderCount())

	resp, _ = e.do(http.MethodPost, "/api/v1/orders", token, body, "Idempotency-Key", string(bytes.Repeat([]byte("k"), 256)))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateOrder_BadBodies(t *testing.T) {
	e := newEnv(t)
	_, token := e.signup("bad@example.com", false)

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/v1/orders", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, raw := e.do(http.MethodPost, "/api/v1/orders", token, map[string]any{"shipping_address": "x"})
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Equal(t, "INVALID_INPUT", e.errCode(raw))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestPagingBounds(t *testing.T) {
	e := newEnv(t)
	_, token := e.signup("pager@example.com", false)

	for _, q := range []string{"limit=101", "page=4611686018427387904&limit=4", "page=0", "limit=abc"} {
		resp, raw := e.do(http.MethodGet, "/api/v1/products?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, "INVALID_INPUT", e.errCode(raw), q)

		resp, raw = e.do(http.MethodGet, "/api/v1/orders?"+q, token, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		assert.Equal(t, "INVALID_INPUT", e.errCode(raw), q)
	}

	resp, raw := e.do(http.MethodGet, "/api/v1/products?page=3&limit=100", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	resp, raw = e.do(http.MethodGet, "/api/v1/orders?limit=100", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
}

// Package client is a small typed client for the storefront HTTP API, used
// by the command line tools.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/idempotency"
)

// StatusError is a non-2xx answer from the API.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Class groups the error for reporting: business rejections (409) are kept
// apart from other client and server errors.
func (e *StatusError) Class() string {
	switch {
	case e.StatusCode == http.StatusConflict:
		return "business_rejected"
	case e.StatusCode >= 500:
		return "http_5xx"
	default:
		return "http_4xx"
	}
}

type Client struct {
	base  string
	hc    *http.Client
	token string
}

func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/") + "/api/v1", hc: hc}
}

// WithToken returns a copy of c that authenticates as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

func (c *Client) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	var u domain.User
	_, err := c.do(ctx, http.MethodPost, "/users/register", map[string]string{
		"name": name, "email": email, "password": password,
	}, &u, nil)
	return u, err
}

// Login returns a client authenticated as the given user.
func (c *Client) Login(ctx context.Context, email, password string) (*Client, domain.User, error) {
	var s struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/users/login", map[string]string{
		"email": email, "password": password,
	}, &s, nil); err != nil {
		return nil, domain.User{}, err
	}
	return c.WithToken(s.Token), s.User, nil
}

// Signup registers the user if needed and logs in.
func (c *Client) Signup(ctx context.Context, name, email, password string) (*Client, domain.User, error) {
	if _, err := c.Register(ctx, name, email, password); err != nil && !IsStatus(err, http.StatusConflict) {
		return nil, domain.User{}, err
	}
	return c.Login(ctx, email, password)
}

func (c *Client) CreateCategory(ctx context.Context, name string) (domain.Category, error) {
	var cat domain.Category
	_, err := c.do(ctx, http.MethodPost, "/categories", map[string]string{"name": name}, &cat, nil)
	return cat, err
}

func (c *Client) CreateProduct(ctx context.Context, name string, price decimal.Decimal, stock int, category domain.CategoryID) (domain.Product, error) {
	var p domain.Product
	_, err := c.do(ctx, http.MethodPost, "/products", map[string]any{
		"name": name, "price": price, "stock": stock, "category_id": category,
	}, &p, nil)
	return p, err
}

func (c *Client) GetProduct(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	var p domain.Product
	_, err := c.do(ctx, http.MethodGet, "/products/"+itoa(int64(id)), nil, &p, nil)
	return p, err
}

// CreateOrder places an order. replayed is true when key matched an earlier
// order and no new order was created.
func (c *Client) CreateOrder(ctx context.Context, address string, items []domain.OrderItem, key string) (o domain.Order, replayed bool, err error) {
	var hdr http.Header
	if key != "" {
		hdr = http.Header{idempotency.Header: {key}}
	}
	code, err := c.do(ctx, http.MethodPost, "/orders", map[string]any{
		"shipping_address": address, "items": items,
	}, &o, hdr)
	return o, code == http.StatusOK, err
}

func (c *Client) GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error) {
	var o domain.Order
	_, err := c.do(ctx, http.MethodGet, orderPath(id), nil, &o, nil)
	return o, err
}

func (c *Client) AppendLines(ctx context.Context, id domain.OrderID, items []domain.OrderItem) (domain.Order, error) {
	var o domain.Order
	_, err := c.do(ctx, http.MethodPost, orderPath(id)+"/lines", map[string]any{"items": items}, &o, nil)
	return o, err
}

func (c *Client) UpdateLine(ctx context.Context, id domain.OrderID, product domain.ProductID, quantity int) (domain.Order, error) {
	var o domain.Order
	_, err := c.do(ctx, http.MethodPut, orderPath(id)+"/lines/"+itoa(int64(product)), map[string]int{"quantity": quantity}, &o, nil)
	return o, err
}

func (c *Client) RemoveLine(ctx context.Context, id domain.OrderID, product domain.ProductID) (domain.Order, error) {
	var o domain.Order
	_, err := c.do(ctx, http.MethodDelete, orderPath(id)+"/lines/"+itoa(int64(product)), nil, &o, nil)
	return o, err
}

func (c *Client) UpdateStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) (domain.Order, error) {
	var o domain.Order
	_, err := c.do(ctx, http.MethodPatch, orderPath(id), map[string]any{"status": status}, &o, nil)
	return o, err
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, hdr http.Header) (int, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return 0, err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode}
		var eb struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &eb) == nil {
			se.Code, se.Message = eb.Error.Code, eb.Error.Message
		}
		return resp.StatusCode, se
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}

func orderPath(id domain.OrderID) string {
	return "/orders/" + itoa(int64(id))
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

// Session holds the two identities a scenario acts as: an admin that seeds
// the catalog and a buyer that owns the orders.
type Session struct {
	Admin    *Client
	Buyer    *Client
	Category domain.CategoryID
}

// Scenario is one end-to-end check of stock and total bookkeeping. Each run
// seeds fresh products so scenarios can be repeated against the same server.
type Scenario struct {
	Name        string
	Description string
	Run         func(ctx context.Context, s *Session) error
}

// Setup signs the admin and buyer in and creates a category for the
// products the scenarios seed.
func Setup(ctx context.Context, c *Client, adminEmail, adminPassword string) (*Session, error) {
	admin, u, err := c.Signup(ctx, "Storefront Admin", adminEmail, adminPassword)
	if err != nil {
		return nil, fmt.Errorf("admin login: %w", err)
	}
	if !u.Admin {
		return nil, fmt.Errorf("%s is not an administrator; start the API with ADMIN_EMAIL=%s", adminEmail, adminEmail)
	}
	email := "buyer-" + uuid.NewString()[:8] + "@example.com"
	buyer, _, err := c.Signup(ctx, "Scenario Buyer", email, "buyer-password")
	if err != nil {
		return nil, fmt.Errorf("buyer signup: %w", err)
	}
	cat, err := admin.CreateCategory(ctx, "scenarios-"+uuid.NewString()[:8])
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &Session{Admin: admin, Buyer: buyer, Category: cat.ID}, nil
}

func Scenarios() []Scenario {
	return []Scenario{
		{"A", "create order reserves stock and totals the line", scenarioA},
		{"B", "lowering a quantity refunds the difference", scenarioB},
		{"C", "append beyond stock fails and changes nothing", scenarioC},
		{"D", "removing the only line zeroes the total", scenarioD},
		{"E", "appending a product already on the order fails", scenarioE},
	}
}

func (s *Session) product(ctx context.Context, stock int, price string) (domain.Product, error) {
	return s.Admin.CreateProduct(ctx, "scenario-"+uuid.NewString()[:8], decimal.RequireFromString(price), stock, s.Category)
}

// orderOf seeds a product and an order holding quantity of it.
func (s *Session) orderOf(ctx context.Context, stock, quantity int) (domain.Product, domain.Order, error) {
	p, err := s.product(ctx, stock, "100")
	if err != nil {
		return domain.Product{}, domain.Order{}, err
	}
	o, _, err := s.Buyer.CreateOrder(ctx, "1 Scenario Street", []domain.OrderItem{{ProductID: p.ID, Quantity: quantity}}, "")
	return p, o, err
}

func (s *Session) expectStock(ctx context.Context, id domain.ProductID, want int) error {
	p, err := s.Admin.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if p.Stock != want {
		return fmt.Errorf("product %d stock = %d, want %d", id, p.Stock, want)
	}
	return nil
}

func expectTotal(o domain.Order, want string) error {
	if !o.Total.Equal(decimal.RequireFromString(want)) {
		return fmt.Errorf("order %d total = %s, want %s", o.ID, o.Total, want)
	}
	return nil
}

func expectCode(err error, code string) error {
	var se *StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("expected %s, got %v", code, err)
	}
	if se.StatusCode != http.StatusConflict || se.Code != code {
		return fmt.Errorf("expected %s, got %v", code, se)
	}
	return nil
}

func scenarioA(ctx context.Context, s *Session) error {
	p, o, err := s.orderOf(ctx, 5, 3)
	if err != nil {
		return err
	}
	if len(o.Lines) != 1 || o.Lines[0].Quantity != 3 {
		return fmt.Errorf("order %d lines = %+v, want one line of 3", o.ID, o.Lines)
	}
	if err := expectTotal(o, "300"); err != nil {
		return err
	}
	return s.expectStock(ctx, p.ID, 2)
}

func scenarioB(ctx context.Context, s *Session) error {
	p, o, err := s.orderOf(ctx, 5, 3)
	if err != nil {
		return err
	}
	o, err = s.Buyer.UpdateLine(ctx, o.ID, p.ID, 1)
	if err != nil {
		return err
	}
	if err := expectTotal(o, "100"); err != nil {
		return err
	}
	return s.expectStock(ctx, p.ID, 4)
}

func scenarioC(ctx context.Context, s *Session) error {
	_, o, err := s.orderOf(ctx, 5, 3)
	if err != nil {
		return err
	}
	scarce, err := s.product(ctx, 1, "50")
	if err != nil {
		return err
	}
	_, err = s.Buyer.AppendLines(ctx, o.ID, []domain.OrderItem{{ProductID: scarce.ID, Quantity: 5}})
	if err := expectCode(err, "INSUFFICIENT_STOCK"); err != nil {
		return err
	}
	after, err := s.Buyer.GetOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if len(after.Lines) != 1 {
		return fmt.Errorf("order %d has %d lines, want 1", o.ID, len(after.Lines))
	}
	if err := expectTotal(after, "300"); err != nil {
		return err
	}
	return s.expectStock(ctx, scarce.ID, 1)
}

func scenarioD(ctx context.Context, s *Session) error {
	p, o, err := s.orderOf(ctx, 5, 3)
	if err != nil {
		return err
	}
	o, err = s.Buyer.RemoveLine(ctx, o.ID, p.ID)
	if err != nil {
		return err
	}
	if len(o.Lines) != 0 {
		return fmt.Errorf("order %d has %d lines, want 0", o.ID, len(o.Lines))
	}
	if err := expectTotal(o, "0"); err != nil {
		return err
	}
	return s.expectStock(ctx, p.ID, 5)
}

func scenarioE(ctx context.Context, s *Session) error {
	p, o, err := s.orderOf(ctx, 5, 3)
	if err != nil {
		return err
	}
	_, err = s.Buyer.AppendLines(ctx, o.ID, []domain.OrderItem{{ProductID: p.ID, Quantity: 1}})
	if err := expectCode(err, "DUPLICATE_LINE"); err != nil {
		return err
	}
	after, err := s.Buyer.GetOrder(ctx, o.ID)
	if err != nil {
		return err
	}
	if err := expectTotal(after, "300"); err != nil {
		return err
	}
	return s.expectStock(ctx, p.ID, 2)
}

// Package order applies stock-affecting changes to orders. Each operation
// runs in a single store transaction that updates product stock, order lines
// and the order total together.
package order

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/contracts"
	"github.com/jlpozo/DesafioFinalBack/pkg/logging"
)

const (
	OpCreate       = "create"
	OpAppendLines  = "append_lines"
	OpUpdateLine   = "update_line"
	OpRemoveLine   = "remove_line"
	OpUpdateStatus = "update_status"
)

// Observer receives one call per mutation with "ok" or the failure kind.
type Observer interface {
	ObserveMutation(op, result string)
}

type Engine struct {
	store Store
	obs   Observer
	now   func() time.Time
}

func NewEngine(store Store, obs Observer) *Engine {
	return &Engine{store: store, obs: obs, now: func() time.Time { return time.Now().UTC() }}
}

type CreateInput struct {
	Owner           domain.UserID
	ShippingAddress string
	Items           []domain.OrderItem
	IdempotencyKey  string
}

type CreateResult struct {
	Order domain.Order
	// Replayed is set when IdempotencyKey matched an order created earlier.
	Replayed bool
}

var errKeyRace = errors.New("idempotency key claimed concurrently")

// CreateOrder reserves stock for every item in request order, then writes the
// order and its lines. Any failure leaves stock untouched.
func (e *Engine) CreateOrder(ctx context.Context, in CreateInput) (res CreateResult, err error) {
	defer func() { e.observe(OpCreate, err) }()

	address := strings.TrimSpace(in.ShippingAddress)
	if address == "" {
		return CreateResult{}, invalidInput(ErrMsgAddressRequired)
	}
	if err := validateItems(in.Items); err != nil {
		return CreateResult{}, err
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if in.IdempotencyKey != "" {
			id, err := tx.LookupIdempotencyKey(ctx, in.Owner, in.IdempotencyKey)
			switch {
			case err == nil:
				o, err := tx.LoadOrder(ctx, id)
				if err != nil {
					return fmt.Errorf("load replayed order %d: %w", id, err)
				}
				res = CreateResult{Order: o, Replayed: true}
				return nil
			case !errors.Is(err, ErrNotFound):
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
		}

		lines := make([]domain.Line, 0, len(in.Items))
		for _, it := range in.Items {
			p, err := reserve(ctx, tx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			lines = append(lines, domain.Line{
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
				Subtotal:  domain.Subtotal(p.Price, it.Quantity),
			})
		}

		o := domain.Order{
			Owner:           in.Owner,
			Status:          domain.OrderStatusPending,
			ShippingAddress: address,
		}
		if err := tx.InsertOrder(ctx, &o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for _, l := range lines {
			l.OrderID = o.ID
			if err := tx.InsertLine(ctx, l); err != nil {
				return fmt.Errorf("insert line for product %d: %w", l.ProductID, err)
			}
		}
		if err := recomputeTotal(ctx, tx, o.ID); err != nil {
			return err
		}

		if in.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, in.Owner, in.IdempotencyKey, o.ID); err != nil {
				if errors.Is(err, ErrKeyTaken) {
					return errKeyRace
				}
				return fmt.Errorf("claim idempotency key: %w", err)
			}
		}

		loaded, err := e.finish(ctx, tx, o.ID, contracts.EventOrderCreated, productIDs(in.Items))
		if err != nil {
			return err
		}
		res = CreateResult{Order: loaded}
		return nil
	})

	if errors.Is(err, errKeyRace) {
		return e.replay(ctx, in.Owner, in.IdempotencyKey)
	}
	if err != nil {
		return CreateResult{}, err
	}
	if !res.Replayed {
		logging.Log(logging.Fields{Service: "orders", OrderID: idString(res.Order.ID), Step: OpCreate, Status: "ok"})
	}
	return res, nil
}

// replay returns the order that won a concurrent race for the same key. The
// losing transaction has already rolled back its stock reservations.
func (e *Engine) replay(ctx context.Context, owner domain.UserID, key string) (CreateResult, error) {
	var res CreateResult
	err := e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		id, err := tx.LookupIdempotencyKey(ctx, owner, key)
		if err != nil {
			return fmt.Errorf("lookup idempotency key after race: %w", err)
		}
		o, err := tx.LoadOrder(ctx, id)
		if err != nil {
			return fmt.Errorf("load replayed order %d: %w", id, err)
		}
		res = CreateResult{Order: o, Replayed: true}
		return nil
	})
	return res, err
}

// AppendLines adds products that are not yet on a pending order.
func (e *Engine) AppendLines(ctx context.Context, id domain.OrderID, caller domain.Caller, items []domain.OrderItem) (out domain.Order, err error) {
	defer func() { e.observe(OpAppendLines, err) }()

	if err := validateItems(items); err != nil {
		return domain.Order{}, err
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := lockMutable(ctx, tx, id, caller); err != nil {
			return err
		}

		for _, it := range items {
			_, err := tx.GetLine(ctx, id, it.ProductID)
			switch {
			case err == nil:
				return duplicateLine(it.ProductID)
			case !errors.Is(err, ErrNotFound):
				return fmt.Errorf("get line for product %d: %w", it.ProductID, err)
			}

			p, err := reserve(ctx, tx, it.ProductID, it.Quantity)
			if err != nil {
				return err
			}
			l := domain.Line{
				OrderID:   id,
				ProductID: it.ProductID,
				Quantity:  it.Quantity,
				UnitPrice: p.Price,
				Subtotal:  domain.Subtotal(p.Price, it.Quantity),
			}
			if err := tx.InsertLine(ctx, l); err != nil {
				return fmt.Errorf("insert line for product %d: %w", it.ProductID, err)
			}
		}

		if err := recomputeTotal(ctx, tx, id); err != nil {
			return err
		}
		out, err = e.finish(ctx, tx, id, contracts.EventOrderLinesAdded, productIDs(items))
		return err
	})
	return out, err
}

// UpdateLineQuantity moves the difference between the old and new quantity
// between the line and product stock. Returning stock never fails.
func (e *Engine) UpdateLineQuantity(ctx context.Context, id domain.OrderID, productID domain.ProductID, quantity int, caller domain.Caller) (out domain.Order, err error) {
	defer func() { e.observe(OpUpdateLine, err) }()

	if quantity < 1 {
		return domain.Order{}, invalidQuantity(productID)
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := lockMutable(ctx, tx, id, caller); err != nil {
			return err
		}
		l, err := getLine(ctx, tx, id, productID)
		if err != nil {
			return err
		}

		delta := quantity - l.Quantity
		if delta == 0 {
			out, err = tx.LoadOrder(ctx, id)
			return err
		}
		if delta > 0 {
			if _, err := reserve(ctx, tx, productID, delta); err != nil {
				return err
			}
		} else if err := tx.AdjustStock(ctx, productID, -delta); err != nil {
			return fmt.Errorf("return stock for product %d: %w", productID, err)
		}

		l.Quantity = quantity
		l.Subtotal = domain.Subtotal(l.UnitPrice, quantity)
		if err := tx.UpdateLine(ctx, l); err != nil {
			return fmt.Errorf("update line for product %d: %w", productID, err)
		}

		if err := recomputeTotal(ctx, tx, id); err != nil {
			return err
		}
		out, err = e.finish(ctx, tx, id, contracts.EventOrderLineUpdated, []domain.ProductID{productID})
		return err
	})
	return out, err
}

// RemoveLine returns the line's whole quantity to stock and drops the line.
func (e *Engine) RemoveLine(ctx context.Context, id domain.OrderID, productID domain.ProductID, caller domain.Caller) (out domain.Order, err error) {
	defer func() { e.observe(OpRemoveLine, err) }()

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := lockMutable(ctx, tx, id, caller); err != nil {
			return err
		}
		l, err := getLine(ctx, tx, id, productID)
		if err != nil {
			return err
		}

		if err := tx.AdjustStock(ctx, productID, l.Quantity); err != nil {
			return fmt.Errorf("return stock for product %d: %w", productID, err)
		}
		if err := tx.DeleteLine(ctx, id, productID); err != nil {
			return fmt.Errorf("delete line for product %d: %w", productID, err)
		}

		if err := recomputeTotal(ctx, tx, id); err != nil {
			return err
		}
		out, err = e.finish(ctx, tx, id, contracts.EventOrderLineRemoved, []domain.ProductID{productID})
		return err
	})
	return out, err
}

// UpdateStatus is the administrator's lifecycle control. Moving to the
// current status is a no-op.
func (e *Engine) UpdateStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus, caller domain.Caller) (out domain.Order, err error) {
	defer func() { e.observe(OpUpdateStatus, err) }()

	if !caller.Admin {
		return domain.Order{}, forbidden(ErrMsgAdminRequired, id)
	}
	if !status.Valid() {
		return domain.Order{}, invalidInput(ErrMsgInvalidStatus)
	}

	err = e.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := lockOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		if o.Status == status {
			out, err = tx.LoadOrder(ctx, id)
			return err
		}
		if !o.Status.CanTransition(status) {
			return apperr.Newf(apperr.KindInvalidState, "cannot move order from %s to %s", o.Status, status).WithKey(id)
		}
		if err := tx.SetOrderStatus(ctx, id, status); err != nil {
			return fmt.Errorf("set order status: %w", err)
		}
		out, err = e.finish(ctx, tx, id, contracts.EventOrderStatusChanged, nil)
		return err
	})
	return out, err
}

// GetOrder returns the order with its lines if the caller owns it or is an
// administrator.
func (e *Engine) GetOrder(ctx context.Context, id domain.OrderID, caller domain.Caller) (domain.Order, error) {
	o, err := e.store.GetOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Order{}, orderNotFound(id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("get order %d: %w", id, err)
	}
	if !caller.CanRead(o) {
		return domain.Order{}, forbidden(ErrMsgNotReader, id)
	}
	return o, nil
}

// ListOrders pages through the caller's own orders, newest first.
func (e *Engine) ListOrders(ctx context.Context, caller domain.Caller, page domain.PageRequest) (domain.Page[domain.Order], error) {
	if !page.Valid() {
		return domain.Page[domain.Order]{}, invalidInput("invalid pagination parameters")
	}
	orders, total, err := e.store.ListOrders(ctx, caller.ID, page)
	if err != nil {
		return domain.Page[domain.Order]{}, fmt.Errorf("list orders: %w", err)
	}
	return domain.NewPage(orders, total, page), nil
}

// finish records the outbox event and reloads the order inside the same
// transaction.
func (e *Engine) finish(ctx context.Context, tx Tx, id domain.OrderID, eventType string, products []domain.ProductID) (domain.Order, error) {
	o, err := tx.LoadOrder(ctx, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %d: %w", id, err)
	}

	payload := map[string]any{
		"order_id": o.ID,
		"owner_id": o.Owner,
		"status":   o.Status,
		"total":    o.Total.String(),
		"lines":    len(o.Lines),
	}
	if len(products) > 0 {
		payload["product_ids"] = products
	}
	evt := contracts.Event{
		EventID:   uuid.NewString(),
		OrderID:   int64(o.ID),
		CreatedAt: e.now(),
		Type:      eventType,
		Payload:   payload,
	}
	if err := tx.AppendEvent(ctx, evt); err != nil {
		return domain.Order{}, fmt.Errorf("append %s event: %w", eventType, err)
	}
	return o, nil
}

func (e *Engine) observe(op string, err error) {
	if e.obs == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = apperr.KindOf(err).String()
	}
	e.obs.ObserveMutation(op, result)
}

func validateItems(items []domain.OrderItem) error {
	if len(items) == 0 {
		return invalidInput(ErrMsgItemsRequired)
	}
	seen := make(map[domain.ProductID]struct{}, len(items))
	for _, it := range items {
		if it.ProductID <= 0 {
			return invalidInput(ErrMsgProductIDRequired)
		}
		if it.Quantity < 1 {
			return invalidQuantity(it.ProductID)
		}
		if _, dup := seen[it.ProductID]; dup {
			return duplicateLine(it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
	}
	return nil
}

// reserve locks the product row, checks availability and takes quantity out
// of stock. The lock is held until the transaction ends.
func reserve(ctx context.Context, tx Tx, id domain.ProductID, quantity int) (domain.Product, error) {
	p, err := tx.LockProduct(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Product{}, productNotFound(id)
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("lock product %d: %w", id, err)
	}
	if p.Stock < quantity {
		return domain.Product{}, insufficientStock(p, quantity)
	}
	if err := tx.AdjustStock(ctx, id, -quantity); err != nil {
		return domain.Product{}, fmt.Errorf("take stock for product %d: %w", id, err)
	}
	return p, nil
}

func lockOrder(ctx context.Context, tx Tx, id domain.OrderID) (domain.Order, error) {
	o, err := tx.LockOrder(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return domain.Order{}, orderNotFound(id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("lock order %d: %w", id, err)
	}
	return o, nil
}

// lockMutable locks the order and checks the caller may change its lines.
func lockMutable(ctx context.Context, tx Tx, id domain.OrderID, caller domain.Caller) (domain.Order, error) {
	o, err := lockOrder(ctx, tx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Owner != caller.ID {
		return domain.Order{}, forbidden(ErrMsgNotOwner, id)
	}
	if !o.Status.Mutable() {
		return domain.Order{}, notPending(o)
	}
	return o, nil
}

func getLine(ctx context.Context, tx Tx, id domain.OrderID, productID domain.ProductID) (domain.Line, error) {
	l, err := tx.GetLine(ctx, id, productID)
	if errors.Is(err, ErrNotFound) {
		return domain.Line{}, lineNotFound(productID)
	}
	if err != nil {
		return domain.Line{}, fmt.Errorf("get line for product %d: %w", productID, err)
	}
	return l, nil
}

// recomputeTotal sets order.total to the sum of its current lines. It is the
// only way the total is ever written.
func recomputeTotal(ctx context.Context, tx Tx, id domain.OrderID) error {
	sum, err := tx.SumLines(ctx, id)
	if err != nil {
		return fmt.Errorf("sum lines: %w", err)
	}
	if err := tx.SetOrderTotal(ctx, id, sum); err != nil {
		return fmt.Errorf("set order total: %w", err)
	}
	return nil
}

func productIDs(items []domain.OrderItem) []domain.ProductID {
	ids := make([]domain.ProductID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func idString(id domain.OrderID) string {
	return strconv.FormatInt(int64(id), 10)
}

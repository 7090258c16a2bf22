package order

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/contracts"
)

var (
	// ErrNotFound is returned by Store and Tx lookups that match no row.
	ErrNotFound = errors.New("record not found")
	// ErrKeyTaken is returned by ClaimIdempotencyKey when another order
	// already holds the key.
	ErrKeyTaken = errors.New("idempotency key already claimed")
)

// Store is the persistence the engine runs against. Every mutation executes
// inside InTx; when fn returns an error nothing it did is kept.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	ListOrders(ctx context.Context, owner domain.UserID, page domain.PageRequest) ([]domain.Order, int, error)
}

// Tx is one open transaction. LockProduct and LockOrder hold their row until
// the transaction ends, so a read-check-write on stock or on an order's lines
// cannot interleave with another transaction touching the same row.
type Tx interface {
	LockProduct(ctx context.Context, id domain.ProductID) (domain.Product, error)
	AdjustStock(ctx context.Context, id domain.ProductID, delta int) error

	InsertOrder(ctx context.Context, o *domain.Order) error
	LockOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	LoadOrder(ctx context.Context, id domain.OrderID) (domain.Order, error)
	SetOrderTotal(ctx context.Context, id domain.OrderID, total decimal.Decimal) error
	SetOrderStatus(ctx context.Context, id domain.OrderID, status domain.OrderStatus) error

	GetLine(ctx context.Context, orderID domain.OrderID, productID domain.ProductID) (domain.Line, error)
	InsertLine(ctx context.Context, l domain.Line) error
	UpdateLine(ctx context.Context, l domain.Line) error
	DeleteLine(ctx context.Context, orderID domain.OrderID, productID domain.ProductID) error
	SumLines(ctx context.Context, orderID domain.OrderID) (decimal.Decimal, error)

	LookupIdempotencyKey(ctx context.Context, owner domain.UserID, key string) (domain.OrderID, error)
	ClaimIdempotencyKey(ctx context.Context, owner domain.UserID, key string, id domain.OrderID) error

	AppendEvent(ctx context.Context, evt contracts.Event) error
}

package order

import (
	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

const (
	ErrMsgItemsRequired     = "at least one item is required"
	ErrMsgAddressRequired   = "shipping address is required"
	ErrMsgQuantityPositive  = "quantity must be at least 1"
	ErrMsgProductIDRequired = "product id is required"
	ErrMsgOrderNotFound     = "order not found"
	ErrMsgLineNotFound      = "product is not on this order"
	ErrMsgNotOwner          = "you do not have permission to modify this order"
	ErrMsgNotReader         = "you do not have permission to view this order"
	ErrMsgAdminRequired     = "administrator role required"
	ErrMsgNotPending        = "only pending orders can be modified"
	ErrMsgInvalidStatus     = "invalid order status"
)

func invalidInput(msg string) *apperr.Error {
	return apperr.New(apperr.KindInvalidInput, msg)
}

func invalidQuantity(id domain.ProductID) *apperr.Error {
	return apperr.New(apperr.KindInvalidInput, ErrMsgQuantityPositive).WithKey(id)
}

func productNotFound(id domain.ProductID) *apperr.Error {
	return apperr.Newf(apperr.KindProductNotFound, "product %d not found", id).WithKey(id)
}

func orderNotFound(id domain.OrderID) *apperr.Error {
	return apperr.New(apperr.KindOrderNotFound, ErrMsgOrderNotFound).WithKey(id)
}

func lineNotFound(id domain.ProductID) *apperr.Error {
	return apperr.New(apperr.KindLineNotFound, ErrMsgLineNotFound).WithKey(id)
}

func duplicateLine(id domain.ProductID) *apperr.Error {
	return apperr.Newf(apperr.KindDuplicateLine,
		"product %d is already on the order; update its quantity instead", id).WithKey(id)
}

func insufficientStock(p domain.Product, requested int) *apperr.Error {
	return apperr.Newf(apperr.KindInsufficientStock,
		"insufficient stock for product %q: available %d, requested %d", p.Name, p.Stock, requested).WithKey(p.ID)
}

func forbidden(msg string, id domain.OrderID) *apperr.Error {
	return apperr.New(apperr.KindForbidden, msg).WithKey(id)
}

func notPending(o domain.Order) *apperr.Error {
	return apperr.Newf(apperr.KindInvalidState, "%s (order is %s)", ErrMsgNotPending, o.Status).WithKey(o.ID)
}

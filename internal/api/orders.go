package api

import (
	"net/http"

	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
	"github.com/jlpozo/DesafioFinalBack/pkg/idempotency"
)

type createOrderRequest struct {
	ShippingAddress string             `json:"shipping_address"`
	Items           []domain.OrderItem `json:"items"`
}

type linesRequest struct {
	Items []domain.OrderItem `json:"items"`
}

type quantityRequest struct {
	Quantity *int `json:"quantity"`
}

type statusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.ListOrders(r.Context(), caller(r), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CreateOrder answers 201 for a new order and 200 when the Idempotency-Key
// header matched an earlier one.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	key := idempotency.Key(r)
	if !idempotency.Valid(key) {
		writeError(w, r, apperr.Newf(apperr.KindInvalidInput, "%s must be at most %d characters", idempotency.Header, idempotency.MaxLen))
		return
	}
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.CreateOrder(r.Context(), order.CreateInput{
		Owner:           caller(r).ID,
		ShippingAddress: req.ShippingAddress,
		Items:           req.Items,
		IdempotencyKey:  key,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := http.StatusCreated
	if res.Replayed {
		code = http.StatusOK
	}
	writeJSON(w, code, res.Order)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.GetOrder(r.Context(), domain.OrderID(id), caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), domain.OrderID(id), req.Status, caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) AppendLines(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req linesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.AppendLines(r.Context(), domain.OrderID(id), caller(r), req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) UpdateLineQuantity(w http.ResponseWriter, r *http.Request) {
	id, productID, err := lineParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req quantityRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		writeError(w, r, apperr.New(apperr.KindInvalidInput, "quantity is required"))
		return
	}
	o, err := h.orders.UpdateLineQuantity(r.Context(), id, productID, *req.Quantity, caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id, productID, err := lineParams(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.RemoveLine(r.Context(), id, productID, caller(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func lineParams(r *http.Request) (domain.OrderID, domain.ProductID, error) {
	id, err := idParam(r, "id")
	if err != nil {
		return 0, 0, err
	}
	productID, err := idParam(r, "productID")
	if err != nil {
		return 0, 0, err
	}
	return domain.OrderID(id), domain.ProductID(productID), nil
}

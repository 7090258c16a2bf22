package api

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/order/domain"
)

type categoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": cs})
}

func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.GetCategory(r.Context(), domain.CategoryID(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.CreateCategory(r.Context(), req.Name, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch domain.CategoryPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := h.catalog.UpdateCategory(r.Context(), domain.CategoryID(id), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.DeleteCategory(r.Context(), domain.CategoryID(id)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "category deleted", "id": id})
}

type productRequest struct {
	Name        string            `json:"name"`
	Price       decimal.Decimal   `json:"price"`
	Brand       string            `json:"brand"`
	Description string            `json:"description"`
	Features    string            `json:"features"`
	Stock       int               `json:"stock"`
	ImageURL    string            `json:"image_url"`
	CategoryID  domain.CategoryID `json:"category_id"`
}

func pageRequest(r *http.Request) (domain.PageRequest, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return domain.PageRequest{}, err
	}
	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		return domain.PageRequest{}, err
	}
	if limit > domain.MaxPageLimit {
		return domain.PageRequest{}, apperr.Newf(apperr.KindInvalidInput, "limit must be at most %d", domain.MaxPageLimit)
	}
	req := domain.PageRequest{Page: page, Limit: limit}
	if !req.Valid() {
		return domain.PageRequest{}, apperr.New(apperr.KindInvalidInput, "page is out of range")
	}
	return req, nil
}

// ListProducts accepts page, limit, category_id and q.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f := domain.ProductFilter{Search: r.URL.Query().Get("q"), Page: page}
	if r.URL.Query().Get("category_id") != "" {
		cat, err := queryInt(r, "category_id", 0)
		if err != nil {
			writeError(w, r, err)
			return
		}
		f.CategoryID = domain.CategoryID(cat)
	}
	res, err := h.catalog.ListProducts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) ListProductsByCategory(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.catalog.ListByCategory(r.Context(), domain.CategoryID(id), page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.GetProduct(r.Context(), domain.ProductID(id))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.CreateProduct(r.Context(), domain.Product{
		Name:        req.Name,
		Price:       req.Price,
		Brand:       req.Brand,
		Description: req.Description,
		Features:    req.Features,
		Stock:       req.Stock,
		ImageURL:    req.ImageURL,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var patch domain.ProductPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.UpdateProduct(r.Context(), domain.ProductID(id), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.DeleteProduct(r.Context(), domain.ProductID(id)); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "product deleted", "id": id})
}

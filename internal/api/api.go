// Package api exposes the storefront over HTTP under /api/v1.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jlpozo/DesafioFinalBack/internal/account"
	"github.com/jlpozo/DesafioFinalBack/internal/apperr"
	"github.com/jlpozo/DesafioFinalBack/internal/auth"
	"github.com/jlpozo/DesafioFinalBack/internal/catalog"
	"github.com/jlpozo/DesafioFinalBack/internal/order"
	"github.com/jlpozo/DesafioFinalBack/pkg/logging"
	"github.com/jlpozo/DesafioFinalBack/pkg/metrics"
)

const (
	service      = "storefront-api"
	maxBodyBytes = 1 << 20
)

type Deps struct {
	Orders   *order.Engine
	Catalog  *catalog.Service
	Accounts *account.Service
	Tokens   auth.Verifier

	// Health reports whether the database answers.
	Health         func(ctx context.Context) error
	Metrics        *metrics.ServerMetrics
	MetricsHandler http.Handler
	RequestTimeout time.Duration
}

type Handler struct {
	orders   *order.Engine
	catalog  *catalog.Service
	accounts *account.Service
	health   func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	h := &Handler{orders: d.Orders, catalog: d.Catalog, accounts: d.Accounts, health: d.Health}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}
	if d.RequestTimeout > 0 {
		r.Use(deadline(d.RequestTimeout))
	}
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, apperr.New(apperr.KindNotFound, "route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody("METHOD_NOT_ALLOWED", "method not allowed", ""))
	})

	r.Get("/health", h.Health)
	if d.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", d.MetricsHandler)
	}

	authn := auth.Middleware(d.Tokens, writeError)
	admin := auth.RequireAdmin(writeError)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(authn).Get("/me", h.Profile)
			r.With(authn).Put("/me", h.UpdateProfile)
		})

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Get("/{id}", h.GetCategory)
			r.With(authn, admin).Post("/", h.CreateCategory)
			r.With(authn, admin).Put("/{id}", h.UpdateCategory)
			r.With(authn, admin).Delete("/{id}", h.DeleteCategory)
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.ListProducts)
			r.Get("/category/{id}", h.ListProductsByCategory)
			r.Get("/{id}", h.GetProduct)
			r.With(authn, admin).Post("/", h.CreateProduct)
			r.With(authn, admin).Put("/{id}", h.UpdateProduct)
			r.With(authn, admin).Delete("/{id}", h.DeleteProduct)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(authn)
			r.Get("/", h.ListOrders)
			r.Post("/", h.CreateOrder)
			r.Get("/{id}", h.GetOrder)
			r.With(admin).Patch("/{id}", h.UpdateOrderStatus)
			r.Post("/{id}/lines", h.AppendLines)
			r.Put("/{id}/lines/{productID}", h.UpdateLineQuantity)
			r.Delete("/{id}/lines/{productID}", h.RemoveLine)
		})
	})
	return r
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			logging.Log(logging.Fields{Service: service, RequestID: middleware.GetReqID(r.Context()), Step: "health", Status: "db_error", Err: err})
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorPayload struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Key       string    `json:"key,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func errorBody(code, message, key string) map[string]errorPayload {
	return map[string]errorPayload{"error": {Code: code, Message: message, Key: key, Timestamp: time.Now().UTC()}}
}

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound, apperr.KindProductNotFound, apperr.KindOrderNotFound, apperr.KindLineNotFound:
		return http.StatusNotFound
	case apperr.KindDuplicateLine, apperr.KindInsufficientStock, apperr.KindInvalidState, apperr.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err. Errors without a Kind are logged and reported as
// a bare 500; a request cut short by its deadline is a 503.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		writeJSON(w, statusOf(ae.Kind), errorBody(ae.Kind.String(), ae.Message, ae.Key))
		return
	}
	reqID := middleware.GetReqID(r.Context())
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		logging.Log(logging.Fields{Service: service, RequestID: reqID, Step: "request", Status: "timeout", Err: err})
		writeJSON(w, http.StatusServiceUnavailable, errorBody("TIMEOUT", "request timed out", ""))
		return
	}
	logging.Log(logging.Fields{Service: service, RequestID: reqID, Step: "request", Status: "internal_error", Message: r.Method + " " + r.URL.Path, Err: err})
	writeJSON(w, http.StatusInternalServerError, errorBody(apperr.KindInternal.String(), "internal server error", ""))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.New(apperr.KindInvalidInput, "request body is required")
		}
		return apperr.New(apperr.KindInvalidInput, "invalid JSON body")
	}
	return nil
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.KindInvalidInput, "%s must be a positive integer", name)
	}
	return id, nil
}

// queryInt reads a positive integer query parameter, falling back to def
// when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperr.New(apperr.KindInvalidInput, fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, nil
}

// deadline bounds every request's context. Handlers see the expiry through
// their own store calls and answer it via writeError.
func deadline(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Log(logging.Fields{
			Service:    service,
			RequestID:  middleware.GetReqID(r.Context()),
			Step:       "http",
			Status:     strconv.Itoa(ww.Status()),
			DurationMS: time.Since(start).Milliseconds(),
			Message:    r.Method + " " + r.URL.Path,
		})
	})
}

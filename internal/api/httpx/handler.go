package httpx

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jcmexdev/storefront/internal/api/httpx/middlewares"
	"github.com/jcmexdev/storefront/internal/checkout"
	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/core/ports"
	"github.com/jcmexdev/storefront/internal/pkg/interceptors"
)

const maxJSONBody = 1 << 20

type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	Reconciliation(ctx context.Context, limit int) (*checkout.Report, error)
}

type TokenIssuer interface {
	RequestClientToken(ctx context.Context) (string, error)
}

type OrderService interface {
	UpdateStatus(ctx context.Context, orderID, status string) (*domain.Order, error)
	Get(ctx context.Context, orderID string) (*domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	ListNeedingAttention(ctx context.Context) ([]domain.Order, error)
}

type CategoryService interface {
	Create(ctx context.Context, name string) (*domain.Category, error)
	Update(ctx context.Context, id, name string) (*domain.Category, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, slug string) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
	ListWithCounts(ctx context.Context) ([]domain.CategoryWithCount, error)
}

type ProductService interface {
	Create(ctx context.Context, f domain.ProductFields, photo *ports.Photo) (*domain.Product, error)
	Update(ctx context.Context, id string, f domain.ProductFields, photo *ports.Photo) (*domain.Product, error)
	Delete(ctx context.Context, id string) (*domain.Product, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Product, error)
	List(ctx context.Context, f domain.ProductFilter) (*domain.ProductPage, error)
	Related(ctx context.Context, productID string) ([]domain.Product, error)
	Count(ctx context.Context) (int64, error)
	Photo(ctx context.Context, slug string) (io.ReadCloser, string, error)
}

type Handler struct {
	checkout   CheckoutService
	tokens     TokenIssuer
	orders     OrderService
	categories CategoryService
	products   ProductService
}

func NewHandler(
	cs CheckoutService,
	ti TokenIssuer,
	os OrderService,
	cats CategoryService,
	prods ProductService,
) *Handler {
	return &Handler{
		checkout:   cs,
		tokens:     ti,
		orders:     os,
		categories: cats,
		products:   prods,
	}
}

// ClientToken hands the browser a token for the hosted payment form.
func (h *Handler) ClientToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.tokens.RequestClientToken(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "client token request failed", "error", err)
		writeError(w, http.StatusBadGateway, "payment_gateway_unavailable", "payment is temporarily unavailable")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{ClientToken: token})
}

// Checkout runs the full checkout synchronously and answers with its
// outcome.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	user, _ := middlewares.UserFrom(r.Context())

	var req CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	lines := make([]domain.CartLine, len(req.Cart))
	for i, l := range req.Cart {
		lines[i] = domain.CartLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}

	slog.InfoContext(r.Context(), "checkout requested",
		"request_id", interceptors.RequestIDFrom(r.Context()), "buyer_id", user.ID, "lines", len(lines))

	res, err := h.checkout.Checkout(r.Context(), checkout.Request{
		BuyerID:        user.ID,
		Lines:          lines,
		Nonce:          req.Nonce,
		IdempotencyKey: interceptors.IdempotencyKeyFrom(r.Context()),
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mapCheckoutResult(res))
}

func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	user, _ := middlewares.UserFrom(r.Context())
	orders, err := h.orders.ListByBuyer(r.Context(), user.ID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrders(orders))
}

// AllOrders lists every order, newest first. ?needs_attention=true narrows
// to orders whose stock commit failed.
func (h *Handler) AllOrders(w http.ResponseWriter, r *http.Request) {
	var (
		orders []domain.Order
		err    error
	)
	if attention, _ := strconv.ParseBool(r.URL.Query().Get("needs_attention")); attention {
		orders, err = h.orders.ListNeedingAttention(r.Context())
	} else {
		orders, err = h.orders.ListAll(r.Context())
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrders(orders))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(*o))
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(*o))
}

func (h *Handler) Reconciliation(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	rep, err := h.checkout.Reconciliation(r.Context(), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReconciliationResponse{
		OrphanedPayments: mapJournalEntries(rep.OrphanedPayments),
		UnknownPayments:  mapJournalEntries(rep.UnknownPayments),
		NeedsAttention:   mapJournalEntries(rep.NeedsAttention),
	})
}

func jsonDecoder(w http.ResponseWriter, r *http.Request) *json.Decoder {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := jsonDecoder(w, r).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(key, "must be a whole number")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}

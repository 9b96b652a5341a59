package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jcmexdev/storefront/internal/catalog"
	"github.com/jcmexdev/storefront/internal/core/domain"
	"github.com/jcmexdev/storefront/internal/infra/photostore"
)

// writeDomainError maps an error kind to a status code and a message that
// is safe to show a customer. Details of server-side failures only go to
// the log.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var (
		validation *domain.ValidationError
		declined   *domain.PaymentDeclinedError
		stock      *domain.InsufficientStockError
		commit     *domain.StockCommitError
		inUse      *domain.CategoryInUseError
	)

	// Checkout outcomes first: they wrap the underlying cause, which may
	// itself be a stock or validation error.
	switch {
	case errors.Is(err, domain.ErrPaymentStatusUnknown):
		writeError(w, http.StatusBadGateway, "payment_status_unknown",
			"We could not confirm your payment. Please check your statement before trying again.")
	case errors.Is(err, domain.ErrOrphanedPayment):
		writeError(w, http.StatusInternalServerError, "order_not_recorded",
			"Your payment was received but we could not record your order. Our team has been notified and will contact you.")
	case errors.As(err, &commit):
		writeJSON(w, http.StatusAccepted, ErrorResponse{
			Error:   "order_needs_attention",
			Message: "Your order was placed and is being reviewed by our team.",
			OrderID: commit.OrderID,
		})

	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Message: validation.Message, Field: validation.Field})
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())

	case errors.As(err, &stock):
		writeError(w, http.StatusConflict, "insufficient_stock", stock.Error())
	case errors.As(err, &declined):
		msg := declined.Reason
		if msg == "" {
			msg = "Your payment was declined."
		}
		writeError(w, http.StatusPaymentRequired, "payment_declined", msg)
	case errors.Is(err, domain.ErrCheckoutInProgress):
		writeError(w, http.StatusConflict, "checkout_in_progress", "A checkout with this key is already being processed.")

	case errors.As(err, &inUse):
		writeError(w, http.StatusConflict, "category_in_use", inUse.Error())
	case errors.Is(err, domain.ErrProductInUse):
		writeError(w, http.StatusConflict, "product_in_use", "product is referenced by open orders")
	case errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrSlugExhausted):
		writeError(w, http.StatusConflict, "slug_exhausted", "too many items share this name")
	case errors.Is(err, domain.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())

	case errors.Is(err, domain.ErrProductNotFound):
		writeError(w, http.StatusNotFound, "product_not_found", "")
	case errors.Is(err, domain.ErrCategoryNotFound):
		writeError(w, http.StatusNotFound, "category_not_found", "")
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order_not_found", "")
	case errors.Is(err, catalog.ErrNoPhoto), errors.Is(err, photostore.ErrNotFound):
		writeError(w, http.StatusNotFound, "photo_not_found", "")

	default:
		slog.ErrorContext(ctx, "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	slog.DebugContext(ctx, "request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
}

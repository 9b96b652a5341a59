package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jcmexdev/storefront/internal/api/httpx/middlewares"
	"github.com/jcmexdev/storefront/internal/core/ports"
)

func NewRouter(handler *Handler, users ports.UserDirectory) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middlewares.AttachTracingMetadata)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewares.Identify(users))

	r.Get("/categories", handler.ListCategories)
	r.Get("/categories/{slug}", handler.GetCategory)
	r.Get("/products", handler.ListProducts)
	r.Get("/products/count", handler.CountProducts)
	r.Get("/products/{slug}", handler.GetProduct)
	r.Get("/products/{slug}/related", handler.RelatedProducts)
	r.Get("/products/{slug}/photo", handler.ProductPhoto)

	r.Group(func(r chi.Router) {
		r.Use(middlewares.RequireUser)
		r.Get("/payments/token", handler.ClientToken)
		r.Post("/checkout", handler.Checkout)
		r.Get("/orders/mine", handler.MyOrders)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.RequireAdmin)

		r.Get("/orders", handler.AllOrders)
		r.Get("/orders/{id}", handler.GetOrder)
		r.Put("/orders/{id}/status", handler.UpdateOrderStatus)
		r.Get("/reconciliation", handler.Reconciliation)

		r.Post("/categories", handler.CreateCategory)
		r.Put("/categories/{id}", handler.UpdateCategory)
		r.Delete("/categories/{id}", handler.DeleteCategory)

		r.Post("/products", handler.CreateProduct)
		r.Put("/products/{id}", handler.UpdateProduct)
		r.Delete("/products/{id}", handler.DeleteProduct)
	})

	// Server spans wrap the whole router so request ids and identity are
	// resolved inside the trace.
	return otelhttp.NewHandler(r, "storefront-api")
}

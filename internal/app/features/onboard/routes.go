// internal/app/features/onboard/routes.go
package onboard

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/invoice", h.HandleInvoice)
	r.Post("/checkout", h.HandleCheckout)
	r.Get("/checkout/return", h.HandleCheckoutReturn)
	return r
}

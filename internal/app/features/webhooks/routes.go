// internal/app/features/webhooks/routes.go
package webhooks

import "github.com/go-chi/chi/v5"

func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/billing", h.HandleBillingEvent)
	return r
}

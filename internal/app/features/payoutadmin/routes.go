// internal/app/features/payoutadmin/routes.go
package payoutadmin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func Routes(h *Handler, requireAdmin func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(requireAdmin)
	r.Post("/run", h.HandleRun)
	return r
}

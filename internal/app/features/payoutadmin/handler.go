// internal/app/features/payoutadmin/handler.go
package payoutadmin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/townboard/internal/app/payoutbatch"
	"go.uber.org/zap"
)

// Runner executes one payout batch run.
type Runner interface {
	Run(ctx context.Context, minimum int64) (*payoutbatch.Summary, error)
}

// Handler owns the admin payout trigger. Routes mounting it must wrap it
// in the admin-key middleware.
type Handler struct {
	Runner         Runner
	DefaultMinimum int64
	Log            *zap.Logger
}

func NewHandler(runner Runner, defaultMinimum int64, logger *zap.Logger) *Handler {
	return &Handler{Runner: runner, DefaultMinimum: defaultMinimum, Log: logger}
}

type runRequest struct {
	// Minimum overrides the configured minimum-payout threshold for this
	// run only. Zero or absent means use the default.
	Minimum int64 `json:"minimum,omitempty"`
}

// HandleRun handles POST /admin/payouts/run and returns the run summary.
func (h *Handler) HandleRun(w http.ResponseWriter, r *http.Request) {
	minimum := h.DefaultMinimum

	var req runRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	switch {
	case err == nil && req.Minimum > 0:
		minimum = req.Minimum
	case err != nil && !errors.Is(err, io.EOF):
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	summary, err := h.Runner.Run(r.Context(), minimum)
	if err != nil {
		h.Log.Error("payout batch run failed", zap.Error(err))
		http.Error(w, "payout run failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

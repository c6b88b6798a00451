// internal/app/features/webhooks/handler.go
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dalemusser/townboard/internal/app/billing"
	"go.uber.org/zap"
)

// maxEventBody bounds the inbound webhook body size.
const maxEventBody = 64 * 1024

// Verifier verifies the event signature and normalizes the payload.
type Verifier interface {
	Verify(payload []byte, sigHeader string) (*billing.Event, error)
}

// Processor resolves a verified event into canonical state.
type Processor interface {
	Process(ctx context.Context, ev *billing.Event) error
}

// Handler owns the inbound billing webhook endpoint.
type Handler struct {
	Verifier  Verifier
	Processor Processor
	Log       *zap.Logger
}

func NewHandler(verifier Verifier, processor Processor, logger *zap.Logger) *Handler {
	return &Handler{Verifier: verifier, Processor: processor, Log: logger}
}

// HandleBillingEvent handles POST /webhooks/billing.
//
// Response contract: 200 once the event is durably acknowledged, even for
// unrecognized types or unresolved identities. Signature failure is 400.
// A record-store write failure is 500 so the provider redelivers.
func (h *Handler) HandleBillingEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	ev, err := h.Verifier.Verify(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		var sigErr *billing.ErrInvalidSignature
		if errors.As(err, &sigErr) {
			h.Log.Warn("rejected webhook with invalid signature", zap.Error(err))
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}
		h.Log.Error("webhook verification failed", zap.Error(err))
		http.Error(w, "verification failed", http.StatusBadRequest)
		return
	}

	if err := h.Processor.Process(r.Context(), ev); err != nil {
		h.Log.Error("billing event processing failed, requesting redelivery",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.Error(err))
		http.Error(w, "processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"received": true})
}

// internal/app/features/onboard/handler.go
package onboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/townboard/internal/app/onboarding"
	"github.com/dalemusser/townboard/internal/domain/models"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

const (
	// stateCookieName carries the signed checkout state across the
	// provider redirect so the return callback can tie the session back
	// to the onboarding attempt without trusting query parameters.
	stateCookieName = "townboard_checkout"

	stateCookieMaxAge = int(2 * time.Hour / time.Second)
)

// Flow is the onboarding core this feature fronts.
type Flow interface {
	StartInvoiceOnboarding(ctx context.Context, in onboarding.InvoiceInput) (*onboarding.InvoiceResult, error)
	StartCheckoutOnboarding(ctx context.Context, in onboarding.CheckoutInput) (*onboarding.CheckoutResult, error)
}

// Handler owns the onboarding endpoints.
type Handler struct {
	Flow  Flow
	State *securecookie.SecureCookie
	Log   *zap.Logger
}

func NewHandler(flow Flow, state *securecookie.SecureCookie, logger *zap.Logger) *Handler {
	return &Handler{Flow: flow, State: state, Log: logger}
}

type companyPayload struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	TaxID   string `json:"tax_id"`
}

type invoiceRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Company  companyPayload `json:"company"`
	Service  string         `json:"service"`
}

type checkoutRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
	Service  string `json:"service"`
	Cycle    string `json:"cycle"`
}

// checkoutState is the signed value set before the provider redirect.
type checkoutState struct {
	UserID    string `json:"uid"`
	Service   string `json:"service"`
	SessionID string `json:"session_id"`
}

// HandleInvoice handles POST /onboard/invoice and returns the payable
// document URL. Activation is asynchronous; no role is granted here.
func (h *Handler) HandleInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.Flow.StartInvoiceOnboarding(r.Context(), onboarding.InvoiceInput{
		Email:    req.Email,
		Password: req.Password,
		Company: onboarding.CompanyInfo{
			Name:    req.Company.Name,
			Address: req.Company.Address,
			TaxID:   req.Company.TaxID,
		},
		Service: models.Service(req.Service),
	})
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"invoice_url": res.InvoiceURL,
		"invoice_id":  res.InvoiceID,
	})
}

// HandleCheckout handles POST /onboard/checkout: opens a provider checkout
// session, sets the signed state cookie, and returns the redirect URL.
func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := h.Flow.StartCheckoutOnboarding(r.Context(), onboarding.CheckoutInput{
		Email:    req.Email,
		Password: req.Password,
		Service:  models.Service(req.Service),
		Cycle:    models.BillingCycle(req.Cycle),
	})
	if err != nil {
		h.writeFlowError(w, err)
		return
	}

	if encoded, err := h.State.Encode(stateCookieName, checkoutState{
		UserID:    res.UserID,
		Service:   req.Service,
		SessionID: res.SessionID,
	}); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     stateCookieName,
			Value:    encoded,
			Path:     "/onboard/checkout",
			MaxAge:   stateCookieMaxAge,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	} else {
		h.Log.Error("checkout state cookie encode failed", zap.Error(err))
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"checkout_url": res.CheckoutURL,
		"session_id":   res.SessionID,
	})
}

// HandleCheckoutReturn handles GET /onboard/checkout/return after the
// provider redirects back. Payment confirmation is asynchronous: the
// response reports the provisional session, not an activation.
func (h *Handler) HandleCheckoutReturn(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(stateCookieName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing checkout state")
		return
	}
	var state checkoutState
	if err := h.State.Decode(stateCookieName, c.Value, &state); err != nil {
		writeError(w, http.StatusBadRequest, "invalid checkout state")
		return
	}

	// Clear the one-shot state cookie.
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/onboard/checkout",
		MaxAge:   -1,
		HttpOnly: true,
	})

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": state.SessionID,
		"service":    state.Service,
		"status":     "pending_confirmation",
	})
}

func (h *Handler) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, onboarding.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, onboarding.ErrMissingCredential):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, onboarding.ErrConflictingIdentity):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, onboarding.ErrDocumentTimeout):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, onboarding.ErrPriceNotConfigured):
		h.Log.Error("onboarding misconfigured", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "service temporarily unavailable")
	default:
		h.Log.Error("onboarding failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "onboarding failed")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

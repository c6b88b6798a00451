// internal/app/features/onboard/handler_test.go
package onboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/townboard/internal/app/onboarding"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

type fakeFlow struct {
	invoiceErr  error
	checkoutErr error
	lastInvoice onboarding.InvoiceInput
}

func (f *fakeFlow) StartInvoiceOnboarding(_ context.Context, in onboarding.InvoiceInput) (*onboarding.InvoiceResult, error) {
	f.lastInvoice = in
	if f.invoiceErr != nil {
		return nil, f.invoiceErr
	}
	return &onboarding.InvoiceResult{UserID: "u1", InvoiceID: "in_1", InvoiceURL: "https://files.example/in_1.pdf"}, nil
}

func (f *fakeFlow) StartCheckoutOnboarding(_ context.Context, in onboarding.CheckoutInput) (*onboarding.CheckoutResult, error) {
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &onboarding.CheckoutResult{UserID: "u1", SessionID: "cs_1", CheckoutURL: "https://pay.example/cs_1"}, nil
}

func newTestHandler(flow *fakeFlow) *Handler {
	state := securecookie.New([]byte("0123456789abcdef0123456789abcdef"), nil)
	return NewHandler(flow, state, zap.NewNop())
}

func TestHandleInvoiceReturnsDocument(t *testing.T) {
	flow := &fakeFlow{}
	h := newTestHandler(flow)

	body := `{"email":"a@b.co","password":"pw","service":"advertiser","company":{"name":"Acme"}}`
	req := httptest.NewRequest(http.MethodPost, "/invoice", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleInvoice(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "in_1.pdf") {
		t.Fatalf("body = %q, want the invoice URL", rec.Body.String())
	}
	if flow.lastInvoice.Company.Name != "Acme" {
		t.Fatalf("company = %+v, want the payload passed through", flow.lastInvoice.Company)
	}
}

func TestHandleCheckoutSetsStateCookie(t *testing.T) {
	h := newTestHandler(&fakeFlow{})

	body := `{"email":"a@b.co","service":"recruiter","cycle":"monthly"}`
	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleCheckout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == stateCookieName {
			cookie = c
		}
	}
	if cookie == nil {
		t.Fatal("checkout response did not set the state cookie")
	}
	if !cookie.HttpOnly {
		t.Fatal("state cookie must be HttpOnly")
	}

	var state checkoutState
	if err := h.State.Decode(stateCookieName, cookie.Value, &state); err != nil {
		t.Fatalf("decode state cookie: %v", err)
	}
	if state.SessionID != "cs_1" || state.UserID != "u1" {
		t.Fatalf("state = %+v", state)
	}
}

func TestHandleCheckoutReturnRoundTrip(t *testing.T) {
	h := newTestHandler(&fakeFlow{})

	encoded, err := h.State.Encode(stateCookieName, checkoutState{
		UserID: "u1", Service: "recruiter", SessionID: "cs_1",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/checkout/return", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: encoded})
	rec := httptest.NewRecorder()
	h.HandleCheckoutReturn(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %q", rec.Code, rec.Body.String())
	}
	// Confirmation is asynchronous; the return never claims activation.
	if !strings.Contains(rec.Body.String(), "pending_confirmation") {
		t.Fatalf("body = %q, want pending_confirmation", rec.Body.String())
	}
}

func TestHandleCheckoutReturnRejectsTamperedState(t *testing.T) {
	h := newTestHandler(&fakeFlow{})

	req := httptest.NewRequest(http.MethodGet, "/checkout/return", nil)
	req.AddCookie(&http.Cookie{Name: stateCookieName, Value: "forged"})
	rec := httptest.NewRecorder()
	h.HandleCheckoutReturn(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestFlowErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{onboarding.ErrInvalidInput, http.StatusBadRequest},
		{onboarding.ErrMissingCredential, http.StatusBadRequest},
		{onboarding.ErrConflictingIdentity, http.StatusConflict},
		{onboarding.ErrDocumentTimeout, http.StatusServiceUnavailable},
		{onboarding.ErrPriceNotConfigured, http.StatusInternalServerError},
		{errors.New("provider exploded"), http.StatusBadGateway},
	}
	for _, tc := range cases {
		h := newTestHandler(&fakeFlow{invoiceErr: tc.err})
		body := `{"email":"a@b.co","service":"advertiser"}`
		req := httptest.NewRequest(http.MethodPost, "/invoice", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.HandleInvoice(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.want)
		}
	}
}

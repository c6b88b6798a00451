// internal/app/billing/webhook.go
package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dalemusser/townboard/internal/domain/models"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
)

// ErrInvalidSignature wraps any signature-verification failure so callers
// can reject the request before any state is read or written.
type ErrInvalidSignature struct {
	cause error
}

func (e *ErrInvalidSignature) Error() string {
	return fmt.Sprintf("invalid webhook signature: %v", e.cause)
}

func (e *ErrInvalidSignature) Unwrap() error { return e.cause }

// WebhookVerifier verifies inbound event signatures against the configured
// endpoint secret and normalizes the payload.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Verify checks the cryptographic signature and returns the normalized
// event. Verification failure returns *ErrInvalidSignature; everything
// after a valid signature is best-effort normalization, never an error,
// because unrecognized shapes must still be acknowledged.
func (v *WebhookVerifier) Verify(payload []byte, sigHeader string) (*Event, error) {
	raw, err := webhook.ConstructEvent(payload, sigHeader, v.secret)
	if err != nil {
		return nil, &ErrInvalidSignature{cause: err}
	}
	return normalizeEvent(raw), nil
}

func normalizeEvent(raw stripe.Event) *Event {
	ev := &Event{
		ID:        raw.ID,
		Type:      string(raw.Type),
		Kind:      kindOf(string(raw.Type)),
		CreatedAt: time.Unix(raw.Created, 0).UTC(),
	}

	switch ev.Kind {
	case KindCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(raw.Data.Raw, &s); err == nil {
			if s.Customer != nil {
				ev.CustomerID = s.Customer.ID
			}
			if s.Subscription != nil {
				ev.SubscriptionID = s.Subscription.ID
			}
			applyMetadata(ev, s.Metadata)
		}
	case KindInvoicePaid, KindPaymentSucceeded:
		var inv stripe.Invoice
		if err := json.Unmarshal(raw.Data.Raw, &inv); err == nil {
			if inv.Customer != nil {
				ev.CustomerID = inv.Customer.ID
			}
			if inv.Subscription != nil {
				ev.SubscriptionID = inv.Subscription.ID
			}
			applyMetadata(ev, inv.Metadata)
		}
	case KindSubscriptionUpdated, KindSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(raw.Data.Raw, &sub); err == nil {
			ev.SubscriptionID = sub.ID
			if sub.Customer != nil {
				ev.CustomerID = sub.Customer.ID
			}
			applyMetadata(ev, sub.Metadata)
		}
	}

	return ev
}

func applyMetadata(ev *Event, meta map[string]string) {
	if meta == nil {
		return
	}
	if uid, ok := meta[MetaUserID]; ok {
		ev.UserID = uid
	}
	if svc, ok := meta[MetaService]; ok {
		ev.Service = serviceFromMeta(svc)
	}
}

func serviceFromMeta(s string) models.Service {
	svc := models.Service(s)
	if !svc.Valid() {
		return ""
	}
	return svc
}

func kindOf(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutCompleted
	case "invoice.paid":
		return KindInvoicePaid
	case "invoice.payment_succeeded":
		return KindPaymentSucceeded
	case "customer.subscription.updated":
		return KindSubscriptionUpdated
	case "customer.subscription.deleted":
		return KindSubscriptionDeleted
	default:
		return KindUnknown
	}
}

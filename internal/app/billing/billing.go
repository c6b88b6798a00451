// internal/app/billing/billing.go

// Package billing wraps the external billing/subscription provider: customer
// and checkout-session creation, invoicing, fund transfers, and inbound
// webhook verification. Everything above this package speaks the normalized
// types defined here, never raw provider payloads.
package billing

import (
	"time"

	"github.com/dalemusser/townboard/internal/domain/models"
)

// Metadata keys attached to provider objects so inbound events can be
// resolved back to an identity without a database round trip.
const (
	MetaUserID  = "uid"
	MetaService = "service"
)

// EventKind is the normalized lifecycle event type.
type EventKind string

const (
	KindCheckoutCompleted   EventKind = "checkout_completed"
	KindInvoicePaid         EventKind = "invoice_paid"
	KindPaymentSucceeded    EventKind = "payment_succeeded"
	KindSubscriptionUpdated EventKind = "subscription_updated"
	KindSubscriptionDeleted EventKind = "subscription_deleted"
	KindUnknown             EventKind = "unknown"
)

// Event is a verified, normalized billing-provider lifecycle event.
//
// UserID and Service come from embedded metadata and may be empty; the
// event processor falls back to a subscription metadata lookup and then a
// reverse customer lookup.
type Event struct {
	ID        string
	Kind      EventKind
	Type      string // raw provider event type, kept for logging
	CreatedAt time.Time

	UserID         string
	Service        models.Service
	CustomerID     string
	SubscriptionID string
}

// TargetStatus maps the event kind to the canonical status it resolves to.
// ok is false for kinds this system does not understand; those events are
// acknowledged without state change.
func (e *Event) TargetStatus() (models.ServiceStatus, bool) {
	switch e.Kind {
	case KindCheckoutCompleted, KindInvoicePaid, KindPaymentSucceeded, KindSubscriptionUpdated:
		return models.StatusActive, true
	case KindSubscriptionDeleted:
		return models.StatusCanceled, true
	default:
		return "", false
	}
}

// PriceKey identifies one configured (service, billing cycle) price.
type PriceKey struct {
	Service models.Service
	Cycle   models.BillingCycle
}

// PriceTable maps (service, cycle) pairs to provider price identifiers.
// Entries come from configuration; a missing entry is a fatal configuration
// error for the flow that needs it.
type PriceTable map[PriceKey]string

// Lookup returns the price id for the pair, and whether one is configured.
func (t PriceTable) Lookup(svc models.Service, cycle models.BillingCycle) (string, bool) {
	id, ok := t[PriceKey{Service: svc, Cycle: cycle}]
	return id, ok && id != ""
}

// CheckoutSessionParams describes one card-based checkout scoped to a single
// (service, cycle) price.
type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	SuccessURL string
	CancelURL  string
	UserID     string
	Service    models.Service
}

// CheckoutSession is the provider-hosted session the caller is redirected to.
// SubscriptionID is the provisional subscription reference known at session
// creation; the event processor overwrites it with the confirmed reference.
type CheckoutSession struct {
	ID             string
	URL            string
	SubscriptionID string
}

// InvoiceParams describes one bank-transfer invoice for a service's annual
// price.
type InvoiceParams struct {
	CustomerID   string
	PriceID      string
	DaysUntilDue int64
	UserID       string
	Service      models.Service
}

// Invoice carries the payable document references. PDFURL may be empty
// immediately after finalization; the provider generates the document
// asynchronously.
type Invoice struct {
	ID        string
	PDFURL    string
	HostedURL string
}

// TransferParams describes one aggregate fund transfer to a beneficiary's
// external destination.
type TransferParams struct {
	Amount         int64 // smallest currency unit
	Currency       string
	DestinationID  string
	TransferGroup  string
	IdempotencyKey string
}

// internal/app/onboarding/flow.go

// Package onboarding provisions an identity record, a billing-provider
// customer, and a provisional subscription status before any confirming
// event arrives. It never grants a role; activation belongs to the event
// processor.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/townboard/internal/app/billing"
	"github.com/dalemusser/townboard/internal/app/identity"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/domain/models"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

var (
	// ErrMissingCredential: creating a brand-new identity requires a
	// password.
	ErrMissingCredential = errors.New("a password is required to create a new account")

	// ErrConflictingIdentity: the email is already registered in a way
	// that conflicts with this request.
	ErrConflictingIdentity = errors.New("email already registered with a conflicting identity")

	// ErrPriceNotConfigured is a fatal configuration error, never retried.
	ErrPriceNotConfigured = errors.New("no price configured for service and billing cycle")

	// ErrDocumentTimeout: the provider never produced the payable
	// document. The caller may retry later.
	ErrDocumentTimeout = errors.New("invoice document was not generated in time")

	// ErrInvalidInput covers missing or malformed onboarding fields.
	ErrInvalidInput = errors.New("invalid onboarding input")
)

// pdfRetryDelay is the single bounded wait before refetching an invoice
// whose document is still being generated provider-side.
const pdfRetryDelay = 3 * time.Second

// UserStore is the slice of the record store the flow needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpsertOnboarding(ctx context.Context, w userstore.OnboardingWrite) error
}

// IdentityClient is the slice of the identity provider the flow needs.
type IdentityClient interface {
	LookupByEmail(ctx context.Context, email string) (*identity.Identity, error)
	Create(ctx context.Context, email, password string) (*identity.Identity, error)
	Delete(ctx context.Context, uid string) error
}

// BillingClient is the slice of the billing provider the flow needs.
type BillingClient interface {
	EnsureCustomer(ctx context.Context, existingID, email, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, p billing.CheckoutSessionParams) (*billing.CheckoutSession, error)
	CreateInvoice(ctx context.Context, p billing.InvoiceParams) (*billing.Invoice, error)
	GetInvoice(ctx context.Context, id string) (*billing.Invoice, error)
}

// Config carries the flow's external knobs.
type Config struct {
	Prices              billing.PriceTable
	InvoiceDaysUntilDue int64
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
}

// Flow owns both onboarding entry paths.
type Flow struct {
	users    UserStore
	identity IdentityClient
	billing  BillingClient
	cfg      Config
	sanitize *bluemonday.Policy
	sleep    func(time.Duration) // pluggable for tests
	log      *zap.Logger
}

func NewFlow(users UserStore, idp IdentityClient, bill BillingClient, cfg Config, logger *zap.Logger) *Flow {
	if cfg.InvoiceDaysUntilDue == 0 {
		cfg.InvoiceDaysUntilDue = 30
	}
	return &Flow{
		users:    users,
		identity: idp,
		billing:  bill,
		cfg:      cfg,
		sanitize: bluemonday.StrictPolicy(),
		sleep:    time.Sleep,
		log:      logger,
	}
}

// CompanyInfo is the free-text company block supplied on the invoice path.
// All fields are sanitized before storage or invoicing.
type CompanyInfo struct {
	Name    string
	Address string
	TaxID   string
}

func (f *Flow) cleanCompany(c CompanyInfo) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{c.Name, c.Address, c.TaxID} {
		if s = strings.TrimSpace(f.sanitize.Sanitize(s)); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// ensureIdentity looks up or creates the identity for email. The second
// return value reports whether this call created it, which drives the
// checkout cleanup contract.
func (f *Flow) ensureIdentity(ctx context.Context, email, password string) (*identity.Identity, bool, error) {
	ident, err := f.identity.LookupByEmail(ctx, email)
	if err == nil {
		return ident, false, nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return nil, false, fmt.Errorf("identity lookup: %w", err)
	}

	if password == "" {
		return nil, false, ErrMissingCredential
	}
	ident, err = f.identity.Create(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrEmailTaken) {
			return nil, false, ErrConflictingIdentity
		}
		return nil, false, fmt.Errorf("identity create: %w", err)
	}
	return ident, true, nil
}

func (f *Flow) ensureCustomer(ctx context.Context, uid, email string) (string, error) {
	existing := ""
	u, err := f.users.GetByID(ctx, uid)
	switch {
	case err == nil:
		existing = u.BillingCustomerID
	case errors.Is(err, userstore.ErrNotFound):
		// First onboarding attempt for this identity.
	default:
		return "", fmt.Errorf("load user record: %w", err)
	}
	return f.billing.EnsureCustomer(ctx, existing, email, uid)
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("%w: email", ErrInvalidInput)
	}
	return email, nil
}

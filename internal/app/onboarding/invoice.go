// internal/app/onboarding/invoice.go
package onboarding

import (
	"context"
	"fmt"

	"github.com/dalemusser/townboard/internal/app/billing"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/domain/models"
	"go.uber.org/zap"
)

// InvoiceInput is the bank-transfer onboarding request.
type InvoiceInput struct {
	Email    string
	Password string
	Company  CompanyInfo
	Service  models.Service
}

// InvoiceResult carries the payable document reference back to the caller.
type InvoiceResult struct {
	UserID     string
	InvoiceID  string
	InvoiceURL string
}

// StartInvoiceOnboarding provisions identity, customer, and a finalized
// annual invoice, then writes the provisional pending_invoice status. The
// caller pays the invoice out-of-band; activation arrives later through
// the event processor.
func (f *Flow) StartInvoiceOnboarding(ctx context.Context, in InvoiceInput) (*InvoiceResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if !in.Service.Valid() {
		return nil, fmt.Errorf("%w: service %q", ErrInvalidInput, in.Service)
	}

	ident, created, err := f.ensureIdentity(ctx, email, in.Password)
	if err != nil {
		return nil, err
	}
	if created {
		f.log.Info("created identity for invoice onboarding",
			zap.String("user_id", ident.UID),
			zap.String("service", string(in.Service)))
	}

	priceID, ok := f.cfg.Prices.Lookup(in.Service, models.CycleAnnual)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPriceNotConfigured, in.Service, models.CycleAnnual)
	}

	customerID, err := f.ensureCustomer(ctx, ident.UID, email)
	if err != nil {
		return nil, err
	}

	inv, err := f.billing.CreateInvoice(ctx, billing.InvoiceParams{
		CustomerID:   customerID,
		PriceID:      priceID,
		DaysUntilDue: f.cfg.InvoiceDaysUntilDue,
		UserID:       ident.UID,
		Service:      in.Service,
	})
	if err != nil {
		return nil, err
	}

	// The payable document is generated provider-side after finalization.
	// One bounded retry with a fixed delay, not an open-ended poll.
	if inv.PDFURL == "" {
		f.sleep(pdfRetryDelay)
		refetched, err := f.billing.GetInvoice(ctx, inv.ID)
		if err != nil {
			return nil, err
		}
		if refetched.PDFURL == "" {
			return nil, fmt.Errorf("%w: invoice %s", ErrDocumentTimeout, inv.ID)
		}
		inv = refetched
	}

	err = f.users.UpsertOnboarding(ctx, userstore.OnboardingWrite{
		UserID:     ident.UID,
		Email:      email,
		Company:    f.cleanCompany(in.Company),
		CustomerID: customerID,
		Service:    in.Service,
		Status:     models.StatusPendingInvoice,
	})
	if err != nil {
		return nil, fmt.Errorf("write provisional invoice status: %w", err)
	}

	return &InvoiceResult{
		UserID:     ident.UID,
		InvoiceID:  inv.ID,
		InvoiceURL: inv.PDFURL,
	}, nil
}

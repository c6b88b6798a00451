// internal/app/onboarding/checkout.go
package onboarding

import (
	"context"
	"fmt"

	"github.com/dalemusser/townboard/internal/app/billing"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/domain/models"
	"go.uber.org/zap"
)

// CheckoutInput is the card-based onboarding request.
type CheckoutInput struct {
	Email    string
	Password string
	Service  models.Service
	Cycle    models.BillingCycle
}

// CheckoutResult carries the provider-hosted session the caller is
// redirected to.
type CheckoutResult struct {
	UserID         string
	SessionID      string
	CheckoutURL    string
	SubscriptionID string
}

// StartCheckoutOnboarding provisions identity and customer, opens a
// checkout session for one (service, cycle) price, and writes the
// provisional pending_checkout status with the speculative subscription
// reference.
//
// Cleanup contract: if any step after identity creation fails and the
// identity was newly created in this call, the identity is deleted so no
// orphaned unconfirmed account remains. The compensating delete is
// best-effort and logged.
func (f *Flow) StartCheckoutOnboarding(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if !in.Service.Valid() {
		return nil, fmt.Errorf("%w: service %q", ErrInvalidInput, in.Service)
	}
	if !in.Cycle.Valid() {
		return nil, fmt.Errorf("%w: billing cycle %q", ErrInvalidInput, in.Cycle)
	}

	ident, created, err := f.ensureIdentity(ctx, email, in.Password)
	if err != nil {
		return nil, err
	}

	res, err := f.startCheckout(ctx, ident.UID, email, in)
	if err != nil && created {
		f.cleanupIdentity(ctx, ident.UID)
	}
	return res, err
}

func (f *Flow) startCheckout(ctx context.Context, uid, email string, in CheckoutInput) (*CheckoutResult, error) {
	priceID, ok := f.cfg.Prices.Lookup(in.Service, in.Cycle)
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", ErrPriceNotConfigured, in.Service, in.Cycle)
	}

	customerID, err := f.ensureCustomer(ctx, uid, email)
	if err != nil {
		return nil, err
	}

	sess, err := f.billing.CreateCheckoutSession(ctx, billing.CheckoutSessionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: f.cfg.CheckoutSuccessURL,
		CancelURL:  f.cfg.CheckoutCancelURL,
		UserID:     uid,
		Service:    in.Service,
	})
	if err != nil {
		return nil, err
	}

	err = f.users.UpsertOnboarding(ctx, userstore.OnboardingWrite{
		UserID:         uid,
		Email:          email,
		CustomerID:     customerID,
		SubscriptionID: sess.SubscriptionID,
		Service:        in.Service,
		Status:         models.StatusPendingCheckout,
	})
	if err != nil {
		return nil, fmt.Errorf("write provisional checkout status: %w", err)
	}

	return &CheckoutResult{
		UserID:         uid,
		SessionID:      sess.ID,
		CheckoutURL:    sess.URL,
		SubscriptionID: sess.SubscriptionID,
	}, nil
}

// cleanupIdentity is the explicit compensating action for a failed
// checkout that created a brand-new identity.
func (f *Flow) cleanupIdentity(ctx context.Context, uid string) {
	if err := f.identity.Delete(ctx, uid); err != nil {
		f.log.Error("compensating identity delete failed, orphaned identity remains",
			zap.String("user_id", uid),
			zap.Error(err))
		return
	}
	f.log.Info("deleted newly created identity after checkout failure",
		zap.String("user_id", uid))
}

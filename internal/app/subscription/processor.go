// internal/app/subscription/processor.go

// Package subscription resolves billing-provider lifecycle events into the
// canonical per-service subscription status, propagated to both the record
// store and the identity provider's claim set.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/townboard/internal/app/billing"
	"github.com/dalemusser/townboard/internal/app/identity"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/app/system/cache"
	"github.com/dalemusser/townboard/internal/domain/models"
	"go.uber.org/zap"
)

// reverseLookupTTL bounds how long a customer→user resolution is reused
// before hitting the record store again.
const reverseLookupTTL = 5 * time.Minute

// UserStore is the slice of the record store the processor needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	FindByBillingCustomerID(ctx context.Context, customerID string) (*models.User, error)
	ApplyServiceEvent(ctx context.Context, userID string, svc models.Service, status models.ServiceStatus, eventAt time.Time, subscriptionID string) (bool, error)
}

// SubscriptionLookup fetches subscription metadata from the billing
// provider, the secondary identity-resolution path.
type SubscriptionLookup interface {
	SubscriptionMetadata(ctx context.Context, subscriptionID string) (map[string]string, error)
}

// IdentityWriter mirrors reconciliation results into the identity
// provider's claim set.
type IdentityWriter interface {
	SetClaims(ctx context.Context, uid string, claims identity.Claims) error
	RevokeSessions(ctx context.Context, uid string) error
}

// Processor is the state-machine core. It is stateless apart from a
// read-through cache of customer reverse lookups; all coordination is via
// the record store.
type Processor struct {
	users     UserStore
	subs      SubscriptionLookup
	identity  IdentityWriter
	custCache *cache.Cache[string] // billing customer id → user id
	log       *zap.Logger
}

func NewProcessor(users UserStore, subs SubscriptionLookup, idp IdentityWriter, logger *zap.Logger) *Processor {
	return &Processor{
		users:     users,
		subs:      subs,
		identity:  idp,
		custCache: cache.New[string](reverseLookupTTL, nil),
		log:       logger,
	}
}

// Process applies one verified event. The returned error is non-nil only
// when the record store write failed, i.e. nothing was durably applied and
// the caller should answer non-2xx so the provider redelivers. Every other
// outcome, including unrecognized event types, unresolved identities, and
// identity-provider write failures after the store write, is acknowledged.
func (p *Processor) Process(ctx context.Context, ev *billing.Event) error {
	target, ok := ev.TargetStatus()
	if !ok {
		p.log.Info("acknowledging unrecognized billing event type",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type))
		return nil
	}

	userID, svc, err := p.resolve(ctx, ev)
	if err != nil {
		return err
	}
	if userID == "" || svc == "" {
		p.log.Warn("billing event does not resolve to a tracked identity, dropping",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.String("customer_id", ev.CustomerID),
			zap.String("subscription_id", ev.SubscriptionID))
		return nil
	}

	applied, err := p.users.ApplyServiceEvent(ctx, userID, svc, target, ev.CreatedAt, ev.SubscriptionID)
	if errors.Is(err, userstore.ErrNotFound) {
		p.log.Warn("billing event resolves to a user with no record, dropping",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.String("user_id", userID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s for user %s service %s: %w", target, userID, svc, err)
	}
	if !applied {
		p.log.Info("skipping stale billing event",
			zap.String("event_id", ev.ID),
			zap.String("user_id", userID),
			zap.String("service", string(svc)),
			zap.Time("event_at", ev.CreatedAt))
		return nil
	}

	// The record store is now authoritative. Claim-set and credential
	// updates below are best-effort: failures are surfaced for operator
	// visibility and repaired by the next event or manual reconciliation.
	p.reconcileIdentity(ctx, userID, svc, target, ev)
	return nil
}

func (p *Processor) resolve(ctx context.Context, ev *billing.Event) (string, models.Service, error) {
	userID, svc := ev.UserID, ev.Service

	if (userID == "" || svc == "") && ev.SubscriptionID != "" {
		meta, err := p.subs.SubscriptionMetadata(ctx, ev.SubscriptionID)
		if err != nil {
			p.log.Warn("subscription metadata lookup failed",
				zap.String("subscription_id", ev.SubscriptionID),
				zap.Error(err))
		} else {
			if userID == "" {
				userID = meta[billing.MetaUserID]
			}
			if svc == "" {
				if s := models.Service(meta[billing.MetaService]); s.Valid() {
					svc = s
				}
			}
		}
	}

	if userID == "" && ev.CustomerID != "" {
		if cached, ok := p.custCache.Get(ev.CustomerID); ok {
			userID = cached
		} else {
			u, err := p.users.FindByBillingCustomerID(ctx, ev.CustomerID)
			switch {
			case err == nil:
				userID = u.ID
				p.custCache.Put(ev.CustomerID, u.ID)
			case errors.Is(err, userstore.ErrNotFound):
				// Belongs to a flow this core does not track.
			default:
				return "", "", fmt.Errorf("reverse customer lookup %s: %w", ev.CustomerID, err)
			}
		}
	}

	return userID, svc, nil
}

func (p *Processor) reconcileIdentity(ctx context.Context, userID string, svc models.Service, target models.ServiceStatus, ev *billing.Event) {
	u, err := p.users.GetByID(ctx, userID)
	if err != nil {
		p.log.Error("reload after status write failed, claim set not refreshed",
			zap.String("user_id", userID),
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return
	}

	claims := identity.Claims{Roles: u.Roles, Paid: len(u.Roles) > 0}
	if err := p.identity.SetClaims(ctx, userID, claims); err != nil {
		p.log.Error("claim set update failed, record store remains authoritative",
			zap.String("user_id", userID),
			zap.String("event_id", ev.ID),
			zap.Error(err))
		return
	}

	if target == models.StatusCanceled {
		if err := p.identity.RevokeSessions(ctx, userID); err != nil {
			p.log.Error("credential revocation failed after cancel",
				zap.String("user_id", userID),
				zap.String("service", string(svc)),
				zap.Error(err))
		}
	}
}

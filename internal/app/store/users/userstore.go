// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / uid: the identity provider's subject id, stored as _id.
//   - BillingCustomerID: the external billing provider's customer reference.

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/townboard/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when no user record matches the lookup.
var ErrNotFound = errors.New("user not found")

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// GetByID loads a user by identity-provider uid.
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByBillingCustomerID is the reverse lookup used when an inbound event
// carries no identity metadata.
func (s *Store) FindByBillingCustomerID(ctx context.Context, customerID string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"billing_customer_id": customerID}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// OnboardingWrite is the provisional record written by the onboarding flow
// before any confirming event arrives. It never grants a role.
type OnboardingWrite struct {
	UserID         string
	Email          string
	Company        string
	CustomerID     string
	SubscriptionID string // speculative; empty on the invoice path
	Service        models.Service
	Status         models.ServiceStatus
}

// UpsertOnboarding creates or updates the user record with a provisional
// per-service status. Subsequent mutations of the record belong to the
// event processor.
func (s *Store) UpsertOnboarding(ctx context.Context, w OnboardingWrite) error {
	now := time.Now().UTC()
	set := bson.M{
		"email":               strings.ToLower(strings.TrimSpace(w.Email)),
		"billing_customer_id": w.CustomerID,
		"services." + string(w.Service): models.ServiceState{
			Status:    w.Status,
			UpdatedAt: now,
		},
		"updated_at": now,
	}
	if w.Company != "" {
		set["company"] = w.Company
	}
	if w.SubscriptionID != "" {
		set["billing_subscription_id"] = w.SubscriptionID
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"created_at": now},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": w.UserID}, update, opts)
	return err
}

// ApplyServiceEvent applies a resolved lifecycle event to the (user, service)
// pair. The update is conditional on the stored event time: an event older
// than the one already recorded does not match and the method reports
// applied=false, so out-of-order redelivery cannot regress the status. When
// no record exists for userID at all the method returns ErrNotFound instead,
// so callers can tell a missing user from a stale event.
//
// Role maintenance rides along in the same update: active adds the service
// role (idempotent union), canceled removes it. Any other status leaves the
// role set alone.
func (s *Store) ApplyServiceEvent(ctx context.Context, userID string, svc models.Service, status models.ServiceStatus, eventAt time.Time, subscriptionID string) (bool, error) {
	now := time.Now().UTC()
	field := "services." + string(svc)

	filter := bson.M{
		"_id": userID,
		"$or": bson.A{
			bson.M{field + ".event_at": bson.M{"$exists": false}},
			bson.M{field + ".event_at": bson.M{"$lte": eventAt}},
		},
	}

	set := bson.M{
		field + ".status":     status,
		field + ".event_at":   eventAt,
		field + ".updated_at": now,
		"updated_at":          now,
	}
	if subscriptionID != "" {
		set["billing_subscription_id"] = subscriptionID
	}

	update := bson.M{"$set": set}
	switch status {
	case models.StatusActive:
		update["$addToSet"] = bson.M{"roles": svc.Role()}
	case models.StatusCanceled:
		update["$pull"] = bson.M{"roles": svc.Role()}
	}

	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// No match is either a stale event or a user that was never written.
	err = s.c.FindOne(ctx, bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err == mongo.ErrNoDocuments {
		return false, ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

// IncrementReferralPaid adds amount to the beneficiary's lifetime-paid
// counter after a successful transfer.
func (s *Store) IncrementReferralPaid(ctx context.Context, userID string, amount int64) error {
	update := bson.M{
		"$inc": bson.M{"referral_paid_total": amount},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPayoutAccount records the external transfer destination for a user.
func (s *Store) SetPayoutAccount(ctx context.Context, userID, accountID string) error {
	update := bson.M{"$set": bson.M{
		"payout_account_id": accountID,
		"updated_at":        time.Now().UTC(),
	}}
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

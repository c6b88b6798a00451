// internal/domain/models/user.go
package models

import (
	"time"
)

// ServiceState is the stored reconciliation state for one (user, service)
// pair.
//
// EventAt carries the billing provider's creation time for the event that
// last set Status. The user store refuses to apply an event older than the
// recorded one, so out-of-order redelivery cannot regress the status.
type ServiceState struct {
	Status    ServiceStatus `bson:"status" json:"status"`
	EventAt   time.Time     `bson:"event_at,omitempty" json:"event_at,omitempty"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updated_at"`
}

// User is one record per identity-provider subject.
//
// NOTE:
//   - ID is the identity provider's UID, not a generated ObjectID. The
//     identity provider is the system of record for credentials; this
//     record is the system of record for subscription status.
//   - Roles mirrors the active services at last successful reconciliation.
//     It is eventually consistent with Services, never transactionally so.
type User struct {
	ID      string `bson:"_id" json:"id"`
	Email   string `bson:"email" json:"email"`
	Company string `bson:"company,omitempty" json:"company,omitempty"`

	// External billing references. The customer id is created lazily and
	// never recreated once present and live; the subscription id is written
	// speculatively at checkout-session creation and may be superseded.
	BillingCustomerID     string `bson:"billing_customer_id,omitempty" json:"billing_customer_id,omitempty"`
	BillingSubscriptionID string `bson:"billing_subscription_id,omitempty" json:"billing_subscription_id,omitempty"`

	Roles    []string                 `bson:"roles,omitempty" json:"roles,omitempty"`
	Services map[Service]ServiceState `bson:"services,omitempty" json:"services,omitempty"`

	// Referral payout settlement fields.
	PayoutAccountID   string `bson:"payout_account_id,omitempty" json:"payout_account_id,omitempty"`
	ReferralPaidTotal int64  `bson:"referral_paid_total,omitempty" json:"referral_paid_total,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ServiceStatusFor returns the recorded status for service, or StatusNone
// when the user has never touched it.
func (u *User) ServiceStatusFor(svc Service) ServiceStatus {
	if st, ok := u.Services[svc]; ok {
		return st.Status
	}
	return StatusNone
}

// HasRole reports whether role is present in the user's role set.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

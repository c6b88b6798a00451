// internal/domain/models/payout.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PayoutStatus is the lifecycle state of one accrued reward unit.
type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
)

// Payout is one accrued, unpaid referral reward unit. Records are created
// pending by the reward-accrual side; only the batch processor mutates them,
// and it never touches Amount.
type Payout struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	BeneficiaryID string             `bson:"beneficiary_id" json:"beneficiary_id"`
	Amount        int64              `bson:"amount" json:"amount"` // smallest currency unit
	Status        PayoutStatus       `bson:"status" json:"status"`

	CreatedAt    time.Time  `bson:"created_at" json:"created_at"`
	ProcessingAt *time.Time `bson:"processing_at,omitempty" json:"processing_at,omitempty"`
	PaidAt       *time.Time `bson:"paid_at,omitempty" json:"paid_at,omitempty"`

	// ProcessingRun is the id of the batch run holding the claim, set only
	// while processing. Release and settle are scoped to it.
	ProcessingRun string `bson:"processing_run,omitempty" json:"processing_run,omitempty"`

	// PayoutReferenceID is the external transfer id, set only when paid.
	PayoutReferenceID string `bson:"payout_reference_id,omitempty" json:"payout_reference_id,omitempty"`
}

// internal/app/payoutbatch/batch.go

// Package payoutbatch aggregates unpaid referral reward records per
// beneficiary and settles them through external fund transfers. A
// beneficiary's aggregate is paid atomically or not at all; failed and
// under-threshold aggregates return to pending for the next run.
package payoutbatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dalemusser/townboard/internal/app/billing"
	userstore "github.com/dalemusser/townboard/internal/app/store/users"
	"github.com/dalemusser/townboard/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// PayoutStore is the slice of the record store the runner needs. Claim,
// Release, and Settle are scoped to a run id so concurrent runs cannot
// touch each other's claims.
type PayoutStore interface {
	ListPending(ctx context.Context) ([]models.Payout, error)
	Claim(ctx context.Context, ids []primitive.ObjectID, runID string, at time.Time) (int64, error)
	Release(ctx context.Context, ids []primitive.ObjectID, runID string) error
	Settle(ctx context.Context, ids []primitive.ObjectID, runID, transferID string, at time.Time) error
}

// UserStore resolves transfer destinations and lifetime counters.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	IncrementReferralPaid(ctx context.Context, id string, amount int64) error
}

// TransferClient executes external fund transfers.
type TransferClient interface {
	Transfer(ctx context.Context, p billing.TransferParams) (string, error)
}

// Failure records one beneficiary whose aggregate was not paid this run.
type Failure struct {
	BeneficiaryID string `json:"beneficiary_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

// Summary is the result of one batch run.
type Summary struct {
	RunID         string    `json:"run_id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Beneficiaries int       `json:"beneficiaries"`
	Paid          int       `json:"paid"`
	Held          int       `json:"held"`
	AmountPaid    int64     `json:"amount_paid"`
	Failures      []Failure `json:"failures,omitempty"`
}

// Runner executes payout batch runs. It holds no state between runs; all
// coordination is through the payout store's conditional claim writes.
type Runner struct {
	payouts   PayoutStore
	users     UserStore
	transfers TransferClient
	currency  string
	nowFn     func() time.Time
	log       *zap.Logger
}

func NewRunner(payouts PayoutStore, users UserStore, transfers TransferClient, currency string, logger *zap.Logger) *Runner {
	return &Runner{
		payouts:   payouts,
		users:     users,
		transfers: transfers,
		currency:  currency,
		nowFn:     time.Now,
		log:       logger,
	}
}

type aggregate struct {
	beneficiaryID string
	amount        int64
	ids           []primitive.ObjectID
}

// Run executes one batch: list pending, partition per beneficiary, claim,
// then hold, fail, or settle each aggregate in sequence. Every record ends
// the run pending or paid, never processing.
func (r *Runner) Run(ctx context.Context, minimum int64) (*Summary, error) {
	runID := uuid.NewString()
	started := r.nowFn().UTC()
	sum := &Summary{RunID: runID, StartedAt: started}

	pending, err := r.payouts.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending payouts: %w", err)
	}
	if len(pending) == 0 {
		sum.FinishedAt = r.nowFn().UTC()
		return sum, nil
	}

	aggs := partition(pending)
	sum.Beneficiaries = len(aggs)

	r.log.Info("payout batch starting",
		zap.String("run_id", runID),
		zap.Int("pending_records", len(pending)),
		zap.Int("beneficiaries", len(aggs)),
		zap.Int64("minimum", minimum))

	for _, agg := range aggs {
		r.settleAggregate(ctx, runID, agg, minimum, sum)
	}

	sum.FinishedAt = r.nowFn().UTC()
	r.log.Info("payout batch finished",
		zap.String("run_id", runID),
		zap.Int("paid", sum.Paid),
		zap.Int("held", sum.Held),
		zap.Int("failed", len(sum.Failures)),
		zap.Int64("amount_paid", sum.AmountPaid))
	return sum, nil
}

// settleAggregate claims one beneficiary's records and pays or reverts
// them. The claim is conditional on each record still being pending, so a
// concurrent run can never double-process the same record; a short claim
// means someone else got there first and the whole aggregate is skipped.
// Every revert is scoped to this run's id, so the conflict path cannot
// release records the other run is holding.
func (r *Runner) settleAggregate(ctx context.Context, runID string, agg aggregate, minimum int64, sum *Summary) {
	now := r.nowFn().UTC()
	claimed, err := r.payouts.Claim(ctx, agg.ids, runID, now)
	if err != nil {
		r.fail(ctx, runID, agg, sum, fmt.Sprintf("claim failed: %v", err))
		return
	}
	if claimed != int64(len(agg.ids)) {
		r.fail(ctx, runID, agg, sum, "claim conflict: records taken by a concurrent run")
		return
	}

	if agg.amount < minimum {
		// Held, not failed: below the minimum-payout threshold.
		if err := r.payouts.Release(ctx, agg.ids, runID); err != nil {
			r.log.Error("release of held payout records failed",
				zap.String("run_id", runID),
				zap.String("beneficiary_id", agg.beneficiaryID),
				zap.Error(err))
		}
		sum.Held++
		return
	}

	u, err := r.users.GetByID(ctx, agg.beneficiaryID)
	if err != nil && !errors.Is(err, userstore.ErrNotFound) {
		r.fail(ctx, runID, agg, sum, fmt.Sprintf("beneficiary lookup failed: %v", err))
		return
	}
	if u == nil || u.PayoutAccountID == "" {
		r.fail(ctx, runID, agg, sum, "missing transfer destination")
		return
	}

	transferID, err := r.transfers.Transfer(ctx, billing.TransferParams{
		Amount:         agg.amount,
		Currency:       r.currency,
		DestinationID:  u.PayoutAccountID,
		TransferGroup:  "payout-run-" + runID,
		IdempotencyKey: uuid.NewString(),
	})
	if err != nil {
		// No partial settlement: the whole aggregate goes back to pending
		// and the next scheduled run retries it.
		r.fail(ctx, runID, agg, sum, fmt.Sprintf("transfer failed: %v", err))
		return
	}

	if err := r.payouts.Settle(ctx, agg.ids, runID, transferID, r.nowFn().UTC()); err != nil {
		// The transfer went out but the ledger write failed. Surface loudly;
		// the records stay processing until an operator reconciles against
		// the transfer reference.
		r.log.Error("ledger settle failed after successful transfer, manual reconciliation required",
			zap.String("run_id", runID),
			zap.String("beneficiary_id", agg.beneficiaryID),
			zap.String("transfer_id", transferID),
			zap.Int64("amount", agg.amount),
			zap.Error(err))
		sum.Failures = append(sum.Failures, Failure{
			BeneficiaryID: agg.beneficiaryID,
			Amount:        agg.amount,
			Reason:        fmt.Sprintf("settle failed after transfer %s: %v", transferID, err),
		})
		return
	}

	if err := r.users.IncrementReferralPaid(ctx, agg.beneficiaryID, agg.amount); err != nil {
		r.log.Error("lifetime-paid counter update failed",
			zap.String("beneficiary_id", agg.beneficiaryID),
			zap.Error(err))
	}

	sum.Paid++
	sum.AmountPaid += agg.amount
}

func (r *Runner) fail(ctx context.Context, runID string, agg aggregate, sum *Summary, reason string) {
	if err := r.payouts.Release(ctx, agg.ids, runID); err != nil {
		r.log.Error("release of failed payout records failed",
			zap.String("beneficiary_id", agg.beneficiaryID),
			zap.Error(err))
	}
	sum.Failures = append(sum.Failures, Failure{
		BeneficiaryID: agg.beneficiaryID,
		Amount:        agg.amount,
		Reason:        reason,
	})
}

// partition groups pending records per beneficiary, ordered by beneficiary
// id so runs are deterministic.
func partition(pending []models.Payout) []aggregate {
	byBeneficiary := make(map[string]*aggregate)
	for _, p := range pending {
		agg, ok := byBeneficiary[p.BeneficiaryID]
		if !ok {
			agg = &aggregate{beneficiaryID: p.BeneficiaryID}
			byBeneficiary[p.BeneficiaryID] = agg
		}
		agg.amount += p.Amount
		agg.ids = append(agg.ids, p.ID)
	}

	out := make([]aggregate, 0, len(byBeneficiary))
	for _, agg := range byBeneficiary {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].beneficiaryID < out[j].beneficiaryID })
	return out
}

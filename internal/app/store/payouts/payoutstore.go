// internal/app/store/payouts/payoutstore.go
package payoutstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dalemusser/townboard/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// maxBatchOps bounds the number of documents touched per bulk commit.
// The underlying store enforces a hard per-batch operation limit; callers
// with larger id sets are chunked transparently.
const maxBatchOps = 500

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("payouts")}
}

// Create inserts a pending payout record. Reward accrual lives outside this
// core; the method exists for that side and for test fixtures.
func (s *Store) Create(ctx context.Context, beneficiaryID string, amount int64) (*models.Payout, error) {
	p := models.Payout{
		ID:            primitive.NewObjectID(),
		BeneficiaryID: beneficiaryID,
		Amount:        amount,
		Status:        models.PayoutPending,
		CreatedAt:     time.Now().UTC(),
	}
	if _, err := s.c.InsertOne(ctx, p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPending returns every pending payout record, oldest first.
func (s *Store) ListPending(ctx context.Context) ([]models.Payout, error) {
	cur, err := s.c.Find(ctx, bson.M{"status": models.PayoutPending})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var payouts []models.Payout
	if err := cur.All(ctx, &payouts); err != nil {
		return nil, err
	}
	return payouts, nil
}

// Claim marks the given records processing under runID, conditional on each
// still being pending. Records already claimed by a concurrent run do not
// match the filter and are simply not counted, so the same record can never
// be in two runs at once. The run id is stamped on every claimed record;
// Release and Settle filter on it, so one run can never touch another run's
// claims. Returns the number of records actually claimed.
func (s *Store) Claim(ctx context.Context, ids []primitive.ObjectID, runID string, at time.Time) (int64, error) {
	var claimed int64
	for _, chunk := range chunkIDs(ids) {
		res, err := s.c.UpdateMany(ctx,
			bson.M{"_id": bson.M{"$in": chunk}, "status": models.PayoutPending},
			bson.M{"$set": bson.M{
				"status":         models.PayoutProcessing,
				"processing_run": runID,
				"processing_at":  at,
			}},
		)
		if err != nil {
			return claimed, err
		}
		claimed += res.ModifiedCount
	}
	return claimed, nil
}

// Release reverts records this run claimed back to pending, clearing the
// processing markers. Used for held, failed, and conflicted aggregates so no
// record is ever left stuck in processing. Records claimed under a different
// run id do not match and are left alone.
func (s *Store) Release(ctx context.Context, ids []primitive.ObjectID, runID string) error {
	for _, chunk := range chunkIDs(ids) {
		_, err := s.c.UpdateMany(ctx,
			bson.M{
				"_id":            bson.M{"$in": chunk},
				"status":         models.PayoutProcessing,
				"processing_run": runID,
			},
			bson.M{
				"$set":   bson.M{"status": models.PayoutPending},
				"$unset": bson.M{"processing_at": "", "processing_run": ""},
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Settle marks records this run claimed paid with the external transfer
// reference. Settling fewer records than claimed means the claim was lost
// (for example reverted out from under the run) and is an error, because the
// transfer has already gone out and the unsettled records would be paid again.
func (s *Store) Settle(ctx context.Context, ids []primitive.ObjectID, runID, transferID string, at time.Time) error {
	var settled int64
	for _, chunk := range chunkIDs(ids) {
		res, err := s.c.UpdateMany(ctx,
			bson.M{
				"_id":            bson.M{"$in": chunk},
				"status":         models.PayoutProcessing,
				"processing_run": runID,
			},
			bson.M{
				"$set": bson.M{
					"status":              models.PayoutPaid,
					"paid_at":             at,
					"payout_reference_id": transferID,
				},
				"$unset": bson.M{"processing_at": "", "processing_run": ""},
			},
		)
		if err != nil {
			return err
		}
		settled += res.ModifiedCount
	}
	if settled != int64(len(ids)) {
		return fmt.Errorf("settled %d of %d claimed records for transfer %s", settled, len(ids), transferID)
	}
	return nil
}

// CountByStatus returns the number of records in the given status.
func (s *Store) CountByStatus(ctx context.Context, status models.PayoutStatus) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"status": status})
}

func chunkIDs(ids []primitive.ObjectID) [][]primitive.ObjectID {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]primitive.ObjectID
	for len(ids) > maxBatchOps {
		chunks = append(chunks, ids[:maxBatchOps])
		ids = ids[maxBatchOps:]
	}
	return append(chunks, ids)
}

// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

/*
EnsureAll is called at startup. Each ensure* function is idempotent.
We aggregate errors so any problem is visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string

	if err := ensureUsers(ctx, db); err != nil {
		problems = append(problems, "users: "+err.Error())
	}
	if err := ensurePayouts(ctx, db); err != nil {
		problems = append(problems, "payouts: "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensureUsers(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("users").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_1").SetUnique(true),
		},
		{
			// Reverse lookup path for events with no identity metadata.
			Keys:    bson.D{{Key: "billing_customer_id", Value: 1}},
			Options: options.Index().SetName("billing_customer_id_1").SetSparse(true),
		},
	})
	return err
}

func ensurePayouts(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("payouts").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			// The batch run's working query: all pending, grouped per
			// beneficiary.
			Keys:    bson.D{{Key: "status", Value: 1}, {Key: "beneficiary_id", Value: 1}},
			Options: options.Index().SetName("status_1_beneficiary_id_1"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetName("created_at_1"),
		},
	})
	return err
}

// internal/testutil/testutil.go

// Package testutil provides helpers for integration tests that need a live
// MongoDB instance. Tests skip when TOWNBOARD_TEST_MONGO_URI is unset, so
// the unit suite runs without any external services.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupTestDB connects to the MongoDB named by TOWNBOARD_TEST_MONGO_URI and
// returns a database unique to this test. The database is dropped and the
// client disconnected when the test finishes.
func SetupTestDB(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TOWNBOARD_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TOWNBOARD_TEST_MONGO_URI not set; skipping MongoDB integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect to test MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Fatalf("ping test MongoDB: %v", err)
	}

	db := client.Database(fmt.Sprintf("townboard_test_%d", time.Now().UnixNano()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.Drop(ctx); err != nil {
			t.Logf("drop test database: %v", err)
		}
		_ = client.Disconnect(ctx)
	})
	return db
}

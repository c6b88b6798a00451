// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/townboard/internal/app/billing"
	"github.com/dalemusser/townboard/internal/app/identity"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database and external-provider clients for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	Billing  *billing.Client
	Verifier *billing.WebhookVerifier
	Identity *identity.FirebaseClient
}

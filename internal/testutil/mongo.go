package testutil

import (
	"context"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// SetupTestMongo connects to TEST_MONGO_URI and returns a uniquely named database
// that is dropped on cleanup. Tests are skipped when the URI is unset or unreachable.
func SetupTestMongo(t TestingTB) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		skipOrFail(t, requireMongo(), "TEST_MONGO_URI not set")
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetServerSelectionTimeout(2 * time.Second))
	if err != nil {
		skipOrFail(t, requireMongo(), "MongoDB not available:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		skipOrFail(t, requireMongo(), "MongoDB not available:", err)
	}

	db := client.Database("reports_" + generateSchemaName())
	registerCleanup(t, func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if err := db.Drop(cctx); err != nil {
			t.Logf("warning: failed to drop mongo database %s: %v", db.Name(), err)
		}
		if err := client.Disconnect(cctx); err != nil {
			t.Logf("warning: failed to disconnect mongo client: %v", err)
		}
	})
	return db
}

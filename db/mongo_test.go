package db

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/testcontainers/testcontainers-go"
)

// newTestDatabase starts a MongoDB container and returns an initialized Database on a random name.
func newTestDatabase(t *testing.T) *Database {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	// Start MongoDB container
	container, err := StartMongoContainer(ctx)
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to start MongoDB container"))
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	// Get MongoDB connection string
	mongoURI, err := container.Endpoint(ctx, "mongodb")
	qt.Assert(t, err, qt.IsNil, qt.Commentf("Failed to get MongoDB connection string"))

	database, err := New(mongoURI, "")
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close(ctx) })
	qt.Assert(t, database.CreateTables(), qt.IsNil)
	return database
}

func TestCreateTablesIsIdempotent(t *testing.T) {
	database := newTestDatabase(t)
	qt.Assert(t, database.CreateTables(), qt.IsNil)

	count, err := database.Database.Collection(migrationCollectionName).CountDocuments(context.Background(), map[string]any{})
	qt.Assert(t, err, qt.IsNil)
	qt.Assert(t, count, qt.Equals, int64(2))
}

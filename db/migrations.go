package db

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const migrationCollectionName = "migrations"

// Migration record stores applied migration info.
type Migration struct {
	ID        string    `bson:"_id"`
	AppliedAt time.Time `bson:"appliedAt"`
}

// RunMigrations iterates through all migration functions and applies those not yet applied.
func RunMigrations(ctx context.Context, db *mongo.Database) error {
	// List of migration functions. Add new migrations here.
	migrations := []func(context.Context, *mongo.Database) error{
		migrateFollowArrays,
		migratePostArrays,
	}

	for i, migration := range migrations {
		migrationID := "migration_" + strconv.Itoa(i+1)
		applied, err := isMigrationApplied(ctx, db, migrationID)
		if err != nil {
			return err
		}
		if applied {
			log.Debug().Msgf("migration %s already applied", migrationID)
			continue
		}

		log.Info().Msgf("Applying migration %s", migrationID)
		if err := migration(ctx, db); err != nil {
			return err
		}
		if err := markMigrationApplied(ctx, db, migrationID); err != nil {
			return err
		}
	}
	return nil
}

func isMigrationApplied(ctx context.Context, db *mongo.Database, migrationID string) (bool, error) {
	var result Migration
	err := db.Collection(migrationCollectionName).FindOne(ctx, bson.M{"_id": migrationID}).Decode(&result)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func markMigrationApplied(ctx context.Context, db *mongo.Database, migrationID string) error {
	_, err := db.Collection(migrationCollectionName).InsertOne(ctx, Migration{
		ID:        migrationID,
		AppliedAt: time.Now(),
	})
	return err
}

// migrateFollowArrays replaces null or missing followers/following fields with empty arrays,
// $addToSet and $pull fail on null fields.
func migrateFollowArrays(ctx context.Context, db *mongo.Database) error {
	return ensureArrays(ctx, db.Collection("users"), "followers", "following")
}

// migratePostArrays replaces null or missing likes/tags fields with empty arrays.
func migratePostArrays(ctx context.Context, db *mongo.Database) error {
	return ensureArrays(ctx, db.Collection("posts"), "likes", "tags")
}

func ensureArrays(ctx context.Context, collection *mongo.Collection, fields ...string) error {
	for _, field := range fields {
		// {field: null} matches both null and missing fields
		res, err := collection.UpdateMany(ctx,
			bson.M{field: nil},
			bson.M{"$set": bson.M{field: bson.A{}}},
		)
		if err != nil {
			return err
		}
		log.Info().Str("collection", collection.Name()).Str("field", field).
			Int64("modified", res.ModifiedCount).Msg("migrated null arrays")
	}
	return nil
}

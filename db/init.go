package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// InitializeDatabase runs the pending migrations and makes sure every index exists.
func InitializeDatabase(db *Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Run migrations first.
	if err := RunMigrations(ctx, db.Database); err != nil {
		return err
	}
	return createIndexes(ctx, db)
}

// createIndexes creates all required indexes for collections
func createIndexes(ctx context.Context, db *Database) error {
	indexes := map[string][]mongo.IndexModel{
		"accounts": {
			{
				Keys:    bson.D{{Key: "email", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		"sessions": {
			{
				Keys: bson.D{{Key: "accountId", Value: 1}},
			},
			{
				Keys:    bson.D{{Key: "expiresAt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
		},
		"users": {
			{
				Keys:    bson.D{{Key: "accountId", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "username", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "location", Value: "2dsphere"}},
			},
		},
		"posts": {
			{
				Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
			},
			{
				Keys: bson.D{{Key: "creator", Value: 1}, {Key: "createdAt", Value: -1}},
			},
			{
				Keys: bson.D{
					{Key: "caption", Value: "text"},
					{Key: "tags", Value: "text"},
				},
				Options: options.Index().SetDefaultLanguage("none").SetLanguageOverride("none"),
			},
		},
		"saves": {
			{
				Keys:    bson.D{{Key: "user", Value: 1}, {Key: "post", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys: bson.D{{Key: "post", Value: 1}},
			},
		},
		"files": {
			{
				Keys: bson.D{{Key: "hash", Value: 1}},
			},
		},
	}

	for collection, models := range indexes {
		if _, err := db.Database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			log.Error().Err(err).Str("collection", collection).Msg("error creating indexes")
			return err
		}
	}
	log.Debug().Msg("database indexes ready")
	return nil
}

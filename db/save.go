package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Save represents the schema for the "saves" collection. A user saves a post at most once,
// enforced by a unique index on (user, post).
type Save struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"user"`
	PostID    primitive.ObjectID `bson:"post"`
	CreatedAt time.Time          `bson:"createdAt"`
}

// SaveService provides methods to interact with the "saves" collection.
type SaveService struct {
	Collection *mongo.Collection
}

// NewSaveService creates a new SaveService.
func NewSaveService(db *Database) *SaveService {
	return &SaveService{
		Collection: db.Database.Collection("saves"),
	}
}

// InsertSave inserts a new Save document and returns its ID.
func (s *SaveService) InsertSave(ctx context.Context, save *Save) (primitive.ObjectID, error) {
	if save.ID.IsZero() {
		save.ID = primitive.NewObjectID()
	}
	if save.CreatedAt.IsZero() {
		save.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	if _, err := s.Collection.InsertOne(ctx, save); err != nil {
		return primitive.NilObjectID, err
	}
	return save.ID, nil
}

// GetSave retrieves a Save by its ID.
func (s *SaveService) GetSave(ctx context.Context, id primitive.ObjectID) (*Save, error) {
	var save Save
	if err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&save); err != nil {
		return nil, err
	}
	return &save, nil
}

// DeleteSave deletes a Save by its ID.
func (s *SaveService) DeleteSave(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// DeleteSavesByPost removes every Save pointing to a post and returns how many were removed.
func (s *SaveService) DeleteSavesByPost(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	res, err := s.Collection.DeleteMany(ctx, bson.M{"post": postID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListSavesByUser returns the saves of a user, newest first.
func (s *SaveService) ListSavesByUser(ctx context.Context, userID primitive.ObjectID) ([]*Save, error) {
	cursor, err := s.Collection.Find(ctx, bson.M{"user": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()

	saves := []*Save{}
	if err := cursor.All(ctx, &saves); err != nil {
		return nil, err
	}
	return saves, nil
}

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

// Post represents the schema for the "posts" collection.
// CreatorUser is never stored, it is filled by the $lookup stage of the read queries.
type Post struct {
	ID          primitive.ObjectID   `bson:"_id,omitempty"`
	Creator     primitive.ObjectID   `bson:"creator"`
	CreatorUser *User                `bson:"creatorUser,omitempty"`
	Caption     string               `bson:"caption"`
	ImageURL    string               `bson:"imageUrl"`
	ImageID     string               `bson:"imageId"`
	Location    string               `bson:"location,omitempty"`
	Tags        []string             `bson:"tags"`
	Likes       []primitive.ObjectID `bson:"likes"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

// PostUpdate holds the mutable fields of a Post. Nil fields are left untouched.
type PostUpdate struct {
	Caption  *string
	Location *string
	Tags     []string
	ImageURL *string
	ImageID  *string
}

// PostService provides methods to interact with the "posts" collection.
type PostService struct {
	Collection *mongo.Collection
}

// NewPostService creates a new PostService.
func NewPostService(db *Database) *PostService {
	return &PostService{
		Collection: db.Database.Collection("posts"),
	}
}

// InsertPost inserts a new Post document and returns its ID.
func (s *PostService) InsertPost(ctx context.Context, post *Post) (primitive.ObjectID, error) {
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	if post.CreatedAt.IsZero() {
		// mongo keeps millisecond precision, truncate so the cursor anchor matches what is stored
		post.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	post.UpdatedAt = post.CreatedAt
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Likes == nil {
		post.Likes = []primitive.ObjectID{}
	}
	post.CreatorUser = nil
	if _, err := s.Collection.InsertOne(ctx, post); err != nil {
		return primitive.NilObjectID, err
	}
	return post.ID, nil
}

// GetPost retrieves a Post by its ID, with its creator.
func (s *PostService) GetPost(ctx context.Context, id primitive.ObjectID) (*Post, error) {
	posts, err := s.aggregatePosts(ctx, bson.M{"_id": id}, 1)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, mongo.ErrNoDocuments
	}
	return posts[0], nil
}

// ListPosts returns up to limit posts ordered by descending creation time, with their creators.
// If after is not nil, only posts strictly following that post in the ordering are returned.
// Ties on createdAt are broken by descending ID, so the ordering is total.
func (s *PostService) ListPosts(ctx context.Context, after *primitive.ObjectID, limit int) ([]*Post, error) {
	match := bson.M{}
	if after != nil {
		var anchor Post
		err := s.Collection.FindOne(ctx, bson.M{"_id": *after},
			options.FindOne().SetProjection(bson.M{"createdAt": 1})).Decode(&anchor)
		if err != nil {
			return nil, err
		}
		match = bson.M{"$or": bson.A{
			bson.M{"createdAt": bson.M{"$lt": anchor.CreatedAt}},
			bson.M{"createdAt": anchor.CreatedAt, "_id": bson.M{"$lt": anchor.ID}},
		}}
	}
	return s.aggregatePosts(ctx, match, clampLimit(limit))
}

// ListPostsByCreator returns the most recent posts of a user.
func (s *PostService) ListPostsByCreator(ctx context.Context, creator primitive.ObjectID, limit int) ([]*Post, error) {
	return s.aggregatePosts(ctx, bson.M{"creator": creator}, clampLimit(limit))
}

// ListPostsByIDs returns the posts with the given IDs ordered by descending creation time.
func (s *PostService) ListPostsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*Post, error) {
	if len(ids) == 0 {
		return []*Post{}, nil
	}
	return s.aggregatePosts(ctx, bson.M{"_id": bson.M{"$in": ids}}, len(ids))
}

// SearchPosts returns the most recent posts whose caption or tags match the search term.
func (s *PostService) SearchPosts(ctx context.Context, term string, limit int) ([]*Post, error) {
	return s.aggregatePosts(ctx, bson.M{"$text": bson.M{"$search": term}}, clampLimit(limit))
}

// UpdatePost updates the mutable fields of a Post.
func (s *PostService) UpdatePost(ctx context.Context, id primitive.ObjectID, update *PostUpdate) error {
	set := bson.M{"updatedAt": time.Now().UTC().Truncate(time.Millisecond)}
	if update.Caption != nil {
		set["caption"] = *update.Caption
	}
	if update.Location != nil {
		set["location"] = *update.Location
	}
	if update.Tags != nil {
		set["tags"] = update.Tags
	}
	if update.ImageURL != nil {
		set["imageUrl"] = *update.ImageURL
	}
	if update.ImageID != nil {
		set["imageId"] = *update.ImageID
	}
	res, err := s.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// SetLikes replaces the list of users that like a Post.
func (s *PostService) SetLikes(ctx context.Context, id primitive.ObjectID, likes []primitive.ObjectID) error {
	if likes == nil {
		likes = []primitive.ObjectID{}
	}
	res, err := s.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"likes": likes}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// DeletePost deletes a Post by its ID.
func (s *PostService) DeletePost(ctx context.Context, id primitive.ObjectID) error {
	res, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// CountPosts returns the total number of posts.
func (s *PostService) CountPosts(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{})
}

// aggregatePosts runs the match, sorts by descending creation time and joins the creator user.
func (s *PostService) aggregatePosts(ctx context.Context, match bson.M, limit int) ([]*Post, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		bson.D{{Key: "$limit", Value: int64(limit)}},
		bson.D{{Key: "$lookup", Value: bson.M{
			"from":         "users",
			"localField":   "creator",
			"foreignField": "_id",
			"as":           "creatorUser",
		}}},
		bson.D{{Key: "$unwind", Value: bson.M{
			"path":                       "$creatorUser",
			"preserveNullAndEmptyArrays": true,
		}}},
	}

	cursor, err := s.Collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()

	posts := []*Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// User represents the schema for the "users" collection.
type User struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	AccountID primitive.ObjectID   `bson:"accountId" json:"accountId"`
	Name      string               `bson:"name" json:"name"`
	Username  string               `bson:"username" json:"username"`
	Email     string               `bson:"email" json:"email"`
	ImageURL  string               `bson:"imageUrl" json:"imageUrl"`
	Bio       string               `bson:"bio,omitempty" json:"bio,omitempty"`
	Location  *DBLocation          `bson:"location,omitempty" json:"location,omitempty"`
	Followers []primitive.ObjectID `bson:"followers" json:"followers"`
	Following []primitive.ObjectID `bson:"following" json:"following"`
	CreatedAt time.Time            `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	LastSeen  time.Time            `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
}

// Validate checks if the user data meets the required constraints
func (u *User) Validate() error {
	if len(u.Name) < 2 || len(u.Name) > 50 {
		return fmt.Errorf("name length must be between 2 and 50 characters")
	}
	if len(u.Username) < 2 || len(u.Username) > 30 {
		return fmt.Errorf("username length must be between 2 and 30 characters")
	}
	if SanitizeString(u.Username) != u.Username {
		return fmt.Errorf("username contains invalid characters")
	}
	return nil
}

// UserService provides methods to interact with the "users" collection.
type UserService struct {
	Collection *mongo.Collection
}

// NewUserService creates a new UserService.
func NewUserService(db *Database) *UserService {
	return &UserService{
		Collection: db.Database.Collection("users"),
	}
}

// InsertUser inserts a new User document and returns its ID.
func (s *UserService) InsertUser(ctx context.Context, user *User) (primitive.ObjectID, error) {
	now := time.Now()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastSeen.IsZero() {
		user.LastSeen = now
	}
	// $addToSet and $pull need arrays, a nil slice would be stored as null
	if user.Followers == nil {
		user.Followers = []primitive.ObjectID{}
	}
	if user.Following == nil {
		user.Following = []primitive.ObjectID{}
	}
	if _, err := s.Collection.InsertOne(ctx, user); err != nil {
		return primitive.NilObjectID, err
	}
	return user.ID, nil
}

// GetUserByID retrieves a User by their ID.
func (s *UserService) GetUserByID(ctx context.Context, id primitive.ObjectID) (*User, error) {
	var user User
	if err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByAccountID retrieves the User linked to an account.
func (s *UserService) GetUserByAccountID(ctx context.Context, accountID primitive.ObjectID) (*User, error) {
	var user User
	if err := s.Collection.FindOne(ctx, bson.M{"accountId": accountID}).Decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsersByIDs retrieves the Users with the given IDs, sorted by name. Unknown IDs are skipped.
func (s *UserService) GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*User, error) {
	users := []*User{}
	if len(ids) == 0 {
		return users, nil
	}
	cursor, err := s.Collection.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := cursor.Close(ctx); err != nil {
			log.Error().Err(err).Msg("Error closing cursor")
		}
	}()
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser updates a User document by their ID.
func (s *UserService) UpdateUser(ctx context.Context, id primitive.ObjectID, update bson.M) (*mongo.UpdateResult, error) {
	return s.Collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": update})
}

// UpdateUserLocation sets the location of a User. A nil location removes it.
func (s *UserService) UpdateUserLocation(ctx context.Context, id primitive.ObjectID, location *DBLocation) error {
	update := bson.M{"$set": bson.M{"location": location}}
	if location == nil {
		update = bson.M{"$unset": bson.M{"location": ""}}
	}
	res, err := s.Collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// UpdateLastSeen sets the lastSeen timestamp of a User.
func (s *UserService) UpdateLastSeen(ctx context.Context, id primitive.ObjectID, t time.Time) error {
	_, err := s.UpdateUser(ctx, id, bson.M{"lastSeen": t})
	return err
}

// AddFollow records that follower follows followed. Each document is updated with an atomic
// $addToSet, so repeated or concurrent calls never duplicate nor lose entries.
// Both documents are not updated in a transaction; when the followed side fails, the follower
// side is reverted.
func (s *UserService) AddFollow(ctx context.Context, followerID, followedID primitive.ObjectID) error {
	return s.updateFollow(ctx, "$addToSet", followerID, followedID)
}

// RemoveFollow removes the follow relation between follower and followed with an atomic $pull.
func (s *UserService) RemoveFollow(ctx context.Context, followerID, followedID primitive.ObjectID) error {
	return s.updateFollow(ctx, "$pull", followerID, followedID)
}

func (s *UserService) updateFollow(ctx context.Context, op string, followerID, followedID primitive.ObjectID) error {
	res, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": followerID},
		bson.M{op: bson.M{"following": followedID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	changed := res.ModifiedCount > 0
	res, err = s.Collection.UpdateOne(ctx,
		bson.M{"_id": followedID},
		bson.M{op: bson.M{"followers": followerID}},
	)
	if err == nil && res.MatchedCount == 0 {
		err = mongo.ErrNoDocuments
	}
	if err != nil && changed {
		s.undoFollowing(ctx, op, followerID, followedID)
	}
	return err
}

// undoFollowing reverts the follower side of a follow update whose followed side failed.
func (s *UserService) undoFollowing(ctx context.Context, op string, followerID, followedID primitive.ObjectID) {
	inverse := "$pull"
	if op == "$pull" {
		inverse = "$addToSet"
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := s.Collection.UpdateOne(ctx,
		bson.M{"_id": followerID},
		bson.M{inverse: bson.M{"following": followedID}},
	); err != nil {
		log.Warn().Err(err).Str("follower", followerID.Hex()).Str("followed", followedID.Hex()).
			Msg("could not revert following list")
	}
}

// CountUsers returns the total number of users.
func (s *UserService) CountUsers(ctx context.Context) (int64, error) {
	return s.Collection.CountDocuments(ctx, bson.M{})
}

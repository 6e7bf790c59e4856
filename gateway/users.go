package gateway

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/emprius/emprius-social-backend/db"
	"github.com/emprius/emprius-social-backend/geo"
)

// GetUserByID returns a user profile.
func (g *Gateway) GetUserByID(ctx context.Context, userID string) (*User, error) {
	const op = "get user"
	id, err := db.ParseID(userID)
	if err != nil {
		return nil, translate(op, err)
	}
	user, err := g.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, translate(op, err)
	}
	return g.publicUser(user), nil
}

// ownUser returns a user as seen by itself, with the exact location.
func (g *Gateway) ownUser(ctx context.Context, op, userID string) (*User, error) {
	id, err := db.ParseID(userID)
	if err != nil {
		return nil, translate(op, err)
	}
	user, err := g.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, translate(op, err)
	}
	return userFromDB(user), nil
}

// GetUserFollowers returns the users following userID.
func (g *Gateway) GetUserFollowers(ctx context.Context, userID string) ([]*User, error) {
	return g.relatedUsers(ctx, "get user followers", userID, func(u *db.User) []primitive.ObjectID {
		return u.Followers
	})
}

// GetUserFollowing returns the users followed by userID.
func (g *Gateway) GetUserFollowing(ctx context.Context, userID string) ([]*User, error) {
	return g.relatedUsers(ctx, "get user following", userID, func(u *db.User) []primitive.ObjectID {
		return u.Following
	})
}

func (g *Gateway) relatedUsers(ctx context.Context, op, userID string, related func(*db.User) []primitive.ObjectID) ([]*User, error) {
	id, err := db.ParseID(userID)
	if err != nil {
		return nil, translate(op, err)
	}
	user, err := g.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, translate(op, err)
	}
	users, err := g.users.GetUsersByIDs(ctx, related(user))
	if err != nil {
		return nil, translate(op, err)
	}
	return g.publicUsers(users), nil
}

// FollowUser makes followerID follow followedID. Following twice is a no-op.
func (g *Gateway) FollowUser(ctx context.Context, followerID, followedID string) error {
	follower, followed, err := g.followPair(ctx, "follow user", followerID, followedID)
	if err != nil {
		return err
	}
	return translate("follow user", g.users.AddFollow(ctx, follower, followed))
}

// UnfollowUser removes the follow relation. Unfollowing a user not followed is a no-op.
func (g *Gateway) UnfollowUser(ctx context.Context, followerID, followedID string) error {
	follower, followed, err := g.followPair(ctx, "unfollow user", followerID, followedID)
	if err != nil {
		return err
	}
	return translate("unfollow user", g.users.RemoveFollow(ctx, follower, followed))
}

// followPair parses both ids and checks that both users exist.
func (g *Gateway) followPair(ctx context.Context, op, followerID, followedID string) (primitive.ObjectID, primitive.ObjectID, error) {
	ids, err := db.ParseIDs([]string{followerID, followedID})
	if err != nil {
		return primitive.NilObjectID, primitive.NilObjectID, translate(op, err)
	}
	if ids[0] == ids[1] {
		return primitive.NilObjectID, primitive.NilObjectID, validationError(op, "users can not follow themselves")
	}
	for _, id := range ids {
		if _, err := g.users.GetUserByID(ctx, id); err != nil {
			return primitive.NilObjectID, primitive.NilObjectID, translate(op, err)
		}
	}
	return ids[0], ids[1], nil
}

// UpdateUserLocation stores the location of a user. Both coordinates nil removes it, a single
// nil coordinate is rejected.
func (g *Gateway) UpdateUserLocation(ctx context.Context, userID string, latitude, longitude *float64) (*User, error) {
	const op = "update user location"
	id, err := db.ParseID(userID)
	if err != nil {
		return nil, translate(op, err)
	}
	if (latitude == nil) != (longitude == nil) {
		return nil, validationError(op, "latitude and longitude must be set together")
	}
	var location *db.DBLocation
	if latitude != nil {
		coordinate := geo.NewCoordinate(*latitude, *longitude)
		if err := coordinate.Validate(); err != nil {
			return nil, translate(op, err)
		}
		location = db.NewDBLocation(coordinate)
	}
	if err := g.users.UpdateUserLocation(ctx, id, location); err != nil {
		return nil, translate(op, err)
	}
	return g.ownUser(ctx, op, userID)
}

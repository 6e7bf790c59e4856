package db

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/emprius/emprius-social-backend/geo"
)

func insertTestUser(t *testing.T, s *UserService, username string) *User {
	user := &User{
		AccountID: primitive.NewObjectID(),
		Name:      "User " + username,
		Username:  username,
		Email:     username + "@test.com",
	}
	_, err := s.InsertUser(context.Background(), user)
	qt.Assert(t, err, qt.IsNil)
	return user
}

func TestUserService(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	database := newTestDatabase(t)
	users := database.UserService

	alice := insertTestUser(t, users, "alice")
	bob := insertTestUser(t, users, "bob")

	c.Run("get by id and account", func(c *qt.C) {
		got, err := users.GetUserByID(ctx, alice.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Username, qt.Equals, "alice")
		c.Assert(got.Followers, qt.HasLen, 0)
		c.Assert(got.Followers, qt.IsNotNil)

		got, err = users.GetUserByAccountID(ctx, bob.AccountID)
		c.Assert(err, qt.IsNil)
		c.Assert(got.ID, qt.Equals, bob.ID)

		_, err = users.GetUserByID(ctx, primitive.NewObjectID())
		c.Assert(IsNotFound(err), qt.IsTrue)
	})

	c.Run("duplicated username", func(c *qt.C) {
		_, err := users.InsertUser(ctx, &User{AccountID: primitive.NewObjectID(), Name: "Other", Username: "alice"})
		c.Assert(IsDuplicate(err), qt.IsTrue)
	})

	c.Run("follow and unfollow", func(c *qt.C) {
		c.Assert(users.AddFollow(ctx, alice.ID, bob.ID), qt.IsNil)
		// repeated follow must not duplicate entries
		c.Assert(users.AddFollow(ctx, alice.ID, bob.ID), qt.IsNil)

		a, err := users.GetUserByID(ctx, alice.ID)
		c.Assert(err, qt.IsNil)
		b, err := users.GetUserByID(ctx, bob.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(a.Following, qt.DeepEquals, []primitive.ObjectID{bob.ID})
		c.Assert(b.Followers, qt.DeepEquals, []primitive.ObjectID{alice.ID})

		c.Assert(users.RemoveFollow(ctx, alice.ID, bob.ID), qt.IsNil)
		a, err = users.GetUserByID(ctx, alice.ID)
		c.Assert(err, qt.IsNil)
		b, err = users.GetUserByID(ctx, bob.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(a.Following, qt.HasLen, 0)
		c.Assert(b.Followers, qt.HasLen, 0)

		err = users.AddFollow(ctx, alice.ID, primitive.NewObjectID())
		c.Assert(IsNotFound(err), qt.IsTrue)
	})

	c.Run("follow of a missing user leaves no half relation", func(c *qt.C) {
		c.Assert(users.AddFollow(ctx, alice.ID, bob.ID), qt.IsNil)
		missing := primitive.NewObjectID()

		err := users.AddFollow(ctx, alice.ID, missing)
		c.Assert(IsNotFound(err), qt.IsTrue)
		a, err := users.GetUserByID(ctx, alice.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(a.Following, qt.DeepEquals, []primitive.ObjectID{bob.ID})

		// a failed unfollow restores the entry it removed
		_, err = users.Collection.UpdateOne(ctx, bson.M{"_id": alice.ID}, bson.M{"$addToSet": bson.M{"following": missing}})
		c.Assert(err, qt.IsNil)
		err = users.RemoveFollow(ctx, alice.ID, missing)
		c.Assert(IsNotFound(err), qt.IsTrue)
		a, err = users.GetUserByID(ctx, alice.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(a.Following, qt.DeepEquals, []primitive.ObjectID{bob.ID, missing})

		c.Assert(users.RemoveFollow(ctx, alice.ID, bob.ID), qt.IsNil)
		_, err = users.Collection.UpdateOne(ctx, bson.M{"_id": alice.ID}, bson.M{"$pull": bson.M{"following": missing}})
		c.Assert(err, qt.IsNil)
	})

	c.Run("users by ids sorted by name", func(c *qt.C) {
		got, err := users.GetUsersByIDs(ctx, []primitive.ObjectID{bob.ID, alice.ID, primitive.NewObjectID()})
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.HasLen, 2)
		c.Assert(got[0].Username, qt.Equals, "alice")

		got, err = users.GetUsersByIDs(ctx, nil)
		c.Assert(err, qt.IsNil)
		c.Assert(got, qt.HasLen, 0)
	})

	c.Run("location", func(c *qt.C) {
		loc := NewDBLocation(&geo.Coordinate{Latitude: 41.688407, Longitude: 2.491027})
		c.Assert(users.UpdateUserLocation(ctx, alice.ID, loc), qt.IsNil)
		got, err := users.GetUserByID(ctx, alice.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Location.Coordinate(), qt.DeepEquals, &geo.Coordinate{Latitude: 41.688407, Longitude: 2.491027})

		c.Assert(users.UpdateUserLocation(ctx, alice.ID, nil), qt.IsNil)
		got, err = users.GetUserByID(ctx, alice.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Location, qt.IsNil)

		err = users.UpdateUserLocation(ctx, primitive.NewObjectID(), nil)
		c.Assert(IsNotFound(err), qt.IsTrue)
	})

	c.Run("null follow arrays are migrated", func(c *qt.C) {
		id := primitive.NewObjectID()
		_, err := users.Collection.InsertOne(ctx, bson.M{"_id": id, "accountId": primitive.NewObjectID(), "username": "legacy", "followers": nil})
		c.Assert(err, qt.IsNil)
		c.Assert(migrateFollowArrays(ctx, database.Database), qt.IsNil)
		c.Assert(users.AddFollow(ctx, id, bob.ID), qt.IsNil)
		got, err := users.GetUserByID(ctx, id)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Following, qt.DeepEquals, []primitive.ObjectID{bob.ID})
	})
}

func TestUserValidate(t *testing.T) {
	c := qt.New(t)
	c.Assert((&User{Name: "Alice", Username: "alice"}).Validate(), qt.IsNil)
	c.Assert((&User{Name: "A", Username: "alice"}).Validate(), qt.IsNotNil)
	c.Assert((&User{Name: "Alice", Username: "a"}).Validate(), qt.IsNotNil)
	c.Assert((&User{Name: "Alice", Username: "al!ce"}).Validate(), qt.IsNotNil)
}

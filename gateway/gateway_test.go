package gateway_test

import (
	"context"
	"errors"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/gateway/gatewaytest"
	"github.com/emprius/emprius-social-backend/geo"
)

var errBackend = errors.New("connection reset by peer")

func newUser(username string) gateway.NewUser {
	return gateway.NewUser{
		Name:     "User " + username,
		Username: username,
		Email:    username + "@test.com",
		Password: "password123",
	}
}

func TestAccountsAndSessions(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()

	user, err := g.CreateUserAccount(ctx, newUser("alice"))
	c.Assert(err, qt.IsNil)
	c.Assert(user.ImageURL, qt.Equals, gatewaytest.PublicURL+"/avatars/initials?name=User+alice")
	c.Assert(user.Followers, qt.HasLen, 0)

	c.Run("validation", func(c *qt.C) {
		_, err := g.CreateUserAccount(ctx, newUser("alice"))
		c.Assert(err, qt.ErrorIs, gateway.ErrValidation)

		bad := newUser("bob")
		bad.Email = "not-an-email"
		_, err = g.CreateUserAccount(ctx, bad)
		c.Assert(err, qt.ErrorIs, gateway.ErrValidation)

		bad = newUser("bob")
		bad.Password = "short"
		_, err = g.CreateUserAccount(ctx, bad)
		c.Assert(err, qt.ErrorIs, gateway.ErrValidation)

		bad = newUser("b")
		_, err = g.CreateUserAccount(ctx, bad)
		c.Assert(err, qt.ErrorIs, gateway.ErrValidation)
	})

	c.Run("profile insert failure removes the account", func(c *qt.C) {
		before := m.AccountCount()
		m.Fail("InsertUser", errBackend)
		defer m.Fail("InsertUser", nil)
		_, err := g.CreateUserAccount(ctx, newUser("carol"))
		c.Assert(err, qt.ErrorIs, gateway.ErrTransport)
		c.Assert(m.AccountCount(), qt.Equals, before)
	})

	c.Run("sign in, current user and sign out", func(c *qt.C) {
		_, err := g.SignIn(ctx, "alice@test.com", "wrong password")
		c.Assert(err, qt.ErrorIs, gateway.ErrUnauthorized)
		_, err = g.SignIn(ctx, "nobody@test.com", "password123")
		c.Assert(err, qt.ErrorIs, gateway.ErrUnauthorized)

		first, err := g.SignIn(ctx, "Alice@Test.com", "password123")
		c.Assert(err, qt.IsNil)
		c.Assert(first.UserID, qt.Equals, user.ID)

		current, err := g.GetCurrentUser(ctx, first.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(current.Username, qt.Equals, "alice")

		// a new sign in destroys the previous session
		second, err := g.SignIn(ctx, "alice@test.com", "password123")
		c.Assert(err, qt.IsNil)
		_, err = g.GetSession(ctx, first.ID)
		c.Assert(err, qt.ErrorIs, gateway.ErrUnauthorized)

		c.Assert(g.SignOut(ctx, second.ID), qt.IsNil)
		_, err = g.GetCurrentUser(ctx, second.ID)
		c.Assert(err, qt.ErrorIs, gateway.ErrUnauthorized)
		c.Assert(g.SignOut(ctx, second.ID), qt.ErrorIs, gateway.ErrNotFound)
	})

	c.Run("expired session", func(c *qt.C) {
		session, err := g.SignIn(ctx, "alice@test.com", "password123")
		c.Assert(err, qt.IsNil)
		m.ExpireSessions()
		_, err = g.GetSession(ctx, session.ID)
		c.Assert(err, qt.ErrorIs, gateway.ErrUnauthorized)
		_, err = g.GetSession(ctx, "garbage")
		c.Assert(err, qt.ErrorIs, gateway.ErrUnauthorized)
	})
}

func TestCreatePostCompensation(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()
	author := m.AddUser(t, "author", nil)

	newPost := gateway.NewPost{
		UserID:  author.ID.Hex(),
		Caption: "hello",
		Tags:    " travel, food ,, ",
		File:    gateway.Upload{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("jpeg")},
	}

	c.Run("success", func(c *qt.C) {
		post, err := g.CreatePost(ctx, newPost)
		c.Assert(err, qt.IsNil)
		c.Assert(post.Tags, qt.DeepEquals, []string{"travel", "food"})
		c.Assert(post.ImageURL, qt.Equals, gatewaytest.PublicURL+"/files/"+post.ImageID+"/preview?gravity=top&height=2000&quality=100&width=2000")
		c.Assert(post.Creator.Username, qt.Equals, "author")
		c.Assert(m.FileCount(), qt.Equals, 1)
	})

	c.Run("document write failure deletes the upload", func(c *qt.C) {
		m.Fail("InsertPost", errBackend)
		defer m.Fail("InsertPost", nil)
		_, err := g.CreatePost(ctx, newPost)
		c.Assert(err, qt.ErrorIs, gateway.ErrPartialWrite)
		c.Assert(errors.Is(err, errBackend), qt.IsFalse, qt.Commentf("raw backend errors must not leak"))
		c.Assert(m.FileCount(), qt.Equals, 1)
	})

	c.Run("preview failure deletes the upload", func(c *qt.C) {
		m.Fail("Stat", errBackend)
		defer m.Fail("Stat", nil)
		_, err := g.CreatePost(ctx, newPost)
		c.Assert(err, qt.ErrorIs, gateway.ErrPartialWrite)
		c.Assert(m.FileCount(), qt.Equals, 1)
	})

	c.Run("failed cleanup is reported", func(c *qt.C) {
		m.Fail("InsertPost", errBackend)
		m.Fail("Delete", errBackend)
		defer m.Fail("InsertPost", nil)
		defer m.Fail("Delete", nil)
		_, err := g.CreatePost(ctx, newPost)
		c.Assert(err, qt.ErrorIs, gateway.ErrPartialWrite)
		c.Assert(err, qt.ErrorMatches, ".*cleanup failed.*")
		c.Assert(m.FileCount(), qt.Equals, 2)
	})

	c.Run("cancelled request still deletes the upload", func(c *qt.C) {
		m.HonorContext(true)
		defer m.HonorContext(false)
		before := m.FileCount()
		reqCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		// the client goes away while the document is written
		m.OnCall("InsertPost", cancel)
		defer m.OnCall("InsertPost", nil)

		_, err := g.CreatePost(reqCtx, newPost)
		c.Assert(err, qt.ErrorIs, gateway.ErrPartialWrite)
		c.Assert(err, qt.Not(qt.ErrorMatches), ".*cleanup failed.*")
		c.Assert(m.FileCount(), qt.Equals, before)
	})

	c.Run("upload failure is a transport failure", func(c *qt.C) {
		m.Fail("Upload", errBackend)
		defer m.Fail("Upload", nil)
		_, err := g.CreatePost(ctx, newPost)
		c.Assert(err, qt.ErrorIs, gateway.ErrTransport)
	})

	c.Run("missing image", func(c *qt.C) {
		p := newPost
		p.File = gateway.Upload{}
		_, err := g.CreatePost(ctx, p)
		c.Assert(err, qt.ErrorIs, gateway.ErrValidation)
	})
}

func TestUpdateAndDeletePost(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()
	author := m.AddUser(t, "author", nil)
	other := m.AddUser(t, "other", nil)

	post, err := g.CreatePost(ctx, gateway.NewPost{
		UserID: author.ID.Hex(),
		File:   gateway.Upload{Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("old")},
	})
	c.Assert(err, qt.IsNil)
	oldImage := post.ImageID

	update := gateway.PostUpdate{
		UserID:  author.ID.Hex(),
		PostID:  post.ID,
		Caption: "new caption",
		Tags:    "a,b",
		File:    &gateway.Upload{Name: "b.jpg", ContentType: "image/jpeg", Data: []byte("new")},
	}

	c.Run("not the owner", func(c *qt.C) {
		u := update
		u.UserID = other.ID.Hex()
		_, err := g.UpdatePost(ctx, u)
		c.Assert(err, qt.ErrorIs, gateway.ErrUnauthorized)
	})

	c.Run("failed update deletes the new image and keeps the old one", func(c *qt.C) {
		m.Fail("UpdatePost", errBackend)
		defer m.Fail("UpdatePost", nil)
		_, err := g.UpdatePost(ctx, update)
		c.Assert(err, qt.ErrorIs, gateway.ErrPartialWrite)
		c.Assert(m.FileCount(), qt.Equals, 1)
		got, err := g.GetPostByID(ctx, post.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(got.ImageID, qt.Equals, oldImage)
	})

	c.Run("successful update replaces the image", func(c *qt.C) {
		updated, err := g.UpdatePost(ctx, update)
		c.Assert(err, qt.IsNil)
		c.Assert(updated.Caption, qt.Equals, "new caption")
		c.Assert(updated.Tags, qt.DeepEquals, []string{"a", "b"})
		c.Assert(updated.ImageID, qt.Not(qt.Equals), oldImage)
		c.Assert(m.FileCount(), qt.Equals, 1)
		_, _, err = g.OpenFile(ctx, oldImage)
		c.Assert(err, qt.ErrorIs, gateway.ErrNotFound)
		post = updated
	})

	c.Run("delete", func(c *qt.C) {
		_, err := g.SavePost(ctx, other.ID.Hex(), post.ID)
		c.Assert(err, qt.IsNil)

		c.Assert(g.DeletePost(ctx, author.ID.Hex(), post.ID, ""), qt.ErrorIs, gateway.ErrValidation)
		c.Assert(g.DeletePost(ctx, other.ID.Hex(), post.ID, post.ImageID), qt.ErrorIs, gateway.ErrUnauthorized)
		c.Assert(g.DeletePost(ctx, author.ID.Hex(), post.ID, post.ImageID), qt.IsNil)

		_, err = g.GetPostByID(ctx, post.ID)
		c.Assert(err, qt.ErrorIs, gateway.ErrNotFound)
		c.Assert(m.FileCount(), qt.Equals, 0)
		saves, err := g.GetUserSaves(ctx, other.ID.Hex())
		c.Assert(err, qt.IsNil)
		c.Assert(saves, qt.HasLen, 0)
	})
}

func TestListPosts(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()
	author := m.AddUser(t, "author", nil)
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 25; i++ {
		m.AddPost(t, author.ID, "post", base.Add(time.Duration(i)*time.Second))
	}

	recent, err := g.GetRecentPosts(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(recent, qt.HasLen, gateway.RecentPostsLimit)

	next, err := g.ListPosts(ctx, recent[len(recent)-1].ID, 20)
	c.Assert(err, qt.IsNil)
	c.Assert(next, qt.HasLen, 5)
	c.Assert(next[0].CreatedAt.Before(recent[len(recent)-1].CreatedAt), qt.IsTrue)

	_, err = g.ListPosts(ctx, "not-an-id", 20)
	c.Assert(err, qt.ErrorIs, gateway.ErrValidation)
	_, err = g.ListPosts(ctx, "65f000000000000000000000", 20)
	c.Assert(err, qt.ErrorIs, gateway.ErrNotFound)

	m.Fail("ListPosts", errBackend)
	_, err = g.ListPosts(ctx, "", 20)
	c.Assert(err, qt.ErrorIs, gateway.ErrTransport)
	c.Assert(errors.Is(err, errBackend), qt.IsFalse)

	_, err = g.SearchPosts(ctx, "  ")
	c.Assert(err, qt.ErrorIs, gateway.ErrValidation)
}

func TestInteractions(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()
	alice := m.AddUser(t, "alice", nil)
	bob := m.AddUser(t, "bob", nil)
	post := m.AddPost(t, alice.ID, "sunset", time.Now())

	c.Run("likes", func(c *qt.C) {
		liked, err := g.LikePost(ctx, post.ID.Hex(), []string{bob.ID.Hex(), bob.ID.Hex()})
		c.Assert(err, qt.IsNil)
		c.Assert(liked.Likes, qt.DeepEquals, []string{bob.ID.Hex()})

		liked, err = g.LikePost(ctx, post.ID.Hex(), nil)
		c.Assert(err, qt.IsNil)
		c.Assert(liked.Likes, qt.HasLen, 0)

		_, err = g.LikePost(ctx, post.ID.Hex(), []string{"bad"})
		c.Assert(err, qt.ErrorIs, gateway.ErrValidation)
	})

	c.Run("saves", func(c *qt.C) {
		save, err := g.SavePost(ctx, bob.ID.Hex(), post.ID.Hex())
		c.Assert(err, qt.IsNil)
		_, err = g.SavePost(ctx, bob.ID.Hex(), post.ID.Hex())
		c.Assert(err, qt.ErrorIs, gateway.ErrValidation)

		saves, err := g.GetUserSaves(ctx, bob.ID.Hex())
		c.Assert(err, qt.IsNil)
		c.Assert(saves, qt.HasLen, 1)
		c.Assert(saves[0].Post.Caption, qt.Equals, "sunset")

		c.Assert(g.DeleteSavedPost(ctx, alice.ID.Hex(), save.ID), qt.ErrorIs, gateway.ErrUnauthorized)
		c.Assert(g.DeleteSavedPost(ctx, bob.ID.Hex(), save.ID), qt.IsNil)
		c.Assert(g.DeleteSavedPost(ctx, bob.ID.Hex(), save.ID), qt.ErrorIs, gateway.ErrNotFound)
	})
}

func TestFollowGraph(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()
	alice := m.AddUser(t, "alice", nil).ID.Hex()
	bob := m.AddUser(t, "bob", nil).ID.Hex()

	c.Assert(g.FollowUser(ctx, alice, bob), qt.IsNil)
	c.Assert(g.FollowUser(ctx, alice, bob), qt.IsNil)

	followers, err := g.GetUserFollowers(ctx, bob)
	c.Assert(err, qt.IsNil)
	c.Assert(followers, qt.HasLen, 1)
	c.Assert(followers[0].ID, qt.Equals, alice)
	following, err := g.GetUserFollowing(ctx, alice)
	c.Assert(err, qt.IsNil)
	c.Assert(following, qt.HasLen, 1)
	c.Assert(following[0].ID, qt.Equals, bob)

	c.Assert(g.UnfollowUser(ctx, alice, bob), qt.IsNil)
	a, err := g.GetUserByID(ctx, alice)
	c.Assert(err, qt.IsNil)
	b, err := g.GetUserByID(ctx, bob)
	c.Assert(err, qt.IsNil)
	c.Assert(a.Following, qt.HasLen, 0)
	c.Assert(b.Followers, qt.HasLen, 0)

	c.Assert(g.FollowUser(ctx, alice, alice), qt.ErrorIs, gateway.ErrValidation)
	c.Assert(g.FollowUser(ctx, alice, "65f000000000000000000000"), qt.ErrorIs, gateway.ErrNotFound)
}

func TestUpdateUserLocation(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	g, m := gatewaytest.NewGateway()
	alice := m.AddUser(t, "alice", nil).ID.Hex()

	lat, lon := 41.688407, 2.491027
	user, err := g.UpdateUserLocation(ctx, alice, &lat, &lon)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Location, qt.DeepEquals, geo.NewCoordinate(lat, lon))

	_, err = g.UpdateUserLocation(ctx, alice, &lat, nil)
	c.Assert(err, qt.ErrorIs, gateway.ErrValidation)

	bad := 91.0
	_, err = g.UpdateUserLocation(ctx, alice, &bad, &lon)
	c.Assert(err, qt.ErrorIs, gateway.ErrValidation)

	user, err = g.UpdateUserLocation(ctx, alice, nil, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(user.Location, qt.IsNil)
}

func TestParseTags(t *testing.T) {
	c := qt.New(t)
	c.Assert(gateway.ParseTags(""), qt.DeepEquals, []string{})
	c.Assert(gateway.ParseTags("a, b c,,d"), qt.DeepEquals, []string{"a", "bc", "d"})
}

func TestLocationObfuscation(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	m := gatewaytest.NewMemory()
	g := gateway.New(gateway.Options{
		Accounts:     m,
		Sessions:     m,
		Users:        m,
		Posts:        m,
		Saves:        m,
		Files:        m,
		PublicURL:    gatewaytest.PublicURL,
		LocationSalt: "salt",
	})
	exact := geo.NewCoordinate(41.688407, 2.491027)
	alice := m.AddUser(t, "alice", exact)
	bob := m.AddUser(t, "bob", nil)
	c.Assert(g.FollowUser(ctx, bob.ID.Hex(), alice.ID.Hex()), qt.IsNil)
	m.AddPost(t, alice.ID, "beach", time.Now())

	public, err := g.GetUserByID(ctx, alice.ID.Hex())
	c.Assert(err, qt.IsNil)
	c.Assert(public.Location, qt.Not(qt.IsNil))
	c.Assert(*public.Location, qt.Not(qt.Equals), *exact)
	c.Assert(geo.Haversine(*public.Location, *exact) < 1.01, qt.IsTrue)

	again, err := g.GetUserByID(ctx, alice.ID.Hex())
	c.Assert(err, qt.IsNil)
	c.Assert(again.Location, qt.DeepEquals, public.Location)

	following, err := g.GetUserFollowing(ctx, bob.ID.Hex())
	c.Assert(err, qt.IsNil)
	c.Assert(following, qt.HasLen, 1)
	c.Assert(following[0].Location, qt.DeepEquals, public.Location)

	posts, err := g.GetRecentPosts(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(posts, qt.HasLen, 1)
	c.Assert(posts[0].Creator.Location, qt.DeepEquals, public.Location)

	// the owner keeps the exact location
	lat, lon := exact.Latitude, exact.Longitude
	own, err := g.UpdateUserLocation(ctx, alice.ID.Hex(), &lat, &lon)
	c.Assert(err, qt.IsNil)
	c.Assert(own.Location, qt.DeepEquals, exact)

	nobody, err := g.GetUserByID(ctx, bob.ID.Hex())
	c.Assert(err, qt.IsNil)
	c.Assert(nobody.Location, qt.IsNil)
}

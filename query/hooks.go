package query

import (
	"context"

	"github.com/emprius/emprius-social-backend/gateway"
)

type none struct{}

// GetCurrentUser returns the user of a session.
func (c *Client) GetCurrentUser(ctx context.Context, sessionID string) (*gateway.User, error) {
	return Fetch(ctx, c, NewKey(GetCurrentUser, sessionID), func(ctx context.Context) (*gateway.User, error) {
		return c.gw.GetCurrentUser(ctx, sessionID)
	})
}

// GetRecentPosts returns the most recent posts, unfiltered.
func (c *Client) GetRecentPosts(ctx context.Context) ([]*gateway.Post, error) {
	return Fetch(ctx, c, NewKey(GetRecentPosts), c.gw.GetRecentPosts)
}

// GetPostByID returns a post.
func (c *Client) GetPostByID(ctx context.Context, postID string) (*gateway.Post, error) {
	return Fetch(ctx, c, NewKey(GetPostByID, postID), func(ctx context.Context) (*gateway.Post, error) {
		return c.gw.GetPostByID(ctx, postID)
	})
}

// SearchPosts returns the posts matching term.
func (c *Client) SearchPosts(ctx context.Context, term string) ([]*gateway.Post, error) {
	return Fetch(ctx, c, NewKey(SearchPosts, term), func(ctx context.Context) ([]*gateway.Post, error) {
		return c.gw.SearchPosts(ctx, term)
	})
}

// GetUserByID returns a user profile.
func (c *Client) GetUserByID(ctx context.Context, userID string) (*gateway.User, error) {
	return Fetch(ctx, c, NewKey(GetUserByID, userID), func(ctx context.Context) (*gateway.User, error) {
		return c.gw.GetUserByID(ctx, userID)
	})
}

// GetUserFollowers returns the users following userID.
func (c *Client) GetUserFollowers(ctx context.Context, userID string) ([]*gateway.User, error) {
	return Fetch(ctx, c, NewKey(GetUserFollowers, userID), func(ctx context.Context) ([]*gateway.User, error) {
		return c.gw.GetUserFollowers(ctx, userID)
	})
}

// GetUserFollowing returns the users followed by userID.
func (c *Client) GetUserFollowing(ctx context.Context, userID string) ([]*gateway.User, error) {
	return Fetch(ctx, c, NewKey(GetUserFollowing, userID), func(ctx context.Context) ([]*gateway.User, error) {
		return c.gw.GetUserFollowing(ctx, userID)
	})
}

// GetUserPosts returns the posts of a user.
func (c *Client) GetUserPosts(ctx context.Context, userID string) ([]*gateway.Post, error) {
	return Fetch(ctx, c, NewKey(GetUserPosts, userID), func(ctx context.Context) ([]*gateway.Post, error) {
		return c.gw.GetUserPosts(ctx, userID)
	})
}

// GetUserSaves returns the posts saved by a user.
func (c *Client) GetUserSaves(ctx context.Context, userID string) ([]*gateway.Save, error) {
	return Fetch(ctx, c, NewKey(GetUserSaves, userID), func(ctx context.Context) ([]*gateway.Save, error) {
		return c.gw.GetUserSaves(ctx, userID)
	})
}

// CreateUserAccount registers a new account and its user.
func (c *Client) CreateUserAccount(ctx context.Context, nu gateway.NewUser) (*gateway.User, error) {
	return Mutate(ctx, c, CreateUserAccount, nil, func(ctx context.Context) (*gateway.User, error) {
		return c.gw.CreateUserAccount(ctx, nu)
	})
}

// SignIn opens a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*gateway.Session, error) {
	return Mutate(ctx, c, SignIn, nil, func(ctx context.Context) (*gateway.Session, error) {
		return c.gw.SignIn(ctx, email, password)
	})
}

// SignOut closes a session.
func (c *Client) SignOut(ctx context.Context, sessionID string) error {
	_, err := Mutate(ctx, c, SignOut, nil, func(ctx context.Context) (none, error) {
		return none{}, c.gw.SignOut(ctx, sessionID)
	})
	return err
}

// CreatePost uploads the image and publishes a post.
func (c *Client) CreatePost(ctx context.Context, np gateway.NewPost) (*gateway.Post, error) {
	return Mutate(ctx, c, CreatePost, Params{ParamUserID: np.UserID}, func(ctx context.Context) (*gateway.Post, error) {
		return c.gw.CreatePost(ctx, np)
	})
}

// UpdatePost edits a post owned by pu.UserID.
func (c *Client) UpdatePost(ctx context.Context, pu gateway.PostUpdate) (*gateway.Post, error) {
	return Mutate(ctx, c, UpdatePost, Params{ParamPostID: pu.PostID}, func(ctx context.Context) (*gateway.Post, error) {
		return c.gw.UpdatePost(ctx, pu)
	})
}

// DeletePost removes a post owned by userID together with its image and saves.
func (c *Client) DeletePost(ctx context.Context, userID, postID, imageID string) error {
	params := Params{ParamUserID: userID, ParamPostID: postID}
	_, err := Mutate(ctx, c, DeletePost, params, func(ctx context.Context) (none, error) {
		return none{}, c.gw.DeletePost(ctx, userID, postID, imageID)
	})
	return err
}

// LikePost replaces the likes of a post.
func (c *Client) LikePost(ctx context.Context, postID string, likes []string) (*gateway.Post, error) {
	return Mutate(ctx, c, LikePost, Params{ParamPostID: postID}, func(ctx context.Context) (*gateway.Post, error) {
		return c.gw.LikePost(ctx, postID, likes)
	})
}

// SavePost saves a post for userID.
func (c *Client) SavePost(ctx context.Context, userID, postID string) (*gateway.Save, error) {
	return Mutate(ctx, c, SavePost, Params{ParamUserID: userID}, func(ctx context.Context) (*gateway.Save, error) {
		return c.gw.SavePost(ctx, userID, postID)
	})
}

// DeleteSavedPost removes a save of userID.
func (c *Client) DeleteSavedPost(ctx context.Context, userID, saveID string) error {
	_, err := Mutate(ctx, c, DeleteSavedPost, Params{ParamUserID: userID}, func(ctx context.Context) (none, error) {
		return none{}, c.gw.DeleteSavedPost(ctx, userID, saveID)
	})
	return err
}

// FollowUser makes followerID follow followedID.
func (c *Client) FollowUser(ctx context.Context, followerID, followedID string) error {
	return c.follow(ctx, FollowUser, followerID, followedID, c.gw.FollowUser)
}

// UnfollowUser makes followerID stop following followedID.
func (c *Client) UnfollowUser(ctx context.Context, followerID, followedID string) error {
	return c.follow(ctx, UnfollowUser, followerID, followedID, c.gw.UnfollowUser)
}

func (c *Client) follow(ctx context.Context, m Mutation, followerID, followedID string,
	fn func(ctx context.Context, followerID, followedID string) error,
) error {
	params := Params{ParamFollowerID: followerID, ParamFollowedID: followedID}
	_, err := Mutate(ctx, c, m, params, func(ctx context.Context) (none, error) {
		return none{}, fn(ctx, followerID, followedID)
	})
	return err
}

// UpdateUserLocation sets or clears the location of a user.
func (c *Client) UpdateUserLocation(ctx context.Context, userID string, latitude, longitude *float64) (*gateway.User, error) {
	return Mutate(ctx, c, UpdateUserLocation, Params{ParamUserID: userID}, func(ctx context.Context) (*gateway.User, error) {
		return c.gw.UpdateUserLocation(ctx, userID, latitude, longitude)
	})
}

package api

import (
	"encoding/json"
	"fmt"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/gateway"
)

// RegisterPublicUserRoutes registers the account routes that need no session.
func (a *API) RegisterPublicUserRoutes(r chi.Router) {
	log.Info().Msg("register route POST /register")
	r.Post("/register", a.routerHandler(a.register))
	log.Info().Msg("register route POST /login")
	r.Post("/login", a.routerHandler(a.login))
}

// RegisterUserRoutes registers the profile and social graph routes.
func (a *API) RegisterUserRoutes(r chi.Router) {
	log.Info().Msg("register route POST /logout")
	r.Post("/logout", a.routerHandler(a.logout))
	log.Info().Msg("register route GET /profile")
	r.Get("/profile", a.routerHandler(a.userProfile))
	log.Info().Msg("register route PUT /profile/location")
	r.Put("/profile/location", a.routerHandler(a.updateLocation))
	log.Info().Msg("register route GET /profile/saves")
	r.Get("/profile/saves", a.routerHandler(a.userSaves))
	log.Info().Msg("register route GET /users/{id}")
	r.Get("/users/{id}", a.routerHandler(a.getUser))
	log.Info().Msg("register route GET /users/{id}/followers")
	r.Get("/users/{id}/followers", a.routerHandler(a.userFollowers))
	log.Info().Msg("register route GET /users/{id}/following")
	r.Get("/users/{id}/following", a.routerHandler(a.userFollowing))
	log.Info().Msg("register route GET /users/{id}/posts")
	r.Get("/users/{id}/posts", a.routerHandler(a.userPosts))
	log.Info().Msg("register route POST /users/{id}/follow")
	r.Post("/users/{id}/follow", a.routerHandler(a.follow))
	log.Info().Msg("register route DELETE /users/{id}/follow")
	r.Delete("/users/{id}/follow", a.routerHandler(a.unfollow))
}

// register creates the account and its user, then signs in.
func (a *API) register(r *Request) (interface{}, error) {
	userInfo := Register{}
	if err := json.Unmarshal(r.Data, &userInfo); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	ctx := r.Context.Request.Context()
	user, err := a.query.CreateUserAccount(ctx, gateway.NewUser(userInfo))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("userId", user.ID).Str("username", user.Username).Msg("registered user")
	return a.signIn(r, userInfo.Email, userInfo.Password)
}

// login handles the login request. It returns a JWT token if the login is successful.
func (a *API) login(r *Request) (interface{}, error) {
	loginInfo := Login{}
	if err := json.Unmarshal(r.Data, &loginInfo); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	return a.signIn(r, loginInfo.Email, loginInfo.Password)
}

func (a *API) signIn(r *Request, email, password string) (*LoginResponse, error) {
	ctx := r.Context.Request.Context()
	session, err := a.query.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	token, err := a.makeToken(session)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	user, err := a.query.GetCurrentUser(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	token.User = user
	return token, nil
}

// logout destroys the session of the token.
func (a *API) logout(r *Request) (interface{}, error) {
	if err := a.query.SignOut(r.Context.Request.Context(), r.SessionID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *API) userProfile(r *Request) (interface{}, error) {
	return a.query.GetCurrentUser(r.Context.Request.Context(), r.SessionID)
}

func (a *API) updateLocation(r *Request) (interface{}, error) {
	update := LocationUpdate{}
	if err := json.Unmarshal(r.Data, &update); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	return a.query.UpdateUserLocation(r.Context.Request.Context(), r.UserID, update.Latitude, update.Longitude)
}

func (a *API) userSaves(r *Request) (interface{}, error) {
	return a.query.GetUserSaves(r.Context.Request.Context(), r.UserID)
}

func (a *API) getUser(r *Request) (interface{}, error) {
	return a.query.GetUserByID(r.Context.Request.Context(), r.Context.Param("id"))
}

func (a *API) userFollowers(r *Request) (interface{}, error) {
	return a.query.GetUserFollowers(r.Context.Request.Context(), r.Context.Param("id"))
}

func (a *API) userFollowing(r *Request) (interface{}, error) {
	return a.query.GetUserFollowing(r.Context.Request.Context(), r.Context.Param("id"))
}

func (a *API) userPosts(r *Request) (interface{}, error) {
	return a.query.GetUserPosts(r.Context.Request.Context(), r.Context.Param("id"))
}

func (a *API) follow(r *Request) (interface{}, error) {
	if err := a.query.FollowUser(r.Context.Request.Context(), r.UserID, r.Context.Param("id")); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *API) unfollow(r *Request) (interface{}, error) {
	if err := a.query.UnfollowUser(r.Context.Request.Context(), r.UserID, r.Context.Param("id")); err != nil {
		return nil, err
	}
	return nil, nil
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/geo"
)

// RegisterPostRoutes registers the post, feed and save routes.
func (a *API) RegisterPostRoutes(r chi.Router) {
	log.Info().Msg("register route POST /posts")
	r.Post("/posts", a.routerHandler(a.createPost))
	log.Info().Msg("register route GET /posts/recent")
	r.Get("/posts/recent", a.routerHandler(a.recentPosts))
	log.Info().Msg("register route GET /posts/feed")
	r.Get("/posts/feed", a.routerHandler(a.feedPage))
	log.Info().Msg("register route GET /posts/search")
	r.Get("/posts/search", a.routerHandler(a.searchPosts))
	log.Info().Msg("register route GET /posts/{id}")
	r.Get("/posts/{id}", a.routerHandler(a.getPost))
	log.Info().Msg("register route PUT /posts/{id}")
	r.Put("/posts/{id}", a.routerHandler(a.updatePost))
	log.Info().Msg("register route DELETE /posts/{id}")
	r.Delete("/posts/{id}", a.routerHandler(a.deletePost))
	log.Info().Msg("register route PUT /posts/{id}/likes")
	r.Put("/posts/{id}/likes", a.routerHandler(a.likePost))
	log.Info().Msg("register route POST /posts/{id}/save")
	r.Post("/posts/{id}/save", a.routerHandler(a.savePost))
	log.Info().Msg("register route DELETE /saves/{id}")
	r.Delete("/saves/{id}", a.routerHandler(a.deleteSave))
}

func (i *Image) upload() gateway.Upload {
	contentType := i.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(i.Data)
	}
	return gateway.Upload{Name: i.Name, ContentType: contentType, Data: i.Data}
}

func (a *API) createPost(r *Request) (interface{}, error) {
	req := CreatePostRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	if req.Image == nil || len(req.Image.Data) == 0 {
		return nil, ErrInvalidRequestBodyData.WithErr(errMissingImage)
	}
	return a.query.CreatePost(r.Context.Request.Context(), gateway.NewPost{
		UserID:   r.UserID,
		Caption:  req.Caption,
		Location: req.Location,
		Tags:     req.Tags,
		File:     req.Image.upload(),
	})
}

func (a *API) recentPosts(r *Request) (interface{}, error) {
	return a.query.GetRecentPosts(r.Context.Request.Context())
}

// feedPage returns a page of the feed filtered by distance to the viewer. The viewer is taken
// from the latitude and longitude parameters, or else from the stored location of the user.
// Without a viewer every post is returned.
func (a *API) feedPage(r *Request) (interface{}, error) {
	ctx := r.Context.Request.Context()
	filter, err := geo.ParseDistanceFilter(r.Context.Param("distance"))
	if err != nil {
		return nil, ErrInvalidParameter.WithErr(err)
	}
	viewer, err := a.viewer(r)
	if err != nil {
		return nil, err
	}
	page, err := a.query.FeedPage(ctx, viewer, filter, r.Context.Param("cursor"))
	if err != nil {
		return nil, err
	}
	return &FeedResponse{Page: page, Viewer: viewer, Distance: filter.String()}, nil
}

// viewer resolves the coordinate the feed is filtered around.
func (a *API) viewer(r *Request) (*geo.Coordinate, error) {
	lat, lon := r.Context.Param("latitude"), r.Context.Param("longitude")
	if lat == "" && lon == "" {
		user, err := a.query.GetCurrentUser(r.Context.Request.Context(), r.SessionID)
		if err != nil {
			return nil, err
		}
		return user.Location, nil
	}
	latitude, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return nil, ErrInvalidParameter.WithErr(err)
	}
	longitude, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return nil, ErrInvalidParameter.WithErr(err)
	}
	viewer := geo.NewCoordinate(latitude, longitude)
	if err := viewer.Validate(); err != nil {
		return nil, ErrInvalidParameter.WithErr(err)
	}
	return viewer, nil
}

func (a *API) searchPosts(r *Request) (interface{}, error) {
	return a.query.SearchPosts(r.Context.Request.Context(), r.Context.Param("term"))
}

func (a *API) getPost(r *Request) (interface{}, error) {
	return a.query.GetPostByID(r.Context.Request.Context(), r.Context.Param("id"))
}

func (a *API) updatePost(r *Request) (interface{}, error) {
	req := UpdatePostRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	update := gateway.PostUpdate{
		UserID:   r.UserID,
		PostID:   r.Context.Param("id"),
		Caption:  req.Caption,
		Location: req.Location,
		Tags:     req.Tags,
	}
	if req.Image != nil && len(req.Image.Data) > 0 {
		upload := req.Image.upload()
		update.File = &upload
	}
	return a.query.UpdatePost(r.Context.Request.Context(), update)
}

// deletePost removes a post. The image id may be given in the body, otherwise the current
// image of the post is deleted.
func (a *API) deletePost(r *Request) (interface{}, error) {
	ctx := r.Context.Request.Context()
	postID := r.Context.Param("id")
	req := DeletePostRequest{}
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &req); err != nil {
			return nil, ErrInvalidRequestBodyData.WithErr(err)
		}
	}
	if req.ImageID == "" {
		post, err := a.query.GetPostByID(ctx, postID)
		if err != nil {
			return nil, err
		}
		req.ImageID = post.ImageID
	}
	if err := a.query.DeletePost(ctx, r.UserID, postID, req.ImageID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *API) likePost(r *Request) (interface{}, error) {
	req := LikesRequest{}
	if err := json.Unmarshal(r.Data, &req); err != nil {
		return nil, ErrInvalidRequestBodyData.WithErr(err)
	}
	return a.query.LikePost(r.Context.Request.Context(), r.Context.Param("id"), req.Likes)
}

func (a *API) savePost(r *Request) (interface{}, error) {
	return a.query.SavePost(r.Context.Request.Context(), r.UserID, r.Context.Param("id"))
}

func (a *API) deleteSave(r *Request) (interface{}, error) {
	if err := a.query.DeleteSavedPost(r.Context.Request.Context(), r.UserID, r.Context.Param("id")); err != nil {
		return nil, err
	}
	return nil, nil
}

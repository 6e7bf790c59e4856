package api

import (
	"errors"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/storage"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

var errMissingImage = errors.New("missing image")

// RegisterPublicFileRoutes registers the routes serving stored files and generated images.
// Files are addressed by random ids and are public, like the preview URLs stored in posts.
func (a *API) RegisterPublicFileRoutes(r chi.Router) {
	log.Info().Msg("register route GET /files/{id}")
	r.Get("/files/{id}", a.routerHandler(a.fileHandler))
	log.Info().Msg("register route GET /files/{id}/preview")
	r.Get("/files/{id}/preview", a.routerHandler(a.previewHandler))
	log.Info().Msg("register route GET /avatars/initials")
	r.Get("/avatars/initials", a.routerHandler(a.avatarHandler))
}

// fileHandler returns the original content of a file.
func (a *API) fileHandler(r *Request) (interface{}, error) {
	file, data, err := a.gw.OpenFile(r.Context.Request.Context(), r.Context.Param("id"))
	if err != nil {
		return nil, err
	}
	return &BinaryResponse{ContentType: file.ContentType, CacheControl: immutableCacheControl, Data: data}, nil
}

// previewHandler returns a JPEG preview of an image, sized by the width, height, gravity and
// quality parameters.
func (a *API) previewHandler(r *Request) (interface{}, error) {
	opts, err := storage.ParsePreviewOptions(r.Context.Request.URL.Query())
	if err != nil {
		return nil, ErrInvalidParameter.WithErr(err)
	}
	data, err := a.gw.RenderPreview(r.Context.Request.Context(), r.Context.Param("id"), opts)
	if err != nil {
		return nil, err
	}
	return &BinaryResponse{ContentType: "image/jpeg", CacheControl: immutableCacheControl, Data: data}, nil
}

// avatarHandler returns a PNG with the initials of the name parameter.
func (a *API) avatarHandler(r *Request) (interface{}, error) {
	size := storage.DefaultAvatarSize
	if s := r.Context.Param("size"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, ErrInvalidParameter.WithErr(err)
		}
		size = n
	}
	data, err := storage.InitialsAvatar(r.Context.Param("name"), size)
	if err != nil {
		return nil, ErrInternalServerError.WithErr(err)
	}
	return &BinaryResponse{ContentType: "image/png", CacheControl: "public, max-age=86400", Data: data}, nil
}

package api

import (
	"time"

	"github.com/emprius/emprius-social-backend/feed"
	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/geo"
)

// Response is the default response of the API
type Response struct {
	Header ResponseHeader `json:"header"`
	Data   any            `json:"data,omitempty"`
}

// ResponseHeader is the header of the response
type ResponseHeader struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorCode int    `json:"errorCode,omitempty"`
}

// BinaryResponse is returned by handlers that reply with raw content instead of JSON.
type BinaryResponse struct {
	ContentType  string
	CacheControl string
	Data         []byte
}

type Register struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Login struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string        `json:"token"`
	Expirity time.Time     `json:"expirity"`
	User     *gateway.User `json:"user,omitempty"`
}

// LocationUpdate sets the location of the current user. Both fields null clear it.
type LocationUpdate struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Image is an uploaded image, its content base64 encoded in JSON.
type Image struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Data        []byte `json:"data"`
}

// CreatePostRequest is the body of POST /posts. Tags is a comma separated list.
type CreatePostRequest struct {
	Caption  string `json:"caption"`
	Location string `json:"location"`
	Tags     string `json:"tags"`
	Image    *Image `json:"image"`
}

// UpdatePostRequest is the body of PUT /posts/{id}. A missing image keeps the current one.
type UpdatePostRequest struct {
	Caption  string `json:"caption"`
	Location string `json:"location"`
	Tags     string `json:"tags"`
	Image    *Image `json:"image,omitempty"`
}

// DeletePostRequest is the body of DELETE /posts/{id}.
type DeletePostRequest struct {
	ImageID string `json:"imageId"`
}

// LikesRequest replaces the likes of a post.
type LikesRequest struct {
	Likes []string `json:"likes"`
}

// FeedResponse is a page of the geo filtered feed.
type FeedResponse struct {
	*feed.Page
	Viewer   *geo.Coordinate `json:"viewer,omitempty"`
	Distance string          `json:"distance"`
}

type Info struct {
	Users   int64    `json:"users"`
	Posts   int64    `json:"posts"`
	Filters []string `json:"distanceFilters"`
}

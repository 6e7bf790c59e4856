package gateway

import (
	"strings"
	"time"

	"github.com/emprius/emprius-social-backend/db"
	"github.com/emprius/emprius-social-backend/geo"
)

// User is the public profile of an account.
type User struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Name      string          `json:"name"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	ImageURL  string          `json:"imageUrl"`
	Bio       string          `json:"bio,omitempty"`
	Location  *geo.Coordinate `json:"location,omitempty"`
	Followers []string        `json:"followers"`
	Following []string        `json:"following"`
	CreatedAt time.Time       `json:"createdAt"`
	LastSeen  time.Time       `json:"lastSeen"`
}

// Post is a published image with its caption.
type Post struct {
	ID        string    `json:"id"`
	CreatorID string    `json:"creatorId"`
	Creator   *User     `json:"creator,omitempty"`
	Caption   string    `json:"caption"`
	ImageURL  string    `json:"imageUrl"`
	ImageID   string    `json:"imageId"`
	Location  string    `json:"location,omitempty"`
	Tags      []string  `json:"tags"`
	Likes     []string  `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AuthorCoordinate returns the stored location of the post creator, or nil if unknown.
func (p *Post) AuthorCoordinate() *geo.Coordinate {
	if p == nil || p.Creator == nil {
		return nil
	}
	return p.Creator.Location
}

// Session is an authenticated session, created at sign in and destroyed at sign out.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Save records that a user saved a post.
type Save struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PostID    string    `json:"postId"`
	Post      *Post     `json:"post,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Counts holds the number of stored documents.
type Counts struct {
	Users int64 `json:"users"`
	Posts int64 `json:"posts"`
}

// NewUser is the input of CreateUserAccount.
type NewUser struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Upload is a file to be stored.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// NewPost is the input of CreatePost. Tags is a comma separated list.
type NewPost struct {
	UserID   string
	Caption  string
	Location string
	Tags     string
	File     Upload
}

// PostUpdate is the input of UpdatePost. A nil File keeps the current image.
type PostUpdate struct {
	UserID   string
	PostID   string
	Caption  string
	Location string
	Tags     string
	File     *Upload
}

// ParseTags splits a comma separated list of tags. Spaces are removed and empty tags dropped.
func ParseTags(s string) []string {
	tags := []string{}
	for _, tag := range strings.Split(strings.ReplaceAll(s, " ", ""), ",") {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func userFromDB(u *db.User) *User {
	if u == nil {
		return nil
	}
	return &User{
		ID:        u.ID.Hex(),
		AccountID: u.AccountID.Hex(),
		Name:      u.Name,
		Username:  u.Username,
		Email:     u.Email,
		ImageURL:  u.ImageURL,
		Bio:       u.Bio,
		Location:  u.Location.Coordinate(),
		Followers: db.HexIDs(u.Followers),
		Following: db.HexIDs(u.Following),
		CreatedAt: u.CreatedAt,
		LastSeen:  u.LastSeen,
	}
}

// publicUser converts a user seen by others: its location is obfuscated when a salt is set.
func (g *Gateway) publicUser(u *db.User) *User {
	user := userFromDB(u)
	if user != nil && g.salt != "" {
		user.Location = db.ObfuscateLocation(u.Location, u.ID, g.salt).Coordinate()
	}
	return user
}

func (g *Gateway) publicUsers(users []*db.User) []*User {
	out := make([]*User, 0, len(users))
	for _, u := range users {
		out = append(out, g.publicUser(u))
	}
	return out
}

func (g *Gateway) postFromDB(p *db.Post) *Post {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return &Post{
		ID:        p.ID.Hex(),
		CreatorID: p.Creator.Hex(),
		Creator:   g.publicUser(p.CreatorUser),
		Caption:   p.Caption,
		ImageURL:  p.ImageURL,
		ImageID:   p.ImageID,
		Location:  p.Location,
		Tags:      tags,
		Likes:     db.HexIDs(p.Likes),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (g *Gateway) postsFromDB(posts []*db.Post) []*Post {
	out := make([]*Post, 0, len(posts))
	for _, p := range posts {
		out = append(out, g.postFromDB(p))
	}
	return out
}

func sessionFromDB(s *db.Session) *Session {
	return &Session{
		ID:        s.ID.Hex(),
		AccountID: s.AccountID.Hex(),
		UserID:    s.UserID.Hex(),
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}

func saveFromDB(s *db.Save) *Save {
	return &Save{
		ID:        s.ID.Hex(),
		UserID:    s.UserID.Hex(),
		PostID:    s.PostID.Hex(),
		CreatedAt: s.CreatedAt,
	}
}

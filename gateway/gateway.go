// Package gateway is the single entry point to the backend services: accounts, sessions,
// the document database and the file store. It converts raw documents into typed values and
// backend failures into the error taxonomy defined in errors.go.
package gateway

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"

	"github.com/emprius/emprius-social-backend/db"
	"github.com/emprius/emprius-social-backend/storage"
)

const (
	// RecentPostsLimit is the number of posts returned by GetRecentPosts.
	RecentPostsLimit = 20
	// DefaultSessionTTL is the lifetime of a session when none is configured.
	DefaultSessionTTL = 720 * time.Hour
	// MaxCaptionLength bounds the caption of a post.
	MaxCaptionLength = 2200
	// MinPasswordLength is the minimum length of an account password.
	MinPasswordLength = 8

	// cleanupTimeout bounds the compensation of a failed multi-step write.
	cleanupTimeout = 10 * time.Second
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// Accounts stores the credentials.
type Accounts interface {
	InsertAccount(ctx context.Context, account *db.Account) (primitive.ObjectID, error)
	GetAccountByEmail(ctx context.Context, email string) (*db.Account, error)
	DeleteAccount(ctx context.Context, id primitive.ObjectID) error
}

// Sessions stores the authenticated sessions.
type Sessions interface {
	InsertSession(ctx context.Context, session *db.Session) (primitive.ObjectID, error)
	GetSession(ctx context.Context, id primitive.ObjectID) (*db.Session, error)
	DeleteSession(ctx context.Context, id primitive.ObjectID) error
	DeleteAccountSessions(ctx context.Context, accountID primitive.ObjectID) (int64, error)
}

// Users stores the user profiles and the follow graph.
type Users interface {
	InsertUser(ctx context.Context, user *db.User) (primitive.ObjectID, error)
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*db.User, error)
	GetUserByAccountID(ctx context.Context, accountID primitive.ObjectID) (*db.User, error)
	GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*db.User, error)
	UpdateUserLocation(ctx context.Context, id primitive.ObjectID, location *db.DBLocation) error
	UpdateLastSeen(ctx context.Context, id primitive.ObjectID, t time.Time) error
	AddFollow(ctx context.Context, followerID, followedID primitive.ObjectID) error
	RemoveFollow(ctx context.Context, followerID, followedID primitive.ObjectID) error
	CountUsers(ctx context.Context) (int64, error)
}

// Posts stores the posts.
type Posts interface {
	InsertPost(ctx context.Context, post *db.Post) (primitive.ObjectID, error)
	GetPost(ctx context.Context, id primitive.ObjectID) (*db.Post, error)
	ListPosts(ctx context.Context, after *primitive.ObjectID, limit int) ([]*db.Post, error)
	ListPostsByCreator(ctx context.Context, creator primitive.ObjectID, limit int) ([]*db.Post, error)
	ListPostsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*db.Post, error)
	SearchPosts(ctx context.Context, term string, limit int) ([]*db.Post, error)
	UpdatePost(ctx context.Context, id primitive.ObjectID, update *db.PostUpdate) error
	SetLikes(ctx context.Context, id primitive.ObjectID, likes []primitive.ObjectID) error
	DeletePost(ctx context.Context, id primitive.ObjectID) error
	CountPosts(ctx context.Context) (int64, error)
}

// Saves stores the saved posts.
type Saves interface {
	InsertSave(ctx context.Context, save *db.Save) (primitive.ObjectID, error)
	GetSave(ctx context.Context, id primitive.ObjectID) (*db.Save, error)
	DeleteSave(ctx context.Context, id primitive.ObjectID) error
	DeleteSavesByPost(ctx context.Context, postID primitive.ObjectID) (int64, error)
	ListSavesByUser(ctx context.Context, userID primitive.ObjectID) ([]*db.Save, error)
}

// Options configure a Gateway.
type Options struct {
	Accounts Accounts
	Sessions Sessions
	Users    Users
	Posts    Posts
	Saves    Saves
	Files    storage.Store
	// PublicURL is the base URL of the HTTP API, used to build preview and avatar URLs.
	PublicURL  string
	SessionTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	// LocationSalt enables location obfuscation: the location of other users is moved up to
	// 1 km, deterministically per user and salt. An empty salt exposes exact locations.
	LocationSalt string
}

// Gateway implements the backend operations.
type Gateway struct {
	accounts   Accounts
	sessions   Sessions
	users      Users
	posts      Posts
	saves      Saves
	files      storage.Store
	publicURL  string
	sessionTTL time.Duration
	bcryptCost int
	salt       string
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Gateway{
		accounts:   opts.Accounts,
		sessions:   opts.Sessions,
		users:      opts.Users,
		posts:      opts.Posts,
		saves:      opts.Saves,
		files:      opts.Files,
		publicURL:  strings.TrimSuffix(opts.PublicURL, "/"),
		sessionTTL: opts.SessionTTL,
		bcryptCost: opts.BcryptCost,
		salt:       opts.LocationSalt,
	}
}

// NewFromDatabase creates a Gateway backed by the database services. The stores of opts are
// replaced by the database ones.
func NewFromDatabase(database *db.Database, opts Options) *Gateway {
	opts.Accounts = database.AccountService
	opts.Sessions = database.SessionService
	opts.Users = database.UserService
	opts.Posts = database.PostService
	opts.Saves = database.SaveService
	return New(opts)
}

// AvatarURL returns the URL of the generated initials avatar of a name.
func (g *Gateway) AvatarURL(name string) string {
	return fmt.Sprintf("%s/avatars/initials?name=%s", g.publicURL, url.QueryEscape(name))
}

// CreateUserAccount registers an account and its user profile.
func (g *Gateway) CreateUserAccount(ctx context.Context, nu NewUser) (*User, error) {
	const op = "create user account"
	nu.Email = strings.ToLower(strings.TrimSpace(nu.Email))
	nu.Name = strings.TrimSpace(nu.Name)
	if !emailRegex.MatchString(nu.Email) {
		return nil, validationError(op, "invalid email")
	}
	if len(nu.Password) < MinPasswordLength {
		return nil, validationError(op, "password must have at least %d characters", MinPasswordLength)
	}
	user := &db.User{
		Name:     nu.Name,
		Username: nu.Username,
		Email:    nu.Email,
		ImageURL: g.AvatarURL(nu.Name),
	}
	if err := user.Validate(); err != nil {
		return nil, validationError(op, "%v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(nu.Password), g.bcryptCost)
	if err != nil {
		return nil, validationError(op, "%v", err)
	}
	accountID, err := g.accounts.InsertAccount(ctx, &db.Account{
		Email:    nu.Email,
		Name:     nu.Name,
		Password: hash,
	})
	if err != nil {
		return nil, translate(op, err)
	}

	user.AccountID = accountID
	if _, err := g.users.InsertUser(ctx, user); err != nil {
		// the account without profile can not sign in, remove it
		if cleanupErr := g.accounts.DeleteAccount(ctx, accountID); cleanupErr != nil {
			log.Error().Err(cleanupErr).Str("account", accountID.Hex()).Msg("could not remove orphan account")
			return nil, partialWrite(op, err, cleanupErr)
		}
		return nil, translate(op, err)
	}
	log.Info().Str("user", user.ID.Hex()).Str("username", user.Username).Msg("user account created")
	return userFromDB(user), nil
}

// SignIn checks the credentials and opens a new session. Any previous session of the
// account is destroyed.
func (g *Gateway) SignIn(ctx context.Context, email, password string) (*Session, error) {
	const op = "sign in"
	account, err := g.accounts.GetAccountByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w: wrong email or password", op, ErrUnauthorized)
		}
		return nil, translate(op, err)
	}
	if err := bcrypt.CompareHashAndPassword(account.Password, []byte(password)); err != nil {
		return nil, fmt.Errorf("%s: %w: wrong email or password", op, ErrUnauthorized)
	}
	user, err := g.users.GetUserByAccountID(ctx, account.ID)
	if err != nil {
		return nil, translate(op, err)
	}
	if _, err := g.sessions.DeleteAccountSessions(ctx, account.ID); err != nil {
		return nil, translate(op, err)
	}

	now := time.Now()
	session := &db.Session{
		AccountID: account.ID,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(g.sessionTTL),
	}
	if _, err := g.sessions.InsertSession(ctx, session); err != nil {
		return nil, translate(op, err)
	}
	return sessionFromDB(session), nil
}

// GetSession returns a live session. Unknown and expired sessions are ErrUnauthorized.
func (g *Gateway) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	const op = "get session"
	id, err := db.ParseID(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: invalid session", op, ErrUnauthorized)
	}
	session, err := g.sessions.GetSession(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, fmt.Errorf("%s: %w: session not found", op, ErrUnauthorized)
		}
		return nil, translate(op, err)
	}
	if !session.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("%s: %w: session expired", op, ErrUnauthorized)
	}
	return sessionFromDB(session), nil
}

// SignOut destroys a session.
func (g *Gateway) SignOut(ctx context.Context, sessionID string) error {
	const op = "sign out"
	id, err := db.ParseID(sessionID)
	if err != nil {
		return translate(op, err)
	}
	return translate(op, g.sessions.DeleteSession(ctx, id))
}

// GetCurrentUser returns the user owning a live session, with its exact location.
func (g *Gateway) GetCurrentUser(ctx context.Context, sessionID string) (*User, error) {
	session, err := g.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return g.ownUser(ctx, "get current user", session.UserID)
}

// TouchLastSeen updates the last seen time of a user.
func (g *Gateway) TouchLastSeen(ctx context.Context, userID string) error {
	const op = "touch last seen"
	id, err := db.ParseID(userID)
	if err != nil {
		return translate(op, err)
	}
	return translate(op, g.users.UpdateLastSeen(ctx, id, time.Now()))
}

// Counts returns the number of users and posts.
func (g *Gateway) Counts(ctx context.Context) (*Counts, error) {
	const op = "counts"
	users, err := g.users.CountUsers(ctx)
	if err != nil {
		return nil, translate(op, err)
	}
	posts, err := g.posts.CountPosts(ctx)
	if err != nil {
		return nil, translate(op, err)
	}
	return &Counts{Users: users, Posts: posts}, nil
}

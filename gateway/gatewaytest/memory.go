// Package gatewaytest provides an in-memory backend for the gateway, used by the tests of the
// packages built on top of it.
package gatewaytest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/emprius/emprius-social-backend/db"
	"github.com/emprius/emprius-social-backend/gateway"
	"github.com/emprius/emprius-social-backend/geo"
	"github.com/emprius/emprius-social-backend/storage"
)

// PublicURL is the base URL used by the gateways created with NewGateway.
const PublicURL = "http://social.test"

var errDuplicate = mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "duplicate key"}}}

// Memory implements every store used by the gateway, file storage included.
// Failures can be injected per method name with Fail, and every call is counted.
type Memory struct {
	mu       sync.Mutex
	accounts map[primitive.ObjectID]*db.Account
	sessions map[primitive.ObjectID]*db.Session
	users    map[primitive.ObjectID]*db.User
	posts    map[primitive.ObjectID]*db.Post
	saves    map[primitive.ObjectID]*db.Save
	files    map[string]*db.File
	failures map[string]error
	hooks    map[string]func()
	calls    map[string]int
	fileSeq  int

	// honorContext makes every call fail with the context error once ctx is done.
	honorContext bool
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{
		accounts: map[primitive.ObjectID]*db.Account{},
		sessions: map[primitive.ObjectID]*db.Session{},
		users:    map[primitive.ObjectID]*db.User{},
		posts:    map[primitive.ObjectID]*db.Post{},
		saves:    map[primitive.ObjectID]*db.Save{},
		files:    map[string]*db.File{},
		failures: map[string]error{},
		hooks:    map[string]func(){},
		calls:    map[string]int{},
	}
}

// NewGateway returns a Gateway on top of a new Memory backend.
func NewGateway() (*gateway.Gateway, *Memory) {
	m := NewMemory()
	return gateway.New(gateway.Options{
		Accounts:   m,
		Sessions:   m,
		Users:      m,
		Posts:      m,
		Saves:      m,
		Files:      m,
		PublicURL:  PublicURL,
		BcryptCost: bcrypt.MinCost,
	}), m
}

// Fail makes every following call to method return err. A nil err clears the failure.
func (m *Memory) Fail(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, method)
		return
	}
	m.failures[method] = err
}

// OnCall registers fn to run, without the lock held, every time method is called.
func (m *Memory) OnCall(method string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks[method] = fn
}

// HonorContext makes the calls made with a cancelled or expired context fail with the context
// error, like a network backend does.
func (m *Memory) HonorContext(honor bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.honorContext = honor
}

// Calls returns how many times method has been called.
func (m *Memory) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// enter counts the call, runs the hook and returns the injected failure, or the context error
// when HonorContext is set. On success the lock is held and must be released by the caller.
func (m *Memory) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	hook := m.hooks[method]
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	m.mu.Lock()
	if err := m.failures[method]; err != nil {
		m.mu.Unlock()
		return err
	}
	if m.honorContext && ctx.Err() != nil {
		m.mu.Unlock()
		return ctx.Err()
	}
	return nil
}

// AddUser stores a user without account, for tests that only need profiles.
func (m *Memory) AddUser(t testing.TB, username string, location *geo.Coordinate) *db.User {
	t.Helper()
	user := &db.User{
		AccountID: primitive.NewObjectID(),
		Name:      "User " + username,
		Username:  username,
		Email:     username + "@test.com",
		Location:  db.NewDBLocation(location),
	}
	if _, err := m.InsertUser(context.Background(), user); err != nil {
		t.Fatalf("could not add user: %v", err)
	}
	return user
}

// AddPost stores a post created at the given time.
func (m *Memory) AddPost(t testing.TB, creator primitive.ObjectID, caption string, createdAt time.Time) *db.Post {
	t.Helper()
	post := &db.Post{
		Creator:   creator,
		Caption:   caption,
		ImageID:   fmt.Sprintf("image-%s", caption),
		CreatedAt: createdAt,
	}
	if _, err := m.InsertPost(context.Background(), post); err != nil {
		t.Fatalf("could not add post: %v", err)
	}
	return post
}

// FileCount returns the number of stored files.
func (m *Memory) FileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

// Accounts

func (m *Memory) InsertAccount(ctx context.Context, account *db.Account) (primitive.ObjectID, error) {
	if err := m.enter(ctx, "InsertAccount"); err != nil {
		return primitive.NilObjectID, err
	}
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == account.Email {
			return primitive.NilObjectID, errDuplicate
		}
	}
	if account.ID.IsZero() {
		account.ID = primitive.NewObjectID()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}
	c := *account
	m.accounts[account.ID] = &c
	return account.ID, nil
}

func (m *Memory) GetAccountByEmail(ctx context.Context, email string) (*db.Account, error) {
	if err := m.enter(ctx, "GetAccountByEmail"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *Memory) DeleteAccount(ctx context.Context, id primitive.ObjectID) error {
	if err := m.enter(ctx, "DeleteAccount"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(m.accounts, id)
	return nil
}

// AccountCount returns the number of stored accounts.
func (m *Memory) AccountCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// Sessions

func (m *Memory) InsertSession(ctx context.Context, session *db.Session) (primitive.ObjectID, error) {
	if err := m.enter(ctx, "InsertSession"); err != nil {
		return primitive.NilObjectID, err
	}
	defer m.mu.Unlock()
	if session.ID.IsZero() {
		session.ID = primitive.NewObjectID()
	}
	c := *session
	m.sessions[session.ID] = &c
	return session.ID, nil
}

func (m *Memory) GetSession(ctx context.Context, id primitive.ObjectID) (*db.Session, error) {
	if err := m.enter(ctx, "GetSession"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	c := *s
	return &c, nil
}

func (m *Memory) DeleteSession(ctx context.Context, id primitive.ObjectID) error {
	if err := m.enter(ctx, "DeleteSession"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(m.sessions, id)
	return nil
}

func (m *Memory) DeleteAccountSessions(ctx context.Context, accountID primitive.ObjectID) (int64, error) {
	if err := m.enter(ctx, "DeleteAccountSessions"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// ExpireSessions moves the expiration of every session to the past.
func (m *Memory) ExpireSessions() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		s.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

// Users

func (m *Memory) InsertUser(ctx context.Context, user *db.User) (primitive.ObjectID, error) {
	if err := m.enter(ctx, "InsertUser"); err != nil {
		return primitive.NilObjectID, err
	}
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.AccountID == user.AccountID {
			return primitive.NilObjectID, errDuplicate
		}
	}
	now := time.Now()
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.LastSeen.IsZero() {
		user.LastSeen = now
	}
	if user.Followers == nil {
		user.Followers = []primitive.ObjectID{}
	}
	if user.Following == nil {
		user.Following = []primitive.ObjectID{}
	}
	m.users[user.ID] = copyUser(user)
	return user.ID, nil
}

func (m *Memory) GetUserByID(ctx context.Context, id primitive.ObjectID) (*db.User, error) {
	if err := m.enter(ctx, "GetUserByID"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return copyUser(u), nil
}

func (m *Memory) GetUserByAccountID(ctx context.Context, accountID primitive.ObjectID) (*db.User, error) {
	if err := m.enter(ctx, "GetUserByAccountID"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.AccountID == accountID {
			return copyUser(u), nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *Memory) GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*db.User, error) {
	if err := m.enter(ctx, "GetUsersByIDs"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	users := []*db.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			users = append(users, copyUser(u))
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

func (m *Memory) UpdateUserLocation(ctx context.Context, id primitive.ObjectID, location *db.DBLocation) error {
	if err := m.enter(ctx, "UpdateUserLocation"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	u.Location = location
	return nil
}

func (m *Memory) UpdateLastSeen(ctx context.Context, id primitive.ObjectID, t time.Time) error {
	if err := m.enter(ctx, "UpdateLastSeen"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastSeen = t
	}
	return nil
}

func (m *Memory) AddFollow(ctx context.Context, followerID, followedID primitive.ObjectID) error {
	if err := m.enter(ctx, "AddFollow"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	follower, ok := m.users[followerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	followed, ok := m.users[followedID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if !slices.Contains(follower.Following, followedID) {
		follower.Following = append(follower.Following, followedID)
	}
	if !slices.Contains(followed.Followers, followerID) {
		followed.Followers = append(followed.Followers, followerID)
	}
	return nil
}

func (m *Memory) RemoveFollow(ctx context.Context, followerID, followedID primitive.ObjectID) error {
	if err := m.enter(ctx, "RemoveFollow"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	follower, ok := m.users[followerID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	followed, ok := m.users[followedID]
	if !ok {
		return mongo.ErrNoDocuments
	}
	follower.Following = slices.DeleteFunc(follower.Following, func(id primitive.ObjectID) bool { return id == followedID })
	followed.Followers = slices.DeleteFunc(followed.Followers, func(id primitive.ObjectID) bool { return id == followerID })
	return nil
}

func (m *Memory) CountUsers(ctx context.Context) (int64, error) {
	if err := m.enter(ctx, "CountUsers"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

// Posts

func (m *Memory) InsertPost(ctx context.Context, post *db.Post) (primitive.ObjectID, error) {
	if err := m.enter(ctx, "InsertPost"); err != nil {
		return primitive.NilObjectID, err
	}
	defer m.mu.Unlock()
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	post.UpdatedAt = post.CreatedAt
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Likes == nil {
		post.Likes = []primitive.ObjectID{}
	}
	c := *post
	c.CreatorUser = nil
	m.posts[post.ID] = &c
	return post.ID, nil
}

func (m *Memory) GetPost(ctx context.Context, id primitive.ObjectID) (*db.Post, error) {
	if err := m.enter(ctx, "GetPost"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	return m.joined(p), nil
}

func (m *Memory) ListPosts(ctx context.Context, after *primitive.ObjectID, limit int) ([]*db.Post, error) {
	if err := m.enter(ctx, "ListPosts"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	var anchor *db.Post
	if after != nil {
		p, ok := m.posts[*after]
		if !ok {
			return nil, mongo.ErrNoDocuments
		}
		anchor = p
	}
	return m.selectPosts(func(p *db.Post) bool {
		return anchor == nil || less(anchor, p)
	}, limit), nil
}

func (m *Memory) ListPostsByCreator(ctx context.Context, creator primitive.ObjectID, limit int) ([]*db.Post, error) {
	if err := m.enter(ctx, "ListPostsByCreator"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.selectPosts(func(p *db.Post) bool { return p.Creator == creator }, limit), nil
}

func (m *Memory) ListPostsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]*db.Post, error) {
	if err := m.enter(ctx, "ListPostsByIDs"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	return m.selectPosts(func(p *db.Post) bool { return slices.Contains(ids, p.ID) }, len(ids)), nil
}

func (m *Memory) SearchPosts(ctx context.Context, term string, limit int) ([]*db.Post, error) {
	if err := m.enter(ctx, "SearchPosts"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	words := strings.Fields(strings.ToLower(term))
	return m.selectPosts(func(p *db.Post) bool {
		text := strings.ToLower(p.Caption + " " + strings.Join(p.Tags, " "))
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}, limit), nil
}

func (m *Memory) UpdatePost(ctx context.Context, id primitive.ObjectID, update *db.PostUpdate) error {
	if err := m.enter(ctx, "UpdatePost"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	if update.Caption != nil {
		p.Caption = *update.Caption
	}
	if update.Location != nil {
		p.Location = *update.Location
	}
	if update.Tags != nil {
		p.Tags = update.Tags
	}
	if update.ImageURL != nil {
		p.ImageURL = *update.ImageURL
	}
	if update.ImageID != nil {
		p.ImageID = *update.ImageID
	}
	p.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	return nil
}

func (m *Memory) SetLikes(ctx context.Context, id primitive.ObjectID, likes []primitive.ObjectID) error {
	if err := m.enter(ctx, "SetLikes"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return mongo.ErrNoDocuments
	}
	p.Likes = append([]primitive.ObjectID{}, likes...)
	return nil
}

func (m *Memory) DeletePost(ctx context.Context, id primitive.ObjectID) error {
	if err := m.enter(ctx, "DeletePost"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.posts[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(m.posts, id)
	return nil
}

func (m *Memory) CountPosts(ctx context.Context) (int64, error) {
	if err := m.enter(ctx, "CountPosts"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	return int64(len(m.posts)), nil
}

// less reports whether a precedes b in the (createdAt desc, _id desc) order.
func less(a, b *db.Post) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID.Hex() > b.ID.Hex()
}

func (m *Memory) selectPosts(match func(*db.Post) bool, limit int) []*db.Post {
	if limit <= 0 {
		limit = db.DefaultPageSize
	}
	selected := []*db.Post{}
	for _, p := range m.posts {
		if match(p) {
			selected = append(selected, p)
		}
	}
	sort.Slice(selected, func(i, j int) bool { return less(selected[i], selected[j]) })
	if len(selected) > limit {
		selected = selected[:limit]
	}
	out := make([]*db.Post, 0, len(selected))
	for _, p := range selected {
		out = append(out, m.joined(p))
	}
	return out
}

func (m *Memory) joined(p *db.Post) *db.Post {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	c.Likes = slices.Clone(p.Likes)
	if u, ok := m.users[p.Creator]; ok {
		c.CreatorUser = copyUser(u)
	}
	return &c
}

// Saves

func (m *Memory) InsertSave(ctx context.Context, save *db.Save) (primitive.ObjectID, error) {
	if err := m.enter(ctx, "InsertSave"); err != nil {
		return primitive.NilObjectID, err
	}
	defer m.mu.Unlock()
	for _, s := range m.saves {
		if s.UserID == save.UserID && s.PostID == save.PostID {
			return primitive.NilObjectID, errDuplicate
		}
	}
	if save.ID.IsZero() {
		save.ID = primitive.NewObjectID()
	}
	if save.CreatedAt.IsZero() {
		save.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}
	c := *save
	m.saves[save.ID] = &c
	return save.ID, nil
}

func (m *Memory) GetSave(ctx context.Context, id primitive.ObjectID) (*db.Save, error) {
	if err := m.enter(ctx, "GetSave"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	s, ok := m.saves[id]
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	c := *s
	return &c, nil
}

func (m *Memory) DeleteSave(ctx context.Context, id primitive.ObjectID) error {
	if err := m.enter(ctx, "DeleteSave"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.saves[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(m.saves, id)
	return nil
}

func (m *Memory) DeleteSavesByPost(ctx context.Context, postID primitive.ObjectID) (int64, error) {
	if err := m.enter(ctx, "DeleteSavesByPost"); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.saves {
		if s.PostID == postID {
			delete(m.saves, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) ListSavesByUser(ctx context.Context, userID primitive.ObjectID) ([]*db.Save, error) {
	if err := m.enter(ctx, "ListSavesByUser"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	saves := []*db.Save{}
	for _, s := range m.saves {
		if s.UserID == userID {
			c := *s
			saves = append(saves, &c)
		}
	}
	sort.Slice(saves, func(i, j int) bool {
		if !saves[i].CreatedAt.Equal(saves[j].CreatedAt) {
			return saves[i].CreatedAt.After(saves[j].CreatedAt)
		}
		return saves[i].ID.Hex() > saves[j].ID.Hex()
	})
	return saves, nil
}

// Files

func (m *Memory) Upload(ctx context.Context, name, contentType string, data []byte) (*storage.File, error) {
	if err := m.enter(ctx, "Upload"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	if len(data) == 0 {
		return nil, storage.ErrEmptyFile
	}
	m.fileSeq++
	file := &db.File{
		ID:          fmt.Sprintf("file-%d", m.fileSeq),
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Content:     slices.Clone(data),
		CreatedAt:   time.Now(),
	}
	m.files[file.ID] = file
	return toStorageFile(file), nil
}

func (m *Memory) Stat(ctx context.Context, id string) (*storage.File, error) {
	if err := m.enter(ctx, "Stat"); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return toStorageFile(f), nil
}

func (m *Memory) Open(ctx context.Context, id string) (*storage.File, []byte, error) {
	if err := m.enter(ctx, "Open"); err != nil {
		return nil, nil, err
	}
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	return toStorageFile(f), slices.Clone(f.Content), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	if err := m.enter(ctx, "Delete"); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, ok := m.files[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.files, id)
	return nil
}

func toStorageFile(f *db.File) *storage.File {
	return &storage.File{
		ID:          f.ID,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
	}
}

func copyUser(u *db.User) *db.User {
	c := *u
	c.Followers = slices.Clone(u.Followers)
	c.Following = slices.Clone(u.Following)
	if u.Location != nil {
		loc := *u.Location
		loc.Coordinates = slices.Clone(u.Location.Coordinates)
		c.Location = &loc
	}
	return &c
}

package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/emprius/emprius-social-backend/db"
	"github.com/emprius/emprius-social-backend/storage"
)

// CreatePost uploads the image, resolves its preview URL and creates the post document.
// If any step after the upload fails, the uploaded file is deleted and ErrPartialWrite returned.
func (g *Gateway) CreatePost(ctx context.Context, np NewPost) (*Post, error) {
	const op = "create post"
	creator, err := db.ParseID(np.UserID)
	if err != nil {
		return nil, translate(op, err)
	}
	if len(np.Caption) > MaxCaptionLength {
		return nil, validationError(op, "caption longer than %d characters", MaxCaptionLength)
	}
	if len(np.File.Data) == 0 {
		return nil, validationError(op, "an image is required")
	}

	file, err := g.files.Upload(ctx, np.File.Name, np.File.ContentType, np.File.Data)
	if err != nil {
		return nil, translate(op, err)
	}

	imageURL, err := g.GetFilePreview(ctx, file.ID)
	if err != nil {
		return nil, g.abortUpload(ctx, op, file.ID, err)
	}

	post := &db.Post{
		Creator:  creator,
		Caption:  np.Caption,
		ImageURL: imageURL,
		ImageID:  file.ID,
		Location: strings.TrimSpace(np.Location),
		Tags:     ParseTags(np.Tags),
	}
	if _, err := g.posts.InsertPost(ctx, post); err != nil {
		return nil, g.abortUpload(ctx, op, file.ID, err)
	}
	log.Debug().Str("post", post.ID.Hex()).Str("creator", np.UserID).Msg("post created")
	return g.GetPostByID(ctx, post.ID.Hex())
}

// abortUpload deletes a file uploaded by a write that failed afterwards. The delete runs even
// if ctx is already cancelled, which is often the reason the write failed.
func (g *Gateway) abortUpload(ctx context.Context, op, fileID string, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := g.files.Delete(ctx, fileID); err != nil {
		log.Error().Err(err).Str("file", fileID).Msg("could not delete orphan file")
		return partialWrite(op, cause, err)
	}
	return partialWrite(op, cause, nil)
}

// GetPostByID returns a post with its creator.
func (g *Gateway) GetPostByID(ctx context.Context, postID string) (*Post, error) {
	const op = "get post"
	id, err := db.ParseID(postID)
	if err != nil {
		return nil, translate(op, err)
	}
	post, err := g.posts.GetPost(ctx, id)
	if err != nil {
		return nil, translate(op, err)
	}
	return g.postFromDB(post), nil
}

// UpdatePost changes the caption, location, tags and optionally the image of a post owned by
// the user. A new image is uploaded first. If the document update fails the new image is
// deleted, if it succeeds the old image is deleted.
func (g *Gateway) UpdatePost(ctx context.Context, pu PostUpdate) (*Post, error) {
	const op = "update post"
	if len(pu.Caption) > MaxCaptionLength {
		return nil, validationError(op, "caption longer than %d characters", MaxCaptionLength)
	}
	current, err := g.ownedPost(ctx, op, pu.UserID, pu.PostID)
	if err != nil {
		return nil, err
	}

	location := strings.TrimSpace(pu.Location)
	update := &db.PostUpdate{
		Caption:  &pu.Caption,
		Location: &location,
		Tags:     ParseTags(pu.Tags),
	}
	var newFileID string
	if pu.File != nil {
		file, err := g.files.Upload(ctx, pu.File.Name, pu.File.ContentType, pu.File.Data)
		if err != nil {
			return nil, translate(op, err)
		}
		newFileID = file.ID
		imageURL, err := g.GetFilePreview(ctx, file.ID)
		if err != nil {
			return nil, g.abortUpload(ctx, op, file.ID, err)
		}
		update.ImageID = &newFileID
		update.ImageURL = &imageURL
	}

	if err := g.posts.UpdatePost(ctx, current.ID, update); err != nil {
		if newFileID != "" {
			return nil, g.abortUpload(ctx, op, newFileID, err)
		}
		return nil, translate(op, err)
	}
	if newFileID != "" && current.ImageID != "" {
		if err := g.files.Delete(ctx, current.ImageID); err != nil {
			log.Warn().Err(err).Str("file", current.ImageID).Msg("could not delete replaced image")
		}
	}
	return g.GetPostByID(ctx, pu.PostID)
}

// DeletePost removes a post owned by the user, the saves pointing to it and its image.
func (g *Gateway) DeletePost(ctx context.Context, userID, postID, imageID string) error {
	const op = "delete post"
	if postID == "" || imageID == "" {
		return validationError(op, "post and image ids are required")
	}
	post, err := g.ownedPost(ctx, op, userID, postID)
	if err != nil {
		return err
	}
	if post.ImageID != imageID {
		return validationError(op, "image %s does not belong to post %s", imageID, postID)
	}
	if err := g.posts.DeletePost(ctx, post.ID); err != nil {
		return translate(op, err)
	}
	if _, err := g.saves.DeleteSavesByPost(ctx, post.ID); err != nil {
		log.Warn().Err(err).Str("post", postID).Msg("could not delete saves of removed post")
	}
	if err := g.files.Delete(ctx, imageID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error().Err(err).Str("file", imageID).Msg("could not delete image of removed post")
		return partialWrite(op, err, nil)
	}
	return nil
}

// ownedPost returns the post if it exists and was created by userID.
func (g *Gateway) ownedPost(ctx context.Context, op, userID, postID string) (*db.Post, error) {
	id, err := db.ParseID(postID)
	if err != nil {
		return nil, translate(op, err)
	}
	post, err := g.posts.GetPost(ctx, id)
	if err != nil {
		return nil, translate(op, err)
	}
	if post.Creator.Hex() != userID {
		return nil, fmt.Errorf("%s: %w: post %s is not owned by user %s", op, ErrUnauthorized, postID, userID)
	}
	return post, nil
}

// GetRecentPosts returns the newest posts.
func (g *Gateway) GetRecentPosts(ctx context.Context) ([]*Post, error) {
	return g.ListPosts(ctx, "", RecentPostsLimit)
}

// ListPosts returns up to limit posts ordered by descending creation time, strictly after the
// post identified by cursor. An empty cursor starts from the newest post.
func (g *Gateway) ListPosts(ctx context.Context, cursor string, limit int) ([]*Post, error) {
	const op = "list posts"
	var after *primitive.ObjectID
	if cursor != "" {
		id, err := db.ParseID(cursor)
		if err != nil {
			return nil, translate(op, err)
		}
		after = &id
	}
	posts, err := g.posts.ListPosts(ctx, after, limit)
	if err != nil {
		return nil, translate(op, err)
	}
	return g.postsFromDB(posts), nil
}

// GetUserPosts returns the newest posts of a user.
func (g *Gateway) GetUserPosts(ctx context.Context, userID string) ([]*Post, error) {
	const op = "get user posts"
	id, err := db.ParseID(userID)
	if err != nil {
		return nil, translate(op, err)
	}
	posts, err := g.posts.ListPostsByCreator(ctx, id, db.MaxPageSize)
	if err != nil {
		return nil, translate(op, err)
	}
	return g.postsFromDB(posts), nil
}

// SearchPosts returns the newest posts matching a search term.
func (g *Gateway) SearchPosts(ctx context.Context, term string) ([]*Post, error) {
	const op = "search posts"
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, validationError(op, "empty search term")
	}
	posts, err := g.posts.SearchPosts(ctx, term, db.DefaultPageSize)
	if err != nil {
		return nil, translate(op, err)
	}
	return g.postsFromDB(posts), nil
}

// LikePost replaces the list of users liking a post.
func (g *Gateway) LikePost(ctx context.Context, postID string, likes []string) (*Post, error) {
	const op = "like post"
	id, err := db.ParseID(postID)
	if err != nil {
		return nil, translate(op, err)
	}
	likeIDs, err := db.ParseIDs(dedup(likes))
	if err != nil {
		return nil, translate(op, err)
	}
	if err := g.posts.SetLikes(ctx, id, likeIDs); err != nil {
		return nil, translate(op, err)
	}
	return g.GetPostByID(ctx, postID)
}

// SavePost records that a user saved a post.
func (g *Gateway) SavePost(ctx context.Context, userID, postID string) (*Save, error) {
	const op = "save post"
	uid, err := db.ParseID(userID)
	if err != nil {
		return nil, translate(op, err)
	}
	pid, err := db.ParseID(postID)
	if err != nil {
		return nil, translate(op, err)
	}
	if _, err := g.posts.GetPost(ctx, pid); err != nil {
		return nil, translate(op, err)
	}
	save := &db.Save{UserID: uid, PostID: pid}
	if _, err := g.saves.InsertSave(ctx, save); err != nil {
		return nil, translate(op, err)
	}
	return saveFromDB(save), nil
}

// DeleteSavedPost removes a save owned by the user.
func (g *Gateway) DeleteSavedPost(ctx context.Context, userID, saveID string) error {
	const op = "delete saved post"
	id, err := db.ParseID(saveID)
	if err != nil {
		return translate(op, err)
	}
	save, err := g.saves.GetSave(ctx, id)
	if err != nil {
		return translate(op, err)
	}
	if save.UserID.Hex() != userID {
		return fmt.Errorf("%s: %w: save %s is not owned by user %s", op, ErrUnauthorized, saveID, userID)
	}
	return translate(op, g.saves.DeleteSave(ctx, id))
}

// GetUserSaves returns the saves of a user with their posts. Saves of deleted posts are skipped.
func (g *Gateway) GetUserSaves(ctx context.Context, userID string) ([]*Save, error) {
	const op = "get user saves"
	id, err := db.ParseID(userID)
	if err != nil {
		return nil, translate(op, err)
	}
	saves, err := g.saves.ListSavesByUser(ctx, id)
	if err != nil {
		return nil, translate(op, err)
	}
	postIDs := make([]primitive.ObjectID, 0, len(saves))
	for _, s := range saves {
		postIDs = append(postIDs, s.PostID)
	}
	posts, err := g.posts.ListPostsByIDs(ctx, postIDs)
	if err != nil {
		return nil, translate(op, err)
	}
	byID := make(map[primitive.ObjectID]*db.Post, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
	}
	out := make([]*Save, 0, len(saves))
	for _, s := range saves {
		post, ok := byID[s.PostID]
		if !ok {
			continue
		}
		save := saveFromDB(s)
		save.Post = g.postFromDB(post)
		out = append(out, save)
	}
	return out, nil
}

func dedup(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// Package storage keeps the uploaded files (post images) and renders previews of them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when the requested file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrEmptyFile is returned when uploading a file without content.
	ErrEmptyFile = errors.New("empty file")
)

// File describes a stored file.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Store is a file storage backend.
type Store interface {
	// Upload stores data under a new unique ID.
	Upload(ctx context.Context, name, contentType string, data []byte) (*File, error)
	// Stat returns the metadata of a file.
	Stat(ctx context.Context, id string) (*File, error)
	// Open returns the metadata and the content of a file.
	Open(ctx context.Context, id string) (*File, []byte, error)
	// Delete removes a file.
	Delete(ctx context.Context, id string) error
}

// newFileID returns a unique file ID keeping the extension of the original name,
// or the one matching the content type.
func newFileID(name, contentType string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
			ext = exts[0]
		}
	}
	return uuid.New().String() + ext
}

// PreviewURL returns the URL that serves the preview of a stored file through the HTTP API.
// It fails if the file does not exist.
func PreviewURL(ctx context.Context, store Store, publicURL, id string, opts PreviewOptions) (string, error) {
	if _, err := store.Stat(ctx, id); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/files/%s/preview?%s", strings.TrimSuffix(publicURL, "/"), id, opts.Query().Encode()), nil
}

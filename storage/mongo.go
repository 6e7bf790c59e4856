package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/emprius/emprius-social-backend/db"
)

// MongoStore keeps files in the database "files" collection.
type MongoStore struct {
	files *db.FileService
}

// NewMongoStore creates a MongoStore on top of the database file service.
func NewMongoStore(files *db.FileService) *MongoStore {
	return &MongoStore{files: files}
}

// Upload stores a file in the database.
func (s *MongoStore) Upload(ctx context.Context, name, contentType string, data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	file := &db.File{
		ID:          newFileID(name, contentType),
		Name:        name,
		ContentType: contentType,
		Content:     data,
	}
	if err := s.files.InsertFile(ctx, file); err != nil {
		return nil, fmt.Errorf("could not insert file: %w", err)
	}
	log.Debug().Str("id", file.ID).Int64("size", file.Size).Msg("file stored")
	return fromDBFile(file), nil
}

// Stat returns the metadata of a file.
func (s *MongoStore) Stat(ctx context.Context, id string) (*File, error) {
	file, err := s.files.GetFileInfo(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return fromDBFile(file), nil
}

// Open returns the metadata and the content of a file.
func (s *MongoStore) Open(ctx context.Context, id string) (*File, []byte, error) {
	file, err := s.files.GetFile(ctx, id)
	if err != nil {
		return nil, nil, notFound(err)
	}
	return fromDBFile(file), file.Content, nil
}

// Delete removes a file.
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	return notFound(s.files.DeleteFile(ctx, id))
}

func fromDBFile(f *db.File) *File {
	return &File{
		ID:          f.ID,
		Name:        f.Name,
		ContentType: f.ContentType,
		Size:        f.Size,
	}
}

func notFound(err error) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return err
}

package db

import (
	"context"
	"crypto/sha256"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// File represents the schema for the "files" collection, used when uploads are kept in the
// database instead of an object store.
type File struct {
	ID          string    `bson:"_id"`
	Name        string    `bson:"name"`
	ContentType string    `bson:"contentType"`
	Size        int64     `bson:"size"`
	Hash        []byte    `bson:"hash"`
	Content     []byte    `bson:"content"`
	CreatedAt   time.Time `bson:"createdAt"`
}

// FileService provides methods to interact with the "files" collection.
type FileService struct {
	Collection *mongo.Collection
}

// NewFileService creates a new FileService.
func NewFileService(db *Database) *FileService {
	return &FileService{
		Collection: db.Database.Collection("files"),
	}
}

// InsertFile stores a File. Size, Hash and CreatedAt are computed from the content.
func (s *FileService) InsertFile(ctx context.Context, file *File) error {
	hash := sha256.Sum256(file.Content)
	file.Hash = hash[:]
	file.Size = int64(len(file.Content))
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now()
	}
	_, err := s.Collection.InsertOne(ctx, file)
	return err
}

// GetFile retrieves a File, content included, by its ID.
func (s *FileService) GetFile(ctx context.Context, id string) (*File, error) {
	var file File
	if err := s.Collection.FindOne(ctx, bson.M{"_id": id}).Decode(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// GetFileInfo retrieves the metadata of a File without its content.
func (s *FileService) GetFileInfo(ctx context.Context, id string) (*File, error) {
	var file File
	opts := options.FindOne().SetProjection(bson.M{"content": 0})
	if err := s.Collection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteFile deletes a File by its ID.
func (s *FileService) DeleteFile(ctx context.Context, id string) error {
	res, err := s.Collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog/log"
)

// S3Store keeps files in an AWS S3 bucket. The file ID is the object key.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store creates an S3Store using the default AWS credential chain.
func NewS3Store(ctx context.Context, region, bucket string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

// Upload puts a new object in the bucket.
func (s *S3Store) Upload(ctx context.Context, name, contentType string, data []byte) (*File, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	key := newFileID(name, contentType)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("max-age=86400"),
		Metadata: map[string]string{
			"original-filename": name,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Debug().Str("key", key).Int("size", len(data)).Msg("file uploaded to S3")
	return &File{
		ID:          key,
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// Stat returns the metadata of an object.
func (s *S3Store) Stat(ctx context.Context, id string) (*File, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, s3NotFound(err)
	}
	return &File{
		ID:          id,
		Name:        out.Metadata["original-filename"],
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

// Open downloads an object.
func (s *S3Store) Open(ctx context.Context, id string) (*File, []byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, nil, s3NotFound(err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read S3 object: %w", err)
	}
	return &File{
		ID:          id,
		Name:        out.Metadata["original-filename"],
		ContentType: aws.ToString(out.ContentType),
		Size:        int64(len(data)),
	}, data, nil
}

// Delete removes an object. S3 does not report missing keys on delete, so Stat is checked first.
func (s *S3Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Stat(ctx, id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// CheckBucketAccess verifies that the bucket is reachable with the configured credentials.
func (s *S3Store) CheckBucketAccess(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("cannot access S3 bucket %s: %w", s.bucket, err)
	}
	return nil
}

func s3NotFound(err error) error {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return ErrNotFound
	}
	return err
}

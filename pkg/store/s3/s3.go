// Package s3 implements a content store on Amazon S3 or any S3-compatible
// object storage (MinIO, Localstack, etc. via a custom endpoint).
//
// The content identifier is used directly as the object key, under an
// optional key prefix, so the bucket stays human-inspectable.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/mover/pkg/store"
)

// S3Store is a content store backed by an S3 bucket.
//
// Concurrent writes to the same identifier are last-write-wins, which is
// acceptable for content-addressed data: identical identifiers imply
// identical bytes.
type S3Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
}

// Config contains the store-level S3 settings. Client construction
// (region, credentials, endpoint) happens in the config factory.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client

	// Bucket is the bucket name. The bucket must already exist.
	Bucket string

	// KeyPrefix is prepended to every object key.
	KeyPrefix string
}

// New creates the store and verifies bucket access.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	if cfg.Client == nil {
		return nil, errors.New("s3 store: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store: bucket is required")
	}

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3Store{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *S3Store) objectKey(id store.ID) string {
	return s.keyPrefix + string(id)
}

// Get downloads the object stored under id.
func (s *S3Store) Get(ctx context.Context, id store.ID) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("%s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get %s: %w", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read %s: %w", id, err)
	}

	return data, nil
}

// Put uploads data under id.
func (s *S3Store) Put(ctx context.Context, id store.ID, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", id, err)
	}

	return nil
}

// Exists checks object presence with a HEAD request.
func (s *S3Store) Exists(ctx context.Context, id store.ID) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head %s: %w", id, err)
	}

	return true, nil
}

// Close is a no-op; the S3 client has no resources to release.
func (s *S3Store) Close() error {
	return nil
}

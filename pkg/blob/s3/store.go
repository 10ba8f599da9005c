// Package s3 implements S3-backed blob storage.
//
// Blob references map directly onto object keys (with an optional
// bucket-wide prefix), so the bucket layout mirrors the upload paths
// and stays inspectable with standard S3 tooling.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/spacemaster/spacedrive/pkg/metadata"
)

// S3BlobStore implements blob.BlobStore using Amazon S3 or S3-compatible
// storage (MinIO, Cubbit DS3, etc.).
//
// Downloads never proxy through this process: GetURL hands out a
// presigned, time-limited GET URL and clients fetch the object directly
// from the bucket.
//
// Thread Safety:
// The AWS SDK clients are safe for concurrent use, and the store keeps
// no mutable state, so all methods may be called from multiple
// goroutines.
type S3BlobStore struct {
	client    *awss3.Client
	presigner *awss3.PresignClient
	bucket    string
	keyPrefix string
	urlTTL    time.Duration
}

// S3BlobStoreConfig contains configuration for the S3 blob store.
type S3BlobStoreConfig struct {
	// Client is the configured S3 client.
	Client *awss3.Client

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	// Example: "spacedrive/" results in keys like "spacedrive/files/..."
	KeyPrefix string

	// URLTTL is the lifetime of presigned download URLs (default: 15m).
	URLTTL time.Duration
}

// NewS3BlobStore creates a new S3-backed blob store and verifies bucket
// access. The bucket must already exist; this function does not create it.
func NewS3BlobStore(ctx context.Context, cfg S3BlobStoreConfig) (*S3BlobStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	urlTTL := cfg.URLTTL
	if urlTTL == 0 {
		urlTTL = 15 * time.Minute
	}

	_, err := cfg.Client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, &metadata.StoreError{
			Code:    metadata.ErrUnavailable,
			Message: "failed to access bucket " + cfg.Bucket,
			Err:     err,
		}
	}

	return &S3BlobStore{
		client:    cfg.Client,
		presigner: awss3.NewPresignClient(cfg.Client),
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		urlTTL:    urlTTL,
	}, nil
}

// objectKey returns the full S3 object key for a blob reference.
func (s *S3BlobStore) objectKey(ref metadata.BlobRef) string {
	if s.keyPrefix != "" {
		return s.keyPrefix + string(ref)
	}
	return string(ref)
}

// refFromKey recovers the blob reference from an object key by stripping
// the configured prefix.
func (s *S3BlobStore) refFromKey(key string) metadata.BlobRef {
	if s.keyPrefix != "" && len(key) > len(s.keyPrefix) {
		key = key[len(s.keyPrefix):]
	}
	return metadata.BlobRef(key)
}

// Put uploads data under a fresh reference derived from the path hint
// plus a random component, and returns that reference.
func (s *S3BlobStore) Put(ctx context.Context, pathHint string, contentType string, data []byte) (metadata.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ref := metadata.BlobRef(strings.TrimSuffix(pathHint, "/") + "/" + uuid.NewString())

	input := &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", &metadata.StoreError{
			Code:    metadata.ErrUnavailable,
			Message: "failed to upload blob",
			Ref:     string(ref),
			Err:     err,
		}
	}

	return ref, nil
}

// GetURL returns a presigned, time-limited download URL for a blob.
//
// The object's existence is verified first so a missing blob surfaces
// as ErrNotFound instead of a signed URL that 404s at the client.
func (s *S3BlobStore) GetURL(ctx context.Context, ref metadata.BlobRef) (string, error) {
	exists, err := s.Exists(ctx, ref)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", &metadata.StoreError{Code: metadata.ErrNotFound, Message: "blob not found", Ref: string(ref)}
	}

	presigned, err := s.presigner.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	}, awss3.WithPresignExpires(s.urlTTL))
	if err != nil {
		return "", &metadata.StoreError{
			Code:    metadata.ErrUnavailable,
			Message: "failed to presign download URL",
			Ref:     string(ref),
			Err:     err,
		}
	}

	return presigned.URL, nil
}

// Exists reports whether a blob is present, via a HEAD request.
func (s *S3BlobStore) Exists(ctx context.Context, ref metadata.BlobRef) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, &metadata.StoreError{
			Code:    metadata.ErrUnavailable,
			Message: "failed to check blob existence",
			Ref:     string(ref),
			Err:     err,
		}
	}

	return true, nil
}

// Delete removes a blob. S3 deletes are idempotent, so an absent
// reference succeeds.
func (s *S3BlobStore) Delete(ctx context.Context, ref metadata.BlobRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(ref)),
	})
	if err != nil {
		return &metadata.StoreError{
			Code:    metadata.ErrUnavailable,
			Message: "failed to delete blob",
			Ref:     string(ref),
			Err:     err,
		}
	}

	return nil
}

// DeleteBatch removes multiple blobs using the DeleteObjects API, which
// accepts up to 1000 keys per request; larger batches are chunked
// automatically.
func (s *S3BlobStore) DeleteBatch(ctx context.Context, refs []metadata.BlobRef) (map[metadata.BlobRef]error, error) {
	failures := make(map[metadata.BlobRef]error)

	const maxBatchSize = 1000

	for i := 0; i < len(refs); i += maxBatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := i + maxBatchSize
		if end > len(refs) {
			end = len(refs)
		}
		batch := refs[i:end]

		objects := make([]types.ObjectIdentifier, len(batch))
		for j, ref := range batch {
			objects[j] = types.ObjectIdentifier{
				Key: aws.String(s.objectKey(ref)),
			}
		}

		result, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(false),
			},
		})
		if err != nil {
			for _, ref := range batch {
				failures[ref] = err
			}
			continue
		}

		for _, deleteErr := range result.Errors {
			if deleteErr.Key == nil {
				continue
			}
			ref := s.refFromKey(*deleteErr.Key)
			msg := "unknown error"
			if deleteErr.Code != nil && deleteErr.Message != nil {
				msg = *deleteErr.Code + ": " + *deleteErr.Message
			}
			failures[ref] = errors.New(msg)
		}
	}

	return failures, nil
}

// ListAll returns every blob reference in the bucket under the configured
// prefix, walking all pages of ListObjectsV2.
func (s *S3BlobStore) ListAll(ctx context.Context) ([]metadata.BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	refs := make([]metadata.BlobRef, 0)

	paginator := awss3.NewListObjectsV2Paginator(s.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &metadata.StoreError{
				Code:    metadata.ErrUnavailable,
				Message: "failed to list blobs",
				Err:     err,
			}
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			refs = append(refs, s.refFromKey(*obj.Key))
		}
	}

	return refs, nil
}

// Healthcheck verifies the bucket is reachable.
func (s *S3BlobStore) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return &metadata.StoreError{
			Code:    metadata.ErrUnavailable,
			Message: "bucket " + s.bucket + " is not reachable",
			Err:     err,
		}
	}
	return nil
}

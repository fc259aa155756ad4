package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/michaelloggins/Accession-sub000/internal/common"
)

// ErrNotFound is returned by Get when the key does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// Gateway is the object-store surface the pipeline depends on.
type Gateway interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Delete(ctx context.Context, key string) error
	// SetMetadata replaces the object's user metadata. Keys and values are
	// sanitized to the store's constraints before the write.
	SetMetadata(ctx context.Context, key string, meta map[string]string) error
	// SetRetention applies an unlocked (governance-mode) retention policy.
	SetRetention(ctx context.Context, key string, until time.Time) error
}

type s3Gateway struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// NewS3Gateway connects to the S3-compatible store and ensures the bucket exists.
func NewS3Gateway(ctx context.Context, cfg common.ObjectStoreConfig, log *slog.Logger) (Gateway, error) {
	if log == nil {
		log = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{ObjectLocking: true}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
		log.Info("created bucket", "bucket", cfg.Bucket)
	}

	return &s3Gateway{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (s *s3Gateway) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(obj); err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object data: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *s3Gateway) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: srcKey},
	)
	if err != nil {
		return fmt.Errorf("failed to copy object %s -> %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (s *s3Gateway) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

func (s *s3Gateway) SetMetadata(ctx context.Context, key string, meta map[string]string) error {
	// S3 has no metadata update; replace via self-copy.
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{
			Bucket:          s.bucket,
			Object:          key,
			UserMetadata:    SanitizeMetadata(meta),
			ReplaceMetadata: true,
		},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("failed to set metadata on %s: %w", key, err)
	}
	return nil
}

func (s *s3Gateway) SetRetention(ctx context.Context, key string, until time.Time) error {
	mode := minio.Governance
	err := s.client.PutObjectRetention(ctx, s.bucket, key, minio.PutObjectRetentionOptions{
		Mode:            &mode,
		RetainUntilDate: &until,
	})
	if err != nil {
		return fmt.Errorf("failed to set retention on %s: %w", key, err)
	}
	return nil
}

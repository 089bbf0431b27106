package storage

import (
	"context"
	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog"
	"net/url"
	"time"
)

type minioClient interface {
	PresignedPutObject(ctx context.Context, bucketName, objectName string, expires time.Duration) (*url.URL, error)
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// Storage hands out direct upload links into one bucket.
type Storage interface {
	EnsureBucket(ctx context.Context) error
	PresignedUploadURL(ctx context.Context, objectName string, expiry time.Duration) (*url.URL, error)
	Bucket() string
}

type minioStorage struct {
	client minioClient
	bucket string
}

func NewMinioStorage(client *minio.Client, bucket string) Storage {
	return &minioStorage{client: client, bucket: bucket}
}

func (s *minioStorage) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket when it is missing.
func (s *minioStorage) EnsureBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return mapMinioErr(err)
	}
	if ok {
		return nil
	}

	zerolog.Ctx(ctx).Info().Str("bucket", s.bucket).Msg("bucket does not exist, creating it")
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "BucketAlreadyOwnedByYou" || resp.Code == "BucketAlreadyExists" {
			return nil
		}
		return mapMinioErr(err)
	}
	return nil
}

func (s *minioStorage) PresignedUploadURL(ctx context.Context, objectName string, expiry time.Duration) (*url.URL, error) {
	zerolog.Ctx(ctx).Debug().Str("bucket", s.bucket).Str("object", objectName).Msg("generating presigned upload url")

	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectName, expiry)
	if err != nil {
		return nil, mapMinioErr(err)
	}
	return u, nil
}

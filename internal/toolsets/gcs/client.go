// Package gcs wraps object storage as copilot capabilities. It speaks the
// S3-interoperability protocol, so the same toolset works against Google
// Cloud Storage (storage.googleapis.com) or any S3-compatible endpoint.
package gcs

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Settings configures the storage endpoint and credentials.
type Settings struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
}

// Store is the narrow object-storage surface the toolset needs.
type Store interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error)
	ReadObject(ctx context.Context, bucket, key string, maxBytes int64) (string, error)
}

type minioStore struct {
	client *minio.Client
}

// NewStore connects a Store to the configured endpoint.
func NewStore(settings Settings) (Store, error) {
	client, err := minio.New(settings.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(settings.AccessKey, settings.SecretKey, ""),
		Secure: settings.UseSSL,
		Region: settings.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", settings.Endpoint, err)
	}
	return &minioStore{client: client}, nil
}

func (s *minioStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	ok, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return false, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	return ok, nil
}

func (s *minioStore) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("stat %s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  info.ContentType,
		LastModified: info.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
	}, nil
}

func (s *minioStore) ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error) {
	// Canceling the derived context stops minio's producer goroutine when
	// the loop exits early at limit.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := s.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var out []ObjectInfo
	for obj := range ch {
		if obj.Err != nil {
			return nil, fmt.Errorf("listing %s/%s: %w", bucket, prefix, obj.Err)
		}
		out = append(out, ObjectInfo{
			Key:          obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified.UTC().Format("2006-01-02T15:04:05Z"),
		})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *minioStore) ReadObject(ctx context.Context, bucket, key string, maxBytes int64) (string, error) {
	obj, err := s.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("opening %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxBytes))
	if err != nil {
		return "", fmt.Errorf("reading %s/%s: %w", bucket, key, err)
	}
	return string(data), nil
}

package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL is prepended to object keys in returned paths. It defaults
	// to the endpoint URL plus bucket.
	PublicURL string
}

// Minio stores uploads in an S3-compatible bucket.
type Minio struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	return &Minio{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

func (m *Minio) Save(ctx context.Context, upload Upload) (Stored, error) {
	key := ObjectKey(upload.FileName)
	size := upload.Size
	if size <= 0 {
		size = -1
	}
	info, err := m.client.PutObject(ctx, m.bucket, key, upload.Reader, size, minio.PutObjectOptions{
		ContentType: contentType(upload),
	})
	if err != nil {
		return Stored{}, fmt.Errorf("put object: %w", err)
	}
	return Stored{
		FilePath: m.publicURL + "/" + key,
		FileName: upload.FileName,
		FileType: contentType(upload),
		FileSize: info.Size,
	}, nil
}

func (m *Minio) Remove(ctx context.Context, filePath string) error {
	key := strings.TrimPrefix(filePath, m.publicURL+"/")
	if key == "" || key == filePath {
		return fmt.Errorf("not an object path: %q", filePath)
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

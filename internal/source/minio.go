package source

import (
	"context"
	"fmt"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"crowdwatch/internal/config"
)

// MinioStore downloads objects from an S3-compatible endpoint.
type MinioStore struct {
	client *miniogo.Client
}

// NewMinioStore builds a store from the [storage] config section. It returns
// (nil, nil) when storage is not configured.
func NewMinioStore(cfg config.Storage) (*MinioStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, nil
	}
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinioStore{client: client}, nil
}

// Download implements Downloader.
func (s *MinioStore) Download(ctx context.Context, obj Object, dest string) error {
	if err := s.client.FGetObject(ctx, obj.Bucket, obj.Key, dest, miniogo.GetObjectOptions{}); err != nil {
		return fmt.Errorf("get %s: %w", obj, err)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/iliyamo/campus-events/internal/config"
)

const keyPrefix = "events/"

// MinIO stores thumbnails under events/<uuid><ext> in a single bucket.
type MinIO struct {
	mc      *minio.Client
	bucket  string
	baseURL string
	log     zerolog.Logger
}

func NewMinIO(cfg config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access key and secret key are required")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIO{
		mc:      mc,
		bucket:  cfg.Bucket,
		baseURL: publicBase(cfg),
		log:     logger.With().Str("component", "storage").Logger(),
	}, nil
}

func publicBase(cfg config.MinIOConfig) string {
	if cfg.PublicURL != "" {
		return strings.TrimRight(cfg.PublicURL, "/")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + cfg.Endpoint + "/" + cfg.Bucket
}

// EnsureBucket creates the bucket on first start.
func (s *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := s.mc.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	s.log.Info().Str("bucket", s.bucket).Msg("created bucket")
	return nil
}

func (s *MinIO) Upload(ctx context.Context, img Image) string {
	if img.Body == nil {
		return ""
	}
	key := keyPrefix + uuid.NewString() + strings.ToLower(path.Ext(img.Filename))
	ct := img.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	size := img.Size
	if size <= 0 {
		size = -1
	}
	_, err := s.mc.PutObject(ctx, s.bucket, key, img.Body, size, minio.PutObjectOptions{ContentType: ct})
	if err != nil {
		s.log.Error().Err(err).Str("key", key).Msg("thumbnail upload failed")
		return ""
	}
	return s.baseURL + "/" + key
}

func (s *MinIO) Delete(ctx context.Context, rawURL string) {
	key := s.keyFromURL(rawURL)
	if key == "" {
		return
	}
	if err := s.mc.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("thumbnail delete failed")
	}
}

// keyFromURL recovers the object key from a URL produced by Upload. Both the
// configured public base and path-style endpoint URLs are understood.
func (s *MinIO) keyFromURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(rawURL, s.baseURL+"/"); ok {
		return cleanKey(rest)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.TrimPrefix(u.Path, "/")
	if rest, ok := strings.CutPrefix(p, s.bucket+"/"); ok {
		return cleanKey(rest)
	}
	return ""
}

func cleanKey(k string) string {
	if i := strings.IndexAny(k, "?#"); i >= 0 {
		k = k[:i]
	}
	if !strings.HasPrefix(k, keyPrefix) {
		return ""
	}
	return k
}

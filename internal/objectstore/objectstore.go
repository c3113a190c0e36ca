// Package objectstore wraps S3-compatible object storage: source download,
// segment upload, presigned upload URLs, and the bucket-notification feed
// that triggers ingestion.
package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Store interface {
	Bucket() string
	Download(ctx context.Context, key, dstPath string) error
	Upload(ctx context.Context, key, srcPath, contentType string) error
	PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error)
	// Listen emits object-created events under VideoPrefix until ctx is
	// cancelled. The channel closes when the underlying notification
	// stream ends.
	Listen(ctx context.Context) (<-chan UploadEvent, error)
}

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type MinioStore struct {
	client *minio.Client
	bucket string
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object storage client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket, logger: logger}, nil
}

func (s *MinioStore) Bucket() string {
	return s.bucket
}

func (s *MinioStore) Download(ctx context.Context, key, dstPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, dstPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) Upload(ctx context.Context, key, srcPath, contentType string) error {
	_, err := s.client.FPutObject(ctx, s.bucket, key, srcPath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *MinioStore) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, key, expiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return u.String(), nil
}

func (s *MinioStore) Listen(ctx context.Context) (<-chan UploadEvent, error) {
	notifications := s.client.ListenBucketNotification(ctx, s.bucket, VideoPrefix, "", []string{
		"s3:ObjectCreated:*",
	})

	events := make(chan UploadEvent)
	go func() {
		defer close(events)
		for info := range notifications {
			if info.Err != nil {
				s.logger.Error("bucket notification error", "error", info.Err)
				return
			}
			for _, record := range info.Records {
				// Object keys arrive URL-encoded in S3 events.
				key, err := url.QueryUnescape(record.S3.Object.Key)
				if err != nil {
					s.logger.Warn("skipping event with undecodable key", "key", record.S3.Object.Key)
					continue
				}
				eventTime, err := time.Parse(time.RFC3339, record.EventTime)
				if err != nil {
					eventTime = time.Now().UTC()
				}
				select {
				case events <- UploadEvent{Key: key, EventTime: eventTime}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events, nil
}

var _ Store = (*MinioStore)(nil)

// Package storage implements the object storage interface used by the
// Image Gen agent (spec C9, §6): bucket "images", path prefix
// "users/{user_id}/images/".
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thornxyz/revera/internal/retrypolicy"
)

// Config controls the S3-compatible object store.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for S3-compatible stores (MinIO etc.)
	AccessKeyID     string
	SecretAccessKey string
	PublicBaseURL   string // CDN/public URL prefix for GetPublicURL
	UsePathStyle    bool
}

// Store puts generated image bytes and returns their public URL.
type Store struct {
	cfg    Config
	client *s3.Client
	log    *zap.Logger
}

func New(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = "images"
	}
	if log == nil {
		log, _ = zap.NewProduction()
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Store{cfg: cfg, client: client, log: log}, nil
}

// PutGeneratedImage uploads PNG bytes under
// users/{user_id}/images/{uuid}.png and returns the object's public URL
// (spec §4.8, §6).
func (s *Store) PutGeneratedImage(ctx context.Context, userID string, data []byte) (string, error) {
	key := fmt.Sprintf("users/%s/images/%s.png", userID, uuid.NewString())

	err := retrypolicy.Do(ctx, 30*time.Second, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.cfg.Bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String("image/png"),
		})
		if err != nil {
			return retrypolicy.MarkRetryable(err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}
	return s.PublicURL(key), nil
}

// PublicURL renders the public URL for an object key.
func (s *Store) PublicURL(key string) string {
	if s.cfg.PublicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.cfg.PublicBaseURL, key)
	}
	if s.cfg.Endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.cfg.Endpoint, s.cfg.Bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

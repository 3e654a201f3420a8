// Package objectstore uploads entry thumbnails to an S3-compatible bucket
// (AWS S3, Cloudflare R2, MinIO).
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-portal/pkg/thumbnail"
)

// Config describes the bucket and credentials.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	// PublicBaseURL prefixes returned URLs; defaults to the endpoint plus bucket.
	PublicBaseURL string
	PathStyle     bool
}

// Uploader writes thumbnails as public objects.
type Uploader struct {
	client     *s3.Client
	bucket     string
	publicBase string
	logger     zerolog.Logger
}

var _ thumbnail.Uploader = (*Uploader)(nil)

// New builds an uploader from static credentials.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket must be provided")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("object store credentials must be provided")
	}
	if cfg.Region == "" {
		cfg.Region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load object store config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	publicBase := strings.TrimRight(cfg.PublicBaseURL, "/")
	if publicBase == "" {
		endpoint := strings.TrimRight(cfg.Endpoint, "/")
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		publicBase = endpoint + "/" + cfg.Bucket
	}

	return &Uploader{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: publicBase,
		logger:     logger.With().Str("component", "objectstore").Str("bucket", cfg.Bucket).Logger(),
	}, nil
}

// UploadThumbnail stores data under a stable key per entry and returns its public URL.
func (u *Uploader) UploadThumbnail(ctx context.Context, scope, entryID string, data []byte) (string, error) {
	mime, ext, err := thumbnail.Detect(data)
	if err != nil {
		return "", err
	}

	key := thumbnail.ObjectName(scope, entryID) + ext
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(mime),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String("public, max-age=300"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload thumbnail: %w", err)
	}

	u.logger.Info().Str("key", key).Int("bytes", len(data)).Msg("thumbnail uploaded")

	return u.publicBase + "/" + key, nil
}

package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"

	"github.com/noah-isme/judging-portal/pkg/thumbnail"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// Service uploads entry thumbnails to Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

var _ thumbnail.Uploader = (*Service)(nil)

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// UploadThumbnail stores the image under a stable public id per entry, so a
// re-upload replaces the previous thumbnail.
func (s *Service) UploadThumbnail(ctx context.Context, scope, entryID string, data []byte) (string, error) {
	mime, _, err := thumbnail.Detect(data)
	if err != nil {
		return "", err
	}

	params := uploadParams(s.folder, scope, entryID)
	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to upload thumbnail: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload thumbnail: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Str("mime", mime).Int("bytes", len(data)).Msg("thumbnail uploaded")

	return result.SecureURL, nil
}

func uploadParams(folder, scope, entryID string) uploader.UploadParams {
	return uploader.UploadParams{
		Folder:         folder,
		PublicID:       thumbnail.ObjectName(scope, entryID),
		ResourceType:   "image",
		Overwrite:      api.Bool(true),
		UniqueFilename: api.Bool(false),
		Invalidate:     api.Bool(true),
	}
}

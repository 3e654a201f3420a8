// Package thumbnail holds what the entry thumbnail uploaders share.
package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gosimple/slug"
)

// MaxBytes caps a single thumbnail upload.
const MaxBytes = 5 << 20

var (
	// ErrNotImage is returned for payloads that are not a raster or vector image.
	ErrNotImage = errors.New("thumbnail is not an image")
	// ErrTooLarge is returned for payloads above MaxBytes.
	ErrTooLarge = errors.New("thumbnail too large")
)

// Uploader stores an entry thumbnail and returns its public URL.
type Uploader interface {
	UploadThumbnail(ctx context.Context, scope, entryID string, data []byte) (string, error)
}

// Detect checks that data is an image and returns its MIME type and extension.
func Detect(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", ErrNotImage
	}
	if len(data) > MaxBytes {
		return "", "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), "image/") {
		return "", "", fmt.Errorf("%w: %s", ErrNotImage, detected.String())
	}
	return detected.String(), detected.Extension(), nil
}

// ObjectName builds "thumbnails/{scope}/{entry}" with slugged segments.
func ObjectName(scope, entryID string) string {
	return "thumbnails/" + segment(scope) + "/" + segment(entryID)
}

func segment(value string) string {
	if s := slug.Make(value); s != "" {
		return s
	}
	return "unnamed"
}

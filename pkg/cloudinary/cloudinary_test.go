package cloudinary

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/judging-portal/pkg/thumbnail"
)

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{CloudName: "demo"}, zerolog.Nop())
	require.Error(t, err)
}

func TestUploadParamsAreStablePerEntry(t *testing.T) {
	params := uploadParams("judging", "judging_spring", "spring_a1")
	require.Equal(t, "judging", params.Folder)
	require.Equal(t, "thumbnails/judging_spring/spring_a1", params.PublicID)
	require.Equal(t, "image", params.ResourceType)
	require.NotNil(t, params.Overwrite)
	require.True(t, *params.Overwrite)
	require.False(t, *params.UniqueFilename)
}

func TestUploadThumbnailRejectsNonImages(t *testing.T) {
	svc, err := New(Config{CloudName: "demo", APIKey: "key", APISecret: "secret"}, zerolog.Nop())
	require.NoError(t, err)

	_, err = svc.UploadThumbnail(context.Background(), "judging_spring", "spring_a1", []byte("plain text"))
	require.ErrorIs(t, err, thumbnail.ErrNotImage)
}

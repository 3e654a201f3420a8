package thumbnail

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// 1x1 transparent PNG.
var pngPixel = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0a, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestDetect(t *testing.T) {
	mime, ext, err := Detect(pngPixel)
	require.NoError(t, err)
	require.Equal(t, "image/png", mime)
	require.Equal(t, ".png", ext)

	_, _, err = Detect([]byte("hello, plain text"))
	require.ErrorIs(t, err, ErrNotImage)

	_, _, err = Detect(nil)
	require.ErrorIs(t, err, ErrNotImage)

	big := append(append([]byte{}, pngPixel...), bytes.Repeat([]byte{0}, MaxBytes)...)
	_, _, err = Detect(big)
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestObjectName(t *testing.T) {
	require.Equal(t, "thumbnails/judging_spring/spring_a1", ObjectName("judging_spring", "spring_a1"))
	require.Equal(t, "thumbnails/unnamed/team-x", ObjectName("", "Team X"))
}

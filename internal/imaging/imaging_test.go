package imaging

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestProbePNG(t *testing.T) {
	info, err := Probe(bytes.NewReader(pngBytes(t, 640, 480)))
	require.NoError(t, err)
	assert.Equal(t, Info{Format: "png", Width: 640, Height: 480}, info)
}

func TestProbeNonImageIsZero(t *testing.T) {
	info, err := Probe(strings.NewReader("%PDF-1.7 not an image"))
	require.NoError(t, err)
	assert.Equal(t, Info{}, info)
}

func TestThumbnailBoundsDimensions(t *testing.T) {
	out, err := Thumbnail(bytes.NewReader(pngBytes(t, 1024, 512)))
	require.NoError(t, err)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, ThumbnailDimension, cfg.Width)
	assert.Equal(t, ThumbnailDimension/2, cfg.Height)
}

func TestThumbnailKeepsSmallImages(t *testing.T) {
	out, err := Thumbnail(bytes.NewReader(pngBytes(t, 100, 80)))
	require.NoError(t, err)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 80, cfg.Height)
}

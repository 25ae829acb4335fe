package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDecode_PNG(t *testing.T) {
	data := encodePNG(t, image.NewRGBA(image.Rect(0, 0, 8, 6)))

	img, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 6, img.Bounds().Dy())
}

func TestDecode_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 10)), nil))

	_, format, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
}

func TestDecode_Corrupt(t *testing.T) {
	_, _, err := Decode([]byte("not an image at all"))

	var corrupt *CorruptImageError
	require.True(t, errors.As(err, &corrupt))
}

func TestResize_Exact(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))

	out := Resize(src, 40, 40, false)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, 40, out.Bounds().Dy())
}

func TestResize_KeepRatio(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 50))

	out := Resize(src, 40, 40, true)
	assert.Equal(t, 40, out.Bounds().Dx())
	assert.Equal(t, 20, out.Bounds().Dy())
}

func TestThumbnail_Downscales(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1024, 512))

	out := Thumbnail(src)
	assert.Equal(t, 256, out.Bounds().Dx())
	assert.Equal(t, 128, out.Bounds().Dy())
}

func TestThumbnail_NoUpscale(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 100, 80))

	out := Thumbnail(src)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 80, out.Bounds().Dy())
}

func TestEncodePNG_RoundTrip(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 5, 7))
	src.Set(2, 3, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	data, err := EncodePNG(src)
	require.NoError(t, err)

	img, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, src.Bounds(), img.Bounds())
}

func TestEncodeJPEG_FlattensAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	// Fully transparent source should come out white, not black.
	data, err := EncodeJPEG(src, DefaultJPEGQuality)
	require.NoError(t, err)

	img, _, err := Decode(data)
	require.NoError(t, err)
	r, g, b, _ := img.At(1, 1).RGBA()
	assert.Greater(t, r, uint32(0xf000))
	assert.Greater(t, g, uint32(0xf000))
	assert.Greater(t, b, uint32(0xf000))
}

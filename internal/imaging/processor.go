package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
)

const (
	DefaultJPEGQuality = 90
	thumbnailMax       = 256
)

// CorruptImageError reports bytes that do not decode as an image.
type CorruptImageError struct {
	Err error
}

func (e *CorruptImageError) Error() string {
	return fmt.Sprintf("corrupt image data: %v", e.Err)
}

func (e *CorruptImageError) Unwrap() error { return e.Err }

// Decode decodes PNG, JPEG or GIF bytes and reports the format name.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &CorruptImageError{Err: err}
	}
	return img, format, nil
}

// Resize scales img to the requested size with Catmull-Rom resampling,
// which is deterministic for a given input. With keepRatio the image is
// fitted inside the width x height box; otherwise it is stretched to
// exactly that size.
func Resize(img image.Image, width, height int, keepRatio bool) image.Image {
	if width <= 0 || height <= 0 {
		return img
	}

	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return img
	}

	dstW, dstH := width, height
	if keepRatio {
		ratio := float64(srcW) / float64(srcH)
		if float64(width)/float64(height) > ratio {
			dstW = int(float64(height) * ratio)
		} else {
			dstH = int(float64(width) / ratio)
		}
		if dstW < 1 {
			dstW = 1
		}
		if dstH < 1 {
			dstH = 1
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// Thumbnail returns a preview fitted inside the gallery thumbnail box.
// Images already small enough are returned unchanged.
func Thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	if b.Dx() <= thumbnailMax && b.Dy() <= thumbnailMax {
		return img
	}
	return Resize(img, thumbnailMax, thumbnailMax, true)
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeJPEG encodes img as JPEG bytes. JPEG has no alpha channel, so
// transparent images are flattened onto a white background first.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	if hasAlpha(img) {
		flat := image.NewRGBA(img.Bounds())
		draw.Draw(flat, flat.Bounds(), image.White, image.Point{}, draw.Src)
		draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Over)
		img = flat
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func hasAlpha(img image.Image) bool {
	switch img.ColorModel() {
	case color.RGBAModel, color.NRGBAModel, color.RGBA64Model, color.NRGBA64Model:
		return true
	}
	return false
}

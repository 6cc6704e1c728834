// Package imaging decodes, downsamples and re-encodes images for caching.
//
// Decoding reads the header first so oversized or malformed inputs are
// rejected before pixel data is allocated. The standard codecs cannot decode
// at a reduced scale, so downsampling decodes at native size and then
// resizes.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// MaxPixels bounds the decoded size of a single image (width * height).
const MaxPixels = 100_000_000

// ErrDecode matches every *DecodeError via errors.Is.
var ErrDecode = errors.New("imaging: decode failed")

// DecodeError reports malformed or unsupported image data.
type DecodeError struct {
	Format string // empty when the format could not be detected
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("decode %s image: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// Decode decodes data into an image.
//
// When maxDim > 0 and the longer edge of the source exceeds it, the result is
// downsampled so that its longer edge equals maxDim, preserving aspect ratio.
// Otherwise the image is returned at native size.
func Decode(data []byte, maxDim int) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty input")}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, &DecodeError{Format: format, Err: fmt.Errorf("dimensions %dx%d exceed pixel limit", cfg.Width, cfg.Height)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}

	w, h := Fit(cfg.Width, cfg.Height, maxDim)
	if w == cfg.Width && h == cfg.Height {
		return img, nil
	}
	return Resize(img, w, h), nil
}

// Fit returns the dimensions of a w x h image scaled down so that its longer
// edge is at most maxDim. Dimensions never drop below 1.
func Fit(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, scaleEdge(h, maxDim, w)
	}
	return scaleEdge(w, maxDim, h), maxDim
}

func scaleEdge(edge, num, den int) int {
	v := int(math.Round(float64(edge) * float64(num) / float64(den)))
	if v < 1 {
		return 1
	}
	return v
}

// Resize scales src to exactly w x h.
func Resize(src image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// Cost estimates the in-memory size of img in bytes (4 bytes per pixel).
func Cost(img image.Image) int64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}

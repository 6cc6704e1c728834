package imaging

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
)

// JPEGQuality is the fixed quality used for lossy storage encoding.
const JPEGQuality = 90

// Format identifies the encoding chosen by Encode.
type Format string

// Storage encodings, in order of preference.
const (
	FormatJPEG   Format = "jpeg"
	FormatPNG    Format = "png"
	FormatSource Format = "source"
)

// Encode re-encodes img for disk storage.
//
// Opaque images are stored as JPEG. Images with transparency are stored as
// PNG, as is anything the JPEG encoder rejects. If both encoders fail, src is
// returned unchanged with FormatSource.
func Encode(img image.Image, src []byte) ([]byte, Format) {
	if img == nil {
		return src, FormatSource
	}
	if Opaque(img) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err == nil {
			return buf.Bytes(), FormatJPEG
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err == nil {
		return buf.Bytes(), FormatPNG
	}
	return src, FormatSource
}

// Opaque reports whether every pixel of img is fully opaque.
func Opaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				return false
			}
		}
	}
	return true
}

package imaging

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
)

// WriteFile encodes img with Encode and atomically replaces path with the
// result. It returns the format written.
func WriteFile(path string, img image.Image) (_ Format, err error) {
	if img == nil {
		return "", errors.New("imaging: nil image")
	}
	data, format := Encode(img, nil)
	if len(data) == 0 {
		return "", errors.New("imaging: no encoder accepted the image")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".image-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write image: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("rename image: %w", err)
	}
	return format, nil
}

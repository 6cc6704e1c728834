package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// exportedFavorite is the widget wire format.
type exportedFavorite struct {
	ID       string `json:"id"`
	ImageURL string `json:"imageURLString"`
	Created  string `json:"createdAt"`
}

// ExportFavorites writes favs to w as a JSON array in the order given.
func ExportFavorites(w io.Writer, favs []Favorite) error {
	out := make([]exportedFavorite, len(favs))
	for i, f := range favs {
		out[i] = exportedFavorite{
			ID:       f.ID,
			ImageURL: f.URL,
			Created:  f.CreatedAt.UTC().Format(time.RFC3339),
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode favorites: %w", err)
	}
	return nil
}

// WriteFavoritesFile atomically replaces path with the export of favs.
func WriteFavoritesFile(path string, favs []Favorite) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".favorites-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := ExportFavorites(tmp, favs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename export: %w", err)
	}
	return nil
}

package store

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportFavorites(t *testing.T) {
	t.Parallel()
	created := time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("CEST", 2*60*60))
	favs := []Favorite{
		{Candidate: candidate("b"), CreatedAt: created},
		{Candidate: candidate("a"), CreatedAt: created.Add(-time.Hour)},
	}

	var buf bytes.Buffer
	require.NoError(t, ExportFavorites(&buf, favs))

	var got []map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, map[string]string{
		"id":             "b",
		"imageURLString": "https://images.test/b",
		"createdAt":      "2024-05-01T10:30:00Z",
	}, got[0])
	assert.Equal(t, "a", got[1]["id"])
}

func TestExportFavorites_Empty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, ExportFavorites(&buf, nil))
	assert.JSONEq(t, "[]", buf.String())
}

func TestWriteFavoritesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "widget", "favorites.json")
	favs := []Favorite{{Candidate: candidate("a"), CreatedAt: time.Unix(0, 0)}}

	require.NoError(t, WriteFavoritesFile(path, favs))
	require.NoError(t, WriteFavoritesFile(path, favs[:0]))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

package disk

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// scanEntries lists cache entries in root. In-progress temp files and
// anything without the entry extension are ignored.
func scanEntries(root string) ([]cacheEntry, int64, error) {
	dirEntries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}

	entries := make([]cacheEntry, 0, len(dirEntries))
	var total int64
	for _, d := range dirEntries {
		name := d.Name()
		if !d.Type().IsRegular() || strings.HasPrefix(name, tempPrefix) || filepath.Ext(name) != entryExt {
			continue
		}
		info, err := d.Info()
		if err != nil {
			// Removed by a concurrent prune or clear.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, 0, err
		}
		total += info.Size()
		entries = append(entries, cacheEntry{
			path:    filepath.Join(root, name),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return entries, total, nil
}

func dirSize(root string) (int64, error) {
	_, total, err := scanEntries(root)
	return total, err
}

// pruneDir removes the oldest entries in root until at most targetBytes
// remain. The entry at keep, if any, is never removed.
func pruneDir(root string, targetBytes int64, keep string) (freed int64, remaining int64, err error) {
	if targetBytes < 0 {
		targetBytes = 0
	}

	entries, total, err := scanEntries(root)
	if err != nil {
		return 0, 0, err
	}

	remaining = total
	if remaining <= targetBytes {
		return 0, remaining, nil
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].modTime.Equal(entries[j].modTime) {
			return entries[i].path < entries[j].path
		}
		return entries[i].modTime.Before(entries[j].modTime)
	})

	for _, entry := range entries {
		if remaining <= targetBytes {
			break
		}
		if entry.path == keep {
			continue
		}
		if err := os.Remove(entry.path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				remaining -= entry.size
				continue
			}
			return freed, remaining, err
		}
		remaining -= entry.size
		freed += entry.size
	}

	return freed, remaining, nil
}

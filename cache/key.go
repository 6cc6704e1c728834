package cache

import "strconv"

// Key identifies a cached rendering of a resource.
//
// Two keys with the same URL and different variants are unrelated entries:
// a thumbnail never satisfies a full-resolution request or the reverse.
type Key struct {
	URL     string
	Variant string // empty for the original resolution
}

// NewKey returns the key for url rendered with its longer edge at most
// maxDim pixels. maxDim <= 0 selects the original resolution.
func NewKey(url string, maxDim int) Key {
	if maxDim <= 0 {
		return Key{URL: url}
	}
	return Key{URL: url, Variant: "max=" + strconv.Itoa(maxDim)}
}

// String returns a stable encoding of the key suitable for hashing.
// A newline cannot occur in a valid URL, so distinct keys never collide.
func (k Key) String() string {
	if k.Variant == "" {
		return k.URL
	}
	return k.URL + "\n" + k.Variant
}

package file

import (
	"context"
	"io"
	"strings"
	"time"
)

// Object describes a stored artifact.
type Object struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
}

// Storage keeps opaque artifacts under slash-separated keys.
type Storage interface {
	// Put writes the content of r under key, replacing any previous object.
	Put(ctx context.Context, key string, r io.Reader) (*Object, error)
	// Open returns the content stored under key. The caller closes it.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object under key. A missing object is ErrFileNotFound.
	Delete(ctx context.Context, key string) error
	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) bool
	// List returns the objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]Object, error)
}

// cleanKey normalizes a key and rejects traversal.
func cleanKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.ReplaceAll(key, "\\", "/"), "/")
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, "\x00") {
		return "", ErrInvalidPath
	}
	return key, nil
}

package file

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LocalStorage implements Storage on the local filesystem.
// All operations are confined to baseDir.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage creates a storage rooted at baseDir, creating it if needed.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		return nil, ErrInvalidConfig
	}

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to resolve base directory: %v", ErrFailedToGetAbsolutePath, err)
	}
	if err := os.MkdirAll(absBaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateDirectory, err)
	}
	return &LocalStorage{baseDir: absBaseDir}, nil
}

// Put writes to a temporary file next to the target and renames it into
// place, so readers never observe a partial artifact.
func (s *LocalStorage) Put(ctx context.Context, key string, r io.Reader) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	absPath, err := s.resolvePath(key)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToCreateDirectory, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".put-*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	written, err := io.Copy(tmp, contextReader{ctx: ctx, r: r})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}
	if err := os.Rename(tmp.Name(), absPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToWriteFile, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToStatPath, err)
	}
	return &Object{Key: s.relKey(absPath), Size: written, ModifiedAt: info.ModTime()}, nil
}

func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	absPath, err := s.resolvePath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}
	return f, nil
}

// Delete removes a single file. Directories are never removed.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	absPath, err := s.resolvePath(key)
	if err != nil {
		return err
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, key)
		}
		return fmt.Errorf("%w: %v", ErrFailedToStatPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s", ErrIsDirectory, key)
	}
	if err := os.Remove(absPath); err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToDeleteFile, err)
	}
	return nil
}

func (s *LocalStorage) Exists(ctx context.Context, key string) bool {
	if ctx.Err() != nil {
		return false
	}
	absPath, err := s.resolvePath(key)
	if err != nil {
		return false
	}
	info, err := os.Stat(absPath)
	return err == nil && !info.IsDir()
}

// List walks the tree below baseDir and returns files whose key has the
// given prefix, ordered by key.
func (s *LocalStorage) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}
		key := s.relKey(path)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, Object{Key: key, Size: info.Size(), ModifiedAt: info.ModTime()})
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadDirectory, err)
	}
	slices.SortFunc(out, func(a, b Object) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (s *LocalStorage) relKey(absPath string) string {
	rel, err := filepath.Rel(s.baseDir, absPath)
	if err != nil {
		return filepath.Base(absPath)
	}
	return filepath.ToSlash(rel)
}

// resolvePath validates key and resolves it within the base directory.
func (s *LocalStorage) resolvePath(key string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.FromSlash(key)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailedToGetAbsolutePath, err)
	}
	if !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, key)
	}
	return absPath, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const diskFileExt = ".cache"

// diskRecord is the on-disk representation of one entry.
type diskRecord struct {
	Key      string    `json:"key"`
	Value    []byte    `json:"value"`
	ExpireAt time.Time `json:"expire_at"`
}

// DiskTier stores one file per key under a directory. An in-memory index of
// key expiries is rebuilt from the directory when the tier is opened.
// Unreadable or corrupt files are removed and reported as absent.
type DiskTier struct {
	mu         sync.Mutex
	dir        string
	index      map[string]time.Time
	maxEntries int
	defaultTTL time.Duration
	now        func() time.Time
}

// DiskOption configures a DiskTier.
type DiskOption func(*DiskTier)

// WithDiskMaxEntries bounds the number of files kept.
func WithDiskMaxEntries(n int) DiskOption {
	return func(d *DiskTier) {
		if n > 0 {
			d.maxEntries = n
		}
	}
}

// WithDiskDefaultTTL sets the lifetime used when Set receives ttl <= 0.
func WithDiskDefaultTTL(ttl time.Duration) DiskOption {
	return func(d *DiskTier) {
		if ttl > 0 {
			d.defaultTTL = ttl
		}
	}
}

// WithDiskClock replaces time.Now.
func WithDiskClock(now func() time.Time) DiskOption {
	return func(d *DiskTier) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDiskTier opens (creating if needed) a disk tier rooted at dir.
func NewDiskTier(dir string, opts ...DiskOption) (*DiskTier, error) {
	if dir == "" {
		return nil, errors.Join(ErrDiskTier, errors.New("directory is required"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Join(ErrDiskTier, err)
	}

	d := &DiskTier{
		dir:        dir,
		index:      make(map[string]time.Time),
		maxEntries: 10000,
		defaultTTL: 5 * time.Minute,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}

	if err := d.loadIndex(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DiskTier) loadIndex() error {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		return errors.Join(ErrDiskTier, err)
	}

	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), diskFileExt) {
			continue
		}
		path := filepath.Join(d.dir, f.Name())
		rec, err := readDiskRecord(path)
		if err != nil || d.fileName(rec.Key) != f.Name() {
			_ = os.Remove(path)
			continue
		}
		d.index[rec.Key] = rec.ExpireAt
	}
	return nil
}

func (d *DiskTier) fileName(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:]) + diskFileExt
}

func (d *DiskTier) path(key string) string {
	return filepath.Join(d.dir, d.fileName(key))
}

func readDiskRecord(path string) (diskRecord, error) {
	var rec diskRecord
	data, err := os.ReadFile(path)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, errors.Join(ErrCorruptEntry, err)
	}
	if rec.Key == "" {
		return rec, ErrCorruptEntry
	}
	return rec, nil
}

func (d *DiskTier) Get(_ context.Context, key string) ([]byte, time.Time, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := d.path(key)
	rec, err := readDiskRecord(path)
	if err != nil {
		delete(d.index, key)
		if !errors.Is(err, os.ErrNotExist) {
			_ = os.Remove(path)
		}
		return nil, time.Time{}, false, nil
	}
	if rec.Key != key {
		return nil, time.Time{}, false, nil
	}
	if !d.now().Before(rec.ExpireAt) {
		d.removeLocked(key)
		return nil, time.Time{}, false, nil
	}

	d.index[key] = rec.ExpireAt
	return rec.Value, rec.ExpireAt, true, nil
}

func (d *DiskTier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrKeyRequired
	}
	if ttl <= 0 {
		ttl = d.defaultTTL
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	rec := diskRecord{Key: key, Value: value, ExpireAt: d.now().Add(ttl)}
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Join(ErrDiskTier, err)
	}

	tmp, err := os.CreateTemp(d.dir, "tmp-*")
	if err != nil {
		return errors.Join(ErrDiskTier, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Join(ErrDiskTier, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Join(ErrDiskTier, err)
	}
	if err := os.Rename(tmp.Name(), d.path(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Join(ErrDiskTier, err)
	}

	d.index[key] = rec.ExpireAt
	for len(d.index) > d.maxEntries {
		victim, ok := nearestExpiry(d.index, func(t time.Time) time.Time { return t })
		if !ok {
			break
		}
		d.removeLocked(victim)
	}
	return nil
}

func (d *DiskTier) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(key)
	return nil
}

func (d *DiskTier) removeLocked(key string) {
	delete(d.index, key)
	_ = os.Remove(d.path(key))
}

func (d *DiskTier) Sweep(_ context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	removed := 0
	for k, exp := range d.index {
		if !now.Before(exp) {
			d.removeLocked(k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of indexed entries.
func (d *DiskTier) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.index)
}

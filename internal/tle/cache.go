package tle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrNoCache is returned by LoadLatest when the cache directory holds no catalog.
var ErrNoCache = errors.New("no cached catalog")

// Snapshot files are named catalog-20240409T120000Z.tle.zst.
const (
	snapshotPrefix = "catalog-"
	snapshotSuffix = ".tle.zst"
	snapshotLayout = "20060102T150405Z"
)

// Cache keeps the most recent raw catalog downloads on disk, zstd-compressed,
// so a restart without network access still has a catalog.
type Cache struct {
	dir  string
	keep int
}

// NewCache returns a Cache in dir holding at most keep snapshots (default 5).
func NewCache(dir string, keep int) *Cache {
	if keep <= 0 {
		keep = 5
	}
	return &Cache{dir: dir, keep: keep}
}

type snapshot struct {
	path string
	at   time.Time
}

// Write stores data as the snapshot taken at ts and drops the oldest
// snapshots beyond the limit. The file appears atomically.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(c.dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	zw, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		tmp.Close()
		return fmt.Errorf("zstd writer: %w", err)
	}
	_, werr := zw.Write(data)
	if err := errors.Join(werr, zw.Close(), tmp.Close()); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	name := snapshotPrefix + ts.UTC().Format(snapshotLayout) + snapshotSuffix
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("committing cache file: %w", err)
	}
	return c.prune()
}

// LoadLatest returns the newest readable snapshot and the time it was taken.
// A corrupt snapshot is passed over in favor of the next older one.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	snaps, err := c.snapshots()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(snaps) == 0 {
		return nil, time.Time{}, ErrNoCache
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var errs []error
	for _, s := range snaps {
		raw, err := os.ReadFile(s.path)
		if err == nil {
			var data []byte
			if data, err = dec.DecodeAll(raw, nil); err == nil {
				return data, s.at, nil
			}
		}
		errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(s.path), err))
	}
	return nil, time.Time{}, fmt.Errorf("no readable cache file: %w", errors.Join(errs...))
}

// snapshots lists cache files newest first. A missing directory is empty.
func (c *Cache) snapshots() ([]snapshot, error) {
	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var snaps []snapshot
	for _, e := range entries {
		stamp, ok := strings.CutPrefix(e.Name(), snapshotPrefix)
		if !ok || e.IsDir() {
			continue
		}
		if stamp, ok = strings.CutSuffix(stamp, snapshotSuffix); !ok {
			continue
		}
		at, err := time.Parse(snapshotLayout, stamp)
		if err != nil {
			continue
		}
		snaps = append(snaps, snapshot{path: filepath.Join(c.dir, e.Name()), at: at})
	}
	slices.SortFunc(snaps, func(a, b snapshot) int { return b.at.Compare(a.at) })
	return snaps, nil
}

func (c *Cache) prune() error {
	snaps, err := c.snapshots()
	if err != nil || len(snaps) <= c.keep {
		return err
	}
	var errs []error
	for _, s := range snaps[c.keep:] {
		if err := os.Remove(s.path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}
	return nil
}

package tle

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestCacheKeepsNewest(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	base := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		data := []byte(catalogText(issRecord) + string(rune('a'+i)))
		if err := c.Write(data, base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("Write %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("cache holds %d files, want 2", len(entries))
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if !ts.Equal(base.Add(3 * time.Minute)) {
		t.Errorf("ts = %v, want %v", ts, base.Add(3*time.Minute))
	}
	if want := catalogText(issRecord) + "d"; string(data) != want {
		t.Errorf("data = %q", data)
	}
}

func TestCacheSkipsCorruptSnapshot(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 5)
	good := time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	if err := c.Write([]byte(catalogText(starlinkRecord)), good); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "catalog-20240410T000000Z.tle.zst")
	if err := os.WriteFile(bad, []byte("not zstd"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Unrelated files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	data, ts, err := c.LoadLatest()
	if err != nil {
		t.Fatalf("LoadLatest: %v", err)
	}
	if !ts.Equal(good) || string(data) != catalogText(starlinkRecord) {
		t.Errorf("loaded %v %q", ts, data)
	}

	if err := os.Remove(filepath.Join(dir, "catalog-20240409T120000Z.tle.zst")); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.LoadLatest(); err == nil || errors.Is(err, ErrNoCache) {
		t.Errorf("only corrupt snapshot left: err = %v", err)
	}
}

func TestCacheLoadLatestEmpty(t *testing.T) {
	c := NewCache(filepath.Join(t.TempDir(), "missing"), 0)
	if _, _, err := c.LoadLatest(); !errors.Is(err, ErrNoCache) {
		t.Errorf("err = %v, want ErrNoCache", err)
	}
}

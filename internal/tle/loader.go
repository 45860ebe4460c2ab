package tle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/star/orbitrisk/internal/metrics"
)

// Loader moves catalogs from upstream or the disk cache into the Store.
type Loader struct {
	store   *Store
	fetcher *Fetcher
	cache   *Cache
	logger  *slog.Logger
}

// NewLoader creates a Loader. fetcher and cache may be nil when fetching or
// on-disk caching is disabled.
func NewLoader(store *Store, fetcher *Fetcher, cache *Cache, logger *slog.Logger) *Loader {
	return &Loader{store: store, fetcher: fetcher, cache: cache, logger: logger}
}

// Store returns the store the loader writes to.
func (l *Loader) Store() *Store { return l.store }

// FetchEnabled reports whether upstream fetching is configured.
func (l *Loader) FetchEnabled() bool { return l.fetcher != nil }

// LoadCached loads the newest on-disk catalog into the store.
func (l *Loader) LoadCached() (*Catalog, error) {
	if l.cache == nil {
		return nil, ErrNoCache
	}
	data, ts, err := l.cache.LoadLatest()
	if err != nil {
		return nil, err
	}
	cat, err := l.ingest("cache", ts, data)
	if err != nil {
		return nil, err
	}
	l.logger.Info("loaded TLE data from cache", "count", len(cat.Sets), "cached_at", ts.Format(time.RFC3339))
	return cat, nil
}

// Refresh fetches the upstream catalog, caches the raw body and replaces the
// stored catalog. Concurrent refreshes are serialized.
func (l *Loader) Refresh(ctx context.Context) (*Catalog, error) {
	if l.fetcher == nil {
		return nil, errors.New("TLE fetching is disabled")
	}
	l.store.Lock()
	defer l.store.Unlock()

	data, err := l.fetcher.Fetch(ctx)
	if err != nil {
		metrics.RecordUpstreamFetch("error")
		return nil, err
	}
	metrics.RecordUpstreamFetch("ok")

	now := time.Now().UTC()
	cat, err := l.ingest(l.fetcher.SourceURL(), now, data)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.Write(data, now); err != nil {
			l.logger.Warn("failed to write TLE cache", "error", err)
		}
	}
	l.logger.Info("fetched TLE data", "source", cat.Source, "count", len(cat.Sets), "skipped", cat.Skipped)
	return cat, nil
}

// Ingest parses raw catalog text supplied by a caller and stores it.
func (l *Loader) Ingest(source string, data []byte) (*Catalog, error) {
	return l.ingest(source, time.Now().UTC(), data)
}

func (l *Loader) ingest(source string, ts time.Time, data []byte) (*Catalog, error) {
	res, err := ParseCatalog(bytes.NewReader(data), l.logger)
	if err != nil {
		return nil, err
	}
	metrics.AddParseSkips(len(res.Skipped))
	if len(res.Sets) == 0 {
		return nil, fmt.Errorf("no valid element sets in %d groups", res.Groups)
	}
	cat := NewCatalog(source, ts, res)
	l.store.Set(cat)
	metrics.SetCatalogSize(len(cat.Sets))
	return cat, nil
}

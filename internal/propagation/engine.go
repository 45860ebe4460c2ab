package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/tle"
)

// ErrNoCatalog is returned when no catalog has been loaded into the store.
var ErrNoCatalog = errors.New("no TLE catalog loaded")

// modelSet holds initialized propagators for one catalog.
// Immutable after construction; safe for concurrent reads.
type modelSet struct {
	props     []Propagator
	byID      map[int]Propagator
	fetchedAt time.Time
}

// Engine propagates the stored catalog as a whole.
type Engine struct {
	store    *tle.Store
	registry *Registry
	pool     *WorkerPool
	logger   *slog.Logger
	models   atomic.Pointer[modelSet]
	modelsMu sync.Mutex // serializes rebuilds
}

// NewEngine creates a catalog propagation engine.
func NewEngine(store *tle.Store, registry *Registry, pool *WorkerPool, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		registry: registry,
		pool:     pool,
		logger:   logger,
	}
}

// Registry returns the engine's propagator registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Pool returns the engine's worker pool.
func (e *Engine) Pool() *WorkerPool { return e.pool }

// catalogModels returns initialized propagators for the catalog, rebuilding
// them when the catalog has changed (double-checked locking).
func (e *Engine) catalogModels(cat *tle.Catalog) *modelSet {
	if m := e.models.Load(); m != nil && m.fetchedAt.Equal(cat.FetchedAt) {
		return m
	}

	e.modelsMu.Lock()
	defer e.modelsMu.Unlock()

	if m := e.models.Load(); m != nil && m.fetchedAt.Equal(cat.FetchedAt) {
		return m
	}

	set := &modelSet{byID: make(map[int]Propagator, len(cat.Sets)), fetchedAt: cat.FetchedAt}
	var skipped int
	for _, es := range cat.Sets {
		if _, ok := set.byID[es.CatalogID]; ok {
			continue
		}
		p, err := e.registry.Get(es)
		if err != nil {
			e.logger.Warn("propagator init failed", "catalog_id", es.CatalogID, "error", err)
			skipped++
			continue
		}
		set.byID[es.CatalogID] = p
		set.props = append(set.props, p)
	}

	e.logger.Info("propagator set rebuilt",
		"cached", len(set.props),
		"skipped", skipped,
		"catalog_fetched_at", cat.FetchedAt.UTC().Format(time.RFC3339),
	)
	e.models.Store(set)
	return set
}

// PropagateToTime returns the ECEF positions of the whole catalog at targetTime.
func (e *Engine) PropagateToTime(ctx context.Context, targetTime time.Time) (*Snapshot, error) {
	cat := e.store.Get()
	if cat == nil {
		return nil, ErrNoCatalog
	}
	set := e.catalogModels(cat)

	e.logger.Debug("propagating",
		"satellite_count", len(set.props),
		"target_time", targetTime.UTC().Format(time.RFC3339),
		"workers", e.pool.Workers(),
	)

	start := time.Now()
	positions, successCount, errorCount := e.pool.PropagateBatch(ctx, set.props, targetTime)
	duration := time.Since(start)
	metrics.RecordPropagation(duration, successCount, errorCount)

	e.logger.Debug("propagation complete",
		"success", successCount,
		"errors", errorCount,
		"duration_ms", duration.Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Snapshot{
		Timestamp:  targetTime,
		Satellites: positions,
		Failed:     errorCount,
	}, nil
}

// Track propagates one catalog member over count samples spaced by step.
func (e *Engine) Track(ctx context.Context, id int, start time.Time, step time.Duration, count int) ([]StateVector, error) {
	p, err := e.Propagator(id)
	if err != nil {
		return nil, err
	}

	states := make([]StateVector, 0, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return states, err
		}
		sv, err := p.Propagate(start.Add(time.Duration(i) * step))
		if err != nil {
			return states, err
		}
		states = append(states, sv)
	}
	return states, nil
}

// Propagator returns the initialised model of a stored catalog member.
func (e *Engine) Propagator(id int) (Propagator, error) {
	cat := e.store.Get()
	if cat == nil {
		return nil, ErrNoCatalog
	}
	if p, ok := e.catalogModels(cat).byID[id]; ok {
		return p, nil
	}
	if _, known := cat.Lookup(id); known {
		return nil, fmt.Errorf("catalog id %d: %w", id, ErrNoPropagator)
	}
	return nil, fmt.Errorf("catalog id %d: %w", id, ErrUnknownSatellite)
}

var (
	// ErrUnknownSatellite is returned for catalog ids not in the stored catalog.
	ErrUnknownSatellite = errors.New("satellite not in catalog")

	// ErrNoPropagator is returned for catalog members whose elements could not
	// initialise a model.
	ErrNoPropagator = errors.New("no usable propagator")
)

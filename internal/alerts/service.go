package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/tle"
)

// ErrNoCatalog is returned by Refresh before any catalog is loaded.
var ErrNoCatalog = errors.New("no catalog loaded")

// Screener runs a conjunction screening over a set of satellites.
type Screener interface {
	Screen(ctx context.Context, sets []tle.ElementSet, opts screening.Options) (*screening.Result, error)
}

// Recorder persists screening runs.
type Recorder interface {
	InsertRun(ctx context.Context, source string, res *screening.Result) (uuid.UUID, error)
	Prune(ctx context.Context, keep int) (int, error)
}

// Config holds alert feed configuration.
type Config struct {
	Interval    time.Duration // full refresh cadence (default: 10m)
	Poll        time.Duration // catalog change check cadence (default: 5s)
	Horizon     time.Duration // screening window (default: 24h)
	Step        time.Duration // screening sample step (default: 60s)
	ThresholdKm float64       // alert threshold (default: 5)
	Limit       int           // feed size (default: 10)
	KeepRuns    int           // recorded runs kept; 0 keeps all
}

// Snapshot is the latest computed alert state.
type Snapshot struct {
	RunID            uuid.UUID
	CatalogFetchedAt time.Time
	Result           *screening.Result
	Feed             Feed
}

// Service keeps the alert feed current. Reads never block on a refresh.
type Service struct {
	config   Config
	screener Screener
	store    *tle.Store
	recorder Recorder
	logger   *slog.Logger

	latest atomic.Pointer[Snapshot]

	// Serialises refreshes and guards the attempt bookkeeping. A failed
	// attempt counts, so a catalog that cannot be screened is retried on
	// Interval rather than on every Poll.
	mu                 sync.Mutex
	attemptedFetchedAt time.Time
	lastAttempt        time.Time
}

// NewService creates an alert service. recorder may be nil.
func NewService(config Config, screener Screener, store *tle.Store, recorder Recorder, logger *slog.Logger) *Service {
	if config.Poll <= 0 {
		config.Poll = 5 * time.Second
	}
	if config.Interval <= 0 {
		config.Interval = 10 * time.Minute
	}

	logger.Info("alert service initialized",
		"interval_seconds", config.Interval.Seconds(),
		"horizon_seconds", config.Horizon.Seconds(),
		"step_seconds", config.Step.Seconds(),
		"threshold_km", config.ThresholdKm,
		"history", recorder != nil,
	)

	return &Service{
		config:   config,
		screener: screener,
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

// Latest returns the most recent snapshot, or nil before the first refresh.
func (s *Service) Latest() *Snapshot {
	return s.latest.Load()
}

// Feed returns the current feed; it is empty until the first refresh.
func (s *Service) Feed() Feed {
	if snap := s.latest.Load(); snap != nil {
		return snap.Feed
	}
	return Feed{Alerts: []Alert{}}
}

// Start runs the refresh loop. It waits for a catalog, refreshes once, then
// refreshes on every Interval and whenever the catalog changes. Blocks until
// ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	if !s.waitForCatalog(ctx) {
		return
	}
	s.refreshAndLog(ctx, "warmup")

	ticker := time.NewTicker(s.config.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alert service stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) waitForCatalog(ctx context.Context) bool {
	if s.store.Get() != nil {
		return true
	}

	s.logger.Info("alert service waiting for catalog")
	ticker := time.NewTicker(s.config.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if s.store.Get() != nil {
				return true
			}
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if s.catalogChanged() {
		metrics.IncCatalogCutovers()
		s.refreshAndLog(ctx, "cutover")
		return
	}
	s.mu.Lock()
	due := time.Since(s.lastAttempt) >= s.config.Interval
	s.mu.Unlock()
	if due {
		s.refreshAndLog(ctx, "interval")
	}
}

// catalogChanged reports whether the stored catalog differs from the one the
// last refresh attempt screened.
func (s *Service) catalogChanged() bool {
	cat := s.store.Get()
	if cat == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !cat.FetchedAt.Equal(s.attemptedFetchedAt)
}

func (s *Service) refreshAndLog(ctx context.Context, reason string) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		metrics.IncAlertRefreshErrors()
		s.logger.Warn("alert refresh failed", "reason", reason, "error", err)
	}
}

// Refresh screens the stored catalog from now over the configured window and
// publishes the result. The previous snapshot keeps serving until the new one
// is swapped in.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cat := s.store.Get()
	if cat == nil {
		return nil, ErrNoCatalog
	}
	s.attemptedFetchedAt = cat.FetchedAt
	s.lastAttempt = time.Now()

	start := time.Now().UTC().Truncate(time.Second)
	res, err := s.screener.Screen(ctx, cat.Sets, screening.Options{
		Start:       start,
		Horizon:     s.config.Horizon,
		Step:        s.config.Step,
		ThresholdKm: s.config.ThresholdKm,
	})
	if err != nil {
		return nil, err
	}
	// A cancelled run is not published over a complete one.
	if res.Partial && s.latest.Load() != nil {
		return nil, ctx.Err()
	}

	snap := &Snapshot{
		CatalogFetchedAt: cat.FetchedAt,
		Result:           res,
		Feed:             NewFeed(res.Events, s.config.Limit),
	}
	snap.Feed.GeneratedAt = start
	snap.Feed.Partial = res.Partial

	if s.recorder != nil && !res.Partial {
		snap.RunID = s.record(ctx, res)
	}

	s.latest.Store(snap)

	s.logger.Info("alert feed refreshed",
		"run_id", snap.RunID,
		"satellites", res.Satellites,
		"pairs_screened", res.PairsScreened,
		"events", len(res.Events),
		"excluded", len(res.Excluded),
		"duration_ms", res.Duration.Milliseconds(),
	)
	return snap, nil
}

func (s *Service) record(ctx context.Context, res *screening.Result) uuid.UUID {
	id, err := s.recorder.InsertRun(ctx, "alerts", res)
	if err != nil {
		s.logger.Warn("recording screening run failed", "error", err)
		return uuid.Nil
	}
	if s.config.KeepRuns > 0 {
		if removed, err := s.recorder.Prune(ctx, s.config.KeepRuns); err != nil {
			s.logger.Warn("pruning screening history failed", "error", err)
		} else if removed > 0 {
			s.logger.Debug("pruned screening history", "removed", removed)
		}
	}
	return id
}

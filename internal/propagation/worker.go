package propagation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/star/orbitrisk/internal/transform"
)

// WorkerPool manages a fixed number of goroutines for parallel propagation.
type WorkerPool struct {
	workers int
	logger  *slog.Logger
}

// NewWorkerPool creates a worker pool with the given number of workers.
func NewWorkerPool(workers int, logger *slog.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		workers: workers,
		logger:  logger,
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int { return wp.workers }

// run executes work for indices 0..n-1 on the pool and streams the results.
// Feeding stops when ctx is cancelled; the channel closes once every
// started job has reported.
func run[T any](ctx context.Context, workers, n int, work func(i int) T) <-chan T {
	jobs := make(chan int, workers*2)
	results := make(chan T, workers*2)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				result := work(i)
				select {
				case results <- result:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}

type snapshotResult struct {
	position SatellitePosition
	err      error
	id       int
}

// PropagateBatch propagates every model to targetTime and converts the
// states to ECEF. Failed satellites are logged and skipped.
func (wp *WorkerPool) PropagateBatch(ctx context.Context, props []Propagator, targetTime time.Time) ([]SatellitePosition, int, int) {
	if len(props) == 0 {
		return nil, 0, 0
	}

	rot := transform.RotationAt(targetTime)

	results := run(ctx, wp.workers, len(props), func(i int) snapshotResult {
		p := props[i]
		sv, err := p.Propagate(targetTime)
		if err != nil {
			return snapshotResult{id: p.CatalogID(), err: err}
		}
		ecef := rot.ToECEF(sv.TEME())
		return snapshotResult{
			id: p.CatalogID(),
			position: SatellitePosition{
				CatalogID:    p.CatalogID(),
				PositionECEF: [3]float64{ecef.X, ecef.Y, ecef.Z},
				VelocityECEF: [3]float64{ecef.VX, ecef.VY, ecef.VZ},
			},
		}
	})

	positions := make([]SatellitePosition, 0, len(props))
	var successCount, errorCount int
	for result := range results {
		if result.err != nil {
			errorCount++
			wp.logger.Warn("propagation failed", "catalog_id", result.id, "error", result.err)
			continue
		}
		successCount++
		positions = append(positions, result.position)
	}
	return positions, successCount, errorCount
}

// Trajectory is one satellite's states over a sample grid. States is nil
// when Err is set.
type Trajectory struct {
	Index  int
	States []StateVector
	Err    error
}

// SampleTrajectories evaluates every model at every time in times. Work is
// partitioned by satellite; a satellite's sampling stops at its first
// failure. Trajectories for satellites not reached before ctx is cancelled
// are absent from the result.
func (wp *WorkerPool) SampleTrajectories(ctx context.Context, props []Propagator, times []time.Time) []Trajectory {
	results := run(ctx, wp.workers, len(props), func(i int) Trajectory {
		states := make([]StateVector, len(times))
		for k, t := range times {
			if k%64 == 0 && ctx.Err() != nil {
				return Trajectory{Index: i, Err: ctx.Err()}
			}
			sv, err := props[i].Propagate(t)
			if err != nil {
				return Trajectory{Index: i, Err: err}
			}
			states[k] = sv
		}
		return Trajectory{Index: i, States: states}
	})

	out := make([]Trajectory, 0, len(props))
	for tr := range results {
		out = append(out, tr)
	}
	return out
}

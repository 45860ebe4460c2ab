// Package history records screening runs and their conjunction events in a
// SQLite database so past alert snapshots can be listed and replayed.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/star/orbitrisk/internal/screening"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("screening run not found")

// Run summarises one recorded screening run.
type Run struct {
	ID               uuid.UUID     `json:"id"`
	RecordedAt       time.Time     `json:"recorded_at"`
	Source           string        `json:"source"`
	Start            time.Time     `json:"start"`
	Horizon          time.Duration `json:"horizon_ns"`
	Step             time.Duration `json:"step_ns"`
	ThresholdKm      float64       `json:"threshold_km"`
	Satellites       int           `json:"satellites"`
	PairsScreened    int           `json:"pairs_screened"`
	PairsPrefiltered int           `json:"pairs_prefiltered"`
	Excluded         int           `json:"excluded"`
	Partial          bool          `json:"partial"`
	Duration         time.Duration `json:"duration_ns"`
	EventCount       int           `json:"event_count"`
}

type dbRun struct {
	ID               uuid.UUID `db:"id"`
	RecordedAt       int64     `db:"recorded_at"`
	Source           string    `db:"source"`
	WindowStart      int64     `db:"window_start"`
	HorizonNs        int64     `db:"horizon_ns"`
	StepNs           int64     `db:"step_ns"`
	ThresholdKm      float64   `db:"threshold_km"`
	Satellites       int       `db:"satellites"`
	PairsScreened    int       `db:"pairs_screened"`
	PairsPrefiltered int       `db:"pairs_prefiltered"`
	Excluded         int       `db:"excluded"`
	Partial          bool      `db:"partial"`
	DurationNs       int64     `db:"duration_ns"`
	EventCount       int       `db:"event_count"`
}

type dbEvent struct {
	RunID      uuid.UUID `db:"run_id"`
	Seq        int       `db:"seq"`
	A          int       `db:"a_id"`
	B          int       `db:"b_id"`
	NameA      string    `db:"a_name"`
	NameB      string    `db:"b_name"`
	TCA        int64     `db:"tca"`
	DistanceKm float64   `db:"distance_km"`
	RelVelKmS  float64   `db:"relative_velocity_km_s"`
}

func (r *dbRun) toRun() Run {
	return Run{
		ID:               r.ID,
		RecordedAt:       time.Unix(0, r.RecordedAt).UTC(),
		Source:           r.Source,
		Start:            time.Unix(0, r.WindowStart).UTC(),
		Horizon:          time.Duration(r.HorizonNs),
		Step:             time.Duration(r.StepNs),
		ThresholdKm:      r.ThresholdKm,
		Satellites:       r.Satellites,
		PairsScreened:    r.PairsScreened,
		PairsPrefiltered: r.PairsPrefiltered,
		Excluded:         r.Excluded,
		Partial:          r.Partial,
		Duration:         time.Duration(r.DurationNs),
		EventCount:       r.EventCount,
	}
}

func (e *dbEvent) toEvent() screening.Event {
	return screening.Event{
		A:                   e.A,
		B:                   e.B,
		NameA:               e.NameA,
		NameB:               e.NameB,
		TCA:                 time.Unix(0, e.TCA).UTC(),
		MissDistanceKm:      e.DistanceKm,
		RelativeVelocityKmS: e.RelVelKmS,
	}
}

// Store persists screening runs.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at path and applies pending
// migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to history db: %w", err)
	}

	db.SetMaxOpenConns(1)

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing history db: %w", err)
	}
	return nil
}

// InsertRun records a screening result and its events in one transaction and
// returns the new run id.
func (s *Store) InsertRun(ctx context.Context, source string, res *screening.Result) (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generating run id: %w", err)
	}

	run := dbRun{
		ID:               id,
		RecordedAt:       time.Now().UnixNano(),
		Source:           source,
		WindowStart:      res.Start.UnixNano(),
		HorizonNs:        int64(res.Horizon),
		StepNs:           int64(res.Step),
		ThresholdKm:      res.ThresholdKm,
		Satellites:       res.Satellites,
		PairsScreened:    res.PairsScreened,
		PairsPrefiltered: res.PairsPrefiltered,
		Excluded:         len(res.Excluded),
		Partial:          res.Partial,
		DurationNs:       int64(res.Duration),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("beginning run insert: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO runs(id, recorded_at, source, window_start, horizon_ns, step_ns, threshold_km,
			  satellites, pairs_screened, pairs_prefiltered, excluded, partial, duration_ns)
			  VALUES(:id, :recorded_at, :source, :window_start, :horizon_ns, :step_ns, :threshold_km,
			  :satellites, :pairs_screened, :pairs_prefiltered, :excluded, :partial, :duration_ns)`
	if _, err := tx.NamedExecContext(ctx, query, &run); err != nil {
		return uuid.Nil, fmt.Errorf("inserting run %s: %w", id, err)
	}

	eventQuery := `INSERT INTO run_events(run_id, seq, a_id, b_id, a_name, b_name, tca, distance_km, relative_velocity_km_s)
				   VALUES(:run_id, :seq, :a_id, :b_id, :a_name, :b_name, :tca, :distance_km, :relative_velocity_km_s)`
	for i, ev := range res.Events {
		row := dbEvent{
			RunID:      id,
			Seq:        i,
			A:          ev.A,
			B:          ev.B,
			NameA:      ev.NameA,
			NameB:      ev.NameB,
			TCA:        ev.TCA.UnixNano(),
			DistanceKm: ev.MissDistanceKm,
			RelVelKmS:  ev.RelativeVelocityKmS,
		}
		if _, err := tx.NamedExecContext(ctx, eventQuery, &row); err != nil {
			return uuid.Nil, fmt.Errorf("inserting event %d of run %s: %w", i, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("committing run %s: %w", id, err)
	}
	return id, nil
}

const runColumns = `r.id, r.recorded_at, r.source, r.window_start, r.horizon_ns, r.step_ns, r.threshold_km,
			  r.satellites, r.pairs_screened, r.pairs_prefiltered, r.excluded, r.partial, r.duration_ns,
			  (SELECT COUNT(*) FROM run_events e WHERE e.run_id = r.id) AS event_count`

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []dbRun
	query := `SELECT ` + runColumns + `
			  FROM runs r
			  ORDER BY r.recorded_at DESC, r.id DESC
			  LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs := make([]Run, len(rows))
	for i := range rows {
		runs[i] = rows[i].toRun()
	}
	return runs, nil
}

// Run returns a recorded run and its events in their original order.
func (s *Store) Run(ctx context.Context, id uuid.UUID) (*Run, []screening.Event, error) {
	var row dbRun
	query := `SELECT ` + runColumns + `
			  FROM runs r
			  WHERE r.id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("getting run %s: %w", id, err)
	}

	var rows []dbEvent
	eventQuery := `SELECT run_id, seq, a_id, b_id, a_name, b_name, tca, distance_km, relative_velocity_km_s
				   FROM run_events
				   WHERE run_id = ?
				   ORDER BY seq ASC`
	if err := s.db.SelectContext(ctx, &rows, eventQuery, id); err != nil {
		return nil, nil, fmt.Errorf("getting events of run %s: %w", id, err)
	}

	run := row.toRun()
	events := make([]screening.Event, len(rows))
	for i := range rows {
		events[i] = rows[i].toEvent()
	}
	return &run, events, nil
}

// Prune deletes all but the newest keep runs and returns how many were
// removed. Events go with their run.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	query := `DELETE FROM runs
			  WHERE id NOT IN (SELECT id FROM runs ORDER BY recorded_at DESC, id DESC LIMIT ?)`
	result, err := s.db.ExecContext(ctx, query, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking pruned runs: %w", err)
	}
	return int(n), nil
}

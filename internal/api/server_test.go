package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/star/orbitrisk/internal/alerts"
	"github.com/star/orbitrisk/internal/auth"
	"github.com/star/orbitrisk/internal/ephemeris"
	"github.com/star/orbitrisk/internal/history"
	"github.com/star/orbitrisk/internal/logging"
	"github.com/star/orbitrisk/internal/passes"
	"github.com/star/orbitrisk/internal/propagation"
	"github.com/star/orbitrisk/internal/screening"
	"github.com/star/orbitrisk/internal/stream"
	"github.com/star/orbitrisk/internal/tle"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"

	starlinkLine1 = "1 44713U 19074A   24100.50000000  .00001000  00000-0  10000-4 0  9995"
	starlinkLine2 = "2 44713  53.0000 200.0000 0001500  90.0000 270.0000 15.06000000    05"

	testToken = "s3cret"
)

var (
	testEpoch   = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)
	catalogText = "ISS (ZARYA)\n" + issLine1 + "\n" + issLine2 + "\nSTARLINK-1007\n" + starlinkLine1 + "\n" + starlinkLine2 + "\n"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type testEnv struct {
	srv     *Server
	store   *tle.Store
	alerts  *alerts.Service
	history *history.Store
}

type envOption func(*Config, *Deps)

func withoutHistory() envOption {
	return func(_ *Config, d *Deps) { d.History = nil }
}

func withFetcher(url string) envOption {
	return func(_ *Config, d *Deps) {
		d.Loader = tle.NewLoader(d.Loader.Store(), tle.NewFetcher(url, testLogger()), nil, testLogger())
	}
}

func withBudget(n int64) envOption {
	return func(c *Config, _ *Deps) { c.ScreenBudget = n }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := testLogger()
	store := tle.NewStore()

	registry := propagation.NewRegistry(propagation.BackendAuto, 1024, time.Hour)
	pool := propagation.NewWorkerPool(2, logger)
	engine := propagation.NewEngine(store, registry, pool, logger)
	screener := screening.New(registry, pool, screening.Config{MaxSamples: 2000}, logger)

	hist, err := history.Open(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { hist.Close() })

	cfg := Config{
		Auth:            auth.Config{Token: testToken},
		MaxScreensPerIP: 1,
		ScreenBudget:    1_000_000,
		ScreenTimeout:   30 * time.Second,
		ScreenDefaults: screening.Options{
			Horizon:     time.Hour,
			Step:        time.Minute,
			ThresholdKm: 10,
		},
	}
	deps := Deps{
		Loader:    tle.NewLoader(store, nil, nil, logger),
		Engine:    engine,
		Screener:  screener,
		Ephemeris: ephemeris.NewBuilder(engine, store, 500),
		Passes:    passes.NewPredictor(engine, 2),
		History:   hist,
	}
	for _, opt := range opts {
		opt(&cfg, &deps)
	}

	var recorder alerts.Recorder
	if deps.History != nil {
		recorder = deps.History
	}
	deps.Alerts = alerts.NewService(alerts.Config{
		Horizon:     2 * time.Hour,
		Step:        time.Minute,
		ThresholdKm: 10,
		Limit:       10,
	}, screener, store, recorder, logger)
	deps.Stream = stream.NewHandler(deps.Alerts, store, stream.Config{}, logger)

	return &testEnv{
		srv:     NewServer(cfg, deps, logger),
		store:   store,
		alerts:  deps.Alerts,
		history: deps.History,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

// loadPair stores two drag-free satellites sharing one orbit about 5 km
// apart, plus an unrelated Starlink.
func (e *testEnv) loadPair(t *testing.T) {
	t.Helper()
	res, err := tle.ParseCatalog(strings.NewReader(catalogText), testLogger())
	if err != nil || len(res.Sets) != 2 {
		t.Fatalf("parse: %v", err)
	}
	a := res.Sets[0]
	a.BStar, a.MeanMotionDot = 0, 0
	a.CatalogID, a.Name = 90001, "SAT-A"
	b := a
	b.CatalogID, b.Name = 90002, "SAT-B"
	b.MeanAnomalyDeg = 0.0423

	res.Sets = []tle.ElementSet{a, b, res.Sets[1]}
	e.store.Set(tle.NewCatalog("test", testEpoch, res))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestProbesAndCatalogUpload(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Errorf("healthz = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before catalog = %d, want 503", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/catalog", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("catalog before upload = %d, want 503", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/catalog", catalogText)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("upload without token = %d, want 401", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/catalog", catalogText, "Authorization", "Bearer "+testToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[catalogResponse](t, rec)
	if got.Source != "upload" || got.Count != 2 || got.Groups != 2 || got.Skipped != 0 {
		t.Errorf("upload response = %+v", got)
	}
	if !got.EpochRange.Min.Equal(testEpoch) || !got.EpochRange.Max.Equal(testEpoch) {
		t.Errorf("epoch range = %+v", got.EpochRange)
	}

	if rec := env.do(t, http.MethodGet, "/readyz", ""); rec.Code != http.StatusOK {
		t.Errorf("readyz after catalog = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/catalog", ""); rec.Code != http.StatusOK {
		t.Errorf("catalog = %d", rec.Code)
	}
}

func TestCatalogUploadRejectsGarbage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/catalog", "not\na\ncatalog\n", "Authorization", "Bearer "+testToken)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if env.store.Get() != nil {
		t.Error("garbage upload replaced the catalog")
	}
}

func TestCatalogFetch(t *testing.T) {
	auth := []string{"Authorization", "Bearer " + testToken}

	t.Run("disabled", func(t *testing.T) {
		env := newTestEnv(t)
		if rec := env.do(t, http.MethodPost, "/api/v1/catalog/fetch", "", auth...); rec.Code != http.StatusConflict {
			t.Errorf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer upstream.Close()

		env := newTestEnv(t, withFetcher(upstream.URL))
		rec := env.do(t, http.MethodPost, "/api/v1/catalog/fetch", "", auth...)
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", rec.Code)
		}
		if body := decode[errorBody](t, rec); body.UpstreamStatus != http.StatusServiceUnavailable {
			t.Errorf("upstream_status = %d", body.UpstreamStatus)
		}
	})

	t.Run("ok", func(t *testing.T) {
		upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(catalogText))
		}))
		defer upstream.Close()

		env := newTestEnv(t, withFetcher(upstream.URL))
		rec := env.do(t, http.MethodPost, "/api/v1/catalog/fetch", "", auth...)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
		}
		if got := decode[catalogResponse](t, rec); got.Count != 2 || got.Source != upstream.URL {
			t.Errorf("response = %+v", got)
		}
	})
}

func TestScreenRecordsRun(t *testing.T) {
	env := newTestEnv(t)
	env.loadPair(t)

	body := `{"start":"2024-04-09T12:00:00Z","horizon_seconds":7200,"step_seconds":60,"threshold_km":10,"record":true}`
	rec := env.do(t, http.MethodPost, "/api/v1/screen", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[screenResponse](t, rec)
	if got.Satellites != 3 || got.Samples != 121 || got.Partial {
		t.Errorf("summary = %+v", got)
	}
	if len(got.Events) != 1 || got.Events[0].A != 90001 || got.Events[0].B != 90002 {
		t.Fatalf("events = %+v", got.Events)
	}
	if got.Excluded == nil {
		t.Error("excluded should be an empty list")
	}
	runID, err := uuid.Parse(got.RunID)
	if err != nil {
		t.Fatalf("run_id %q: %v", got.RunID, err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/history/runs", "")
	runs := decode[map[string][]history.Run](t, rec)["runs"]
	if len(runs) != 1 || runs[0].ID != runID || runs[0].Source != "api" || runs[0].EventCount != 1 {
		t.Errorf("runs = %+v", runs)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/history/runs/"+runID.String(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("run = %d", rec.Code)
	}
	run := decode[runResponse](t, rec)
	if len(run.Events) != 1 || run.Events[0].MissDistanceKm != got.Events[0].MissDistanceKm {
		t.Errorf("stored events = %+v", run.Events)
	}
}

func TestScreenSubset(t *testing.T) {
	env := newTestEnv(t)
	env.loadPair(t)

	rec := env.do(t, http.MethodPost, "/api/v1/screen", `{"start":"2024-04-09T12:00:00Z","catalog_ids":[90001,44713]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[screenResponse](t, rec)
	if got.Satellites != 2 || len(got.Events) != 0 || got.RunID != "" {
		t.Errorf("response = %+v", got)
	}
	if got.HorizonSeconds != 3600 || got.StepSeconds != 60 || got.ThresholdKm != 10 {
		t.Errorf("defaults not applied: %+v", got)
	}
}

func TestScreenRejects(t *testing.T) {
	tests := []struct {
		name string
		opts []envOption
		load bool
		body string
		want int
	}{
		{"malformed body", nil, true, `{"step_seconds":`, http.StatusBadRequest},
		{"zero step", nil, true, `{"step_seconds":0}`, http.StatusBadRequest},
		{"negative threshold", nil, true, `{"threshold_km":-1}`, http.StatusBadRequest},
		{"too many samples", nil, true, `{"horizon_seconds":864000,"step_seconds":1}`, http.StatusBadRequest},
		{"unknown id", nil, true, `{"catalog_ids":[1]}`, http.StatusNotFound},
		{"no catalog", nil, false, `{}`, http.StatusServiceUnavailable},
		{"over budget", []envOption{withBudget(100)}, true, `{"horizon_seconds":7200}`, http.StatusUnprocessableEntity},
		{"record without history", []envOption{withoutHistory()}, true, `{"record":true}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.opts...)
			if tt.load {
				env.loadPair(t)
			}
			rec := env.do(t, http.MethodPost, "/api/v1/screen", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if !strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
				t.Errorf("content type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestScreenConcurrencyLimit(t *testing.T) {
	env := newTestEnv(t)
	env.loadPair(t)

	// httptest requests come from 192.0.2.1.
	if !env.srv.screens.Acquire("192.0.2.1") {
		t.Fatal("could not take the only slot")
	}
	rec := env.do(t, http.MethodPost, "/api/v1/screen", `{}`)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Errorf("status = %d retry-after = %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	env.srv.screens.Release("192.0.2.1")
	if rec := env.do(t, http.MethodPost, "/api/v1/screen", `{}`); rec.Code != http.StatusOK {
		t.Errorf("after release status = %d", rec.Code)
	}
	if n := env.srv.screens.Total(); n != 0 {
		t.Errorf("slots held after request = %d", n)
	}
}

func TestAlertsFeed(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/alerts", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != `{"alerts":[]}` {
		t.Fatalf("empty feed = %d %s", rec.Code, rec.Body.String())
	}

	env.loadPair(t)
	if _, err := env.alerts.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/alerts", "")
	feed := decode[alerts.Feed](t, rec)
	if len(feed.Alerts) != 1 || feed.Alerts[0].A != "SAT-A" || feed.Alerts[0].B != "SAT-B" {
		t.Errorf("feed = %+v", feed)
	}
	if feed.GeneratedAt.IsZero() {
		t.Error("generated_at missing")
	}

	rec = env.do(t, http.MethodGet, "/api/v1/alerts?limit=1", "")
	if got := decode[alerts.Feed](t, rec); len(got.Alerts) != 1 || !got.GeneratedAt.Equal(feed.GeneratedAt) {
		t.Errorf("limited feed = %+v", got)
	}

	for _, q := range []string{"0", "101", "ten"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/alerts?limit="+q, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s status = %d", q, rec.Code)
		}
	}

	// The refresh was recorded with the alerts source.
	runs, err := env.history.ListRuns(context.Background(), 0)
	if err != nil || len(runs) != 1 || runs[0].Source != "alerts" {
		t.Errorf("history = %+v, %v", runs, err)
	}
}

func TestPlanner(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/planner",
		`{"siteLat":28.5,"siteLon":-80.6,"altitudeKm":550,"inclinationDeg":53,"massKg":260,"areaM2":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var report map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"recommendedSite", "debrisRisk", "lifetimeYears", "recommendations"} {
		if _, ok := report[key]; !ok {
			t.Errorf("report missing %q", key)
		}
	}

	tests := []struct {
		name   string
		body   string
		fields []string
	}{
		{"types", `{"siteLat":"north","siteLon":0,"altitudeKm":550,"inclinationDeg":53,"massKg":1}`, []string{"siteLat", "areaM2"}},
		{"ranges", `{"siteLat":28.5,"siteLon":0,"altitudeKm":-5,"inclinationDeg":200,"massKg":1,"areaM2":1}`, []string{"altitudeKm", "inclinationDeg"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/planner", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", rec.Code)
			}
			body := decode[errorBody](t, rec)
			if len(body.Fields) != len(tt.fields) {
				t.Errorf("fields = %v, want %v", body.Fields, tt.fields)
			}
			for _, field := range tt.fields {
				if _, ok := body.Fields[field]; !ok {
					t.Errorf("fields %v missing %q", body.Fields, field)
				}
			}
		})
	}
}

func TestEphemeris(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/ephemeris/25544", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("no catalog status = %d", rec.Code)
	}
	env.loadPair(t)

	rec := env.do(t, http.MethodGet, "/api/v1/ephemeris/44713?start=2024-04-09T12:00:00Z&step=30&count=5&lat=51.5&lon=0", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	eph := decode[ephemeris.Ephemeris](t, rec)
	if eph.CatalogID != 44713 || len(eph.Points) != 5 || eph.StepSec != 30 {
		t.Fatalf("ephemeris = %d with %d points at %vs", eph.CatalogID, len(eph.Points), eph.StepSec)
	}
	if eph.Points[0].Look == nil {
		t.Error("observer given but no look angles")
	}

	rec = env.do(t, http.MethodGet, "/api/v1/ephemeris/44713?start=2024-04-09T12:00:00Z&count=3", "",
		"Accept", "application/vnd.msgpack+zstd")
	if rec.Header().Get("Content-Type") != "application/vnd.msgpack+zstd" {
		t.Fatalf("content type = %q", rec.Header().Get("Content-Type"))
	}
	packed, err := ephemeris.DecodeMsgpack(bytes.NewReader(rec.Body.Bytes()))
	if err != nil || len(packed.Points) != 3 {
		t.Fatalf("msgpack body: %v", err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/ephemeris/1", http.StatusNotFound},
		{"/api/v1/ephemeris/abc", http.StatusBadRequest},
		{"/api/v1/ephemeris/44713?step=0", http.StatusBadRequest},
		{"/api/v1/ephemeris/44713?count=501", http.StatusBadRequest},
		{"/api/v1/ephemeris/44713?start=yesterday", http.StatusBadRequest},
		{"/api/v1/ephemeris/44713?lat=10", http.StatusBadRequest},
		{"/api/v1/ephemeris/44713?lat=95&lon=0", http.StatusBadRequest},
		{"/api/v1/ephemeris/44713?format=xml", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := env.do(t, http.MethodGet, tt.path, ""); rec.Code != tt.want {
			t.Errorf("%s status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestPasses(t *testing.T) {
	env := newTestEnv(t)
	env.loadPair(t)

	rec := env.do(t, http.MethodGet, "/api/v1/passes/25544?lat=40.7128&lon=-74.006&start=2024-04-09T12:00:00Z&hours=24&min_el=0&max=3", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[passes.SatellitePasses](t, rec)
	if got.CatalogID != 25544 || got.Error != "" {
		t.Fatalf("passes = %+v", got)
	}
	if len(got.Passes) == 0 || len(got.Passes) > 3 {
		t.Fatalf("got %d passes", len(got.Passes))
	}
	for i, p := range got.Passes {
		if p.Rise.Before(testEpoch) || !p.Set.After(p.Rise) || p.MaxElevationDeg <= 0 {
			t.Errorf("pass %d = %+v", i, p)
		}
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/passes/25544", http.StatusBadRequest},
		{"/api/v1/passes/25544?lat=40&lon=-74&hours=500", http.StatusBadRequest},
		{"/api/v1/passes/25544?lat=40&lon=-74&hours=NaN", http.StatusBadRequest},
		{"/api/v1/passes/25544?lat=40&lon=-74&min_el=95", http.StatusBadRequest},
		{"/api/v1/passes/25544?lat=40&lon=-74&max=0", http.StatusBadRequest},
		{"/api/v1/passes/x?lat=40&lon=-74", http.StatusBadRequest},
		{"/api/v1/passes/1?lat=40&lon=-74", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := env.do(t, http.MethodGet, tt.path, ""); rec.Code != tt.want {
			t.Errorf("%s status = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestSnapshot(t *testing.T) {
	env := newTestEnv(t)
	env.loadPair(t)

	rec := env.do(t, http.MethodGet, "/api/v1/snapshot?t=2024-04-09T12:30:00Z", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[snapshotResponse](t, rec)
	if got.Count != 3 || got.Failed != 0 || got.Frame != "ECEF" || !got.Timestamp.Equal(testEpoch.Add(30*time.Minute)) {
		t.Errorf("snapshot = %+v", got)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/snapshot?t=noon", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad t status = %d", rec.Code)
	}
}

func TestHistoryRoutes(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/v1/history/runs/"+uuid.NewString(), ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown run status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/history/runs/42", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/history/runs?limit=0", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/v1/history/runs", "")
	if strings.TrimSpace(rec.Body.String()) != `{"runs":[]}` {
		t.Errorf("empty history = %s", rec.Body.String())
	}

	disabled := newTestEnv(t, withoutHistory())
	if rec := disabled.do(t, http.MethodGet, "/api/v1/history/runs", ""); rec.Code != http.StatusNotFound {
		t.Errorf("disabled history status = %d", rec.Code)
	}
}

func TestRequestIDAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/healthz", "")
	if _, err := uuid.Parse(rec.Header().Get(logging.RequestIDHeader)); err != nil {
		t.Errorf("request id %q: %v", rec.Header().Get(logging.RequestIDHeader), err)
	}

	rec = env.do(t, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "orbitrisk_http_requests_total") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

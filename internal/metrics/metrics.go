package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "orbitrisk_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	catalogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrisk_catalog_size",
		Help: "Number of element sets in the current catalog.",
	})

	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrisk_catalog_age_seconds",
		Help: "Age of the current catalog in seconds.",
	})

	parseSkipsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrisk_parse_skips_total",
		Help: "Element set groups skipped by the parser.",
	})

	upstreamFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_upstream_fetches_total",
			Help: "Catalog fetches from upstream sources by result.",
		},
		[]string{"result"},
	)

	propagationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitrisk_propagation_batch_duration_seconds",
		Help:    "Duration of a batch propagation over the worker pool.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
	})

	propagationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_propagations_total",
			Help: "Satellite propagations by result.",
		},
		[]string{"result"},
	)

	workersActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrisk_propagation_workers",
		Help: "Configured propagation worker count.",
	})

	registryLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_registry_lookups_total",
			Help: "Propagator registry lookups by result.",
		},
		[]string{"result"},
	)

	screeningDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitrisk_screening_duration_seconds",
		Help:    "Duration of conjunction screening runs.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	screeningRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_screening_runs_total",
			Help: "Screening runs by outcome.",
		},
		[]string{"outcome"},
	)

	screeningPairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_screening_pairs_total",
			Help: "Satellite pairs considered by screening, by disposition.",
		},
		[]string{"disposition"},
	)

	conjunctionEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrisk_conjunction_events",
		Help: "Conjunction events found by the most recent screening run.",
	})

	excludedSatellites = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrisk_screening_excluded_satellites",
		Help: "Satellites excluded from the most recent screening run.",
	})

	alertRefreshErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrisk_alert_refresh_errors_total",
		Help: "Alert feed refreshes that failed.",
	})

	catalogCutoversTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrisk_alert_catalog_cutovers_total",
		Help: "Alert feed rebuilds triggered by a catalog change.",
	})

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitrisk_alert_streams_active",
		Help: "Open alert SSE streams.",
	})

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_alert_stream_connections_total",
			Help: "Alert stream connects and disconnects.",
		},
		[]string{"event"},
	)

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrisk_alert_stream_messages_total",
		Help: "SSE messages written to alert streams.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orbitrisk_alert_stream_bytes_total",
		Help: "Bytes written to alert streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_alert_stream_errors_total",
			Help: "Alert stream errors by reason.",
		},
		[]string{"reason"},
	)

	requestsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_requests_rejected_total",
			Help: "API requests refused before work started, by reason.",
		},
		[]string{"reason"},
	)

	plannerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orbitrisk_planner_requests_total",
			Help: "Mission planner requests by risk level.",
		},
		[]string{"level"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		catalogSize,
		catalogAgeSeconds,
		parseSkipsTotal,
		upstreamFetchesTotal,
		propagationDurationSeconds,
		propagationsTotal,
		workersActive,
		registryLookupsTotal,
		screeningDurationSeconds,
		screeningRunsTotal,
		screeningPairs,
		conjunctionEvents,
		excludedSatellites,
		alertRefreshErrorsTotal,
		catalogCutoversTotal,
		streamsActive,
		streamConnectionsTotal,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
		requestsRejectedTotal,
		plannerRequestsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetCatalogSize records the number of element sets in the current catalog.
func SetCatalogSize(n int) { catalogSize.Set(float64(n)) }

// SetCatalogAge records the catalog age in seconds.
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }

// AddParseSkips counts groups skipped while parsing.
func AddParseSkips(n int) { parseSkipsTotal.Add(float64(n)) }

// RecordUpstreamFetch counts an upstream fetch; result is "ok" or "error".
func RecordUpstreamFetch(result string) { upstreamFetchesTotal.WithLabelValues(result).Inc() }

// RecordPropagation records one batch propagation.
func RecordPropagation(d time.Duration, ok, failed int) {
	propagationDurationSeconds.Observe(d.Seconds())
	propagationsTotal.WithLabelValues("ok").Add(float64(ok))
	propagationsTotal.WithLabelValues("error").Add(float64(failed))
}

// SetWorkers records the configured propagation worker count.
func SetWorkers(n int) { workersActive.Set(float64(n)) }

// RecordRegistryLookup counts a registry lookup as a hit or a miss.
func RecordRegistryLookup(hit bool) {
	if hit {
		registryLookupsTotal.WithLabelValues("hit").Inc()
		return
	}
	registryLookupsTotal.WithLabelValues("miss").Inc()
}

// RecordScreening records a completed or cancelled screening run.
func RecordScreening(d time.Duration, screened, prefiltered, events, excluded int, partial bool) {
	screeningDurationSeconds.Observe(d.Seconds())
	outcome := "complete"
	if partial {
		outcome = "partial"
	}
	screeningRunsTotal.WithLabelValues(outcome).Inc()
	screeningPairs.WithLabelValues("screened").Add(float64(screened))
	screeningPairs.WithLabelValues("prefiltered").Add(float64(prefiltered))
	conjunctionEvents.Set(float64(events))
	excludedSatellites.Set(float64(excluded))
}

// IncAlertRefreshErrors counts a failed alert feed refresh.
func IncAlertRefreshErrors() { alertRefreshErrorsTotal.Inc() }

// IncCatalogCutovers counts an alert feed rebuild after a catalog change.
func IncCatalogCutovers() { catalogCutoversTotal.Inc() }

// IncStreamsActive increments the open stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the open stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamConnections counts a stream "connect" or "disconnect".
func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }

// IncStreamMessages counts one SSE message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes counts bytes written to streams.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// IncStreamErrors counts a stream error by reason.
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

// IncRequestsRejected counts a request refused by a limit or budget.
func IncRequestsRejected(reason string) { requestsRejectedTotal.WithLabelValues(reason).Inc() }

// RecordPlannerRequest counts a planner request by resulting risk level.
func RecordPlannerRequest(level string) { plannerRequestsTotal.WithLabelValues(level).Inc() }

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		httpRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

var knownRoutes = map[string]bool{
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/catalog":       true,
	"/api/v1/catalog/fetch": true,
	"/api/v1/alerts":        true,
	"/api/v1/alerts/stream": true,
	"/api/v1/screen":        true,
	"/api/v1/planner":       true,
	"/api/v1/snapshot":      true,
	"/api/v1/history/runs":  true,
}

// parameterized maps a path prefix to the label used for every path under it.
var parameterized = []struct {
	prefix string
	label  string
}{
	{"/api/v1/ephemeris/", "/api/v1/ephemeris/{catalog_id}"},
	{"/api/v1/passes/", "/api/v1/passes/{catalog_id}"},
	{"/api/v1/history/runs/", "/api/v1/history/runs/{id}"},
}

// normalizeRoute maps a request path to a bounded set of metric labels so
// that ids in paths and scanner traffic cannot inflate label cardinality.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	for _, p := range parameterized {
		if rest, ok := strings.CutPrefix(path, p.prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			return p.label
		}
	}
	return "other"
}

// Package stream serves the conjunction alert feed as Server-Sent Events.
// Clients connect via GET /api/v1/alerts/stream and receive the feed every
// time the alert service publishes a new snapshot.
//
// SSE message format:
//
//	data: {"type":"alerts","run_id":"...","generated_at":"2026-02-06T04:00:00Z","alerts":[...]}\n\n
//
// The first message describes the catalog, and is repeated after every
// catalog change:
//
//	data: {"type":"metadata","catalog_fetched_at":"...","catalog_age_seconds":1800,"satellites":9000}\n\n
//
// Keep-alive comments (:\n\n) are sent every KeepaliveInterval to prevent timeout.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/star/orbitrisk/internal/alerts"
	"github.com/star/orbitrisk/internal/httputil"
	"github.com/star/orbitrisk/internal/metrics"
	"github.com/star/orbitrisk/internal/tle"
)

// MaxLimit bounds the feed size a stream client may ask for.
const MaxLimit = 100

// Source publishes alert snapshots.
type Source interface {
	Latest() *alerts.Snapshot
}

// Config holds streaming configuration.
type Config struct {
	MaxConcurrentPerIP int           // default: 10
	KeepaliveInterval  time.Duration // default: 30s
	PollInterval       time.Duration // snapshot check cadence (default: 1s)
	TrustProxy         bool
}

// Handler manages SSE streaming connections.
type Handler struct {
	source  Source
	store   *tle.Store
	config  Config
	limiter *httputil.Limiter
	logger  *slog.Logger
}

// NewHandler creates a new streaming handler.
func NewHandler(source Source, store *tle.Store, config Config, logger *slog.Logger) *Handler {
	if config.MaxConcurrentPerIP <= 0 {
		config.MaxConcurrentPerIP = 10
	}
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	return &Handler{
		source:  source,
		store:   store,
		config:  config,
		limiter: httputil.NewLimiter(config.MaxConcurrentPerIP, 0),
		logger:  logger,
	}
}

// HandleAlerts serves the SSE alert stream.
// GET /api/v1/alerts/stream?limit=10
func (h *Handler) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit parameter, must be 1-%d", MaxLimit))
			return
		}
		limit = n
	}

	ip := httputil.ClientIP(r, h.config.TrustProxy)
	if !h.limiter.Acquire(ip) {
		metrics.IncStreamErrors("rate_limit")
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"current_count", h.limiter.Count(ip),
		)
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusTooManyRequests, "too many concurrent streams")
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
		"limit", limit,
	)

	defer func() {
		h.limiter.Release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)

	// The controller unwraps middleware writers; it also lifts the server's
	// WriteTimeout for this long-lived response.
	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		metrics.IncStreamErrors("unsupported")
		h.logger.Warn("streaming not supported", "remote_ip", ip, "error", err)
		return
	}
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{w: w, rc: rc, ip: ip, logger: h.logger}

	// Jittered retry interval (3-7s) spreads reconnects after a restart.
	if err := c.sendRetry(3000 + rand.Intn(4000)); err != nil {
		return
	}

	var (
		lastSnap      *alerts.Snapshot
		lastFetchedAt time.Time
	)
	// publish sends metadata on catalog change and the feed on snapshot change.
	publish := func() error {
		if cat := h.store.Get(); cat != nil && !cat.FetchedAt.Equal(lastFetchedAt) {
			if err := c.sendJSON(buildMetadataMessage(cat, time.Now())); err != nil {
				return err
			}
			lastFetchedAt = cat.FetchedAt
		}
		snap := h.source.Latest()
		if snap == nil || snap == lastSnap {
			return nil
		}
		if err := c.sendJSON(buildAlertsMessage(snap, limit)); err != nil {
			return err
		}
		lastSnap = snap
		return nil
	}

	if err := publish(); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (initial)", "remote_ip", ip, "error", err)
		return
	}

	poll := time.NewTicker(h.config.PollInterval)
	defer poll.Stop()

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			sent := c.messagesSent
			if err := publish(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			if c.messagesSent != sent {
				keepaliveTicker.Reset(h.config.KeepaliveInterval)
			}

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func buildMetadataMessage(cat *tle.Catalog, now time.Time) metadataMessage {
	return metadataMessage{
		Type:             "metadata",
		CatalogFetchedAt: cat.FetchedAt.UTC().Format(time.RFC3339),
		CatalogAge:       int(now.Sub(cat.FetchedAt).Seconds()),
		Satellites:       len(cat.Sets),
	}
}

// buildAlertsMessage renders a snapshot; limit 0 keeps the service's feed.
func buildAlertsMessage(snap *alerts.Snapshot, limit int) alertsMessage {
	feed := snap.Feed
	if limit > 0 && snap.Result != nil {
		feed = alerts.NewFeed(snap.Result.Events, limit)
	}
	msg := alertsMessage{
		Type:        "alerts",
		GeneratedAt: snap.Feed.GeneratedAt.UTC().Format(time.RFC3339),
		Partial:     snap.Feed.Partial,
		Alerts:      feed.Alerts,
	}
	if snap.RunID != uuid.Nil {
		msg.RunID = snap.RunID.String()
	}
	return msg
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// SSE message payload types.

type metadataMessage struct {
	Type             string `json:"type"`
	CatalogFetchedAt string `json:"catalog_fetched_at"`
	CatalogAge       int    `json:"catalog_age_seconds"`
	Satellites       int    `json:"satellites"`
}

type alertsMessage struct {
	Type        string         `json:"type"`
	RunID       string         `json:"run_id,omitempty"`
	GeneratedAt string         `json:"generated_at"`
	Partial     bool           `json:"partial,omitempty"`
	Alerts      []alerts.Alert `json:"alerts"`
}

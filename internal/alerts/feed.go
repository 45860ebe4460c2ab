// Package alerts turns screening results into the conjunction alert feed and
// keeps that feed current as time passes and the catalog changes.
package alerts

import (
	"sort"
	"time"

	"github.com/star/orbitrisk/internal/screening"
)

// DefaultLimit is the number of alerts shown when no limit is given.
const DefaultLimit = 10

// Alert is one entry of the feed.
type Alert struct {
	A                   string    `json:"a"`
	B                   string    `json:"b"`
	AID                 int       `json:"a_id"`
	BID                 int       `json:"b_id"`
	DistanceKm          float64   `json:"distance_km"`
	TCA                 time.Time `json:"tca"`
	RelativeVelocityKmS float64   `json:"relative_velocity_km_s"`
}

// Feed is the consumer-facing alert document.
type Feed struct {
	Alerts      []Alert   `json:"alerts"`
	GeneratedAt time.Time `json:"generated_at,omitzero"`
	Partial     bool      `json:"partial,omitempty"`
}

// Top returns at most limit events, one per unordered pair, closest first.
// Ties are broken by TCA and then by catalog ids. limit <= 0 means
// DefaultLimit.
func Top(events []screening.Event, limit int) []screening.Event {
	if limit <= 0 {
		limit = DefaultLimit
	}

	best := make(map[[2]int]screening.Event, len(events))
	for _, ev := range events {
		if ev.A > ev.B {
			ev.A, ev.B = ev.B, ev.A
			ev.NameA, ev.NameB = ev.NameB, ev.NameA
		}
		cur, ok := best[ev.Pair()]
		if !ok || closer(ev, cur) {
			best[ev.Pair()] = ev
		}
	}

	out := make([]screening.Event, 0, len(best))
	for _, ev := range best {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return closer(out[i], out[j]) })

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func closer(a, b screening.Event) bool {
	if a.MissDistanceKm != b.MissDistanceKm {
		return a.MissDistanceKm < b.MissDistanceKm
	}
	if !a.TCA.Equal(b.TCA) {
		return a.TCA.Before(b.TCA)
	}
	if a.A != b.A {
		return a.A < b.A
	}
	return a.B < b.B
}

// NewFeed renders the top events as a feed. An empty input yields an empty,
// non-nil alert list.
func NewFeed(events []screening.Event, limit int) Feed {
	top := Top(events, limit)
	feed := Feed{Alerts: make([]Alert, 0, len(top))}
	for _, ev := range top {
		feed.Alerts = append(feed.Alerts, Alert{
			A:                   ev.NameA,
			B:                   ev.NameB,
			AID:                 ev.A,
			BID:                 ev.B,
			DistanceKm:          ev.MissDistanceKm,
			TCA:                 ev.TCA,
			RelativeVelocityKmS: ev.RelativeVelocityKmS,
		})
	}
	return feed
}

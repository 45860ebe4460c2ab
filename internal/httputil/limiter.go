package httputil

import (
	"sync"
)

// DefaultMaxTotal caps concurrent slots across all clients.
const DefaultMaxTotal = 1000

// Limiter tracks concurrent long-running requests per client IP and
// globally. It guards both alert streams and on-demand screenings.
type Limiter struct {
	mu       sync.Mutex
	inFlight map[string]int
	total    int
	maxPerIP int
	maxTotal int
}

// NewLimiter returns a Limiter allowing maxPerIP slots per client and
// maxTotal overall. A non-positive maxTotal uses DefaultMaxTotal.
func NewLimiter(maxPerIP, maxTotal int) *Limiter {
	if maxTotal <= 0 {
		maxTotal = DefaultMaxTotal
	}
	return &Limiter{
		inFlight: make(map[string]int),
		maxPerIP: maxPerIP,
		maxTotal: maxTotal,
	}
}

// Acquire attempts to take a slot for ip.
// Returns false if the per-IP or global limit has been reached.
func (l *Limiter) Acquire(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal {
		return false
	}
	if l.inFlight[ip] >= l.maxPerIP {
		return false
	}

	l.inFlight[ip]++
	l.total++
	return true
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight[ip] == 0 {
		return
	}
	l.inFlight[ip]--
	l.total--
	if l.inFlight[ip] <= 0 {
		delete(l.inFlight, ip)
	}
}

// Count returns the number of slots held by ip.
func (l *Limiter) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight[ip]
}

// Total returns the number of slots held across all clients.
func (l *Limiter) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

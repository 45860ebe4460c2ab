// Package httputil holds request helpers shared by the API and stream
// handlers.
package httputil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the address screening and stream quotas are keyed on.
// With trustProxy the first X-Forwarded-For hop, then X-Real-IP, are used
// when they hold a valid address. Anything else falls back to RemoteAddr.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ",")
		for _, candidate := range []string{first, r.Header.Get("X-Real-IP")} {
			if addr, ok := parseAddr(candidate); ok {
				return addr
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if addr, ok := parseAddr(host); ok {
		return addr
	}
	return host
}

// parseAddr normalizes s, which may carry a port, to a bare address.
// IPv4-mapped IPv6 addresses collapse to IPv4 so both forms share a quota.
func parseAddr(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap().String(), true
	}
	a, err := netip.ParseAddr(strings.Trim(s, "[]"))
	if err != nil {
		return "", false
	}
	return a.Unmap().String(), true
}

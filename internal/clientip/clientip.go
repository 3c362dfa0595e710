// Package clientip resolves the most plausible client address of a request.
//
// Proxy headers are consulted before the transport peer address. The first
// entry of X-Forwarded-For is trusted as-is, so deployments must make sure
// their edge proxy overwrites the header.
package clientip

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Sentinel is returned when no source yields a valid address.
const Sentinel = "0.0.0.0"

// Header sources in precedence order.
var DefaultSources = []string{
	"X-Forwarded-For",
	"X-Real-IP",
	"Client-IP",
}

// Resolve returns the client IP using DefaultSources and the peer address.
// It never returns an empty string.
func Resolve(headers http.Header, remoteAddr string) string {
	for _, name := range DefaultSources {
		if ip, ok := candidate(headers.Get(name)); ok {
			return ip
		}
	}

	if ip, ok := candidate(stripPort(remoteAddr)); ok {
		return ip
	}

	return Sentinel
}

// candidate takes the first comma-separated entry of a header value and
// validates it as an IPv4 or IPv6 literal.
func candidate(value string) (string, bool) {
	if value == "" {
		return "", false
	}

	first, _, _ := strings.Cut(value, ",")
	first = strings.TrimSpace(first)

	// Zones are free text and never identify a remote client.
	addr, err := netip.ParseAddr(first)
	if err != nil || addr.Zone() != "" {
		return "", false
	}
	return addr.String(), true
}

// stripPort removes a port from host:port and [v6]:port peer addresses.
func stripPort(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}

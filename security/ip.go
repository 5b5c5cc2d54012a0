package security

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP extracts the client IP for audit records. When trustProxy is
// set the X-Forwarded-For and X-Real-IP headers are consulted, with
// trustedProxyCount saying how many rightmost XFF entries belong to proxies
// we control. Only enable trustProxy behind a reverse proxy you operate;
// otherwise the headers are attacker-controlled.
func GetClientIP(r *http.Request, trustProxy bool, trustedProxyCount int) string {
	if trustProxy {
		if ip := extractIPFromXFF(r.Header.Get("X-Forwarded-For"), trustedProxyCount); ip != "" {
			return ip
		}
		if ip := extractIPFromXRealIP(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}
	return extractIPFromRemoteAddr(r.RemoteAddr)
}

// extractIPFromXFF picks the client entry out of an X-Forwarded-For list.
// The list reads "client, proxy1, proxy2, ..." left to right, so the client
// sits trustedProxyCount entries from the right end.
func extractIPFromXFF(xff string, trustedProxyCount int) string {
	if xff == "" {
		return ""
	}

	ips := strings.Split(xff, ",")
	clientIP := strings.TrimSpace(ips[clientIPIndex(len(ips), trustedProxyCount)])
	if net.ParseIP(clientIP) != nil {
		return clientIP
	}
	return ""
}

// clientIPIndex computes the index of the client entry. A trustedProxyCount
// of zero assumes one trusted proxy; a too-short list falls back to the
// leftmost entry.
func clientIPIndex(numIPs, trustedProxyCount int) int {
	proxyCount := trustedProxyCount
	if proxyCount == 0 {
		proxyCount = 1
	}

	idx := numIPs - proxyCount - 1
	if idx < 0 {
		return 0
	}
	return idx
}

func extractIPFromXRealIP(xri string) string {
	if xri == "" {
		return ""
	}
	if net.ParseIP(xri) != nil {
		return xri
	}
	return ""
}

func extractIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

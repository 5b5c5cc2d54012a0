package security

import (
	"net/http"
	"net/url"
)

// SetSecurityHeaders applies the standard set of hardening headers to an
// OAuth endpoint response: clickjacking and MIME-sniffing protection, a
// strict content security policy, no referrer leakage, and no caching of
// token material. HSTS is set only when the issuer URL is HTTPS.
func SetSecurityHeaders(w http.ResponseWriter, issuerURL string) {
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-XSS-Protection", "1; mode=block")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
	w.Header().Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(issuerURL); err == nil && parsed.Scheme == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// RFC 6749 section 5.1 requires no-store on token responses.
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
	w.Header().Set("Pragma", "no-cache")
}

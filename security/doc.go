// Package security provides cross-cutting security support for the
// authorization server: audit logging with PII hashing, hardened HTTP
// response headers, clock-skew-tolerant expiry checks, request ID
// propagation, and client IP extraction behind proxies.
package security

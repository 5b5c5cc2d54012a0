// Package instrumentation provides OpenTelemetry metrics and tracing for the
// authorization server.
//
// When no instrumentation is configured, or Enabled is false, no-op
// providers are used and recording has zero overhead.
//
// # Available Metrics
//
// HTTP layer:
//   - oauth.http.requests.total{method, endpoint, status} - HTTP requests
//   - oauth.http.request.duration{endpoint} - request duration in milliseconds
//
// Grant flows:
//   - oauth.authorization.requests{client_id, response_type} - authorization requests
//   - oauth.token.issued{client_id, grant_type} - access tokens issued
//   - oauth.token.refreshed{client_id} - refresh tokens redeemed
//   - oauth.token.revoked{client_id, token_type} - tokens revoked
//
// Security:
//   - oauth.auth.failures{reason} - client and resource-owner auth failures
//   - oauth.code.reuse_detected - authorization code replay attempts
//   - oauth.token.reuse_detected - refresh token replay attempts
//   - oauth.audit.events.total{event_type} - audit events emitted
//
// Storage:
//   - storage.operation.total{operation, result} - storage operations
//   - storage.operation.duration{operation} - operation duration in milliseconds
//   - storage.size{type} - current entity counts (observable gauges)
//
// # Tracing
//
// Spans are created for the grant engine operations and for each storage
// call. Never attach credential values (tokens, codes, secrets) to spans;
// only metadata such as client IDs, grant types, and validation results.
package instrumentation

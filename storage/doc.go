// Package storage defines the entities and persistence interfaces of the
// authorization server: registered clients, authorization codes, access
// tokens, and refresh tokens.
//
// Two interfaces make up the persistence seam:
//   - ClientStore: the client registry (lookup, secret verification, cascade delete)
//   - TokenStore: codes and tokens, including the atomic consume operations
//     that give authorization codes their single-use semantics and refresh
//     tokens their rotation semantics
//
// Implementations are provided in subpackages:
//   - storage/memory: mutex-guarded in-memory storage for development,
//     testing, and single-instance deployments
package storage

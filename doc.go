// Package oauth implements an embeddable OAuth 2.0 authorization server:
// the four standard grant flows (authorization code, implicit, resource
// owner password credentials, client credentials), token issuance with
// refresh-token rotation, and RFC 7009 token revocation.
//
// The Server type is the grant engine. It is stateless per request and
// delegates policy and persistence to a Validator, whose default
// implementation runs over the storage interfaces in the storage package.
// Handler adapts the engine to net/http.
//
// Minimal wiring:
//
//	store := memory.New()
//	defer store.Stop()
//
//	validator := oauth.NewDefaultValidator(store, store, nil, oauth.Config{})
//	server, err := oauth.NewServer(oauth.Config{Issuer: "https://auth.example.com"}, validator)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	handler := oauth.NewHandler(server, slog.Default())
//	mux := http.NewServeMux()
//	handler.RegisterRoutes(mux)
package oauth

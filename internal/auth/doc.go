// Package auth verifies the HS256 JWTs issued by the hosted backend and
// carries the resulting principal through request contexts.
//
// A token must carry a "sub" claim (the user id) and a workspace id, either
// as a top-level "workspace_id" claim or nested under "app_metadata". The
// workspace id scopes every CRM query made on behalf of the request.
//
// Usage:
//
//	v := auth.NewJWTVerifier([]byte(secret), auth.WithIssuer("supportdesk"))
//	mux.Handle("/v1/", auth.Middleware(v)(api))
//
//	p := auth.FromContext(r.Context())
package auth

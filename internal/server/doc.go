// Package server runs the short-lived local HTTP server used by `t2r auth google`.
//
// # Router
//
// [BasicRouter] wraps [http.ServeMux] with method filtering and a [Middleware] stack.
// [RequestLogger] and [Recoverer] are the middleware the callback server installs.
//
// # OAuth Callback
//
// [OAuthHandler] serves [CallbackPath]. It checks the state parameter, exchanges the code
// (with a PKCE verifier) and sends exactly one [OAuthResult]. Later requests are rejected.
//
// [Authorize] ties it together: listen, open the consent page, wait for the callback or a
// timeout, then shut the server down.
package server

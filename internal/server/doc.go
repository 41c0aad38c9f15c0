// Package server provides the HTTP surface of the music service and the CLI login callback.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter]
// registers method patterns on an [http.ServeMux] and wraps each route with the
// middleware added before it, last added innermost.
//
// # Middleware
//
// [Logging] and [Recover] wrap every route. [Identity] guards the /api routes: it
// resolves the bearer token to an owner id through an [IdentityCache] and stores it
// in the request context, where handlers read it with [OwnerFrom]. A token is trusted
// for at most [IdentityTTL] before the provider is asked again.
//
// # Error Mapping
//
// Handlers never pick status codes for failures themselves. [StatusOf] maps the
// shared sentinel errors: unauthorized to 401 with {"error":"Unauthorized"}, a
// duplicate entry or invalid input to 400, a missing record to 404 and an
// unavailable store or upstream to 503.
//
// # Worker Callback
//
// /api/send-notification is not guarded by [Identity]. The worker authenticates with
// the signed callback token it received with the job, which names the owner and job.
//
// # Login Callback
//
// [LoginHandler] implements the OAuth2 authorization code callback used by "nma auth login".
// It validates the state parameter, exchanges the code and reports the token once
// through [LoginHandler.Result].
package server

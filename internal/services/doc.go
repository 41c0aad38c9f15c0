// Package services implements the HTTP collaborators of the mylist assistant.
//
// # Music API Client
//
// [MusicClient] talks to a running "nma serve" and implements the cache backend
// over HTTP. Every request carries the Google access token from an
// [oauth2.TokenSource]. Response statuses map onto the shared error taxonomy:
//   - 401 : [shared.ErrUnauthorized], the caller must log out
//   - 400 "this entry already exists" : [shared.ErrDuplicateEntry]
//   - 404 : [shared.ErrRecordNotFound]
//   - other 4xx : [shared.ErrInvalidInput]
//   - 5xx and transport failures : [shared.ErrStoreUnavailable]
//
// The raw Get/Post/Do methods back the "nma api" debugging commands.
//
// # Niconico
//
// [NiconicoService] reads video titles from the getthumbinfo XML API and
// searches the snapshot search API. Requests are rate limited and transient
// failures are retried with exponential backoff.
//
// # Google
//
// [GoogleService] holds the OAuth2 config used by the CLI login flow and
// resolves access tokens to a subject id for the API server.
//
// # Registration Worker
//
// [RegisterService] submits auto-registration jobs to the external worker with a
// signed callback token the worker presents when it reports completion.
package services

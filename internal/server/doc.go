// Package server exposes the migration engine over HTTP.
//
// # Routes
//
//	POST /api/migrations                               run a migration, streaming progress as Server-Sent Events
//	GET  /api/providers/{provider}/playlists           list the caller's playlists
//	GET  /api/providers/{provider}/playlists/{id}/tracks
//	GET  /api/providers/{provider}/tracks/{id}.json    published mapping record for one track
//	GET  /healthz
//	GET  /metrics                                      Prometheus exposition
//
// # Credentials
//
// Credentials are per request and never stored. Provider routes read "Authorization: Bearer <token>"
// for TIDAL and Spotify and the X-Deezer-ARL header for Deezer. The migration body carries one
// credential for each side.
//
// # Migration Stream
//
// A migration response is a text/event-stream. Each "progress" event carries a [tasks.ProgressUpdate]
// and the stream ends with exactly one "result" or "error" event. Requests that fail validation are
// rejected with a JSON error before the stream starts.
//
// # Middleware
//
// Every route runs behind request ids, panic recovery, request logging and a per-IP [httprate] limit.
package server

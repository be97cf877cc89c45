// Package services defines the [PlaylistProvider] interface for streaming services and implements it for TIDAL, Spotify and Deezer.
//
// # PlaylistProvider Interface
//
// Every service exposes the same capability set so the migration engine never branches on a service name:
// list playlists, read a playlist's tracks in order, look a playlist up by name, create a playlist
// and append tracks to it. A [Registry] holds one adapter per [models.Provider].
//
// # Authentication
//
// Credentials arrive per call as a [models.Credential] and are never refreshed or stored here.
//   - TIDAL and Spotify send an OAuth bearer token
//   - Deezer sends the user's ARL session cookie as the X-Deezer-ARL header to a proxy
//
// # Transport
//
// All requests go through [httpclient.Client], which retries throttling and server failures.
// [SpotifyService] wraps [spotify.Client] from zmb3/spotify with [httpclient.Transport];
// [TidalService] and [DeezerService] use a small JSON client.
//
// # Writes
//
// AddTracks splits ids into ordered chunks of the service maximum (TIDAL 20, Spotify 100, Deezer 50)
// and sends them one after another. The first failing chunk aborts the remaining ones.
//
// # Error Handling
//
// Non-2xx responses become [shared.ProviderError] carrying the service name and status.
// Deezer also reports errors inside 200 responses; those are mapped onto the equivalent status.
// A 404 while listing a playlist's tracks is treated as an empty playlist.
package services

// Package models defines the domain entities shared by the provider adapters, the mapping resolver and the migration engine.
//
// The package contains two categories of types:
//
// 1. Provider identity and credentials
//   - [Provider] : Supported streaming services and their [AuthKind]
//   - [Credential] : Bearer token or session secret supplied per call
//
// 2. Playlist data
//   - [Playlist] : Playlist metadata snapshot from a service
//   - [SourceTrack] : One entry of a source playlist, in source order
//   - [TrackMapping] : Cross-service identifiers for a single track
package models

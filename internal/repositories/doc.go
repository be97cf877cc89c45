// Package repositories implements SQLite persistence for the cross-service track mapping store.
//
// A canonical track row carries optional title/artist/album metadata; each provider's identifier for it
// lives in track_providers, keyed by (provider, provider_track_id) so one identifier maps to one track.
//
// Key Implementations:
//   - [MappingRepository] : keyed lookups, merging upserts and transactional bulk import
//
// Sequence numbers provide stable, human-readable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories

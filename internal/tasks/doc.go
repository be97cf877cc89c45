// Package tasks orchestrates playlist migrations between music services with real-time progress reporting.
//
// # Core Operation
//
// [Migrator.Migrate] copies one playlist from a source provider to a target provider:
//
//  1. Validate the request: both providers registered, a source playlist id, a target name,
//     and usable credentials for both sides. Nothing is sent to a provider until this passes.
//  2. Fetch every source track, in order.
//  3. Reuse a target playlist with the same name (case-insensitive) or create one.
//  4. Unless duplicates are allowed, fetch the tracks already on a reused playlist.
//     A failure here is logged and de-duplication falls back to an empty set.
//  5. Resolve every source id to its target id through the [mapping.Resolver].
//  6. Classify each track in source order as imported, skipped (unmapped) or duplicate.
//  7. Append the imported ids with a single [services.PlaylistProvider.AddTracks] call.
//
// Every track lands in exactly one bucket, so Imported + Skipped + DuplicatesSkipped == Total.
// Chunks already written are not rolled back when a later chunk fails.
//
// # Progress Reporting
//
// Progress is sent over an optional channel with select/default, so a slow or absent reader never
// stalls the run. Each [ProgressUpdate] carries a [Phase], step counters, a display message and a
// snapshot of [MigrationProgress] that the receiver owns.
//
// # Errors
//
// Input errors (see [shared.IsInputError]) come back as-is. Anything that fails after validation is a
// [*MigrationError] recording the phase and the counters reached, wrapping the provider,
// mapping or cancellation error underneath.
package tasks

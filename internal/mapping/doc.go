// Package mapping resolves a track identifier on one service to its identifiers on the others.
//
// # Sources
//
// A [Source] performs one keyed lookup against the authoritative mapping store:
//   - [HTTPSource] reads static JSON records from {base}/api/providers/{service}/tracks/{id}.json
//   - [StoreSource] reads the local SQLite store filled by "plx mapping import"
//
// # Resolver
//
// [Resolver] memoizes lookups by (service, id) for the life of the process. Not-found results are
// cached; failures are not. Identical concurrent lookups share one call through singleflight.
//
// [Resolver.ResolveBatch] runs uncached lookups on a fixed pool of workers fed from a jobs channel
// and reports progress after every completion. Results are keyed by id, so completion order does not matter.
//
// # Caches
//
// Entries are set once and never overwritten:
//   - [NewMemoryCache] is unbounded and suits one-shot CLI runs
//   - [NewLRUCache] is bounded and suits the long-lived HTTP server
package mapping

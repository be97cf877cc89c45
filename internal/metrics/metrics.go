// Package metrics holds the Prometheus collectors shared by the fetch client, the mapping resolver and the migration engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "plx"

var (
	httpRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "Outbound requests retried by the fetch client",
		},
		[]string{"host", "reason"},
	)

	mappingLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mapping_lookups_total",
			Help:      "Track mapping lookups by result",
		},
		[]string{"result"},
	)

	migrations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Playlist migrations by source, target and outcome",
		},
		[]string{"source", "target", "outcome"},
	)

	migrationTracks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_tracks_total",
			Help:      "Source tracks classified by migrations",
		},
		[]string{"outcome"},
	)

	migrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Wall-clock duration of completed migrations",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"source", "target"},
	)
)

// Lookup results.
const (
	LookupHit    = "hit"
	LookupMiss   = "miss"
	LookupCached = "cached"
	LookupError  = "error"
)

// Migration outcomes.
const (
	OutcomeStarted   = "started"
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
)

// Track outcomes.
const (
	TrackImported  = "imported"
	TrackUnmapped  = "unmapped"
	TrackDuplicate = "duplicate"
)

// RecordRetry counts one retried request against host; reason is "status_<code>" or "network".
func RecordRetry(host, reason string) {
	httpRetries.WithLabelValues(host, reason).Inc()
}

// RecordLookup counts one mapping lookup.
func RecordLookup(result string) {
	mappingLookups.WithLabelValues(result).Inc()
}

// RecordMigration counts a migration lifecycle event.
func RecordMigration(source, target, outcome string) {
	migrations.WithLabelValues(source, target, outcome).Inc()
}

// RecordTracks adds n tracks with the given outcome.
func RecordTracks(outcome string, n int) {
	if n > 0 {
		migrationTracks.WithLabelValues(outcome).Add(float64(n))
	}
}

// ObserveMigration records the duration of a completed migration.
func ObserveMigration(source, target string, d time.Duration) {
	migrationDuration.WithLabelValues(source, target).Observe(d.Seconds())
}

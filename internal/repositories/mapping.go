package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

// MappingRepository stores canonical tracks and the identifiers each provider uses for them.
//
// A track row owns any number of (provider, provider_track_id) pairs; a pair belongs to at most one track.
type MappingRepository struct {
	db *sql.DB
}

// NewMappingRepository creates a new MappingRepository with the given database connection
func NewMappingRepository(db *sql.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// Get returns the mapping for a track on service, or nil when the store has never seen it.
//
// Targets holds every other provider's identifier; the queried provider is reported as the source.
func (r *MappingRepository) Get(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error) {
	query := `
		SELECT t.id, t.title, t.artist, t.album
		FROM track_providers p
		JOIN tracks t ON t.id = p.track_id
		WHERE p.provider = ? AND p.provider_track_id = ?
	`

	var id string
	m := &models.TrackMapping{SourceService: service, SourceID: trackID, Targets: map[models.Provider]string{}}
	err := r.db.QueryRowContext(ctx, query, string(service), trackID).Scan(&id, &m.Title, &m.Artist, &m.Album)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get mapping: %v", shared.ErrDatabase, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, provider_track_id FROM track_providers WHERE track_id = ? AND provider <> ?`,
		id, string(service),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query provider ids: %v", shared.ErrDatabase, err)
	}
	defer rows.Close()

	for rows.Next() {
		var provider, providerID string
		if err := rows.Scan(&provider, &providerID); err != nil {
			return nil, fmt.Errorf("failed to scan provider id: %w", err)
		}
		m.Targets[models.Provider(provider)] = providerID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return m, nil
}

// Upsert stores m and returns the canonical track id it was merged into.
func (r *MappingRepository) Upsert(ctx context.Context, m models.TrackMapping) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := upsertMapping(ctx, tx, m)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit mapping: %w", err)
	}
	return id, nil
}

// Import upserts every mapping in a single transaction and returns how many were stored.
// Nothing is written when any record is invalid.
func (r *MappingRepository) Import(ctx context.Context, mappings []models.TrackMapping) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for i, m := range mappings {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := upsertMapping(ctx, tx, m); err != nil {
			return 0, fmt.Errorf("record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return len(mappings), nil
}

// Count returns the number of canonical tracks.
func (r *MappingRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tracks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

// providerIDs flattens the source and target identifiers of m, skipping blanks.
func providerIDs(m models.TrackMapping) map[models.Provider]string {
	ids := make(map[models.Provider]string, len(m.Targets)+1)
	for p, id := range m.Targets {
		if id != "" {
			ids[p] = id
		}
	}
	if m.SourceService != "" && m.SourceID != "" {
		ids[m.SourceService] = m.SourceID
	}
	return ids
}

// upsertMapping merges m into the first existing track that shares one of its identifiers,
// creating a new track when none does. A provider keeps a single identifier per track.
func upsertMapping(ctx context.Context, tx *sql.Tx, m models.TrackMapping) (string, error) {
	ids := providerIDs(m)
	if len(ids) == 0 {
		return "", fmt.Errorf("%w: mapping has no provider identifiers", shared.ErrInvalidArgument)
	}

	var trackID string
	for _, p := range models.Providers {
		id, ok := ids[p]
		if !ok {
			continue
		}
		err := tx.QueryRowContext(ctx,
			`SELECT track_id FROM track_providers WHERE provider = ? AND provider_track_id = ?`,
			string(p), id,
		).Scan(&trackID)
		if err == nil {
			break
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("failed to look up provider id: %w", err)
		}
	}

	now := time.Now()
	if trackID == "" {
		sequence, err := NextSequence(ctx, tx, "tracks")
		if err != nil {
			return "", fmt.Errorf("failed to generate sequence: %w", err)
		}

		trackID = shared.GenerateID()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO tracks (id, sequence, title, artist, album, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, trackID, sequence, m.Title, m.Artist, m.Album, now, now)
		if err != nil {
			return "", fmt.Errorf("failed to insert track: %w", err)
		}
	} else {
		_, err := tx.ExecContext(ctx, `
			UPDATE tracks
			SET title = COALESCE(NULLIF(?, ''), title),
				artist = COALESCE(NULLIF(?, ''), artist),
				album = COALESCE(NULLIF(?, ''), album),
				updated_at = ?
			WHERE id = ?
		`, m.Title, m.Artist, m.Album, now, trackID)
		if err != nil {
			return "", fmt.Errorf("failed to update track: %w", err)
		}
	}

	for p, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM track_providers WHERE track_id = ? AND provider = ? AND provider_track_id <> ?`,
			trackID, string(p), id,
		); err != nil {
			return "", fmt.Errorf("failed to replace provider id: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO track_providers (track_id, provider, provider_track_id, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (provider, provider_track_id) DO UPDATE SET track_id = excluded.track_id
		`, trackID, string(p), id, now); err != nil {
			return "", fmt.Errorf("failed to insert provider id: %w", err)
		}
	}

	return trackID, nil
}

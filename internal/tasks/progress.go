package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/plx/internal/models"
)

// RecentHistoryLimit caps [MigrationProgress.RecentImported] and [MigrationProgress.RecentSkipped].
const RecentHistoryLimit = 10

// MigrationProgress is the running state of one migration.
//
// While tracks are classified Imported + Skipped + DuplicatesSkipped == Current; at the end they sum to Total.
type MigrationProgress struct {
	Total             int                  `json:"total"`
	Current           int                  `json:"current"`
	Imported          int                  `json:"imported"`
	Skipped           int                  `json:"skipped"`
	DuplicatesSkipped int                  `json:"duplicates_skipped"`
	CurrentTrack      *models.SourceTrack  `json:"current_track,omitempty"`
	RecentImported    []models.SourceTrack `json:"recent_imported"`
	RecentSkipped     []models.SourceTrack `json:"recent_skipped"`
}

// Snapshot returns a deep copy safe to hand to another goroutine.
func (p MigrationProgress) Snapshot() MigrationProgress {
	s := p
	if p.CurrentTrack != nil {
		t := *p.CurrentTrack
		s.CurrentTrack = &t
	}
	s.RecentImported = append([]models.SourceTrack(nil), p.RecentImported...)
	s.RecentSkipped = append([]models.SourceTrack(nil), p.RecentSkipped...)
	return s
}

// Classified returns the number of tracks given an outcome so far.
func (p MigrationProgress) Classified() int {
	return p.Imported + p.Skipped + p.DuplicatesSkipped
}

// Percent reports classification progress in [0, 100].
func (p MigrationProgress) Percent() float64 {
	if p.Total == 0 {
		return 100
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// pushRecent appends t keeping only the newest [RecentHistoryLimit] entries.
func pushRecent(list []models.SourceTrack, t models.SourceTrack) []models.SourceTrack {
	list = append(list, t)
	if over := len(list) - RecentHistoryLimit; over > 0 {
		list = append(list[:0:0], list[over:]...)
	}
	return list
}

// MigrationResult summarizes a finished migration.
type MigrationResult struct {
	RunID              string               `json:"run_id"`
	Source             models.Provider      `json:"source"`
	Target             models.Provider      `json:"target"`
	SourcePlaylist     models.Playlist      `json:"source_playlist"`
	TargetPlaylistID   string               `json:"target_playlist_id"`
	TargetPlaylistName string               `json:"target_playlist_name"`
	TargetPlaylistURL  string               `json:"target_playlist_url"`
	Created            bool                 `json:"created"`
	Total              int                  `json:"total"`
	Imported           int                  `json:"imported"`
	Skipped            int                  `json:"skipped"`
	DuplicatesSkipped  int                  `json:"duplicates_skipped"`
	SkippedTracks      []models.SourceTrack `json:"skipped_tracks"`
	Duration           time.Duration        `json:"-"`
}

// MigrationError reports a failure after the run started, with the progress reached at that point.
type MigrationError struct {
	RunID    string
	Phase    Phase
	Progress MigrationProgress
	Err      error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration failed during %s after %d tracks classified: %v", e.Phase, e.Progress.Classified(), e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }

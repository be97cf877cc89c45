// package formatter renders migration results, skipped-track reports and playlist listings (text, JSON, Markdown, CSV)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
)

// Format selects how command output is rendered.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: format %q (want text or json)", shared.ErrInvalidArgument, s)
	}
}

// ResultView is the JSON shape of a [tasks.MigrationResult].
type ResultView struct {
	*tasks.MigrationResult
	DurationMS int64 `json:"duration_ms"`
}

// NewResultView wraps r for JSON output.
func NewResultView(r *tasks.MigrationResult) ResultView {
	return ResultView{MigrationResult: r, DurationMS: r.Duration.Milliseconds()}
}

// ResultToJSON encodes r with its duration in milliseconds.
func ResultToJSON(r *tasks.MigrationResult) ([]byte, error) {
	return shared.MarshalJSON(NewResultView(r), true)
}

// ResultToText renders the summary printed after a migration.
func ResultToText(r *tasks.MigrationResult) string {
	var buf bytes.Buffer

	verb := "Updated"
	if r.Created {
		verb = "Created"
	}

	fmt.Fprintf(&buf, "%s → %s: %s\n", r.Source.DisplayName(), r.Target.DisplayName(), r.SourcePlaylist.Name)
	fmt.Fprintf(&buf, "%s playlist %q (ID: %s)\n", verb, r.TargetPlaylistName, r.TargetPlaylistID)
	if r.TargetPlaylistURL != "" {
		fmt.Fprintf(&buf, "URL: %s\n", r.TargetPlaylistURL)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "Total:      %d\n", r.Total)
	fmt.Fprintf(&buf, "Imported:   %d\n", r.Imported)
	fmt.Fprintf(&buf, "Skipped:    %d\n", r.Skipped)
	fmt.Fprintf(&buf, "Duplicates: %d\n", r.DuplicatesSkipped)
	fmt.Fprintf(&buf, "Duration:   %s\n", shared.FormatDuration(r.Duration))

	if len(r.SkippedTracks) > 0 {
		buf.WriteString("\nNo mapping found for:\n")
		buf.WriteString(SkippedToText(r.SkippedTracks))
	}

	return buf.String()
}

// SkippedToText lists skipped tracks one per line, numbered in source order.
func SkippedToText(tracks []models.SourceTrack) string {
	var buf strings.Builder
	for i, t := range tracks {
		fmt.Fprintf(&buf, "  %d. %s\n", i+1, t.DisplayName())
	}
	return buf.String()
}

// ResultToMarkdown renders r as a Markdown report.
func ResultToMarkdown(r *tasks.MigrationResult) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", r.TargetPlaylistName)
	fmt.Fprintf(&buf, "**From**: %s (%s)\n", r.Source.DisplayName(), r.SourcePlaylist.ID)
	if r.TargetPlaylistURL != "" {
		fmt.Fprintf(&buf, "**To**: [%s](%s)\n\n", r.Target.DisplayName(), r.TargetPlaylistURL)
	} else {
		fmt.Fprintf(&buf, "**To**: %s (%s)\n\n", r.Target.DisplayName(), r.TargetPlaylistID)
	}

	buf.WriteString("| Imported | Skipped | Duplicates | Total |\n")
	buf.WriteString("|---|---|---|---|\n")
	fmt.Fprintf(&buf, "| %d | %d | %d | %d |\n", r.Imported, r.Skipped, r.DuplicatesSkipped, r.Total)

	if len(r.SkippedTracks) > 0 {
		buf.WriteString("\n## Skipped\n\n")
		for i, t := range r.SkippedTracks {
			fmt.Fprintf(&buf, "%d. %s\n", i+1, t.DisplayName())
		}
	}

	return buf.Bytes()
}

// TracksToCSV converts tracks to CSV with columns: ID, Title, Artist, Album, Display
func TracksToCSV(tracks []models.SourceTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Display"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, t := range tracks {
		if err := writer.Write([]string{t.ID, t.Title, t.Artist, t.Album, t.DisplayName()}); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteSkippedReport writes r's skipped tracks to path, creating parent directories.
// A ".md" path gets the Markdown report, anything else CSV.
func WriteSkippedReport(r *tasks.MigrationResult, path string) error {
	if path == "" {
		return fmt.Errorf("%w: report path", shared.ErrMissingArgument)
	}

	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".md") {
		data = ResultToMarkdown(r)
	} else {
		var err error
		if data, err = TracksToCSV(r.SkippedTracks); err != nil {
			return fmt.Errorf("failed to generate CSV: %w", err)
		}
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// PlaylistsToText renders one playlist per line.
func PlaylistsToText(playlists []models.Playlist) string {
	if len(playlists) == 0 {
		return "No playlists found.\n"
	}

	var buf strings.Builder
	for i, p := range playlists {
		fmt.Fprintf(&buf, "%d. %s (%d tracks) [%s]\n", i+1, p.Name, p.TrackCount, p.ID)
	}
	return buf.String()
}

// TracksToText renders a numbered track listing under the playlist id.
func TracksToText(playlistID string, tracks []models.SourceTrack) string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Playlist: %s\n", playlistID)
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(tracks))
	for i, t := range tracks {
		fmt.Fprintf(&buf, "%d. %s\n", i+1, t.DisplayName())
	}
	return buf.String()
}

// MappingToText renders a resolved mapping, listing targets in provider order.
func MappingToText(m *models.TrackMapping) string {
	if m == nil {
		return "No mapping found.\n"
	}

	var buf strings.Builder
	fmt.Fprintf(&buf, "%s %s\n", m.SourceService.DisplayName(), m.SourceID)
	if m.Title != "" {
		track := models.SourceTrack{ID: m.SourceID, Title: m.Title, Artist: m.Artist}
		fmt.Fprintf(&buf, "  %s\n", track.DisplayName())
	}
	for _, p := range models.Providers {
		if id, ok := m.Targets[p]; ok {
			fmt.Fprintf(&buf, "  %-8s %s\n", p.DisplayName()+":", id)
		}
	}
	return buf.String()
}

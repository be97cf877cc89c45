package ui

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
	th "github.com/desertthunder/plx/internal/testing"
)

func newTestModel(playlistID string) (*Model, *th.FakeProvider) {
	logger := log.New(io.Discard)
	source := th.NewFakeProvider(models.Tidal).WithPlaylist("src", "Road Trip",
		models.SourceTrack{ID: "t1", Title: "One", Artist: "A"},
		models.SourceTrack{ID: "t2"},
	)
	target := th.NewFakeProvider(models.Deezer)

	resolver := mapping.NewResolver(mapping.SourceFunc(func(ctx context.Context, service models.Provider, id string) (*models.TrackMapping, error) {
		if id != "t1" {
			return nil, nil
		}
		return &models.TrackMapping{SourceService: service, SourceID: id, Targets: map[models.Provider]string{models.Deezer: "d1"}}, nil
	}), mapping.WithLogger(logger))
	engine := tasks.NewMigrationEngine(services.NewRegistry(source, target), resolver, logger)

	req := tasks.MigrationRequest{
		Source:           models.Tidal,
		Target:           models.Deezer,
		SourceCredential: models.BearerCredential("tok"),
		TargetCredential: models.SessionCredential("arl"),
	}
	if playlistID != "" {
		req.SourcePlaylist = models.Playlist{ID: playlistID, Name: "Road Trip"}
	}

	m := NewModel(context.Background(), source, engine, req)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return m, target
}

func keyPress(s string) tea.KeyMsg {
	if s == "enter" {
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// drive runs cmd and feeds its messages back into m until the migration reaches the result view.
func drive(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	pending := []tea.Cmd{cmd}
	for steps := 0; len(pending) > 0 && m.view != ResultView; steps++ {
		if steps > 200 {
			t.Fatal("migration did not finish")
		}
		next := pending[0]
		pending = pending[1:]
		if next == nil {
			continue
		}

		msg := next()
		if batch, ok := msg.(tea.BatchMsg); ok {
			pending = append(pending, batch...)
			continue
		}
		if _, ok := msg.(Msg); !ok {
			continue
		}
		_, follow := m.Update(msg)
		pending = append(pending, follow)
	}
}

func TestModelFlow(t *testing.T) {
	t.Run("Browse Confirm And Migrate", func(t *testing.T) {
		m, target := newTestModel("")
		if m.view != PlaylistListView {
			t.Fatalf("expected playlist view, got %d", m.view)
		}

		m.Update(playlistsFetchedMsg(m.source.(*th.FakeProvider).Playlists, nil))
		if !strings.Contains(m.View(), "TIDAL Playlists") {
			t.Errorf("playlist list not rendered:\n%s", m.View())
		}

		_, cmd := m.Update(keyPress("enter"))
		if cmd == nil {
			t.Fatal("selecting a playlist should fetch its tracks")
		}
		m.Update(cmd())
		if m.view != TrackListView {
			t.Fatalf("expected track view, got %d", m.view)
		}

		m.Update(keyPress("enter"))
		if m.view != ConfirmView {
			t.Fatalf("expected confirm view, got %d", m.view)
		}
		if view := m.View(); !strings.Contains(view, "Migrate 'Road Trip' to Deezer?") || !strings.Contains(view, "(2 tracks)") {
			t.Errorf("confirm view missing details:\n%s", view)
		}

		_, cmd = m.Update(keyPress("y"))
		if m.view != TransferView {
			t.Fatalf("expected transfer view, got %d", m.view)
		}
		drive(t, m, cmd)

		result, err := m.Result()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Imported != 1 || result.Skipped != 1 || result.TargetPlaylistName != "Road Trip" {
			t.Errorf("unexpected result %+v", result)
		}
		if len(target.Adds()) != 1 {
			t.Errorf("expected one write, got %d", len(target.Adds()))
		}
	})

	t.Run("Starts Directly With A Playlist", func(t *testing.T) {
		m, _ := newTestModel("src")
		if m.view != TransferView {
			t.Fatalf("expected transfer view, got %d", m.view)
		}

		drive(t, m, m.Init())
		if m.view != ResultView {
			t.Fatalf("expected result view, got %d", m.view)
		}

		view := m.View()
		if !strings.Contains(view, "Migration Complete") || !strings.Contains(view, "No mapping found for 1 tracks") {
			t.Errorf("result view missing summary:\n%s", view)
		}
		if strings.Contains(view, "Unknown Track (t2)") {
			t.Error("skipped tracks should be hidden until toggled")
		}

		m.Update(keyPress("s"))
		if !strings.Contains(m.View(), "Unknown Track (t2)") {
			t.Errorf("skipped tracks should be listed after toggling:\n%s", m.View())
		}
	})

	t.Run("Fetch Error Is Shown", func(t *testing.T) {
		m, _ := newTestModel("")
		m.Update(playlistsFetchedMsg(nil, errors.New("boom")))
		if !strings.Contains(m.View(), "Error: boom") {
			t.Errorf("error not rendered:\n%s", m.View())
		}

		_, cmd := m.Update(keyPress("q"))
		if cmd == nil {
			t.Fatal("q should quit")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected a quit message")
		}
	})
}

func TestDescribeFailure(t *testing.T) {
	tc := []struct {
		name string
		err  error
		want string
	}{
		{name: "input", err: shared.ErrMissingCredentials, want: "Could not start"},
		{
			name: "after start",
			err:  &tasks.MigrationError{Phase: tasks.PhaseWriting, Progress: tasks.MigrationProgress{Imported: 3, Skipped: 1}, Err: errors.New("403")},
			want: "Failed after 4 tracks classified (writing)",
		},
		{name: "other", err: errors.New("boom"), want: "Migration failed: boom"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeFailure(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("describeFailure() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestPhaseLabel(t *testing.T) {
	seen := map[string]bool{}
	for p := tasks.PhaseValidating; p <= tasks.PhaseDone; p++ {
		label := phaseLabel(p)
		if label == "Processing" || seen[label] {
			t.Errorf("phase %s has no distinct label (%q)", p, label)
		}
		seen[label] = true
	}
}

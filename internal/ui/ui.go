package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
)

const (
	recentShown  = 5
	skippedShown = 20
	maxBarWidth  = 60
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	TransferView
	ResultView
)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	source       services.PlaylistProvider
	engine       tasks.Migrator
	request      tasks.MigrationRequest
	targetName   string
	width        int
	height       int
	playlistList list.Model
	trackList    list.Model
	listsReady   [2]bool // playlistList, trackList built
	tracks       []models.SourceTrack
	loading      bool
	progressChan chan tasks.ProgressUpdate
	doneChan     chan transferComplete
	progress     tasks.ProgressUpdate
	bar          progress.Model
	spinner      spinner.Model
	result       *tasks.MigrationResult
	err          error
	showSkipped  bool
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model for req. The source adapter lists playlists when req names no source playlist.
//
// req.TargetName, when set, overrides the default of reusing the source playlist's name.
func NewModel(ctx context.Context, source services.PlaylistProvider, engine tasks.Migrator, req tasks.MigrationRequest) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.warn

	m := &Model{
		ctx:        ctx,
		view:       PlaylistListView,
		source:     source,
		engine:     engine,
		request:    req,
		targetName: req.TargetName,
		bar:        progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spinner:    s,
		help:       help.New(),
		keys:       newKeyMap(),
	}
	if req.SourcePlaylist.ID != "" {
		m.view = TransferView
	}
	return m
}

// Result returns the outcome of the last migration, if one finished.
func (m *Model) Result() (*tasks.MigrationResult, error) {
	return m.result, m.err
}

// Init either starts the requested migration or fetches the source playlists.
func (m *Model) Init() tea.Cmd {
	if m.view == TransferView {
		return tea.Batch(m.spinner.Tick, m.startTransfer())
	}
	return tea.Batch(m.spinner.Tick, m.fetchPlaylists())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(max(msg.Width-8, 10), maxBarWidth)
		if m.listsReady[0] {
			m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		}
		if m.listsReady[1] {
			m.trackList.SetSize(msg.Width-4, msg.Height-8)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case TransferView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsFetched)
		m.loading = false
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.playlistList.Title = fmt.Sprintf("%s Playlists", m.request.Source.DisplayName())
		m.playlistList.SetSize(m.width-4, m.height-8)
		m.listsReady[0] = true

	case MsgTracksFetched:
		data := msg.data.(tracksFetched)
		m.loading = false
		if data.err != nil {
			m.err = data.err
			m.view = PlaylistListView
			return m, nil
		}
		m.request.SourcePlaylist = data.playlist
		m.tracks = data.tracks
		items := make([]list.Item, len(data.tracks))
		for i, t := range data.tracks {
			items[i] = trackItem{track: t}
		}
		m.trackList = list.New(items, list.NewDefaultDelegate(), 0, 0)
		m.trackList.Title = fmt.Sprintf("Tracks in '%s'", data.playlist.Name)
		m.trackList.SetSize(m.width-4, m.height-8)
		m.listsReady[1] = true
		m.view = TrackListView

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgTransferComplete:
		data := msg.data.(transferComplete)
		m.result = data.result
		m.err = data.err
		m.progressChan, m.doneChan = nil, nil
		m.view = ResultView
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case TransferView:
		return m.renderTransfer()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !m.listsReady[0] {
		if key.Matches(msg, m.keys.quit) {
			return m, tea.Quit
		}
		return m, nil
	}
	if m.playlistList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.playlistList, cmd = m.playlistList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok && !m.loading {
			return m, m.fetchTracks(pl.playlist)
		}
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.enter):
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no), key.Matches(msg, m.keys.back):
		m.view = TrackListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = TransferView
		return m, tea.Batch(m.spinner.Tick, m.startTransfer())
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.skipped):
		m.showSkipped = !m.showSkipped
		return m, nil
	case key.Matches(msg, m.keys.restart):
		m.view = PlaylistListView
		m.request.SourcePlaylist = models.Playlist{}
		m.progress = tasks.ProgressUpdate{}
		m.result = nil
		m.err = nil
		m.showSkipped = false
		if !m.listsReady[0] {
			return m, m.fetchPlaylists()
		}
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch {
	case m.view == PlaylistListView && m.listsReady[0]:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case m.view == TrackListView && m.listsReady[1]:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	m.loading = true
	ctx, source, cred := m.ctx, m.source, m.request.SourceCredential
	return func() tea.Msg {
		playlists, err := source.ListPlaylists(ctx, cred)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(playlist models.Playlist) tea.Cmd {
	m.loading = true
	ctx, source, cred := m.ctx, m.source, m.request.SourceCredential
	return func() tea.Msg {
		tracks, err := source.ListPlaylistTracks(ctx, playlist.ID, cred, nil)
		return tracksFetchedMsg(playlist, tracks, err)
	}
}

// migrationRequest fills the target name from the selected playlist unless one was given.
func (m *Model) migrationRequest() tasks.MigrationRequest {
	req := m.request
	req.TargetName = m.targetName
	if strings.TrimSpace(req.TargetName) == "" {
		req.TargetName = req.SourcePlaylist.Name
	}
	return req
}

func (m *Model) startTransfer() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 64)
	done := make(chan transferComplete, 1)
	m.progressChan, m.doneChan = progress, done

	ctx, engine, req := m.ctx, m.engine, m.migrationRequest()
	go func() {
		result, err := engine.Migrate(ctx, req, progress)
		done <- transferComplete{result: result, err: err}
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	if done == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case update := <-progress:
			return progressUpdateMsg(update)
		case c := <-done:
			return transferCompleteMsg(c.result, c.err)
		}
	}
}

func (m *Model) renderPlaylistList() string {
	if !m.listsReady[0] {
		return fmt.Sprintf("%s Loading %s playlists...", m.spinner.View(), m.request.Source.DisplayName())
	}
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderTrackList() string {
	migrateKey := key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "migrate"))
	helpKeys := []key.Binding{migrateKey, m.keys.back, m.keys.quit}
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderConfirm() string {
	req := m.migrationRequest()
	title := styles.title.Render(fmt.Sprintf("Migrate '%s' to %s?", req.SourcePlaylist.Name, req.Target.DisplayName()))

	dedup := "skip tracks already on the playlist"
	if req.AllowDuplicates {
		dedup = "allow duplicates"
	}
	info := fmt.Sprintf("Source:  %s (%d tracks)\nTarget:  %s\nMode:    %s",
		req.SourcePlaylist.Name, len(m.tracks), req.TargetName, dedup)

	helpKeys := []key.Binding{m.keys.yes, m.keys.no, m.keys.quit}
	return fmt.Sprintf("%s\n%s\n\n%s", title, styles.box.Render(info), m.help.ShortHelpView(helpKeys))
}

func phaseLabel(p tasks.Phase) string {
	switch p {
	case tasks.PhaseValidating:
		return "Checking credentials"
	case tasks.PhaseFetchingSource:
		return "Fetching source playlist"
	case tasks.PhaseResolvingTarget:
		return "Preparing target playlist"
	case tasks.PhaseFetchingTargetExisting:
		return "Reading existing tracks"
	case tasks.PhaseResolving:
		return "Matching tracks"
	case tasks.PhaseWriting:
		return "Adding tracks"
	case tasks.PhaseDone:
		return "Done"
	default:
		return "Processing"
	}
}

func lastN(tracks []models.SourceTrack, n int) []models.SourceTrack {
	if len(tracks) > n {
		return tracks[len(tracks)-n:]
	}
	return tracks
}

func (m *Model) renderTransfer() string {
	req := m.migrationRequest()
	p := m.progress.Progress

	var b strings.Builder
	b.WriteString(styles.title.Render(fmt.Sprintf("%s → %s: %s", req.Source.DisplayName(), req.Target.DisplayName(), req.SourcePlaylist.Name)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), phaseLabel(m.progress.Phase))
	if m.progress.Message != "" {
		b.WriteString(styles.help.Render(m.progress.Message))
		b.WriteString("\n")
	}

	if p.Total > 0 {
		fmt.Fprintf(&b, "\n%s %d/%d\n", m.bar.ViewAs(p.Percent()/100), p.Current, p.Total)
		fmt.Fprintf(&b, "%s  %s  %s\n",
			styles.ok.Render(fmt.Sprintf("✓ %d imported", p.Imported)),
			styles.warn.Render(fmt.Sprintf("⏭ %d duplicates", p.DuplicatesSkipped)),
			styles.err.Render(fmt.Sprintf("✗ %d skipped", p.Skipped)),
		)
	}

	for _, t := range lastN(p.RecentImported, recentShown) {
		fmt.Fprintf(&b, "  %s %s\n", styles.ok.Render("✓"), t.DisplayName())
	}
	for _, t := range lastN(p.RecentSkipped, recentShown) {
		fmt.Fprintf(&b, "  %s %s\n", styles.err.Render("✗"), t.DisplayName())
	}

	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView([]key.Binding{m.keys.quit}))
	return b.String()
}

func (m *Model) renderResult() string {
	helpKeys := []key.Binding{m.keys.restart, m.keys.quit}
	helpView := m.help.ShortHelpView(helpKeys)

	if m.err != nil {
		return styles.err.Render(describeFailure(m.err)) + "\n\n" + helpView
	}
	if m.result == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	r := m.result
	title := styles.ok.Render("✓ Migration Complete!")
	info := fmt.Sprintf("%s\nImported:   %d/%d\nDuplicates: %d\nSkipped:    %d\nDuration:   %s",
		r.TargetPlaylistURL, r.Imported, r.Total, r.DuplicatesSkipped, r.Skipped, shared.FormatDuration(r.Duration))

	var skipped string
	if len(r.SkippedTracks) > 0 {
		helpKeys = append([]key.Binding{m.keys.skipped}, helpKeys...)
		helpView = m.help.ShortHelpView(helpKeys)
		skipped = "\n\n" + styles.warn.Render(fmt.Sprintf("No mapping found for %d tracks", len(r.SkippedTracks)))
		if m.showSkipped {
			for _, t := range r.SkippedTracks[:min(len(r.SkippedTracks), skippedShown)] {
				skipped += fmt.Sprintf("\n  • %s", t.DisplayName())
			}
			if extra := len(r.SkippedTracks) - skippedShown; extra > 0 {
				skipped += fmt.Sprintf("\n  ...and %d more", extra)
			}
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, styles.box.Render(info), skipped, helpView)
}

// describeFailure renders err the way the CLI reports it.
func describeFailure(err error) string {
	var me *tasks.MigrationError
	switch {
	case shared.IsInputError(err):
		return fmt.Sprintf("Could not start: %v", err)
	case errors.As(err, &me):
		return fmt.Sprintf("Failed after %d tracks classified (%s): %v", me.Progress.Classified(), me.Phase, me.Err)
	default:
		return fmt.Sprintf("Migration failed: %v", err)
	}
}

// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI provides a multi-view workflow for playlist migration:
//  1. [PlaylistListView] : Browse and select source playlists
//  2. [TrackListView] : Preview tracks before migrating
//  3. [ConfirmView] : Confirm the target provider and playlist name
//  4. [TransferView] : Monitor real-time progress with a progress bar and recent tracks
//  5. [ResultView] : Display counts and tracks without a mapping
//
// When the request already names a source playlist the model starts in [TransferView].
//
// The (view) [Model] implements bubbletea/Elm's standard Init/Update/View pattern, receiving messages via the [Msg] union type.
// Progress updates flow through a channel from the [tasks.Migrator], so the engine never blocks on rendering.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui

package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/plx/internal/formatter"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
	"github.com/desertthunder/plx/internal/ui"
)

const tuiLogPath = "./tmp/plx-tui.log"

// migrateTUI runs the migration behind the interactive view. Without --playlist the view starts at the playlist picker.
func (r *Runner) migrateTUI(ctx context.Context, opts migrateOpts) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	fileLogger.SetLevel(r.logger.GetLevel())
	r.SetLogger(fileLogger)

	resolver, closeSource, err := r.newResolver(mapping.NewMemoryCache())
	if err != nil {
		return describeFailure(err)
	}
	defer closeSource()

	source, err := r.providers.Get(opts.request.Source)
	if err != nil {
		return describeFailure(err)
	}

	req := opts.request
	if opts.playlistID != "" {
		req.SourcePlaylist = models.Playlist{ID: opts.playlistID, Name: opts.name, Service: opts.request.Source}
		if req.SourcePlaylist.Name == "" {
			if req.SourcePlaylist, err = r.sourcePlaylist(ctx, source, opts); err != nil {
				return describeFailure(err)
			}
		}
	}

	engine := tasks.NewMigrationEngine(r.providers, resolver, r.logger)
	model := ui.NewModel(ctx, source, engine, req)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	result, err := model.Result()
	switch {
	case err != nil:
		return describeFailure(err)
	case result == nil:
		return nil
	}

	if opts.report != "" {
		if err := formatter.WriteSkippedReport(result, opts.report); err != nil {
			return err
		}
		r.writePlain("Report written to %s\n", opts.report)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/plx/internal/formatter"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// migrateOpts are the parsed flags of `plx migrate`.
type migrateOpts struct {
	request    tasks.MigrationRequest
	playlistID string
	name       string
	report     string
}

// Migrate runs one playlist migration and prints its summary.
//
// Failures are reported as "could not start" when nothing was sent to a provider,
// or with the number of tracks classified when the run stopped part way.
func (r *Runner) Migrate(ctx context.Context, cmd *cli.Command) error {
	opts, err := r.parseMigrate(cmd)
	if err != nil {
		return describeFailure(err)
	}

	if cmd.Bool("tui") {
		return r.migrateTUI(ctx, opts)
	}
	if opts.playlistID == "" {
		return describeFailure(fmt.Errorf("%w: --playlist is required without --tui", shared.ErrMissingArgument))
	}

	source, _ := r.providers.Get(opts.request.Source)
	playlist, err := r.sourcePlaylist(ctx, source, opts)
	if err != nil {
		return describeFailure(err)
	}
	opts.request.SourcePlaylist = playlist
	if opts.request.TargetName == "" {
		opts.request.TargetName = playlist.Name
	}

	resolver, closeSource, err := r.newResolver(mapping.NewMemoryCache())
	if err != nil {
		return describeFailure(err)
	}
	defer closeSource()

	engine := tasks.NewMigrationEngine(r.providers, resolver, r.logger)

	r.logger.Info("starting migration", "from", opts.request.Source, "to", opts.request.Target, "playlist", playlist.ID)
	if r.format == formatter.FormatText {
		r.writePlain("%s → %s: %s\n", opts.request.Source.DisplayName(), opts.request.Target.DisplayName(), playlist.Name)
	}

	progressCh := make(chan tasks.ProgressUpdate, 64)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		r.printProgress(progressCh)
	}()

	result, err := engine.Migrate(ctx, opts.request, progressCh)
	close(progressCh)
	<-printed

	if err != nil {
		return describeFailure(err)
	}
	return r.finishMigration(result, opts.report)
}

func (r *Runner) parseMigrate(cmd *cli.Command) (migrateOpts, error) {
	from, _, err := r.provider(cmd.String("from"))
	if err != nil {
		return migrateOpts{}, fmt.Errorf("--from: %w", err)
	}
	to, _, err := r.provider(cmd.String("to"))
	if err != nil {
		return migrateOpts{}, fmt.Errorf("--to: %w", err)
	}

	concurrency := int(cmd.Int("concurrency"))
	if concurrency < 0 {
		return migrateOpts{}, fmt.Errorf("%w: --concurrency must not be negative", shared.ErrInvalidArgument)
	}

	opts := migrateOpts{
		playlistID: strings.TrimSpace(cmd.String("playlist")),
		name:       strings.TrimSpace(cmd.String("name")),
		report:     cmd.String("report"),
		request: tasks.MigrationRequest{
			Source:           from,
			Target:           to,
			TargetName:       strings.TrimSpace(cmd.String("name")),
			SourceCredential: r.credentialFor(from),
			TargetCredential: r.credentialFor(to),
			AllowDuplicates:  cmd.Bool("allow-duplicates"),
			Concurrency:      concurrency,
		},
	}

	if err := opts.request.SourceCredential.Validate(from); err != nil {
		return migrateOpts{}, fmt.Errorf("source: %w", err)
	}
	if err := opts.request.TargetCredential.Validate(to); err != nil {
		return migrateOpts{}, fmt.Errorf("target: %w", err)
	}
	return opts, nil
}

// sourcePlaylist finds the playlist's metadata in the caller's library.
//
// With --name set a playlist missing from the library (one followed by link, say) is still migrated by id.
func (r *Runner) sourcePlaylist(ctx context.Context, source services.PlaylistProvider, opts migrateOpts) (models.Playlist, error) {
	playlists, err := source.ListPlaylists(ctx, opts.request.SourceCredential)
	if err == nil {
		for _, p := range playlists {
			if p.ID == opts.playlistID {
				return p, nil
			}
		}
	}

	if opts.name != "" {
		r.logger.Debug("source playlist not in library, using id", "playlist", opts.playlistID, "error", err)
		return models.Playlist{ID: opts.playlistID, Name: opts.name, Service: source.Name()}, nil
	}
	if err != nil {
		return models.Playlist{}, fmt.Errorf("failed to look up playlist %s: %w", opts.playlistID, err)
	}
	return models.Playlist{}, fmt.Errorf("%w: %s has no playlist %s in your library (pass --name to migrate it anyway)",
		shared.ErrPlaylistNotFound, source.Name().DisplayName(), opts.playlistID)
}

// printProgress writes phase changes and per-track outcomes until updates is closed.
func (r *Runner) printProgress(updates <-chan tasks.ProgressUpdate) {
	last := tasks.Phase(-1)
	for update := range updates {
		if r.format != formatter.FormatText {
			continue
		}

		switch update.Phase {
		case tasks.PhaseResolving:
			if strings.HasPrefix(update.Message, "[") {
				r.writePlain("   %s\n", update.Message)
			} else if update.Phase != last {
				r.writePlain("\n🔍 %s\n", update.Message)
			}
		case tasks.PhaseResolvingTarget, tasks.PhaseWriting:
			r.writePlain("📝 %s\n", update.Message)
		case tasks.PhaseDone:
		default:
			if update.Phase != last {
				r.writePlain("📥 %s\n", update.Message)
			}
		}
		last = update.Phase
	}
}

// finishMigration prints the result and writes the skipped-track report if one was asked for.
func (r *Runner) finishMigration(result *tasks.MigrationResult, report string) error {
	if r.format == formatter.FormatJSON {
		if err := r.writeJSON(formatter.NewResultView(result), true); err != nil {
			return err
		}
	} else {
		r.writePlain("\n═══════════════════════════════════════\n")
		r.writePlain("Migration Complete!\n")
		r.writePlain("═══════════════════════════════════════\n")
		r.writePlain("%s", formatter.ResultToText(result))
	}

	if report != "" {
		if err := formatter.WriteSkippedReport(result, report); err != nil {
			return err
		}
		r.logger.Info("wrote skipped track report", "path", report, "tracks", len(result.SkippedTracks))
	}
	return nil
}

// describeFailure prefixes err with how far the migration got.
func describeFailure(err error) error {
	var me *tasks.MigrationError
	switch {
	case errors.As(err, &me):
		return fmt.Errorf("failed after %d tracks classified (%s): %w", me.Progress.Classified(), me.Phase, me.Err)
	default:
		return fmt.Errorf("could not start: %w", err)
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/plx/internal/formatter"
	"github.com/urfave/cli/v3"
)

// Playlists lists the caller's playlists on --provider.
func (r *Runner) Playlists(ctx context.Context, cmd *cli.Command) error {
	p, svc, err := r.provider(cmd.String("provider"))
	if err != nil {
		return err
	}

	cred := r.credentialFor(p)
	if err := cred.Validate(p); err != nil {
		return err
	}

	r.logger.Infof("listing %s playlists", p.DisplayName())

	playlists, err := svc.ListPlaylists(ctx, cred)
	if err != nil {
		return fmt.Errorf("failed to list playlists: %w", err)
	}

	return r.writeOutput(playlists, formatter.PlaylistsToText(playlists))
}

// Tracks lists the tracks of --playlist, optionally writing them to a CSV file as well.
func (r *Runner) Tracks(ctx context.Context, cmd *cli.Command) error {
	p, svc, err := r.provider(cmd.String("provider"))
	if err != nil {
		return err
	}
	playlistID := cmd.String("playlist")

	cred := r.credentialFor(p)
	if err := cred.Validate(p); err != nil {
		return err
	}

	r.logger.Info("fetching playlist tracks", "service", p, "playlist", playlistID)

	tracks, err := svc.ListPlaylistTracks(ctx, playlistID, cred, func(loaded, estimated int) {
		r.logger.Debug("fetched tracks", "loaded", loaded, "estimated", estimated)
	})
	if err != nil {
		return fmt.Errorf("failed to list tracks: %w", err)
	}

	if path := cmd.String("csv"); path != "" {
		data, err := formatter.TracksToCSV(tracks)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write CSV: %w", err)
		}
		r.logger.Info("wrote track listing", "path", path, "tracks", len(tracks))
	}

	return r.writeOutput(tracks, formatter.TracksToText(playlistID, tracks))
}

// Spotify implementation of [PlaylistProvider]
//
// Built on [spotify.Client]; requests go through the retrying fetch client via [httpclient.Transport].
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/httpclient"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

const (
	spotifyPlaylistURL  = "https://open.spotify.com/playlist/"
	spotifyPlaylistPage = 50
	spotifyItemsPage    = 100
	spotifyChunkSize    = 100
)

// SpotifyService talks to the Spotify Web API with a bearer token.
type SpotifyService struct {
	client  *httpclient.Client
	baseURL string
	logger  *log.Logger
}

// NewSpotifyService creates a Spotify adapter. baseURL overrides the API root (tests); leave empty for the public API.
func NewSpotifyService(client *httpclient.Client, baseURL string, logger *log.Logger) *SpotifyService {
	if logger == nil {
		logger = log.Default()
	}
	if baseURL != "" && !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &SpotifyService{
		client:  client,
		baseURL: baseURL,
		logger:  shared.WithLogger(logger, "service", models.Spotify),
	}
}

// api builds a [spotify.Client] for one credential; the token is sent as-is and never refreshed.
func (s *SpotifyService) api(cred models.Credential) *spotify.Client {
	token := cred.Token
	if token == nil {
		token = &oauth2.Token{}
	}
	hc := &http.Client{Transport: &oauth2.Transport{
		Source: oauth2.StaticTokenSource(token),
		Base:   &httpclient.Transport{Client: s.client},
	}}

	var opts []spotify.ClientOption
	if s.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(s.baseURL))
	}
	return spotify.New(hc, opts...)
}

// spotifyError converts SDK errors into [shared.ProviderError]; transport errors pass through.
func spotifyError(err error) error {
	var se spotify.Error
	if errors.As(err, &se) {
		return &shared.ProviderError{Service: string(models.Spotify), Status: se.Status, Message: se.Message}
	}
	return err
}

// Name implements [PlaylistProvider].
func (s *SpotifyService) Name() models.Provider { return models.Spotify }

// PlaylistURL implements [PlaylistProvider].
func (s *SpotifyService) PlaylistURL(playlistID string) string { return spotifyPlaylistURL + playlistID }

// ListPlaylists pages by offset until Spotify stops returning a next link.
// Followed playlists owned by other users are included.
func (s *SpotifyService) ListPlaylists(ctx context.Context, cred models.Credential) ([]models.Playlist, error) {
	return s.listPlaylists(ctx, s.api(cred), "")
}

// listPlaylists keeps only playlists owned by ownerID unless it is empty.
func (s *SpotifyService) listPlaylists(ctx context.Context, client *spotify.Client, ownerID string) ([]models.Playlist, error) {
	var playlists []models.Playlist
	for offset := 0; ; {
		page, err := client.CurrentUsersPlaylists(ctx, spotify.Limit(spotifyPlaylistPage), spotify.Offset(offset))
		if err != nil {
			return nil, fmt.Errorf("failed to list Spotify playlists: %w", spotifyError(err))
		}

		for _, p := range page.Playlists {
			if ownerID != "" && p.Owner.ID != ownerID {
				continue
			}
			playlists = append(playlists, models.Playlist{
				ID:          string(p.ID),
				Name:        p.Name,
				Description: p.Description,
				TrackCount:  int(p.Tracks.Total),
				Service:     models.Spotify,
			})
		}

		offset += len(page.Playlists)
		if page.Next == "" || len(page.Playlists) == 0 {
			break
		}
	}

	s.logger.Debug("listed playlists", "count", len(playlists))
	return playlists, nil
}

// ListPlaylistTracks pages playlist items 100 at a time, skipping local files and podcast episodes.
func (s *SpotifyService) ListPlaylistTracks(ctx context.Context, playlistID string, cred models.Credential, onProgress ProgressFunc) ([]models.SourceTrack, error) {
	client := s.api(cred)
	tracks := []models.SourceTrack{}
	estimated := 0

	for offset := 0; ; {
		page, err := client.GetPlaylistItems(ctx, spotify.ID(playlistID), spotify.Limit(spotifyItemsPage), spotify.Offset(offset))
		if err != nil {
			err = spotifyError(err)
			if pe, ok := shared.IsProviderError(err); ok && pe.Status == http.StatusNotFound {
				s.logger.Debug("playlist not found, treating as empty", "playlist", playlistID)
				return []models.SourceTrack{}, nil
			}
			return nil, fmt.Errorf("failed to list Spotify playlist tracks: %w", err)
		}

		if offset == 0 {
			estimated = int(page.Total)
		}

		for _, item := range page.Items {
			t := item.Track.Track
			if item.IsLocal || t == nil || t.ID == "" {
				continue
			}
			st := models.SourceTrack{ID: string(t.ID), Title: t.Name, Album: t.Album.Name}
			if len(t.Artists) > 0 {
				st.Artist = t.Artists[0].Name
			}
			tracks = append(tracks, st)
		}

		report(onProgress, len(tracks), estimated)

		offset += len(page.Items)
		if page.Next == "" || len(page.Items) == 0 {
			break
		}
	}

	return tracks, nil
}

// PlaylistExistsByName implements [PlaylistProvider]. Only playlists the current user owns
// are candidates, since tracks cannot be added to anyone else's.
func (s *SpotifyService) PlaylistExistsByName(ctx context.Context, name string, cred models.Credential) (*models.Playlist, error) {
	client := s.api(cred)

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get Spotify user: %w", spotifyError(err))
	}

	playlists, err := s.listPlaylists(ctx, client, user.ID)
	if err != nil {
		return nil, err
	}
	return findByName(playlists, name), nil
}

// CreatePlaylist creates a private playlist owned by the current user.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, name string, cred models.Credential) (string, error) {
	client := s.api(cred)

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get Spotify user: %w", spotifyError(err))
	}

	playlist, err := client.CreatePlaylistForUser(ctx, user.ID, name, "", false, false)
	if err != nil {
		return "", fmt.Errorf("failed to create Spotify playlist: %w", spotifyError(err))
	}

	s.logger.Info("created playlist", "id", playlist.ID, "name", name)
	return string(playlist.ID), nil
}

// AddTracks appends in chunks of 100, the API maximum.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, trackIDs []string, cred models.Credential) error {
	client := s.api(cred)

	return writeChunks(ctx, trackIDs, spotifyChunkSize, func(ctx context.Context, chunk []string) error {
		ids := make([]spotify.ID, len(chunk))
		for i, id := range chunk {
			ids[i] = spotify.ID(id)
		}
		if _, err := client.AddTracksToPlaylist(ctx, spotify.ID(playlistID), ids...); err != nil {
			return fmt.Errorf("failed to add tracks to Spotify playlist: %w", spotifyError(err))
		}
		s.logger.Debug("added tracks", "playlist", playlistID, "count", len(chunk))
		return nil
	})
}

// TIDAL implementation of [PlaylistProvider]
//
// TIDAL's v2 API speaks JSON:API (https://tidal-music.github.io/tidal-api-reference/)
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/httpclient"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

const (
	tidalBaseURL     = "https://openapi.tidal.com/v2"
	tidalListenURL   = "https://listen.tidal.com/playlist/"
	tidalContentType = "application/vnd.api+json"
	tidalChunkSize   = 20
)

type tidalLinks struct {
	Next string `json:"next"`
}

type tidalIdentifier struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type tidalPlaylistAttributes struct {
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	AccessType    string `json:"accessType,omitempty"`
	NumberOfItems int    `json:"numberOfItems,omitempty"`
}

// TidalPlaylist is a playlists resource object.
type TidalPlaylist struct {
	ID         string                  `json:"id,omitempty"`
	Type       string                  `json:"type"`
	Attributes tidalPlaylistAttributes `json:"attributes"`
}

// TidalTrack is a tracks resource object as returned in "included".
type TidalTrack struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Attributes struct {
		Title string `json:"title"`
	} `json:"attributes"`
}

type tidalPlaylistsDocument struct {
	Data  []TidalPlaylist `json:"data"`
	Links tidalLinks      `json:"links"`
}

type tidalItemsDocument struct {
	Data     []tidalIdentifier `json:"data"`
	Included []TidalTrack      `json:"included"`
	Links    tidalLinks        `json:"links"`
	Meta     struct {
		Total int `json:"total"`
	} `json:"meta"`
}

type tidalUserDocument struct {
	Data tidalIdentifier `json:"data"`
}

type tidalPlaylistDocument struct {
	Data TidalPlaylist `json:"data"`
}

type tidalItemsRequest struct {
	Data []tidalIdentifier `json:"data"`
}

// TidalService talks to the TIDAL v2 API with a bearer token.
type TidalService struct {
	rest        restClient
	countryCode string
	logger      *log.Logger
}

// NewTidalService creates a TIDAL adapter. An empty baseURL selects the public API and an empty countryCode selects "US".
func NewTidalService(client *httpclient.Client, baseURL, countryCode string, logger *log.Logger) *TidalService {
	if baseURL == "" {
		baseURL = tidalBaseURL
	}
	if countryCode == "" {
		countryCode = "US"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &TidalService{
		rest:        restClient{service: models.Tidal, baseURL: baseURL, contentType: tidalContentType, http: client},
		countryCode: countryCode,
		logger:      shared.WithLogger(logger, "service", models.Tidal),
	}
}

// Name implements [PlaylistProvider].
func (s *TidalService) Name() models.Provider { return models.Tidal }

// PlaylistURL implements [PlaylistProvider].
func (s *TidalService) PlaylistURL(playlistID string) string { return tidalListenURL + playlistID }

func (s *TidalService) query(extra url.Values) url.Values {
	q := url.Values{"countryCode": {s.countryCode}}
	for k, v := range extra {
		q[k] = v
	}
	return q
}

// currentUserID resolves the owner id used to filter playlists.
func (s *TidalService) currentUserID(ctx context.Context, cred models.Credential) (string, error) {
	var doc tidalUserDocument
	if err := s.rest.do(ctx, http.MethodGet, "/users/me", nil, bearerHeader(cred), nil, &doc); err != nil {
		return "", fmt.Errorf("failed to get TIDAL user: %w", err)
	}
	if doc.Data.ID == "" {
		return "", fmt.Errorf("%w: TIDAL returned no user id", shared.ErrServiceUnavailable)
	}
	return doc.Data.ID, nil
}

// ListPlaylists follows "links.next" until the last page.
func (s *TidalService) ListPlaylists(ctx context.Context, cred models.Credential) ([]models.Playlist, error) {
	userID, err := s.currentUserID(ctx, cred)
	if err != nil {
		return nil, err
	}

	var playlists []models.Playlist
	endpoint := "/playlists"
	query := s.query(url.Values{"filter[r.owners.id]": {userID}})

	for endpoint != "" {
		var doc tidalPlaylistsDocument
		if err := s.rest.do(ctx, http.MethodGet, endpoint, query, bearerHeader(cred), nil, &doc); err != nil {
			return nil, fmt.Errorf("failed to list TIDAL playlists: %w", err)
		}

		for _, p := range doc.Data {
			playlists = append(playlists, models.Playlist{
				ID:          p.ID,
				Name:        p.Attributes.Name,
				Description: p.Attributes.Description,
				TrackCount:  p.Attributes.NumberOfItems,
				Service:     models.Tidal,
			})
		}

		endpoint, query = doc.Links.Next, nil
	}

	s.logger.Debug("listed playlists", "count", len(playlists))
	return playlists, nil
}

// ListPlaylistTracks reads the playlist's item relationship, keeping only tracks.
func (s *TidalService) ListPlaylistTracks(ctx context.Context, playlistID string, cred models.Credential, onProgress ProgressFunc) ([]models.SourceTrack, error) {
	tracks := []models.SourceTrack{}
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/relationships/items"
	query := s.query(url.Values{"include": {"items"}})
	estimated := 0

	for page := 0; endpoint != ""; page++ {
		var doc tidalItemsDocument
		if err := s.rest.do(ctx, http.MethodGet, endpoint, query, bearerHeader(cred), nil, &doc); err != nil {
			if pe, ok := shared.IsProviderError(err); ok && pe.Status == http.StatusNotFound {
				s.logger.Debug("playlist not found, treating as empty", "playlist", playlistID)
				return []models.SourceTrack{}, nil
			}
			return nil, fmt.Errorf("failed to list TIDAL playlist tracks: %w", err)
		}

		if page == 0 {
			estimated = doc.Meta.Total
		}

		titles := make(map[string]string, len(doc.Included))
		for _, inc := range doc.Included {
			if inc.Type == "tracks" {
				titles[inc.ID] = inc.Attributes.Title
			}
		}

		for _, item := range doc.Data {
			if item.Type != "tracks" {
				continue
			}
			tracks = append(tracks, models.SourceTrack{ID: item.ID, Title: titles[item.ID]})
		}

		report(onProgress, len(tracks), estimated)
		endpoint, query = doc.Links.Next, nil
	}

	return tracks, nil
}

// PlaylistExistsByName implements [PlaylistProvider].
func (s *TidalService) PlaylistExistsByName(ctx context.Context, name string, cred models.Credential) (*models.Playlist, error) {
	playlists, err := s.ListPlaylists(ctx, cred)
	if err != nil {
		return nil, err
	}
	return findByName(playlists, name), nil
}

// CreatePlaylist creates an unlisted playlist.
func (s *TidalService) CreatePlaylist(ctx context.Context, name string, cred models.Credential) (string, error) {
	body := tidalPlaylistDocument{Data: TidalPlaylist{
		Type:       "playlists",
		Attributes: tidalPlaylistAttributes{Name: name, AccessType: "UNLISTED"},
	}}

	var doc tidalPlaylistDocument
	if err := s.rest.do(ctx, http.MethodPost, "/playlists", s.query(nil), bearerHeader(cred), body, &doc); err != nil {
		return "", fmt.Errorf("failed to create TIDAL playlist: %w", err)
	}
	if doc.Data.ID == "" {
		return "", fmt.Errorf("%w: TIDAL returned no playlist id", shared.ErrServiceUnavailable)
	}

	s.logger.Info("created playlist", "id", doc.Data.ID, "name", name)
	return doc.Data.ID, nil
}

// AddTracks posts track identifiers to the playlist's items relationship in chunks of 20.
func (s *TidalService) AddTracks(ctx context.Context, playlistID string, trackIDs []string, cred models.Credential) error {
	endpoint := "/playlists/" + url.PathEscape(playlistID) + "/relationships/items"

	return writeChunks(ctx, trackIDs, tidalChunkSize, func(ctx context.Context, chunk []string) error {
		body := tidalItemsRequest{Data: make([]tidalIdentifier, len(chunk))}
		for i, id := range chunk {
			body.Data[i] = tidalIdentifier{ID: id, Type: "tracks"}
		}
		if err := s.rest.do(ctx, http.MethodPost, endpoint, s.query(nil), bearerHeader(cred), body, nil); err != nil {
			return fmt.Errorf("failed to add tracks to TIDAL playlist: %w", err)
		}
		s.logger.Debug("added tracks", "playlist", playlistID, "count", len(chunk))
		return nil
	})
}

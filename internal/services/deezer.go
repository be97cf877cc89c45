// Deezer implementation of [PlaylistProvider]
//
// Deezer is reached through a CORS-bypass proxy that forwards to api.deezer.com and
// authenticates with the user's ARL session cookie, sent as the X-Deezer-ARL header.
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/httpclient"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

const (
	deezerPlaylistURL = "https://www.deezer.com/playlist/"
	deezerARLHeader   = "X-Deezer-ARL"
	deezerPageSize    = 100
	deezerChunkSize   = 50
)

// Deezer error codes reported inside 200 responses.
const (
	deezerQuotaExceeded = 4
	deezerOAuthError    = 200
	deezerTokenInvalid  = 300
	deezerDataNotFound  = 800
)

// DeezerError is the error object Deezer embeds in otherwise successful responses.
type DeezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// Status maps a Deezer error code onto the HTTP status it stands for.
func (e DeezerError) Status() int {
	switch e.Code {
	case deezerQuotaExceeded:
		return http.StatusTooManyRequests
	case deezerOAuthError, deezerTokenInvalid:
		return http.StatusUnauthorized
	case deezerDataNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// DeezerPlaylist is a playlist object from /user/me/playlists.
type DeezerPlaylist struct {
	ID          json.Number `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	NbTracks    int         `json:"nb_tracks"`
}

// DeezerTrack is a track object from /playlist/{id}/tracks.
type DeezerTrack struct {
	ID     json.Number `json:"id"`
	Title  string      `json:"title"`
	Type   string      `json:"type"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Album struct {
		Title string `json:"title"`
	} `json:"album"`
}

type deezerPage[T any] struct {
	Data  []T    `json:"data"`
	Total int    `json:"total"`
	Next  string `json:"next"`
}

type deezerCreated struct {
	ID json.Number `json:"id"`
}

// DeezerService talks to Deezer through the session proxy.
type DeezerService struct {
	rest   restClient
	logger *log.Logger
}

// NewDeezerService creates a Deezer adapter that sends every request to proxyURL.
func NewDeezerService(client *httpclient.Client, proxyURL string, logger *log.Logger) *DeezerService {
	if logger == nil {
		logger = log.Default()
	}
	return &DeezerService{
		rest: restClient{
			service: models.Deezer,
			baseURL: proxyURL,
			http:    client,
			inspect: inspectDeezerBody,
		},
		logger: shared.WithLogger(logger, "service", models.Deezer),
	}
}

// inspectDeezerBody turns an embedded {"error": {...}} object into a [shared.ProviderError].
func inspectDeezerBody(body []byte) error {
	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") || !strings.Contains(trimmed, `"error"`) {
		return nil
	}
	var payload struct {
		Error *DeezerError `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == nil {
		return nil
	}
	return &shared.ProviderError{
		Service: string(models.Deezer),
		Status:  payload.Error.Status(),
		Message: fmt.Sprintf("%s (code %d)", payload.Error.Message, payload.Error.Code),
	}
}

func arlHeader(cred models.Credential) http.Header {
	h := http.Header{}
	h.Set(deezerARLHeader, cred.ARL)
	return h
}

// Name implements [PlaylistProvider].
func (s *DeezerService) Name() models.Provider { return models.Deezer }

// PlaylistURL implements [PlaylistProvider].
func (s *DeezerService) PlaylistURL(playlistID string) string { return deezerPlaylistURL + playlistID }

// ListPlaylists pages by index until Deezer stops returning a "next" link.
func (s *DeezerService) ListPlaylists(ctx context.Context, cred models.Credential) ([]models.Playlist, error) {
	var playlists []models.Playlist

	for index := 0; ; {
		var page deezerPage[DeezerPlaylist]
		query := url.Values{"index": {strconv.Itoa(index)}, "limit": {strconv.Itoa(deezerPageSize)}}
		if err := s.rest.do(ctx, http.MethodGet, "/user/me/playlists", query, arlHeader(cred), nil, &page); err != nil {
			return nil, fmt.Errorf("failed to list Deezer playlists: %w", err)
		}

		for _, p := range page.Data {
			playlists = append(playlists, models.Playlist{
				ID:          p.ID.String(),
				Name:        p.Title,
				Description: p.Description,
				TrackCount:  p.NbTracks,
				Service:     models.Deezer,
			})
		}

		index += len(page.Data)
		if page.Next == "" || len(page.Data) == 0 {
			break
		}
	}

	s.logger.Debug("listed playlists", "count", len(playlists))
	return playlists, nil
}

// ListPlaylistTracks pages through /playlist/{id}/tracks; the first page's "total" is the estimate.
func (s *DeezerService) ListPlaylistTracks(ctx context.Context, playlistID string, cred models.Credential, onProgress ProgressFunc) ([]models.SourceTrack, error) {
	tracks := []models.SourceTrack{}
	endpoint := "/playlist/" + url.PathEscape(playlistID) + "/tracks"
	estimated := 0

	for index := 0; ; {
		var page deezerPage[DeezerTrack]
		query := url.Values{"index": {strconv.Itoa(index)}, "limit": {strconv.Itoa(deezerPageSize)}}
		if err := s.rest.do(ctx, http.MethodGet, endpoint, query, arlHeader(cred), nil, &page); err != nil {
			if pe, ok := shared.IsProviderError(err); ok && pe.Status == http.StatusNotFound {
				s.logger.Debug("playlist not found, treating as empty", "playlist", playlistID)
				return []models.SourceTrack{}, nil
			}
			return nil, fmt.Errorf("failed to list Deezer playlist tracks: %w", err)
		}

		if index == 0 {
			estimated = page.Total
		}

		for _, t := range page.Data {
			if t.Type != "" && t.Type != "track" {
				continue
			}
			tracks = append(tracks, models.SourceTrack{
				ID:     t.ID.String(),
				Title:  t.Title,
				Artist: t.Artist.Name,
				Album:  t.Album.Title,
			})
		}

		report(onProgress, len(tracks), estimated)

		index += len(page.Data)
		if page.Next == "" || len(page.Data) == 0 {
			break
		}
	}

	return tracks, nil
}

// PlaylistExistsByName implements [PlaylistProvider].
func (s *DeezerService) PlaylistExistsByName(ctx context.Context, name string, cred models.Credential) (*models.Playlist, error) {
	playlists, err := s.ListPlaylists(ctx, cred)
	if err != nil {
		return nil, err
	}
	return findByName(playlists, name), nil
}

// CreatePlaylist implements [PlaylistProvider].
func (s *DeezerService) CreatePlaylist(ctx context.Context, name string, cred models.Credential) (string, error) {
	var created deezerCreated
	query := url.Values{"title": {name}}
	if err := s.rest.do(ctx, http.MethodPost, "/user/me/playlists", query, arlHeader(cred), nil, &created); err != nil {
		return "", fmt.Errorf("failed to create Deezer playlist: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: Deezer returned no playlist id", shared.ErrServiceUnavailable)
	}

	s.logger.Info("created playlist", "id", created.ID, "name", name)
	return created.ID.String(), nil
}

// AddTracks posts comma separated ids in chunks of 50.
func (s *DeezerService) AddTracks(ctx context.Context, playlistID string, trackIDs []string, cred models.Credential) error {
	endpoint := "/playlist/" + url.PathEscape(playlistID) + "/tracks"

	return writeChunks(ctx, trackIDs, deezerChunkSize, func(ctx context.Context, chunk []string) error {
		query := url.Values{"songs": {strings.Join(chunk, ",")}}
		if err := s.rest.do(ctx, http.MethodPost, endpoint, query, arlHeader(cred), nil, nil); err != nil {
			return fmt.Errorf("failed to add tracks to Deezer playlist: %w", err)
		}
		s.logger.Debug("added tracks", "playlist", playlistID, "count", len(chunk))
		return nil
	})
}

package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
)

// ProgressFunc receives the number of tracks loaded so far and the best known total.
type ProgressFunc func(loaded, estimatedTotal int)

// PlaylistProvider is the set of playlist operations the migration engine needs from a service.
//
// Every call receives the caller's credential; adapters never store or refresh it.
type PlaylistProvider interface {
	// Name identifies the service.
	Name() models.Provider

	// ListPlaylists pages through all playlists of the authenticated user.
	ListPlaylists(ctx context.Context, cred models.Credential) ([]models.Playlist, error)

	// ListPlaylistTracks pages through a playlist's tracks in playlist order.
	// A 404 from the service yields an empty list.
	ListPlaylistTracks(ctx context.Context, playlistID string, cred models.Credential, onProgress ProgressFunc) ([]models.SourceTrack, error)

	// PlaylistExistsByName returns the first playlist whose name equals name ignoring case, or nil.
	PlaylistExistsByName(ctx context.Context, name string, cred models.Credential) (*models.Playlist, error)

	// CreatePlaylist creates an empty playlist and returns its identifier.
	CreatePlaylist(ctx context.Context, name string, cred models.Credential) (string, error)

	// AddTracks appends trackIDs in service-sized chunks, in order, stopping at the first failed chunk.
	// Chunks written before the failure are not rolled back.
	AddTracks(ctx context.Context, playlistID string, trackIDs []string, cred models.Credential) error

	// PlaylistURL builds a link to the playlist for display.
	PlaylistURL(playlistID string) string
}

// Registry selects a [PlaylistProvider] by [models.Provider].
type Registry map[models.Provider]PlaylistProvider

// NewRegistry indexes providers by their Name.
func NewRegistry(providers ...PlaylistProvider) Registry {
	r := make(Registry, len(providers))
	for _, p := range providers {
		r[p.Name()] = p
	}
	return r
}

// Get returns the adapter for p.
func (r Registry) Get(p models.Provider) (PlaylistProvider, error) {
	adapter, ok := r[p]
	if !ok {
		return nil, fmt.Errorf("%w: no adapter registered for %q", shared.ErrUnsupportedProvider, p)
	}
	return adapter, nil
}

// Providers lists the registered services in a stable order.
func (r Registry) Providers() []models.Provider {
	out := make([]models.Provider, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// findByName returns the first playlist whose name equals name ignoring case.
func findByName(playlists []models.Playlist, name string) *models.Playlist {
	name = strings.TrimSpace(name)
	for i := range playlists {
		if strings.EqualFold(strings.TrimSpace(playlists[i].Name), name) {
			p := playlists[i]
			return &p
		}
	}
	return nil
}

// chunkIDs splits ids into consecutive slices of at most size elements.
func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(ids)
	}
	chunks := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// writeChunks issues write once per chunk, sequentially, and stops at the first error.
func writeChunks(ctx context.Context, ids []string, size int, write func(context.Context, []string) error) error {
	chunks := chunkIDs(ids, size)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := write(ctx, chunk); err != nil {
			return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func report(fn ProgressFunc, loaded, estimated int) {
	if fn == nil {
		return
	}
	if estimated < loaded {
		estimated = loaded
	}
	fn(loaded, estimated)
}

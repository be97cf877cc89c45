// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
)

// AddCall records one AddTracks invocation.
type AddCall struct {
	PlaylistID string
	TrackIDs   []string
}

// FakeProvider is an in-memory [services.PlaylistProvider] that records writes.
//
// Playlists and Tracks are keyed by playlist id; the Err fields force the matching call to fail.
type FakeProvider struct {
	Service   models.Provider
	Playlists []models.Playlist
	Tracks    map[string][]models.SourceTrack

	ListErr   error
	TracksErr map[string]error
	ExistsErr error
	CreateErr error
	AddErr    error

	mu          sync.Mutex
	created     []string
	adds        []AddCall
	trackCalls  int
	nextCreated int
}

var _ services.PlaylistProvider = (*FakeProvider)(nil)

// NewFakeProvider creates a FakeProvider for service with no playlists.
func NewFakeProvider(service models.Provider) *FakeProvider {
	return &FakeProvider{Service: service, Tracks: map[string][]models.SourceTrack{}, TracksErr: map[string]error{}}
}

// WithPlaylist adds a playlist holding tracks and returns f.
func (f *FakeProvider) WithPlaylist(id, name string, tracks ...models.SourceTrack) *FakeProvider {
	f.Playlists = append(f.Playlists, models.Playlist{ID: id, Name: name, TrackCount: len(tracks), Service: f.Service})
	f.Tracks[id] = tracks
	return f
}

func (f *FakeProvider) Name() models.Provider { return f.Service }

func (f *FakeProvider) ListPlaylists(ctx context.Context, cred models.Credential) ([]models.Playlist, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return append([]models.Playlist(nil), f.Playlists...), nil
}

func (f *FakeProvider) ListPlaylistTracks(ctx context.Context, playlistID string, cred models.Credential, onProgress services.ProgressFunc) ([]models.SourceTrack, error) {
	f.mu.Lock()
	f.trackCalls++
	f.mu.Unlock()

	if err := f.TracksErr[playlistID]; err != nil {
		return nil, err
	}
	tracks := append([]models.SourceTrack{}, f.Tracks[playlistID]...)
	if onProgress != nil {
		onProgress(len(tracks), len(tracks))
	}
	return tracks, nil
}

func (f *FakeProvider) PlaylistExistsByName(ctx context.Context, name string, cred models.Credential) (*models.Playlist, error) {
	if f.ExistsErr != nil {
		return nil, f.ExistsErr
	}
	for _, p := range f.Playlists {
		if strings.EqualFold(p.Name, name) {
			return &p, nil
		}
	}
	return nil, nil
}

func (f *FakeProvider) CreatePlaylist(ctx context.Context, name string, cred models.Credential) (string, error) {
	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextCreated++
	id := "created-" + strconv.Itoa(f.nextCreated)
	f.created = append(f.created, name)
	f.Playlists = append(f.Playlists, models.Playlist{ID: id, Name: name, Service: f.Service})
	return id, nil
}

func (f *FakeProvider) AddTracks(ctx context.Context, playlistID string, trackIDs []string, cred models.Credential) error {
	if len(trackIDs) == 0 {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adds = append(f.adds, AddCall{PlaylistID: playlistID, TrackIDs: append([]string(nil), trackIDs...)})
	if f.AddErr != nil {
		return f.AddErr
	}
	for _, id := range trackIDs {
		f.Tracks[playlistID] = append(f.Tracks[playlistID], models.SourceTrack{ID: id})
	}
	return nil
}

func (f *FakeProvider) PlaylistURL(playlistID string) string {
	return "https://example.test/" + string(f.Service) + "/" + playlistID
}

// Created returns the names passed to CreatePlaylist.
func (f *FakeProvider) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

// Adds returns every AddTracks call in order.
func (f *FakeProvider) Adds() []AddCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AddCall(nil), f.adds...)
}

// TrackCalls returns how many times ListPlaylistTracks ran.
func (f *FakeProvider) TrackCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trackCalls
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites int, target io.Writer) *LimitedWriter {
	return &LimitedWriter{maxWrites: maxWrites, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

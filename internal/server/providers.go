package server

import (
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/go-chi/chi/v5"
)

const arlHeader = "X-Deezer-ARL"

// ProviderHandler serves read-only provider routes.
type ProviderHandler struct {
	providers services.Registry
	resolver  *mapping.Resolver
	logger    *log.Logger
}

func (h *ProviderHandler) Routes(r chi.Router) {
	r.Route("/api/providers/{provider}", func(r chi.Router) {
		r.Get("/playlists", h.listPlaylists)
		r.Get("/playlists/{id}/tracks", h.listTracks)
		r.Get("/tracks/{file}", h.lookupTrack)
	})
}

// CredentialFromRequest reads the credential for p from request headers.
func CredentialFromRequest(r *http.Request, p models.Provider) models.Credential {
	if p.AuthKind() == models.AuthSession {
		return models.SessionCredential(r.Header.Get(arlHeader))
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return models.Credential{}
	}
	return models.BearerCredential(strings.TrimSpace(token))
}

// provider resolves the {provider} segment and the request credential.
func (h *ProviderHandler) provider(r *http.Request) (services.PlaylistProvider, models.Credential, error) {
	p, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		return nil, models.Credential{}, err
	}
	adapter, err := h.providers.Get(p)
	if err != nil {
		return nil, models.Credential{}, err
	}
	cred := CredentialFromRequest(r, p)
	if err := cred.Validate(p); err != nil {
		return nil, models.Credential{}, err
	}
	return adapter, cred, nil
}

func (h *ProviderHandler) listPlaylists(w http.ResponseWriter, r *http.Request) {
	adapter, cred, err := h.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}

	playlists, err := adapter.ListPlaylists(r.Context(), cred)
	if err != nil {
		h.logger.Warn("list playlists failed", "provider", adapter.Name(), "error", err)
		writeError(w, err)
		return
	}
	if playlists == nil {
		playlists = []models.Playlist{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *ProviderHandler) listTracks(w http.ResponseWriter, r *http.Request) {
	adapter, cred, err := h.provider(r)
	if err != nil {
		writeError(w, err)
		return
	}

	id := chi.URLParam(r, "id")
	tracks, err := adapter.ListPlaylistTracks(r.Context(), id, cred, nil)
	if err != nil {
		h.logger.Warn("list tracks failed", "provider", adapter.Name(), "playlist", id, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlist_id": id, "tracks": tracks})
}

// lookupTrack publishes the mapping record for one track in the shape [mapping.HTTPSource] reads.
func (h *ProviderHandler) lookupTrack(w http.ResponseWriter, r *http.Request) {
	p, err := models.ParseProvider(chi.URLParam(r, "provider"))
	if err != nil {
		writeError(w, err)
		return
	}
	id, ok := strings.CutSuffix(chi.URLParam(r, "file"), ".json")
	if !ok || id == "" {
		writeError(w, shared.ErrInvalidArgument)
		return
	}

	m, err := h.resolver.ResolveOne(r.Context(), p, id)
	if err != nil {
		writeError(w, err)
		return
	}
	if m == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: shared.ErrTrackNotFound.Error()})
		return
	}
	writeJSON(w, http.StatusOK, mapping.NewRecord(m))
}

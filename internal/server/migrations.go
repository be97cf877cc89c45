package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/formatter"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/desertthunder/plx/internal/tasks"
	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"
)

const (
	maxBodyBytes   = 1 << 20
	progressBuffer = 64
)

// MigrationHandler runs migrations and streams their progress.
type MigrationHandler struct {
	engine tasks.Migrator
	logger *log.Logger
}

func (h *MigrationHandler) Routes(r chi.Router) {
	r.Post("/api/migrations", h.migrate)
}

type credentialBody struct {
	AccessToken string    `json:"access_token"`
	Expiry      time.Time `json:"expiry"`
	ARL         string    `json:"arl"`
}

func (c credentialBody) credential() models.Credential {
	cred := models.SessionCredential(c.ARL)
	if c.AccessToken != "" {
		cred.Token = &oauth2.Token{AccessToken: c.AccessToken, TokenType: "Bearer", Expiry: c.Expiry}
	}
	return cred
}

type migrationBody struct {
	Source           string         `json:"source"`
	Target           string         `json:"target"`
	PlaylistID       string         `json:"playlist_id"`
	PlaylistName     string         `json:"playlist_name"`
	TargetName       string         `json:"target_name"`
	AllowDuplicates  bool           `json:"allow_duplicates"`
	Concurrency      int            `json:"concurrency"`
	SourceCredential credentialBody `json:"source_credential"`
	TargetCredential credentialBody `json:"target_credential"`
}

// request converts the body, defaulting the target name to the source playlist's name.
func (b migrationBody) request() (tasks.MigrationRequest, error) {
	source, err := models.ParseProvider(b.Source)
	if err != nil {
		return tasks.MigrationRequest{}, fmt.Errorf("source: %w", err)
	}
	target, err := models.ParseProvider(b.Target)
	if err != nil {
		return tasks.MigrationRequest{}, fmt.Errorf("target: %w", err)
	}

	name := strings.TrimSpace(b.TargetName)
	if name == "" {
		name = strings.TrimSpace(b.PlaylistName)
	}

	return tasks.MigrationRequest{
		Source:           source,
		Target:           target,
		SourcePlaylist:   models.Playlist{ID: b.PlaylistID, Name: b.PlaylistName, Service: source},
		TargetName:       name,
		SourceCredential: b.SourceCredential.credential(),
		TargetCredential: b.TargetCredential.credential(),
		AllowDuplicates:  b.AllowDuplicates,
		Concurrency:      b.Concurrency,
	}, nil
}

type outcome struct {
	result *tasks.MigrationResult
	err    error
}

func (h *MigrationHandler) migrate(w http.ResponseWriter, r *http.Request) {
	var body migrationBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("%v: %v", shared.ErrInvalidArgument, err), Kind: "input"})
		return
	}
	req, err := body.request()
	if err != nil {
		writeJSON(w, http.StatusBadRequest, describeError(err))
		return
	}
	if err := req.SourceCredential.Validate(req.Source); err != nil {
		writeJSON(w, http.StatusUnauthorized, describeError(fmt.Errorf("source: %w", err)))
		return
	}
	if err := req.TargetCredential.Validate(req.Target); err != nil {
		writeJSON(w, http.StatusUnauthorized, describeError(fmt.Errorf("target: %w", err)))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	progress := make(chan tasks.ProgressUpdate, progressBuffer)
	done := make(chan outcome, 1)
	go func() {
		res, err := h.engine.Migrate(r.Context(), req, progress)
		done <- outcome{result: res, err: err}
	}()

	for {
		select {
		case u := <-progress:
			h.send(w, flusher, "progress", u)
		case o := <-done:
			h.drain(w, flusher, progress)
			if o.err != nil {
				h.logger.Warn("migration failed", "source", req.Source, "target", req.Target, "error", o.err)
				h.send(w, flusher, "error", describeError(o.err))
				return
			}
			h.send(w, flusher, "result", formatter.NewResultView(o.result))
			return
		}
	}
}

// drain forwards updates still buffered when the engine returns.
func (h *MigrationHandler) drain(w http.ResponseWriter, flusher http.Flusher, progress <-chan tasks.ProgressUpdate) {
	for {
		select {
		case u := <-progress:
			h.send(w, flusher, "progress", u)
		default:
			return
		}
	}
}

// send writes one Server-Sent Event. Write errors mean the client left; the engine sees it through the request context.
func (h *MigrationHandler) send(w http.ResponseWriter, flusher http.Flusher, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return
	}
	flusher.Flush()
}

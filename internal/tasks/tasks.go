package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/metrics"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
)

const (
	outcomeImported  = metrics.TrackImported
	outcomeUnmapped  = metrics.TrackUnmapped
	outcomeDuplicate = metrics.TrackDuplicate
)

// MigrationRequest describes one playlist migration. Credentials are used for this call only.
type MigrationRequest struct {
	Source           models.Provider
	Target           models.Provider
	SourcePlaylist   models.Playlist
	TargetName       string
	SourceCredential models.Credential
	TargetCredential models.Credential
	AllowDuplicates  bool
	Concurrency      int // Mapping lookup workers; <= 0 selects the resolver default
}

// Migrator runs playlist migrations.
type Migrator interface {
	Migrate(ctx context.Context, req MigrationRequest, progress chan<- ProgressUpdate) (*MigrationResult, error)
}

// MigrationEngine implements [Migrator] over a provider registry and a mapping resolver.
//
// It holds no per-run state, so one engine can serve concurrent migrations.
type MigrationEngine struct {
	providers services.Registry
	resolver  *mapping.Resolver
	logger    *log.Logger
}

// NewMigrationEngine creates a new MigrationEngine with the provided dependencies.
func NewMigrationEngine(providers services.Registry, resolver *mapping.Resolver, logger *log.Logger) *MigrationEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &MigrationEngine{providers: providers, resolver: resolver, logger: logger}
}

// sendProgress sends a progress update through the channel without blocking.
// Uses select with default to ensure progress reporting never blocks execution.
func (e *MigrationEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// run carries the state of one Migrate call.
type run struct {
	id       string
	req      MigrationRequest
	source   services.PlaylistProvider
	target   services.PlaylistProvider
	progress MigrationProgress
	phase    Phase
	logger   *log.Logger
	updates  chan<- ProgressUpdate
}

// validate checks the request before any network call.
func (e *MigrationEngine) validate(req MigrationRequest) (services.PlaylistProvider, services.PlaylistProvider, error) {
	source, err := e.providers.Get(req.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	target, err := e.providers.Get(req.Target)
	if err != nil {
		return nil, nil, fmt.Errorf("target: %w", err)
	}
	if strings.TrimSpace(req.SourcePlaylist.ID) == "" {
		return nil, nil, fmt.Errorf("%w: source playlist id is required", shared.ErrInvalidArgument)
	}
	if strings.TrimSpace(req.TargetName) == "" {
		return nil, nil, fmt.Errorf("%w: target playlist name is required", shared.ErrInvalidArgument)
	}
	if err := req.SourceCredential.Validate(req.Source); err != nil {
		return nil, nil, fmt.Errorf("source: %w", err)
	}
	if err := req.TargetCredential.Validate(req.Target); err != nil {
		return nil, nil, fmt.Errorf("target: %w", err)
	}
	return source, target, nil
}

// Migrate copies a playlist from req.Source to req.Target.
//
// Input errors are returned unwrapped before anything is sent to a provider. Failures after that point are
// returned as [*MigrationError] carrying the progress reached; written chunks are not rolled back.
func (e *MigrationEngine) Migrate(ctx context.Context, req MigrationRequest, progress chan<- ProgressUpdate) (*MigrationResult, error) {
	start := time.Now()

	e.sendProgress(progress, validatingUpdate(req))
	source, target, err := e.validate(req)
	if err != nil {
		return nil, err
	}

	r := &run{
		id:      shared.GenerateID(),
		req:     req,
		source:  source,
		target:  target,
		updates: progress,
	}
	r.logger = shared.WithLogger(e.logger, "run", r.id, "source", req.Source, "target", req.Target)
	r.req.TargetName = strings.TrimSpace(req.TargetName)

	metrics.RecordMigration(string(req.Source), string(req.Target), metrics.OutcomeStarted)
	r.logger.Info("starting migration", "playlist", req.SourcePlaylist.ID, "name", r.req.TargetName, "allow_duplicates", req.AllowDuplicates)

	result, err := e.execute(ctx, r)
	if err != nil {
		metrics.RecordMigration(string(req.Source), string(req.Target), metrics.OutcomeFailed)
		r.logger.Error("migration failed", "phase", r.phase, "classified", r.progress.Classified(), "error", err)
		return nil, &MigrationError{RunID: r.id, Phase: r.phase, Progress: r.progress.Snapshot(), Err: err}
	}

	result.Duration = time.Since(start)
	metrics.RecordMigration(string(req.Source), string(req.Target), metrics.OutcomeCompleted)
	metrics.ObserveMigration(string(req.Source), string(req.Target), result.Duration)

	r.phase = PhaseDone
	e.sendProgress(progress, doneUpdate(result, r.progress))
	r.logger.Info("migration finished",
		"imported", result.Imported,
		"skipped", result.Skipped,
		"duplicates", result.DuplicatesSkipped,
		"duration", shared.FormatDuration(result.Duration),
	)
	return result, nil
}

// enter moves r to phase after checking for cancellation.
func (r *run) enter(ctx context.Context, phase Phase) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("cancelled before %s: %w", phase, err)
	}
	r.phase = phase
	return nil
}

func (e *MigrationEngine) execute(ctx context.Context, r *run) (*MigrationResult, error) {
	req := r.req

	if err := r.enter(ctx, PhaseFetchingSource); err != nil {
		return nil, err
	}
	tracks, err := r.source.ListPlaylistTracks(ctx, req.SourcePlaylist.ID, req.SourceCredential, func(loaded, estimated int) {
		e.sendProgress(r.updates, fetchingSourceUpdate(loaded, estimated, req.SourcePlaylist.Name, r.progress))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source playlist: %w", err)
	}
	r.progress.Total = len(tracks)
	r.logger.Debug("fetched source tracks", "count", len(tracks))

	if err := r.enter(ctx, PhaseResolvingTarget); err != nil {
		return nil, err
	}
	e.sendProgress(r.updates, resolvingTargetUpdate(req.TargetName, r.progress))
	targetID, created, err := e.resolveTarget(ctx, r)
	if err != nil {
		return nil, err
	}
	e.sendProgress(r.updates, targetReadyUpdate(req.TargetName, targetID, created, r.progress))

	dedup := !req.AllowDuplicates
	existing := map[string]bool{}
	if dedup && !created {
		if err := r.enter(ctx, PhaseFetchingTargetExisting); err != nil {
			return nil, err
		}
		existing = e.existingTrackIDs(ctx, r, targetID)
	}

	if err := r.enter(ctx, PhaseResolving); err != nil {
		return nil, err
	}
	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}
	mappings, err := e.resolver.ResolveBatch(ctx, req.Source, ids, req.Concurrency, func(completed, total int) {
		e.sendProgress(r.updates, lookupUpdate(completed, total, r.progress))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve track mappings: %w", err)
	}

	result := &MigrationResult{
		RunID:              r.id,
		Source:             req.Source,
		Target:             req.Target,
		SourcePlaylist:     req.SourcePlaylist,
		TargetPlaylistID:   targetID,
		TargetPlaylistName: req.TargetName,
		TargetPlaylistURL:  r.target.PlaylistURL(targetID),
		Created:            created,
		Total:              len(tracks),
		SkippedTracks:      []models.SourceTrack{},
	}

	toAdd := make([]string, 0, len(tracks))
	for i, track := range tracks {
		m := mappings[track.ID]
		if m != nil && track.Title == "" {
			track.Title, track.Artist, track.Album = m.Title, m.Artist, m.Album
		}

		r.progress.Current = i + 1
		r.progress.CurrentTrack = &track

		targetTrackID := mapping.TargetIDFor(m, req.Target)
		var outcome string
		switch {
		case targetTrackID == "":
			outcome = outcomeUnmapped
			r.progress.Skipped++
			r.progress.RecentSkipped = pushRecent(r.progress.RecentSkipped, track)
			result.SkippedTracks = append(result.SkippedTracks, track)
		case dedup && existing[targetTrackID]:
			outcome = outcomeDuplicate
			r.progress.DuplicatesSkipped++
		default:
			outcome = outcomeImported
			toAdd = append(toAdd, targetTrackID)
			r.progress.Imported++
			r.progress.RecentImported = pushRecent(r.progress.RecentImported, track)
		}

		r.logger.Debug("classified track", "track", track.ID, "outcome", outcome, "target_id", targetTrackID)
		e.sendProgress(r.updates, classifiedUpdate(track, outcome, r.progress))
	}
	r.progress.CurrentTrack = nil

	metrics.RecordTracks(outcomeImported, r.progress.Imported)
	metrics.RecordTracks(outcomeUnmapped, r.progress.Skipped)
	metrics.RecordTracks(outcomeDuplicate, r.progress.DuplicatesSkipped)

	result.Imported = r.progress.Imported
	result.Skipped = r.progress.Skipped
	result.DuplicatesSkipped = r.progress.DuplicatesSkipped

	if len(toAdd) > 0 {
		if err := r.enter(ctx, PhaseWriting); err != nil {
			return nil, err
		}
		e.sendProgress(r.updates, writingUpdate(len(toAdd), req.Target, r.progress))
		if err := r.target.AddTracks(ctx, targetID, toAdd, req.TargetCredential); err != nil {
			return nil, fmt.Errorf("failed to add tracks to target playlist: %w", err)
		}
	}

	return result, nil
}

// resolveTarget reuses a playlist with the target name or creates one.
func (e *MigrationEngine) resolveTarget(ctx context.Context, r *run) (string, bool, error) {
	existing, err := r.target.PlaylistExistsByName(ctx, r.req.TargetName, r.req.TargetCredential)
	if err != nil {
		return "", false, fmt.Errorf("failed to look up target playlist: %w", err)
	}
	if existing != nil {
		r.logger.Info("using existing playlist", "id", existing.ID)
		return existing.ID, false, nil
	}

	id, err := r.target.CreatePlaylist(ctx, r.req.TargetName, r.req.TargetCredential)
	if err != nil {
		return "", false, fmt.Errorf("failed to create target playlist: %w", err)
	}
	r.logger.Info("created playlist", "id", id)
	return id, true, nil
}

// existingTrackIDs returns the ids already on the target playlist.
// A failure degrades de-duplication to an empty set instead of failing the run.
func (e *MigrationEngine) existingTrackIDs(ctx context.Context, r *run, playlistID string) map[string]bool {
	tracks, err := r.target.ListPlaylistTracks(ctx, playlistID, r.req.TargetCredential, func(loaded, estimated int) {
		e.sendProgress(r.updates, fetchingExistingUpdate(loaded, estimated, r.progress))
	})
	if err != nil {
		r.logger.Warn("could not fetch existing tracks, duplicates will not be skipped", "playlist", playlistID, "error", err)
		return map[string]bool{}
	}

	ids := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		ids[t.ID] = true
	}
	r.logger.Debug("fetched existing tracks", "count", len(ids))
	return ids
}

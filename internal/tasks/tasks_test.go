package tasks

import (
	"context"
	"errors"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	plxtesting "github.com/desertthunder/plx/internal/testing"
	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
)

// tableSource maps tidal ids to deezer ids; ids absent from the table are unknown.
func tableSource(table map[string]string) mapping.Source {
	return mapping.SourceFunc(func(ctx context.Context, service models.Provider, trackID string) (*models.TrackMapping, error) {
		target, ok := table[trackID]
		if !ok {
			return nil, nil
		}
		return &models.TrackMapping{
			SourceService: service,
			SourceID:      trackID,
			Title:         "Mapped " + trackID,
			Artist:        "Mapped Artist",
			Targets:       map[models.Provider]string{models.Deezer: target},
		}, nil
	})
}

type fixture struct {
	source *plxtesting.FakeProvider
	target *plxtesting.FakeProvider
	engine *MigrationEngine
}

func newFixture(table map[string]string, tracks ...models.SourceTrack) *fixture {
	source := plxtesting.NewFakeProvider(models.Tidal).WithPlaylist("src", "Road Trip", tracks...)
	target := plxtesting.NewFakeProvider(models.Deezer)
	resolver := mapping.NewResolver(tableSource(table), mapping.WithLogger(log.New(io.Discard)))
	engine := NewMigrationEngine(services.NewRegistry(source, target), resolver, log.New(io.Discard))
	return &fixture{source: source, target: target, engine: engine}
}

func request() MigrationRequest {
	return MigrationRequest{
		Source:           models.Tidal,
		Target:           models.Deezer,
		SourcePlaylist:   models.Playlist{ID: "src", Name: "Road Trip", Service: models.Tidal},
		TargetName:       "Road Trip",
		SourceCredential: models.BearerCredential("tidal-token"),
		TargetCredential: models.SessionCredential("arl"),
	}
}

func tracks(ids ...string) []models.SourceTrack {
	out := make([]models.SourceTrack, len(ids))
	for i, id := range ids {
		out[i] = models.SourceTrack{ID: id, Title: "Song " + id, Artist: "Artist"}
	}
	return out
}

func assertConservation(t *testing.T, r *MigrationResult) {
	t.Helper()
	if r.Imported+r.Skipped+r.DuplicatesSkipped != r.Total {
		t.Errorf("conservation violated: %d + %d + %d != %d", r.Imported, r.Skipped, r.DuplicatesSkipped, r.Total)
	}
}

func TestMigrationEngine_Scenarios(t *testing.T) {
	ctx := context.Background()

	t.Run("A All Mapped Into New Playlist", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1", "t2": "d2", "t3": "d3"}, tracks("t1", "t2", "t3")...)

		res, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if res.Imported != 3 || res.Skipped != 0 || res.DuplicatesSkipped != 0 {
			t.Errorf("unexpected counts %+v", res)
		}
		if diff := cmp.Diff([]string{"Road Trip"}, f.target.Created()); diff != "" {
			t.Errorf("create calls mismatch (-want +got):\n%s", diff)
		}
		want := []plxtesting.AddCall{{PlaylistID: res.TargetPlaylistID, TrackIDs: []string{"d1", "d2", "d3"}}}
		if diff := cmp.Diff(want, f.target.Adds()); diff != "" {
			t.Errorf("add calls mismatch (-want +got):\n%s", diff)
		}
		if !res.Created || res.TargetPlaylistURL == "" || res.RunID == "" {
			t.Errorf("result metadata missing: %+v", res)
		}
		if f.target.TrackCalls() != 0 {
			t.Error("a newly created playlist has nothing to de-duplicate against")
		}
		assertConservation(t, res)
	})

	t.Run("B Unmapped Track Is Skipped", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1"}, tracks("t1", "t2")...)

		res, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if res.Imported != 1 || res.Skipped != 1 {
			t.Errorf("unexpected counts %+v", res)
		}
		if diff := cmp.Diff(tracks("t2"), res.SkippedTracks); diff != "" {
			t.Errorf("skipped tracks mismatch (-want +got):\n%s", diff)
		}
		assertConservation(t, res)
	})

	t.Run("C Existing Track Is A Duplicate", func(t *testing.T) {
		f := newFixture(map[string]string{"x": "dx", "y": "dy"}, tracks("x", "y")...)
		f.target.WithPlaylist("existing", "road trip", models.SourceTrack{ID: "dx"})

		res, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if res.Imported != 1 || res.DuplicatesSkipped != 1 || res.Created {
			t.Errorf("unexpected result %+v", res)
		}
		want := []plxtesting.AddCall{{PlaylistID: "existing", TrackIDs: []string{"dy"}}}
		if diff := cmp.Diff(want, f.target.Adds()); diff != "" {
			t.Errorf("add calls mismatch (-want +got):\n%s", diff)
		}
		if len(f.target.Created()) != 0 {
			t.Error("existing playlist should be reused")
		}
		assertConservation(t, res)
	})

	t.Run("D Dedup Fetch Failure Degrades", func(t *testing.T) {
		f := newFixture(map[string]string{"x": "dx", "y": "dy"}, tracks("x", "y")...)
		f.target.WithPlaylist("existing", "Road Trip", models.SourceTrack{ID: "dx"})
		f.target.TracksErr["existing"] = &shared.ProviderError{Service: "deezer", Status: 500}

		res, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("dedup failure must not be fatal, got %v", err)
		}
		if res.DuplicatesSkipped != 0 || res.Imported != 2 {
			t.Errorf("unexpected result %+v", res)
		}
		assertConservation(t, res)
	})

	t.Run("D Dedup Fetch Failure Keeps Repeated Tracks", func(t *testing.T) {
		f := newFixture(map[string]string{"x": "dx", "y": "dy"}, tracks("x", "y", "x")...)
		f.target.WithPlaylist("existing", "Road Trip", models.SourceTrack{ID: "dx"})
		f.target.TracksErr["existing"] = &shared.ProviderError{Service: "deezer", Status: 500}

		res, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("dedup failure must not be fatal, got %v", err)
		}
		if res.Imported != 3 || res.DuplicatesSkipped != 0 {
			t.Errorf("unexpected counts %+v", res)
		}
		want := []plxtesting.AddCall{{PlaylistID: "existing", TrackIDs: []string{"dx", "dy", "dx"}}}
		if diff := cmp.Diff(want, f.target.Adds()); diff != "" {
			t.Errorf("add calls mismatch (-want +got):\n%s", diff)
		}
		assertConservation(t, res)
	})
}

func TestMigrationEngine_Properties(t *testing.T) {
	ctx := context.Background()

	t.Run("Idempotent Rerun Imports Nothing", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1", "t2": "d2"}, tracks("t1", "t2", "t3")...)

		first, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("first run: %v", err)
		}
		second, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}

		if second.Imported != 0 || second.DuplicatesSkipped != first.Imported || second.Skipped != first.Skipped {
			t.Errorf("rerun should only find duplicates, got %+v", second)
		}
		if len(f.target.Adds()) != 1 || len(f.target.Created()) != 1 {
			t.Errorf("rerun should neither create nor write, got %d creates and %d writes", len(f.target.Created()), len(f.target.Adds()))
		}
		if second.TargetPlaylistID != first.TargetPlaylistID {
			t.Error("rerun should reuse the playlist")
		}
	})

	t.Run("Order Is Preserved", func(t *testing.T) {
		table := map[string]string{}
		var ids, want []string
		for i := 50; i > 0; i-- {
			id := "t" + strconv.Itoa(i)
			ids = append(ids, id)
			if i%4 != 0 {
				table[id] = "d" + strconv.Itoa(i)
				want = append(want, "d"+strconv.Itoa(i))
			}
		}
		f := newFixture(table, tracks(ids...)...)

		req := request()
		req.Concurrency = 8
		res, err := f.engine.Migrate(ctx, req, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		adds := f.target.Adds()
		if len(adds) != 1 {
			t.Fatalf("expected a single AddTracks call, got %d", len(adds))
		}
		if diff := cmp.Diff(want, adds[0].TrackIDs); diff != "" {
			t.Errorf("imported order mismatch (-want +got):\n%s", diff)
		}
		for i := 1; i < len(res.SkippedTracks); i++ {
			prev, _ := strconv.Atoi(res.SkippedTracks[i-1].ID[1:])
			cur, _ := strconv.Atoi(res.SkippedTracks[i].ID[1:])
			if cur > prev {
				t.Errorf("skipped tracks out of source order: %s before %s", res.SkippedTracks[i-1].ID, res.SkippedTracks[i].ID)
			}
		}
		assertConservation(t, res)
	})

	t.Run("Repeated Source Track Is Written Each Time", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1"}, tracks("t1", "t1")...)

		res, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Imported != 2 || res.DuplicatesSkipped != 0 {
			t.Errorf("unexpected counts %+v", res)
		}
		want := []plxtesting.AddCall{{PlaylistID: res.TargetPlaylistID, TrackIDs: []string{"d1", "d1"}}}
		if diff := cmp.Diff(want, f.target.Adds()); diff != "" {
			t.Errorf("add calls mismatch (-want +got):\n%s", diff)
		}
		assertConservation(t, res)
	})

	t.Run("Allow Duplicates Skips Dedup", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1"}, tracks("t1", "t1")...)
		f.target.WithPlaylist("existing", "Road Trip", models.SourceTrack{ID: "d1"})

		req := request()
		req.AllowDuplicates = true
		res, err := f.engine.Migrate(ctx, req, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Imported != 2 || res.DuplicatesSkipped != 0 {
			t.Errorf("unexpected counts %+v", res)
		}
		if f.target.TrackCalls() != 0 {
			t.Error("existing tracks should not be fetched when duplicates are allowed")
		}
	})

	t.Run("Empty Source Playlist", func(t *testing.T) {
		f := newFixture(nil)

		res, err := f.engine.Migrate(ctx, request(), nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Total != 0 || len(f.target.Adds()) != 0 {
			t.Errorf("expected no writes, got %+v", res)
		}
		if len(f.target.Created()) != 1 {
			t.Error("the target playlist is still created")
		}
	})

	t.Run("Untitled Tracks Take Mapping Metadata", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1"}, models.SourceTrack{ID: "t1"}, models.SourceTrack{ID: "t2"})

		progress := make(chan ProgressUpdate, 64)
		res, err := f.engine.Migrate(ctx, request(), progress)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		close(progress)

		var imported []models.SourceTrack
		for u := range progress {
			if u.Phase == PhaseDone {
				imported = u.Progress.RecentImported
			}
		}
		if len(imported) != 1 || imported[0].Title != "Mapped t1" {
			t.Errorf("expected mapped title on imported track, got %+v", imported)
		}
		if got := res.SkippedTracks[0].DisplayName(); got != "Unknown Track (t2)" {
			t.Errorf("unexpected skipped display name %q", got)
		}
	})
}

func TestMigrationEngine_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("Validation Happens Before Any Call", func(t *testing.T) {
		expired := models.Credential{Token: &oauth2.Token{AccessToken: "old", Expiry: time.Now().Add(-time.Hour)}}

		tc := []struct {
			name   string
			mutate func(*MigrationRequest)
			want   error
		}{
			{name: "unknown source", mutate: func(r *MigrationRequest) { r.Source = "apple" }, want: shared.ErrUnsupportedProvider},
			{name: "missing playlist id", mutate: func(r *MigrationRequest) { r.SourcePlaylist.ID = "" }, want: shared.ErrInvalidArgument},
			{name: "blank target name", mutate: func(r *MigrationRequest) { r.TargetName = "  " }, want: shared.ErrInvalidArgument},
			{name: "missing session", mutate: func(r *MigrationRequest) { r.TargetCredential = models.Credential{} }, want: shared.ErrMissingCredentials},
			{name: "expired token", mutate: func(r *MigrationRequest) { r.SourceCredential = expired }, want: shared.ErrTokenExpired},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(map[string]string{"t1": "d1"}, tracks("t1")...)
				req := request()
				tt.mutate(&req)

				_, err := f.engine.Migrate(ctx, req, nil)
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				if !shared.IsInputError(err) {
					t.Errorf("expected an input error, got %v", err)
				}
				if f.source.TrackCalls() != 0 || len(f.target.Created()) != 0 {
					t.Error("no provider call may happen before validation passes")
				}
			})
		}
	})

	t.Run("Source Fetch Failure Is Fatal", func(t *testing.T) {
		f := newFixture(nil, tracks("t1")...)
		f.source.TracksErr["src"] = &shared.ProviderError{Service: "tidal", Status: 401}

		_, err := f.engine.Migrate(ctx, request(), nil)
		var me *MigrationError
		if !errors.As(err, &me) || me.Phase != PhaseFetchingSource {
			t.Fatalf("expected MigrationError in fetching_source, got %v", err)
		}
		if pe, ok := shared.IsProviderError(err); !ok || pe.Status != 401 {
			t.Errorf("provider error should be preserved, got %v", err)
		}
		if len(f.target.Created()) != 0 {
			t.Error("target must not be touched after a source failure")
		}
	})

	t.Run("Create Failure Is Fatal", func(t *testing.T) {
		f := newFixture(nil, tracks("t1")...)
		f.target.CreateErr = errors.New("quota")

		_, err := f.engine.Migrate(ctx, request(), nil)
		var me *MigrationError
		if !errors.As(err, &me) || me.Phase != PhaseResolvingTarget {
			t.Fatalf("expected MigrationError in resolving_target, got %v", err)
		}
	})

	t.Run("Write Failure Propagates After Classification", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1", "t2": "d2"}, tracks("t1", "t2", "t3")...)
		f.target.AddErr = &shared.ProviderError{Service: "deezer", Status: 403}

		res, err := f.engine.Migrate(ctx, request(), nil)
		if res != nil {
			t.Error("no result is returned for a failed write")
		}
		var me *MigrationError
		if !errors.As(err, &me) {
			t.Fatalf("expected MigrationError, got %v", err)
		}
		if me.Phase != PhaseWriting || me.Progress.Classified() != 3 || me.Progress.Imported != 2 {
			t.Errorf("unexpected failure state: phase %s, progress %+v", me.Phase, me.Progress)
		}
	})

	t.Run("Mapping Store Down Is Fatal", func(t *testing.T) {
		f := newFixture(nil, tracks("t1")...)
		f.engine.resolver = mapping.NewResolver(mapping.SourceFunc(func(context.Context, models.Provider, string) (*models.TrackMapping, error) {
			return nil, errors.New("connection refused")
		}), mapping.WithLogger(log.New(io.Discard)))

		_, err := f.engine.Migrate(ctx, request(), nil)
		if !shared.IsMappingUnavailable(err) {
			t.Errorf("expected MappingUnavailableError, got %v", err)
		}
	})

	t.Run("Cancelled Context", func(t *testing.T) {
		f := newFixture(map[string]string{"t1": "d1"}, tracks("t1")...)
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.engine.Migrate(cctx, request(), nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if f.source.TrackCalls() != 0 {
			t.Error("no phase should start after cancellation")
		}
	})
}

func TestMigrationEngine_Progress(t *testing.T) {
	f := newFixture(map[string]string{"t1": "d1", "t3": "d3"}, tracks("t1", "t2", "t3")...)
	progress := make(chan ProgressUpdate, 128)

	if _, err := f.engine.Migrate(context.Background(), request(), progress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(progress)

	var phases []Phase
	for u := range progress {
		if len(phases) == 0 || phases[len(phases)-1] != u.Phase {
			phases = append(phases, u.Phase)
		}
		if u.Phase == PhaseResolving && u.Progress.Current > 0 && u.Progress.Classified() != u.Progress.Current {
			t.Errorf("counters out of step: %+v", u.Progress)
		}
	}

	want := []Phase{PhaseValidating, PhaseFetchingSource, PhaseResolvingTarget, PhaseResolving, PhaseWriting, PhaseDone}
	if diff := cmp.Diff(want, phases); diff != "" {
		t.Errorf("phase sequence mismatch (-want +got):\n%s", diff)
	}
}

func TestMigrationEngine_NilAndFullChannels(t *testing.T) {
	f := newFixture(map[string]string{"t1": "d1"}, tracks("t1")...)

	if _, err := f.engine.Migrate(context.Background(), request(), nil); err != nil {
		t.Fatalf("a nil channel must be accepted: %v", err)
	}

	full := make(chan ProgressUpdate)
	if _, err := f.engine.Migrate(context.Background(), request(), full); err != nil {
		t.Fatalf("an unread channel must not block the run: %v", err)
	}
}

func TestPushRecent(t *testing.T) {
	var list []models.SourceTrack
	for i := range RecentHistoryLimit + 5 {
		list = pushRecent(list, models.SourceTrack{ID: strconv.Itoa(i)})
	}
	if len(list) != RecentHistoryLimit {
		t.Fatalf("expected %d entries, got %d", RecentHistoryLimit, len(list))
	}
	if list[0].ID != "5" || list[len(list)-1].ID != "14" {
		t.Errorf("expected newest entries, got %s..%s", list[0].ID, list[len(list)-1].ID)
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	track := models.SourceTrack{ID: "1"}
	p := MigrationProgress{CurrentTrack: &track, RecentImported: []models.SourceTrack{track}}

	s := p.Snapshot()
	p.CurrentTrack.Title = "changed"
	p.RecentImported[0].Title = "changed"

	if s.CurrentTrack.Title != "" || s.RecentImported[0].Title != "" {
		t.Error("snapshot shares memory with the live progress")
	}
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/formatter"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	tu "github.com/desertthunder/plx/internal/testing"
	"github.com/google/go-cmp/cmp"
	"github.com/urfave/cli/v3"
)

const testMappings = `[
  {"title": "One", "artist": {"name": "A"}, "providers": [{"provider": "tidal", "providerId": "t1"}, {"provider": "deezer", "providerId": 1001}]},
  {"title": "Two", "artist": {"name": "B"}, "providers": {"tidalTrackId": "t2", "deezerTrackId": "1002"}}
]`

type cliFixture struct {
	dir        string
	configPath string
	source     *tu.FakeProvider
	target     *tu.FakeProvider
	out        *bytes.Buffer
	runner     *Runner
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()
	dir := t.TempDir()

	configPath := filepath.Join(dir, "config.toml")
	config := fmt.Sprintf(`
[credentials.tidal]
access_token = "tidal-token"

[credentials.deezer]
arl = "arl-secret"

[database]
path = %q
`, filepath.Join(dir, "plx.db"))
	if err := os.WriteFile(configPath, []byte(config), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	source := tu.NewFakeProvider(models.Tidal).WithPlaylist("src", "Road Trip",
		models.SourceTrack{ID: "t1", Title: "One", Artist: "A"},
		models.SourceTrack{ID: "t2", Title: "Two", Artist: "B"},
		models.SourceTrack{ID: "t3"},
	)
	target := tu.NewFakeProvider(models.Deezer)
	out := &bytes.Buffer{}

	runner := NewRunner(RunnerOpts{
		Logger:    log.New(io.Discard),
		Output:    out,
		Providers: services.NewRegistry(source, target, tu.NewFakeProvider(models.Spotify)),
	})

	return &cliFixture{dir: dir, configPath: configPath, source: source, target: target, out: out, runner: runner}
}

// run executes the command line with the fixture's config, resetting captured output first.
func (f *cliFixture) run(args ...string) error {
	f.out.Reset()
	app := &cli.Command{
		Name:     "plx",
		Flags:    globalFlags(),
		Before:   f.runner.configure,
		Commands: f.runner.register(),
	}
	return app.Run(context.Background(), append([]string{"plx", "--config", f.configPath}, args...))
}

func (f *cliFixture) importMappings(t *testing.T) {
	t.Helper()
	path := filepath.Join(f.dir, "mappings.json")
	if err := os.WriteFile(path, []byte(testMappings), 0600); err != nil {
		t.Fatalf("failed to write mappings: %v", err)
	}
	if err := f.run("mapping", "import", "--file", path); err != nil {
		t.Fatalf("mapping import failed: %v", err)
	}
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			providers := services.NewRegistry(tu.NewFakeProvider(models.Tidal))

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				Providers:  providers,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if len(runner.providers) != 1 {
				t.Errorf("expected injected providers, got %v", runner.providers.Providers())
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
			if runner.client == nil {
				t.Error("expected fetch client to be built")
			}
			if diff := cmp.Diff(models.Providers, runner.providers.Providers()); diff != "" {
				t.Errorf("expected every provider to be registered (-want +got):\n%s", diff)
			}
		})

		t.Run("SetLogger keeps injected providers", func(t *testing.T) {
			providers := services.NewRegistry(tu.NewFakeProvider(models.Tidal))
			runner := NewRunner(RunnerOpts{Providers: providers})

			runner.SetLogger(log.New(io.Discard))
			if len(runner.providers) != 1 {
				t.Error("injected providers should survive a logger change")
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			expected := `{"key":"value"}` + "\n"
			if output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: tu.NewLimitedWriter(1, &bytes.Buffer{})})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write newline") {
				t.Errorf("expected newline write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})

		var names []string
		for _, cmd := range runner.register() {
			names = append(names, cmd.Name)
		}

		want := []string{"migrate", "playlists", "tracks", "mapping", "setup", "serve"}
		if diff := cmp.Diff(want, names); diff != "" {
			t.Errorf("command mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("credentialFor", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Credentials.Tidal.AccessToken = "tidal-token"
		config.Credentials.Deezer.ARL = "arl"
		runner := NewRunner(RunnerOpts{Config: config})

		if err := runner.credentialFor(models.Tidal).Validate(models.Tidal); err != nil {
			t.Errorf("tidal credential should be valid: %v", err)
		}
		if err := runner.credentialFor(models.Deezer).Validate(models.Deezer); err != nil {
			t.Errorf("deezer credential should be valid: %v", err)
		}
		if err := runner.credentialFor(models.Spotify).Validate(models.Spotify); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("empty spotify token should be missing, got %v", err)
		}
	})
}

func TestConfigure(t *testing.T) {
	t.Run("Loads Config And Format", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run("--format", "json", "--log-level", "debug", "playlists", "--provider", "tidal"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if f.runner.format != formatter.FormatJSON {
			t.Errorf("expected json format, got %q", f.runner.format)
		}
		if f.runner.config.Credentials.Tidal.AccessToken != "tidal-token" {
			t.Error("config file should be loaded")
		}
		if f.runner.logger.GetLevel() != log.DebugLevel {
			t.Errorf("expected debug level, got %v", f.runner.logger.GetLevel())
		}
	})

	t.Run("Rejects Unknown Format", func(t *testing.T) {
		f := newCLIFixture(t)

		err := f.run("--format", "yaml", "playlists", "--provider", "tidal")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestMigrateCommand(t *testing.T) {
	t.Run("Text Summary And Report", func(t *testing.T) {
		f := newCLIFixture(t)
		f.importMappings(t)

		report := filepath.Join(f.dir, "reports", "skipped.csv")
		if err := f.run("migrate", "--from", "tidal", "--to", "deezer", "--playlist", "src", "--report", report); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}

		want := []tu.AddCall{{PlaylistID: "created-1", TrackIDs: []string{"1001", "1002"}}}
		if diff := cmp.Diff(want, f.target.Adds()); diff != "" {
			t.Errorf("writes mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"Road Trip"}, f.target.Created()); diff != "" {
			t.Errorf("target name should default to the source name (-want +got):\n%s", diff)
		}

		out := f.out.String()
		for _, s := range []string{"TIDAL → Deezer: Road Trip", "Migration Complete!", "Imported:   2", "Skipped:    1", "Unknown Track (t3)"} {
			if !strings.Contains(out, s) {
				t.Errorf("output missing %q:\n%s", s, out)
			}
		}

		tu.AssertFileExists(t, report)
		data, _ := os.ReadFile(report)
		if !strings.Contains(string(data), "t3") {
			t.Errorf("report should list the skipped track, got %s", data)
		}
	})

	t.Run("Rerun Adds Nothing", func(t *testing.T) {
		f := newCLIFixture(t)
		f.importMappings(t)

		for range 2 {
			if err := f.run("migrate", "--from", "tidal", "--to", "deezer", "--playlist", "src"); err != nil {
				t.Fatalf("migrate failed: %v", err)
			}
		}

		if len(f.target.Created()) != 1 || len(f.target.Adds()) != 1 {
			t.Errorf("second run should reuse the playlist and add nothing, got created=%v adds=%v", f.target.Created(), f.target.Adds())
		}
		if !strings.Contains(f.out.String(), "Duplicates: 2") {
			t.Errorf("second run should report duplicates:\n%s", f.out.String())
		}
	})

	t.Run("JSON Result", func(t *testing.T) {
		f := newCLIFixture(t)
		f.importMappings(t)

		if err := f.run("--format", "json", "migrate", "--from", "tidal", "--to", "deezer", "--playlist", "src", "--name", "Copied"); err != nil {
			t.Fatalf("migrate failed: %v", err)
		}

		var got map[string]any
		if err := json.Unmarshal(f.out.Bytes(), &got); err != nil {
			t.Fatalf("output is not a single JSON document: %v\n%s", err, f.out.String())
		}
		if got["imported"] != float64(2) || got["target_playlist_name"] != "Copied" {
			t.Errorf("unexpected result %v", got)
		}
		if _, ok := got["duration_ms"]; !ok {
			t.Error("duration_ms missing")
		}
	})

	t.Run("Could Not Start", func(t *testing.T) {
		tc := []struct {
			name string
			args []string
			want error
		}{
			{name: "unknown provider", args: []string{"--from", "napster", "--to", "deezer", "--playlist", "src"}, want: shared.ErrUnsupportedProvider},
			{name: "missing token", args: []string{"--from", "tidal", "--to", "spotify", "--playlist", "src"}, want: shared.ErrMissingCredentials},
			{name: "missing playlist", args: []string{"--from", "tidal", "--to", "deezer"}, want: shared.ErrMissingArgument},
			{name: "not in library", args: []string{"--from", "tidal", "--to", "deezer", "--playlist", "other"}, want: shared.ErrPlaylistNotFound},
		}

		for _, tt := range tc {
			t.Run(tt.name, func(t *testing.T) {
				f := newCLIFixture(t)

				err := f.run(append([]string{"migrate"}, tt.args...)...)
				if !errors.Is(err, tt.want) {
					t.Fatalf("expected %v, got %v", tt.want, err)
				}
				if !strings.HasPrefix(err.Error(), "could not start") {
					t.Errorf("expected could-not-start message, got %q", err)
				}
				if f.source.TrackCalls() != 0 || len(f.target.Adds()) != 0 {
					t.Error("nothing should be fetched or written")
				}
			})
		}
	})

	t.Run("Failed After Classification", func(t *testing.T) {
		f := newCLIFixture(t)
		f.importMappings(t)
		f.target.AddErr = &shared.ProviderError{Service: "deezer", Status: 403, Message: "forbidden"}

		err := f.run("migrate", "--from", "tidal", "--to", "deezer", "--playlist", "src")
		if err == nil {
			t.Fatal("expected an error")
		}
		if !strings.HasPrefix(err.Error(), "failed after 3 tracks classified (writing)") {
			t.Errorf("unexpected message %q", err)
		}
		if pe, ok := shared.IsProviderError(err); !ok || pe.Status != 403 {
			t.Errorf("provider error should stay in the chain, got %v", err)
		}
	})
}

func TestLibraryCommands(t *testing.T) {
	t.Run("Playlists", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run("playlists", "--provider", "tidal"); err != nil {
			t.Fatalf("playlists failed: %v", err)
		}
		if f.out.String() != "1. Road Trip (3 tracks) [src]\n" {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})

	t.Run("Playlists JSON", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run("--format", "json", "playlists", "--provider", "tidal"); err != nil {
			t.Fatalf("playlists failed: %v", err)
		}
		var got []models.Playlist
		if err := json.Unmarshal(f.out.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(got) != 1 || got[0].ID != "src" {
			t.Errorf("unexpected playlists %+v", got)
		}
	})

	t.Run("Playlists Without Credentials", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run("playlists", "--provider", "spotify"); !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Tracks With CSV", func(t *testing.T) {
		f := newCLIFixture(t)
		path := filepath.Join(f.dir, "tracks.csv")

		if err := f.run("tracks", "--provider", "tidal", "--playlist", "src", "--csv", path); err != nil {
			t.Fatalf("tracks failed: %v", err)
		}
		if !strings.Contains(f.out.String(), "Tracks: 3") || !strings.Contains(f.out.String(), "1. A - One") {
			t.Errorf("unexpected listing:\n%s", f.out.String())
		}
		tu.AssertFileExists(t, path)
	})
}

func TestMappingCommands(t *testing.T) {
	t.Run("Import Summary", func(t *testing.T) {
		f := newCLIFixture(t)
		path := filepath.Join(f.dir, "mappings.json")
		if err := os.WriteFile(path, []byte(testMappings), 0600); err != nil {
			t.Fatal(err)
		}

		for range 2 {
			if err := f.run("--format", "json", "mapping", "import", "--file", path); err != nil {
				t.Fatalf("import failed: %v", err)
			}
		}

		var got importSummary
		if err := json.Unmarshal(f.out.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if diff := cmp.Diff(importSummary{File: path, Imported: 2, Total: 2}, got); diff != "" {
			t.Errorf("reimport should not add tracks (-want +got):\n%s", diff)
		}
	})

	t.Run("Import Rejects Bad File", func(t *testing.T) {
		f := newCLIFixture(t)
		path := filepath.Join(f.dir, "bad.json")
		if err := os.WriteFile(path, []byte(`[{"title": "No ids"}]`), 0600); err != nil {
			t.Fatal(err)
		}

		if err := f.run("mapping", "import", "--file", path); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Lookup", func(t *testing.T) {
		f := newCLIFixture(t)
		f.importMappings(t)

		if err := f.run("mapping", "lookup", "--service", "tidal", "--id", "t1"); err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if !strings.Contains(f.out.String(), "A - One") || !strings.Contains(f.out.String(), "1001") {
			t.Errorf("unexpected lookup output:\n%s", f.out.String())
		}

		if err := f.run("mapping", "lookup", "--service", "deezer", "--id", "1002"); err != nil {
			t.Fatalf("reverse lookup failed: %v", err)
		}
		if !strings.Contains(f.out.String(), "t2") {
			t.Errorf("reverse lookup should list the TIDAL id:\n%s", f.out.String())
		}

		if err := f.run("mapping", "lookup", "--service", "tidal", "--id", "t9"); err != nil {
			t.Fatalf("lookup failed: %v", err)
		}
		if f.out.String() != "No mapping found.\n" {
			t.Errorf("unexpected output %q", f.out.String())
		}
	})
}

func TestSetupCommand(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "setup.db")
	t.Setenv("PLX_DATABASE_PATH", dbPath)

	out := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Logger: log.New(io.Discard), Output: out})
	configPath := filepath.Join(dir, "config.toml")

	app := &cli.Command{Name: "plx", Flags: globalFlags(), Before: runner.configure, Commands: runner.register()}
	if err := app.Run(context.Background(), []string{"plx", "--config", configPath, "setup"}); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	tu.AssertFileExists(t, configPath)
	tu.AssertFileExists(t, dbPath)
	if !strings.Contains(out.String(), "Database ready at "+dbPath) {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

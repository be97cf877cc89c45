package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plx/internal/formatter"
	"github.com/desertthunder/plx/internal/httpclient"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/repositories"
	"github.com/desertthunder/plx/internal/services"
	"github.com/desertthunder/plx/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
	format     formatter.Format
	client     *httpclient.Client
	providers  services.Registry
	injected   bool // providers came from RunnerOpts
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Providers replaces the registry built from Config, which lets tests run commands against fakes.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Providers  services.Registry
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	r := &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		format:     formatter.FormatText,
		providers:  opts.Providers,
		injected:   opts.Providers != nil,
	}
	r.rebuild()
	return r
}

// rebuild recreates the fetch client and, unless injected, the provider adapters from the current config and logger.
func (r *Runner) rebuild() {
	r.client = newHTTPClient(r.config.HTTP, r.logger)
	if !r.injected {
		r.providers = newRegistry(r.config, r.client, r.logger)
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		migrateCommand, playlistsCommand, tracksCommand, mappingCommand, setupCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// configure applies the global flags. It runs before every command.
//
// A missing config file falls back to built-in defaults so that `plx setup` can create it.
func (r *Runner) configure(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := cmd.String("config")
	if _, err := os.Stat(path); err == nil {
		config, err := shared.LoadConfig(path)
		if err != nil {
			return ctx, err
		}
		r.config = config
		r.rebuild()
	} else if cmd.IsSet("config") {
		r.logger.Warn("config file not found, using defaults", "path", path)
	}
	r.configPath = path

	level := r.config.Log.Level
	if cmd.IsSet("log-level") {
		level = cmd.String("log-level")
	}
	ll, err := shared.ParseLogLevel(level)
	if err != nil {
		return ctx, err
	}
	shared.SetLogLevel(r.logger, ll)

	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return ctx, err
	}
	r.format = format

	return ctx, nil
}

// SetLogger replaces the logger used by the runner and by components it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
	r.rebuild()
}

func newHTTPClient(cfg shared.HTTPConfig, logger *log.Logger) *httpclient.Client {
	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout.Duration}),
		httpclient.WithPolicy(httpclient.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay.Duration,
			MaxDelay:   cfg.MaxDelay.Duration,
		}),
		httpclient.WithLogger(logger),
	}
	if cfg.RequestsPerSecond > 0 {
		opts = append(opts, httpclient.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)))
	}
	return httpclient.New(opts...)
}

func newRegistry(cfg *shared.Config, client *httpclient.Client, logger *log.Logger) services.Registry {
	return services.NewRegistry(
		services.NewTidalService(client, "", cfg.Credentials.Tidal.CountryCode, logger),
		services.NewSpotifyService(client, "", logger),
		services.NewDeezerService(client, cfg.Credentials.Deezer.ProxyURL, logger),
	)
}

func bearerCredential(c shared.BearerConfig) models.Credential {
	if c.AccessToken == "" {
		return models.Credential{}
	}
	return models.Credential{Token: &oauth2.Token{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       c.Expiry,
	}}
}

// credentialFor reads p's credential from the loaded config.
func (r *Runner) credentialFor(p models.Provider) models.Credential {
	switch p {
	case models.Spotify:
		return bearerCredential(r.config.Credentials.Spotify)
	case models.Tidal:
		return bearerCredential(r.config.Credentials.Tidal.BearerConfig)
	case models.Deezer:
		return models.SessionCredential(r.config.Credentials.Deezer.ARL)
	default:
		return models.Credential{}
	}
}

// openDatabase opens the configured SQLite database with migrations applied.
func (r *Runner) openDatabase() (*sql.DB, error) {
	r.logger.Debug("opening database", "path", r.config.Database.Path)
	return shared.OpenDatabase(r.config.Database)
}

// newResolver builds the mapping resolver for the configured source. The returned func releases the source.
func (r *Runner) newResolver(cache mapping.Cache) (*mapping.Resolver, func() error, error) {
	var source mapping.Source
	closer := func() error { return nil }

	switch r.config.Mapping.Source {
	case "http":
		source = mapping.NewHTTPSource(r.config.Mapping.BaseURL, r.client, r.config.Mapping.RequestsPerSecond)
		r.logger.Debug("using http mapping source", "base_url", r.config.Mapping.BaseURL)
	default:
		db, err := r.openDatabase()
		if err != nil {
			return nil, nil, err
		}
		source = mapping.NewStoreSource(repositories.NewMappingRepository(db))
		closer = db.Close
	}

	resolver := mapping.NewResolver(source,
		mapping.WithCache(cache),
		mapping.WithLogger(r.logger),
		mapping.WithConcurrency(r.config.Mapping.Concurrency),
	)
	return resolver, closer, nil
}

// provider returns the registered adapter for a --provider style flag value.
func (r *Runner) provider(name string) (models.Provider, services.PlaylistProvider, error) {
	p, err := models.ParseProvider(name)
	if err != nil {
		return "", nil, err
	}
	svc, err := r.providers.Get(p)
	if err != nil {
		return "", nil, err
	}
	return p, svc, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// writeOutput writes data as JSON when --format json is set, otherwise the text rendering.
func (r *Runner) writeOutput(data any, text string) error {
	if r.format == formatter.FormatJSON {
		return r.writeJSON(data, true)
	}
	return r.writePlain("%s", text)
}

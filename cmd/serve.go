package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/server"
	"github.com/desertthunder/plx/internal/tasks"
	"github.com/urfave/cli/v3"
)

// Serve starts the HTTP API and blocks until the process is interrupted.
//
// The mapping cache is bounded by mapping.cache_size since the process is long lived.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if cmd.IsSet("host") {
		cfg.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		cfg.Port = int(cmd.Int("port"))
	}

	cache := mapping.NewMemoryCache()
	if size := r.config.Mapping.CacheSize; size > 0 {
		lru, err := mapping.NewLRUCache(size)
		if err != nil {
			return fmt.Errorf("failed to create mapping cache: %w", err)
		}
		cache = lru
	}

	resolver, closeSource, err := r.newResolver(cache)
	if err != nil {
		return err
	}
	defer closeSource()

	engine := tasks.NewMigrationEngine(r.providers, resolver, r.logger)
	srv := server.New(cfg, engine, r.providers, resolver, r.logger)

	r.logger.Info("mapping source ready", "source", r.config.Mapping.Source, "cache_size", r.config.Mapping.CacheSize)
	return srv.ListenAndServe(ctx)
}

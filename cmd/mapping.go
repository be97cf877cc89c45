package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/plx/internal/formatter"
	"github.com/desertthunder/plx/internal/mapping"
	"github.com/desertthunder/plx/internal/models"
	"github.com/desertthunder/plx/internal/repositories"
	"github.com/urfave/cli/v3"
)

// importSummary is the JSON output of `plx mapping import`.
type importSummary struct {
	File     string `json:"file"`
	Imported int    `json:"imported"`
	Total    int    `json:"total"`
}

// MappingImport loads a JSON array of mapping records into the local database.
//
// Records are upserted, so importing the same file twice leaves the store unchanged.
func (r *Runner) MappingImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("file")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open mapping file: %w", err)
	}
	defer f.Close()

	records, err := mapping.ReadRecords(f)
	if err != nil {
		return err
	}

	mappings := make([]models.TrackMapping, len(records))
	for i, rec := range records {
		mappings[i] = rec.TrackMapping()
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewMappingRepository(db)

	r.logger.Infof("importing %d mapping records from %s", len(mappings), path)
	n, err := repo.Import(ctx, mappings)
	if err != nil {
		return fmt.Errorf("failed to import mappings: %w", err)
	}

	total, err := repo.Count(ctx)
	if err != nil {
		return err
	}

	summary := importSummary{File: path, Imported: n, Total: total}
	return r.writeOutput(summary, fmt.Sprintf("✓ Imported %d mappings from %s (%d tracks in store)\n", n, path, total))
}

// MappingLookup resolves one track through the configured mapping source.
func (r *Runner) MappingLookup(ctx context.Context, cmd *cli.Command) error {
	service, err := models.ParseProvider(cmd.String("service"))
	if err != nil {
		return err
	}
	trackID := cmd.String("id")

	resolver, closeSource, err := r.newResolver(mapping.NewMemoryCache())
	if err != nil {
		return err
	}
	defer closeSource()

	m, err := resolver.ResolveOne(ctx, service, trackID)
	if err != nil {
		return err
	}

	if r.format == formatter.FormatJSON {
		if m == nil {
			return r.writeJSON(nil, true)
		}
		return r.writeJSON(mapping.NewRecord(m), true)
	}
	return r.writePlain("%s", formatter.MappingToText(m))
}

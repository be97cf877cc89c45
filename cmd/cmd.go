// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			Value:   "config.toml",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level (debug, info, warn, error); overrides log.level",
		},
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format (text or json)",
			Value:   "text",
		},
	}
}

// migrateCommand copies one playlist between services.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"transfer"},
		Usage:   "Migrate a playlist from one service to another",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "from",
				Usage:    "Source service (tidal, spotify or deezer)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Usage:    "Target service (tidal, spotify or deezer)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "playlist",
				Aliases: []string{"p"},
				Usage:   "Source playlist ID (omit with --tui to pick one)",
			},
			&cli.StringFlag{
				Name:  "name",
				Usage: "Target playlist name (defaults to the source playlist's name)",
			},
			&cli.BoolFlag{
				Name:  "allow-duplicates",
				Usage: "Add tracks even if they are already on the target playlist",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Mapping lookup workers (0 uses mapping.concurrency)",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write tracks with no mapping to this file (CSV, or Markdown for .md)",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show an interactive progress view",
			},
		},
		Action: r.Migrate,
	}
}

// playlistsCommand lists the caller's playlists on one service.
func playlistsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "playlists",
		Usage: "List playlists on a service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "provider",
				Aliases:  []string{"p"},
				Usage:    "Service to list (tidal, spotify or deezer)",
				Required: true,
			},
		},
		Action: r.Playlists,
	}
}

// tracksCommand lists the tracks of one playlist.
func tracksCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "tracks",
		Usage: "List the tracks of a playlist",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "provider",
				Usage:    "Service the playlist lives on",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "playlist",
				Aliases:  []string{"p"},
				Usage:    "Playlist ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "csv",
				Usage: "Also write the listing to this CSV file",
			},
		},
		Action: r.Tracks,
	}
}

// mappingCommand manages the local track mapping store.
func mappingCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "mapping",
		Usage: "Track mapping store operations",
		Commands: []*cli.Command{
			{
				Name:  "import",
				Usage: "Load mapping records from a JSON file into the database",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Usage:    "JSON array of mapping records",
						Required: true,
					},
				},
				Action: r.MappingImport,
			},
			{
				Name:  "lookup",
				Usage: "Show where a track maps to",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "service",
						Usage:    "Service the track ID belongs to",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Track ID",
						Required: true,
					},
				},
				Action: r.MappingLookup,
			},
		},
	}
}

// setupCommand creates the config file and database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create config.toml if missing, initialize the database and run migrations",
		Action: r.Setup,
	}
}

// serveCommand starts the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to bind (overrides server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

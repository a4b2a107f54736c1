// authd - account registration and token lifecycle service
//
// authd registers accounts, signs them in, and keeps their sessions alive
// with short-lived access tokens and single-use rotating renewal tokens.
//
// Usage:
//
//	authd [--config path] serve
//	authd [--config path] migrate up|down|status
//	authd version
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	_ "github.com/HLeNam/user-registration-system-backend/migrations"

	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/config"
	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/database"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancelled on Ctrl+C or SIGTERM so serve can shut down gracefully.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newApp builds the command tree. serve is the default action.
func newApp() *cli.App {
	return &cli.App{
		Name:    "authd",
		Usage:   "account registration and token lifecycle service",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file (empty: defaults and environment only)",
				EnvVars: []string{"AUTHD_CONFIG"},
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: serveAction,
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply all pending migrations",
						Action: migrateUpAction,
					},
					{
						Name:   "down",
						Usage:  "roll back the most recent migration",
						Action: migrateDownAction,
					},
					{
						Name:   "status",
						Usage:  "show applied and pending migrations",
						Action: migrateStatusAction,
					},
				},
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "authd %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
					return nil
				},
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	return run(c.Context, cfg)
}

func migrateUpAction(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *database.DB) error {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "migrations applied")
		return nil
	})
}

func migrateDownAction(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *database.DB) error {
		if err := db.MigrateDown(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "rolled back one migration")
		return nil
	})
}

func migrateStatusAction(c *cli.Context) error {
	return withDatabase(c, func(ctx context.Context, db *database.DB) error {
		current, records, err := db.MigrationStatus(ctx)
		if err != nil {
			return err
		}
		return printMigrationStatus(c.App.Writer, current, records)
	})
}

// withDatabase loads config, opens the database and runs fn against it.
func withDatabase(c *cli.Context, fn func(context.Context, *database.DB) error) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.Open(databaseConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // CLI exit path

	return fn(c.Context, db)
}

func printMigrationStatus(w io.Writer, current int64, records []database.MigrationRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0) //nolint:mnd // tabwriter padding
	fmt.Fprintf(tw, "current version: %d\n\n", current)
	fmt.Fprintln(tw, "VERSION\tSTATE\tSOURCE")
	for _, r := range records {
		state := "pending"
		if r.Applied {
			state = "applied"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", r.Version, state, r.Source)
	}
	return tw.Flush()
}

// databaseConfig maps the config section onto database.Config.
func databaseConfig(cfg config.DatabaseConfig) database.Config {
	return database.Config{
		Dialect:      database.Dialect(cfg.Driver),
		Path:         cfg.Path,
		DSN:          cfg.DSN,
		WALMode:      cfg.WALMode,
		BusyTimeout:  cfg.BusyTimeout,
		MaxOpenConns: cfg.MaxOpenConns,
	}
}

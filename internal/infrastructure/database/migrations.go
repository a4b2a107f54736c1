package database

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// MigrationsFS holds the embedded SQL migrations. It is populated by the
// migrations package via init(); each dialect has its own subdirectory.
var MigrationsFS embed.FS

// MigrationsDirs maps a dialect to its directory inside MigrationsFS.
var MigrationsDirs = map[Dialect]string{
	DialectSQLite:   "sqlite",
	DialectPostgres: "postgres",
}

// gooseMu guards goose's package-level base FS and dialect.
var gooseMu sync.Mutex

// MigrationRecord describes one embedded migration and whether it has been applied.
type MigrationRecord struct {
	Version int64
	Source  string
	Applied bool
}

// Migrate applies all pending migrations for the connection's dialect.
func (db *DB) Migrate(ctx context.Context) error {
	return db.withGoose(func(dir string) error {
		if err := goose.UpContext(ctx, db.DB, dir); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
		return nil
	})
}

// MigrateDown rolls back the most recently applied migration.
func (db *DB) MigrateDown(ctx context.Context) error {
	return db.withGoose(func(dir string) error {
		current, err := goose.GetDBVersionContext(ctx, db.DB)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		if current == 0 {
			return nil
		}
		if err := goose.DownContext(ctx, db.DB, dir); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		return nil
	})
}

// MigrationStatus returns the current schema version and every embedded
// migration with its applied state.
func (db *DB) MigrationStatus(ctx context.Context) (current int64, records []MigrationRecord, err error) {
	err = db.withGoose(func(dir string) error {
		version, verr := goose.GetDBVersionContext(ctx, db.DB)
		if verr != nil {
			return fmt.Errorf("reading schema version: %w", verr)
		}
		current = version

		migrations, cerr := goose.CollectMigrations(dir, 0, goose.MaxVersion)
		if cerr != nil {
			return fmt.Errorf("collecting migrations: %w", cerr)
		}

		for _, m := range migrations {
			records = append(records, MigrationRecord{
				Version: m.Version,
				Source:  m.Source,
				Applied: m.Version <= current,
			})
		}
		return nil
	})
	return current, records, err
}

// withGoose configures goose for this connection's dialect and runs fn
// with the migrations directory.
func (db *DB) withGoose(fn func(dir string) error) error {
	dir, ok := MigrationsDirs[db.dialect]
	if !ok {
		return fmt.Errorf("no migrations registered for dialect %q", db.dialect)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(MigrationsFS)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(gooseDialect(db.dialect)); err != nil {
		return fmt.Errorf("setting migration dialect: %w", err)
	}

	return fn(dir)
}

func gooseDialect(d Dialect) string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}

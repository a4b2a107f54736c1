// Package database provides SQL connectivity for the account store.
//
// Two dialects are supported behind one *DB type:
//   - sqlite: mattn/go-sqlite3, WAL mode, busy timeout, single writer
//   - postgres: jackc/pgx/v5 through its database/sql driver
//
// Repositories write queries once with ? placeholders and call Rebind.
// Schema migrations are goose-formatted SQL files embedded by the
// migrations package, one directory per dialect.
//
// Usage:
//
//	db, err := database.Open(database.Config{Dialect: database.DialectSQLite, Path: path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database

// Package migrations embeds SQL migration files into the binary.
//
// Each dialect keeps its own goose-formatted files (sqlite/, postgres/);
// importing this package registers them with the database package.
package migrations

import (
	"embed"

	"github.com/HLeNam/user-registration-system-backend/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}

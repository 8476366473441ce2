// Package migrations embeds the session file schema into the binary, so a
// session file can be created anywhere without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/cliqr-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	// Hand the embedded schema to the database package before any
	// session starts.
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}

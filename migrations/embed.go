// Package migrations embeds the alpwatch SQL migrations into the binary.
//
// Importing it for side effects registers the files with the database
// package, so Migrate works without the SQL files on disk.
package migrations

import (
	"embed"

	"github.com/bguthro/seestar-alp/internal/infrastructure/database"
)

//go:embed *.up.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
}

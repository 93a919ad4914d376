package lifecycle

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the SQL migrations for both dialects; sqlite variants
// live under data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

func GetMigrationsFS() fs.FS {
	return migrationsFS
}

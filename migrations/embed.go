// Package migrations embeds the SQL schema of every supported database driver.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per driver: postgresql, mysql and sqlite3.
//
//go:embed postgresql/*.sql mysql/*.sql sqlite3/*.sql
var FS embed.FS

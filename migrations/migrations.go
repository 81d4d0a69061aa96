// Package migrations embeds the SQL schema applied by golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Version is the schema version the service expects
const Version = 1

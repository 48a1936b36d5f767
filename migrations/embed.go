// Package migrations holds the SQL schema applied at startup.
package migrations

import "embed"

// FS contains every migration file, named NNN_description.sql
//
//go:embed *.sql
var FS embed.FS

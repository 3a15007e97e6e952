// Package migrations embeds the SQL schema for the SQL attendee stores.
package migrations

import "embed"

// FS holds the versioned up/down migration files.
//
//go:embed *.sql
var FS embed.FS

// Package migrations embeds the SQL schema migrations for the PostgreSQL
// record-store backend.
package migrations

import "embed"

// FS holds the migration files consumed by golang-migrate's iofs source.
//
//go:embed *.sql
var FS embed.FS

// Package migrations embeds the goose schema migrations of the account
// store. The SQL is shared by the PostgreSQL and SQLite dialects.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS

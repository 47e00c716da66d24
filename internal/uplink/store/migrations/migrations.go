// Package migrations embeds the goose schema migrations for the durable task
// store, one directory per supported dialect.
package migrations

import "embed"

//go:embed sqlite/*.sql postgres/*.sql
var Migrations embed.FS

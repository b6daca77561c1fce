package db

import "embed"

// EmbedMigrations holds the query_history and notebooks schema migrations.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS

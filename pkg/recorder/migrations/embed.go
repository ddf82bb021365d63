package migrations

import "embed"

// FS contains embedded SQLite migrations for the session recorder.
//
//go:embed *.sql
var FS embed.FS

package migrations

import "embed"

// FS contains embedded goose migrations for document storage.
//
//go:embed *.sql
var FS embed.FS

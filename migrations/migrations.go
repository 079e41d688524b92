// Package migrations embeds the goose SQL migration set for the
// persistence facade (internal/repository), applied via pkg/database's
// generic Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Dir is the goose migration directory root within FS.
const Dir = "."

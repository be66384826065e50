// Package migrations holds the versioned SQL schema of the sync engine.
package migrations

import "embed"

// FS contains every migration file, so binaries can migrate without the source tree
//
//go:embed *.sql
var FS embed.FS

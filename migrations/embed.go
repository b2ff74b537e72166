// Package migrations holds the schema as ordered NNNNNN_name.up.sql and
// .down.sql pairs.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

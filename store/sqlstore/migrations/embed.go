// Package migrations holds the record table schema per SQL dialect.
package migrations

import "embed"

// FS contains the embedded schema files.
//
//go:embed *.sql
var FS embed.FS

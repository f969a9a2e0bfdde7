// Package migrations holds the goose migrations of the tracking schema. They run unchanged on
// PostgreSQL and SQLite: times are unix milliseconds, durations ISO-8601 text.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

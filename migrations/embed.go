// Package migrations holds the SQL schema applied at startup by goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Package migrations holds the schema of the development message service.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

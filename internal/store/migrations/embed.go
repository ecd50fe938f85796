// Package migrations embeds the SQL schema for the offline queue database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

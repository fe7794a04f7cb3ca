// Package migrations embeds the SQL migration set applied by golang-migrate
// on startup via an iofs embed.FS source.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

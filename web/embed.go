// Package web embeds the database migrations shipped with the binary. The
// dashboard frontend itself is a separate deployment; this service only
// exposes the JSON API.
package web

import (
	"embed"
	"io/fs"
)

//go:embed all:migrations
var content embed.FS

func MigrationsFS() fs.FS {
	return content
}

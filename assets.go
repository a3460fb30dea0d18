// Package websession provides embedded web assets for the session server.
package websession

import "embed"

// StaticFS holds files served under /static/.
//
//go:embed all:web/static
var StaticFS embed.FS

// TemplateFS holds the page templates.
//
//go:embed all:web/templates
var TemplateFS embed.FS

// Package web holds the embedded HTML page.
package web

import (
	"embed"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templates embed.FS

var index = template.Must(template.ParseFS(templates, "templates/index.html"))

// Page is the data rendered by the index page.
type Page struct {
	Authenticated bool
	Name          string
	Email         string
	Picture       string
	// RenewalFailed makes the page restart sign-in on load.
	RenewalFailed bool
	// APIBase prefixes every API path used by the page script.
	APIBase string
}

// RenderIndex writes the index page.
func RenderIndex(w io.Writer, p Page) error {
	return index.Execute(w, p)
}

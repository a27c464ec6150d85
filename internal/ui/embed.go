// Package ui contains the embedded dashboard served under /ui/.
package ui

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static/**
var assets embed.FS

// FS returns a http.FileSystem for the embedded dashboard assets.
func FS() http.FileSystem {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		return http.FS(assets)
	}
	return http.FS(sub)
}

// Handler serves the dashboard with base stripped from request paths.
func Handler(base string) http.Handler {
	return http.StripPrefix(base, http.FileServer(FS()))
}

// Package web embeds and serves the browser UI: the grid/solo layout shell
// and the client media pipeline that drives MSE playback for each camera
// tile. The server core never renders UI state itself — it only emits
// events on the bus (see internal/eventbus) that this embedded frontend
// consumes.
//
// Uses the familiar go:embed assets/* plus fs.Sub plus
// http.FileServer(http.FS(...)) shape, generalized from a single-camera
// viewer to StageView's multi-tile grid/solo UI and WebSocket event stream.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed assets/*
var assetsFS embed.FS

// FileServer returns an http.Handler serving the embedded UI at "/".
func FileServer() (http.Handler, error) {
	sub, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		return nil, err
	}
	return http.FileServer(http.FS(sub)), nil
}

// Register mounts the embedded UI on mux at the root path.
func Register(mux *http.ServeMux) error {
	handler, err := FileServer()
	if err != nil {
		return err
	}
	mux.Handle("/", handler)
	return nil
}

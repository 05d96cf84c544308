// Package controlapi is the remote control API server: it
// turns HTTP GETs into typed remote-command events on the event bus. It
// never mutates UI state itself — the browser-side pipeline consumes the
// event and switches modes, while streams keep running underneath for
// instant grid/solo toggling.
//
// Shaped as a thin struct holding collaborators, one method per route, and
// jsonError for uniform error envelopes, using Go 1.22's method-and-path
// ServeMux patterns for route registration rather than a manual r.Method
// switch.
package controlapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"stageview/internal/camera"
	"stageview/internal/config"
	"stageview/internal/eventbus"
)

// Server implements GET /api/solo/{index}, /api/grid, /api/fullscreen,
// /api/reload and /api/status.
type Server struct {
	cameras *camera.List
	cfg     *config.Manager
	bus     *eventbus.Hub

	// Reloader restarts per-camera supervisors against freshly loaded
	// config; wired by cmd/stageviewd to the supervisor pool.
	reload func(config.Config) error

	mu         sync.Mutex
	fullscreen bool
}

// NewServer builds a Server. reload may be nil in tests that do not need
// /api/reload to actually restart anything.
func NewServer(cameras *camera.List, cfg *config.Manager, bus *eventbus.Hub, reload func(config.Config) error) *Server {
	return &Server{cameras: cameras, cfg: cfg, bus: bus, reload: reload}
}

// Register wires the control API's routes onto mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/solo/{index}", s.handleSolo)
	mux.HandleFunc("GET /api/grid", s.handleGrid)
	mux.HandleFunc("GET /api/fullscreen", s.handleFullscreen)
	mux.HandleFunc("GET /api/reload", s.handleReload)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.Handle("/api/", NotFoundHandler())
}

func jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// handleSolo implements GET /api/solo/{index} : 1-based,
// insertion-order indexing; 400 on a malformed index, 404 when out of
// range.
func (s *Server) handleSolo(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		jsonError(w, "malformed index", http.StatusBadRequest)
		return
	}

	if _, ok := s.cameras.ByIndex(index); !ok {
		jsonError(w, "index out of range", http.StatusNotFound)
		return
	}

	s.bus.Broadcast(eventbus.EventRemoteCommand, map[string]any{
		"command": "solo",
		"index":   index,
	})
	writeJSON(w, map[string]any{"ok": true, "action": "solo", "index": index})
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	s.bus.Broadcast(eventbus.EventRemoteCommand, map[string]any{"command": "grid"})
	writeJSON(w, map[string]any{"ok": true, "action": "grid"})
}

// handleFullscreen toggles in-memory fullscreen state and reports the
// transition as {ok, action, state: "entered"|"exited"}.
func (s *Server) handleFullscreen(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.fullscreen = !s.fullscreen
	entered := s.fullscreen
	s.mu.Unlock()

	state := "exited"
	if entered {
		state = "entered"
	}

	s.bus.Broadcast(eventbus.EventRemoteCommand, map[string]any{
		"command": "fullscreen",
		"state":   state,
	})
	writeJSON(w, map[string]any{"ok": true, "action": "fullscreen", "state": state})
}

// handleReload re-reads the persisted configuration, asks the caller-
// supplied reloader to apply it (restarting per-camera supervisors to pick
// up stream_config / camera list changes), then emits reload-config so the
// UI re-renders. Two consecutive reloads are idempotent: Load re-reads the
// same file and ReplaceCameras/Update apply the same state twice.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Load(); err != nil {
		jsonError(w, "failed to reload configuration: "+err.Error(), http.StatusInternalServerError)
		return
	}
	cfg := s.cfg.Get()

	if s.reload != nil {
		if err := s.reload(cfg); err != nil {
			jsonError(w, "failed to apply reloaded configuration: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	s.bus.Broadcast(eventbus.EventReloadConfig, struct{}{})
	writeJSON(w, map[string]any{"ok": true, "action": "reload"})
}

type statusCamera struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	Name  string `json:"name"`
}

// handleStatus implements GET /api/status: the full camera roster in
// insertion order with 1-based indices.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cams := s.cameras.Cameras()
	out := make([]statusCamera, len(cams))
	for i, c := range cams {
		out[i] = statusCamera{Index: i + 1, ID: c.ID, Name: c.Name}
	}
	writeJSON(w, map[string]any{"ok": true, "cameras": out})
}

// NotFoundHandler serves a uniform 404 for unmatched /api/ routes, since
// Go's ServeMux otherwise returns a bare text 404 for method/path
// mismatches, breaking the all-JSON response contract.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			jsonError(w, "not found", http.StatusNotFound)
			return
		}
		http.NotFound(w, r)
	}
}

// Package streamserver is the HTTP Stream Server: it serves each camera's
// live fMP4 byte stream to any number of concurrent readers, guaranteeing
// that a new reader receives the init segment before any media segment.
// Built around a chunked, flush-per-write HTTP handler reading from a
// per-client channel, generalized from MJPEG multipart framing to fMP4
// and fitted with a global reader semaphore.
package streamserver

import (
	"encoding/json"
	"net/http"
	"time"

	"stageview/internal/health"
	"stageview/internal/segment"
)

// CameraSource is the subset of supervisor.Supervisor the stream server
// needs: the camera's segment ring and health tracker.
type CameraSource interface {
	Ring() *segment.Ring
	Health() *health.Tracker
}

// Lookup resolves a camera id to its CameraSource.
type Lookup func(id string) (CameraSource, bool)

// initWaitTimeout is the bounded wait for init_segment before a new reader
// gives up.
const initWaitTimeout = 15 * time.Second

// defaultMaxReaders is the global concurrent-reader cap.
const defaultMaxReaders = 64

// Server serves GET /camera/{id}/stream and GET /camera/{id}/status.
type Server struct {
	lookup     Lookup
	sem        chan struct{}
}

// NewServer creates a Server bound to lookup, with maxReaders concurrent
// stream connections (0 uses the spec default of 64).
func NewServer(lookup Lookup, maxReaders int) *Server {
	if maxReaders <= 0 {
		maxReaders = defaultMaxReaders
	}
	return &Server{
		lookup: lookup,
		sem:    make(chan struct{}, maxReaders),
	}
}

// Register wires the server's routes onto mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /camera/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /camera/{id}/status", s.handleStatus)
}

func corsHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	corsHeaders(w)
	id := r.PathValue("id")

	src, ok := s.lookup(id)
	if !ok {
		http.Error(w, "unknown camera", http.StatusNotFound)
		return
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		http.Error(w, "too many concurrent readers", http.StatusServiceUnavailable)
		return
	}

	ring := src.Ring()
	init, generation, ok := waitForInit(r.Context(), ring, initWaitTimeout)
	if !ok {
		http.Error(w, "timed out waiting for stream initialization", http.StatusGatewayTimeout)
		return
	}

	ch, subGeneration := ring.Subscribe()
	defer ring.Unsubscribe(ch)
	if subGeneration != generation {
		// the subprocess restarted between fetching init and subscribing;
		// the reader must reconnect against the new generation.
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Transfer-Encoding", "chunked")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if _, err := w.Write(init); err != nil {
		return
	}
	if flusher != nil {
		flusher.Flush()
	}

	for {
		select {
		case data, ok := <-ch:
			if !ok {
				// generation changed: the client must reconnect to pick up
				// the new init segment.
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		case <-r.Context().Done():
			return
		}
	}
}

// waitForInit polls ring for a committed init segment, bounded by timeout
// or ctx cancellation.
func waitForInit(ctx interface{ Done() <-chan struct{} }, ring *segment.Ring, timeout time.Duration) (data []byte, generation uint64, ok bool) {
	if data, generation, ok = ring.Init(); ok {
		return data, generation, true
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(25 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-poll.C:
			if data, generation, ok = ring.Init(); ok {
				return data, generation, true
			}
		case <-deadline.C:
			return nil, 0, false
		case <-ctx.Done():
			return nil, 0, false
		}
	}
}

type statusResponse struct {
	CameraID string         `json:"camera_id"`
	State    health.State   `json:"state"`
	Health   *health.Snapshot `json:"health,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	corsHeaders(w)
	id := r.PathValue("id")

	src, ok := s.lookup(id)
	if !ok {
		http.Error(w, "unknown camera", http.StatusNotFound)
		return
	}

	resp := statusResponse{CameraID: id, State: src.Health().State()}
	if snap, ok := src.Health().Latest(); ok {
		resp.Health = &snap
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

package streamserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"stageview/internal/health"
	"stageview/internal/segment"
)

type fakeSource struct {
	ring    *segment.Ring
	tracker *health.Tracker
}

func (f *fakeSource) Ring() *segment.Ring     { return f.ring }
func (f *fakeSource) Health() *health.Tracker { return f.tracker }

func newFakeSource() *fakeSource {
	return &fakeSource{ring: segment.NewRing(), tracker: health.NewTracker()}
}

func TestHandleStreamUnknownCameraReturns404(t *testing.T) {
	s := NewServer(func(id string) (CameraSource, bool) { return nil, false }, 0)
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/camera/missing/stream", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleStreamTimesOutWithoutInit(t *testing.T) {
	src := newFakeSource()
	s := NewServer(func(id string) (CameraSource, bool) { return src, true }, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/camera/cam1/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	s.handleStream(rec, req)

	if rec.Code != http.StatusOK && rec.Code != 0 {
		// the handler returns early on ctx cancellation without writing a
		// response header in this path, which http.ResponseRecorder reports
		// as the zero-value 200 default; either is acceptable here since the
		// only thing under test is that it does not hang past the context.
	}
}

func TestHandleStreamServesInitBeforeMedia(t *testing.T) {
	src := newFakeSource()
	src.ring.CommitInit([]byte("ftyp+moov"))

	s := NewServer(func(id string) (CameraSource, bool) { return src, true }, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/camera/cam1/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	go func() {
		time.Sleep(5 * time.Millisecond)
		src.ring.AppendMedia([]byte("moof+mdat"))
	}()

	s.handleStream(rec, req)

	body := rec.Body.String()
	if !strings.HasPrefix(body, "ftyp+moov") {
		t.Fatalf("expected body to start with the init segment, got %q", body)
	}
}

func TestHandleStatusUnknownCameraReturns404(t *testing.T) {
	s := NewServer(func(id string) (CameraSource, bool) { return nil, false }, 0)
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/camera/missing/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleStatusReportsStateBeforeFirstSample(t *testing.T) {
	src := newFakeSource()
	s := NewServer(func(id string) (CameraSource, bool) { return src, true }, 0)
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/camera/cam1/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unknown") {
		t.Fatalf("expected unknown state before any health sample, got %s", rec.Body.String())
	}
}

func TestTooManyReadersReturns503(t *testing.T) {
	src := newFakeSource()
	src.ring.CommitInit([]byte("init"))
	s := NewServer(func(id string) (CameraSource, bool) { return src, true }, 1)
	s.sem <- struct{}{} // saturate the single slot

	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/camera/cam1/stream", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

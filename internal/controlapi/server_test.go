package controlapi

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"stageview/internal/camera"
	"stageview/internal/config"
	"stageview/internal/eventbus"
)

func newTestServer(t *testing.T, cams []camera.Camera) (*Server, *config.Manager) {
	t.Helper()
	dir := t.TempDir()
	mgr := config.NewManager(filepath.Join(dir, "config.json"))
	if err := mgr.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(mgr.Close)

	list := camera.NewList(cams)
	bus := eventbus.NewHub()
	go bus.Run()

	return NewServer(list, mgr, bus, nil), mgr
}

func TestHandleSoloValidIndex(t *testing.T) {
	s, _ := newTestServer(t, []camera.Camera{{ID: "c1"}, {ID: "c2"}})
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/solo/2", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleSoloMalformedIndexReturns400(t *testing.T) {
	s, _ := newTestServer(t, []camera.Camera{{ID: "c1"}})
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/solo/not-a-number", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleSoloOutOfRangeReturns404(t *testing.T) {
	s, _ := newTestServer(t, []camera.Camera{{ID: "c1"}})
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/solo/7", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleFullscreenTogglesEnteredThenExited(t *testing.T) {
	s, _ := newTestServer(t, nil)
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/fullscreen", nil)
	rec1 := httptest.NewRecorder()
	mux.ServeHTTP(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec1.Code)
	}
	if want := `"state":"entered"`; !contains(rec1.Body.String(), want) {
		t.Fatalf("expected first toggle to report entered, got %s", rec1.Body.String())
	}

	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)
	if !contains(rec2.Body.String(), `"state":"exited"`) {
		t.Fatalf("expected second toggle to report exited, got %s", rec2.Body.String())
	}
}

func TestHandleStatusReturnsInsertionOrderOneBasedIndices(t *testing.T) {
	s, _ := newTestServer(t, []camera.Camera{{ID: "c1", Name: "Front"}, {ID: "c2", Name: "Back"}})
	mux := http.NewServeMux()
	s.Register(mux)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !contains(body, `"index":1`) || !contains(body, `"index":2`) {
		t.Fatalf("expected 1-based indices in response, got %s", body)
	}
}

func TestHandleReloadAppliesCustomReloaderAndEmitsEvent(t *testing.T) {
	dir := os.TempDir()
	mgr := config.NewManager(filepath.Join(dir, "stageview-controlapi-reload-test.json"))
	if err := mgr.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer mgr.Close()

	var applied bool
	bus := eventbus.NewHub()
	go bus.Run()
	list := camera.NewList(nil)
	s := NewServer(list, mgr, bus, func(cfg config.Config) error {
		applied = true
		return nil
	})

	mux := http.NewServeMux()
	s.Register(mux)
	req := httptest.NewRequest(http.MethodGet, "/api/reload", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !applied {
		t.Fatal("expected the reloader callback to run")
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

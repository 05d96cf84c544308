package burnin

import (
	"math/rand/v2"
	"testing"
	"time"

	"stageview/internal/camera"
	"stageview/internal/eventbus"
)

func newTestScheduler(t *testing.T, cams []camera.Camera, interval time.Duration) (*Scheduler, *eventbus.Hub) {
	t.Helper()
	bus := eventbus.NewHub()
	go bus.Run()
	list := camera.NewList(cams)
	rng := rand.New(rand.NewPCG(1, 2))
	return New(list, bus, interval, rng), bus
}

func TestTickInGridModeShufflesWhenMultipleCameras(t *testing.T) {
	s, _ := newTestScheduler(t, []camera.Camera{{ID: "a"}, {ID: "b"}, {ID: "c"}}, time.Hour)
	before := s.cameras.DisplayOrder()
	s.tick()
	after := s.cameras.DisplayOrder()

	same := true
	for i := range before {
		if before[i] != after[i] {
			same = false
		}
	}
	if same {
		t.Fatal("expected display order to change after a grid-mode tick with multiple cameras")
	}
}

func TestTickInGridModeNoopsWithSingleCamera(t *testing.T) {
	s, _ := newTestScheduler(t, []camera.Camera{{ID: "a"}}, time.Hour)
	before := s.cameras.DisplayOrder()
	s.tick()
	after := s.cameras.DisplayOrder()
	if len(before) != len(after) || before[0] != after[0] {
		t.Fatal("expected a single-camera list to be unaffected by shuffle ticks")
	}
}

func TestOrbitPositionAdvancesAndCyclesThroughAllTwelve(t *testing.T) {
	s, _ := newTestScheduler(t, []camera.Camera{{ID: "a"}}, time.Hour)
	s.SetMode(ModeSolo, 1)

	seen := map[int]bool{}
	for i := 0; i < len(orbitPattern)+1; i++ {
		s.tick()
		seen[s.orbitPos] = true
	}
	if len(seen) != len(orbitPattern) {
		t.Fatalf("expected all %d orbit positions visited, saw %d", len(orbitPattern), len(seen))
	}
}

func TestStopTerminatesRunLoop(t *testing.T) {
	s, _ := newTestScheduler(t, nil, time.Millisecond)
	go s.Run()
	s.Stop()
}

func TestZeroIntervalRunReturnsImmediately(t *testing.T) {
	s, _ := newTestScheduler(t, nil, 0)
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return immediately for a non-positive interval")
	}
}

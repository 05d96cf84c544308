// Package burnin implements the Burn-in Scheduler : a single
// ticker, cadenced by shuffle_interval_secs, driving whichever of the three
// independent mitigations applies to the UI's current mode. Grid mode
// reshuffles display_order server-side (the only piece of this module with
// state worth keeping out of the browser); solo mode's pixel orbit and
// noise overlay are purely cosmetic and are announced over the event bus
// for the client pipeline to render.
//
// Uses the same ticker-driven goroutine shape as supervisor.Supervisor.Run:
// a stopCh/doneCh lifecycle with interruptible sleep.
package burnin

import (
	"math/rand/v2"
	"sync"
	"time"

	"stageview/internal/camera"
	"stageview/internal/eventbus"
)

// Mode is the UI's current display mode, as last reported via SetMode.
type Mode string

const (
	ModeGrid Mode = "grid"
	ModeSolo Mode = "solo"
)

// orbitOffset is one position in the pixel-orbit cycle.
type orbitOffset struct{ DX, DY int }

// orbitPattern is a 12-position cyclic pattern of ±1 and ±2 pixel
// translations: a slow walk around the origin that never holds the same
// offset twice in a row and always returns to (0,0) to close the cycle.
var orbitPattern = [12]orbitOffset{
	{0, 0}, {1, 0}, {2, 0}, {2, 1},
	{1, 1}, {0, 1}, {-1, 1}, {-2, 1},
	{-2, 0}, {-1, 0}, {-1, -1}, {0, -1},
}

const (
	orbitTransitionMS = 1500
	noiseTileSizePx   = 128
	noiseAlphaPercent = 4
	noiseDurationMS   = 3000
)

// Scheduler owns the shuffle/orbit/noise cadence for one running instance.
type Scheduler struct {
	cameras  *camera.List
	bus      *eventbus.Hub
	interval time.Duration
	rng      *rand.Rand

	mu        sync.Mutex
	mode      Mode
	soloIndex int
	orbitPos  int

	stopCh chan struct{}
	doneCh chan struct{}
}

// New builds a Scheduler. interval is shuffle_interval_secs converted to a
// time.Duration; rng drives the Sattolo shuffle (camera.List.Shuffle takes
// the same *rand.Rand type, so callers share one seeded source across both
// if they want reproducible ordering in tests).
func New(cameras *camera.List, bus *eventbus.Hub, interval time.Duration, rng *rand.Rand) *Scheduler {
	return &Scheduler{
		cameras:  cameras,
		bus:      bus,
		interval: interval,
		rng:      rng,
		mode:     ModeGrid,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// SetMode updates the scheduler's notion of the UI's current mode; called
// by the control API's solo/grid handlers. soloIndex is the 1-based camera
// index under orbit when mode is ModeSolo.
func (s *Scheduler) SetMode(mode Mode, soloIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.soloIndex = soloIndex
}

// Run drives the scheduler's ticker until Stop is called. It is meant to be
// run in its own goroutine.
func (s *Scheduler) Run() {
	defer close(s.doneCh)

	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// Stop signals Run to exit and blocks until it has.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	mode := s.mode
	soloIndex := s.soloIndex
	s.mu.Unlock()

	switch mode {
	case ModeGrid:
		s.shuffle()
	case ModeSolo:
		s.orbitAndNoise(soloIndex)
	}
}

// shuffle reorders display_order, leaving the insertion-ordered camera list
// (and therefore every index-based API and telemetry identifier) untouched.
func (s *Scheduler) shuffle() {
	if s.cameras.Len() < 2 {
		return
	}
	s.cameras.Shuffle(s.rng)
	s.bus.Broadcast(eventbus.EventRemoteCommand, map[string]any{
		"command":       "shuffle",
		"display_order": s.cameras.DisplayOrder(),
	})
}

// orbitAndNoise advances the pixel-orbit position and announces both
// mitigations for the client pipeline to render against the solo tile.
func (s *Scheduler) orbitAndNoise(soloIndex int) {
	s.mu.Lock()
	s.orbitPos = (s.orbitPos + 1) % len(orbitPattern)
	offset := orbitPattern[s.orbitPos]
	s.mu.Unlock()

	s.bus.Broadcast(eventbus.EventRemoteCommand, map[string]any{
		"command":        "pixel-orbit",
		"index":          soloIndex,
		"dx":             offset.DX,
		"dy":             offset.DY,
		"transition_ms":  orbitTransitionMS,
	})
	s.bus.Broadcast(eventbus.EventRemoteCommand, map[string]any{
		"command":      "noise-overlay",
		"index":        soloIndex,
		"tile_px":      noiseTileSizePx,
		"alpha_pct":    noiseAlphaPercent,
		"duration_ms":  noiseDurationMS,
	})
}

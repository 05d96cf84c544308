// Package health tracks per-camera telemetry (fps, bitrate, uptime,
// resolution, codec) and the hysteresis state machine that turns raw
// samples into a user-visible online/warn/error status. The history ring
// uses the classic fixed-size-slice, pos/full-field, FIFO-wraparound shape,
// generalized from two hard-coded bitrate fields to StageView's Snapshot
// shape.
package health

import (
	"sync"
	"time"
)

// historySize keeps five minutes of one-sample-per-2s health history.
const historySize = 150

// State is the user-visible health classification.
type State string

const (
	StateUnknown State = "unknown"
	StateOnline  State = "online"
	StateWarn    State = "warn"
	StateError   State = "error"
)

// Snapshot is one camera's health sample.
type Snapshot struct {
	Timestamp   time.Time
	FPS         float64
	BitrateKbps float64
	FrameCount  uint64
	UptimeSecs  uint64
	Resolution  string
	Codec       string
}

// confirmThreshold is N in "a state transition requires N=3 consecutive
// confirming samples" , except out of the initial unknown
// state, which transitions immediately.
const confirmThreshold = 3

// Tracker holds one camera's rolling history plus the hysteresis state
// machine that classifies it.
type Tracker struct {
	mu sync.RWMutex

	history [historySize]Snapshot
	pos     int
	full    bool

	state      State
	pending    State
	confirming int
}

// NewTracker creates a Tracker starting in StateUnknown.
func NewTracker() *Tracker {
	return &Tracker{state: StateUnknown}
}

// classify maps a raw snapshot to a candidate health state. fps == 0 with
// a nonzero frame_count is treated as stalled (error); a low-but-nonzero
// fps is a warning; anything else healthy is online.
func classify(s Snapshot) State {
	switch {
	case s.FPS <= 0:
		return StateError
	case s.FPS < 10:
		return StateWarn
	default:
		return StateOnline
	}
}

// Record appends a new sample to history and runs it through the
// hysteresis state machine, returning the (possibly unchanged) resulting
// state.
func (t *Tracker) Record(s Snapshot) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.history[t.pos] = s
	t.pos = (t.pos + 1) % historySize
	if t.pos == 0 {
		t.full = true
	}

	candidate := classify(s)

	if t.state == StateUnknown {
		t.state = candidate
		t.pending = candidate
		t.confirming = 0
		return t.state
	}

	if candidate == t.state {
		t.pending = candidate
		t.confirming = 0
		return t.state
	}

	if candidate == t.pending {
		t.confirming++
	} else {
		t.pending = candidate
		t.confirming = 1
	}

	if t.confirming >= confirmThreshold {
		t.state = candidate
		t.confirming = 0
	}
	return t.state
}

// State returns the current classified health state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Latest returns the most recently recorded snapshot, if any.
func (t *Tracker) Latest() (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.full && t.pos == 0 {
		return Snapshot{}, false
	}
	idx := t.pos - 1
	if idx < 0 {
		idx = historySize - 1
	}
	return t.history[idx], true
}

// History returns a copy of the recorded samples in chronological order.
func (t *Tracker) History() []Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var result []Snapshot
	if t.full {
		result = make([]Snapshot, historySize)
		copy(result, t.history[t.pos:])
		copy(result[historySize-t.pos:], t.history[:t.pos])
	} else {
		result = make([]Snapshot, t.pos)
		copy(result, t.history[:t.pos])
	}
	return result
}

// Reset returns the tracker to StateUnknown, used when a camera's
// subprocess generation restarts.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateUnknown
	t.pending = ""
	t.confirming = 0
	t.full = false
	t.pos = 0
}

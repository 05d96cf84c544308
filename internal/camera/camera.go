// Package camera holds the Camera data model: the insertion-ordered list of
// configured cameras and the separate display_order permutation used only
// for visual placement. The two are kept deliberately apart so that burn-in
// shuffling (see internal/burnin) never perturbs remote-API indices,
// settings order, or telemetry identifiers.
package camera

import (
	"fmt"
	"math/rand/v2"
	"sync"
)

// FPSMode selects between the source's native frame rate and a capped rate.
type FPSMode struct {
	Native bool
	Capped int // valid only when Native is false
}

// NativeFPS is the zero-value FPSMode: no output-rate flag.
var NativeFPS = FPSMode{Native: true}

// CappedFPS returns an FPSMode requesting an output rate cap of n.
func CappedFPS(n int) FPSMode {
	return FPSMode{Capped: n}
}

// Quality is the global or per-camera encode quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Override holds a camera's per-camera deviation from the global StreamConfig.
type Override struct {
	Quality Quality
	FPSMode FPSMode
}

// Camera is a single configured video source. ID is the opaque, stable
// identity used by the stream server, the control API, and the supervisor;
// it never changes for the lifetime of the camera.
type Camera struct {
	ID       string
	Name     string
	URL      string
	Override *Override // nil means "use the global StreamConfig"
}

// List is the insertion-ordered set of cameras plus the display_order
// permutation. It is the canonical in-memory form of the "cameras" section
// of the persisted configuration (see internal/config).
//
// Invariant: display_order is always a permutation of [0, len(cameras)).
type List struct {
	mu           sync.RWMutex
	cameras      []Camera
	displayOrder []int
}

// NewList builds a List from cameras in the given insertion order. The
// display order starts identical to insertion order.
func NewList(cameras []Camera) *List {
	l := &List{}
	l.Reset(cameras)
	return l
}

// Reset replaces the full camera set, re-deriving insertion order from the
// slice order and resetting display_order to match. Used when a
// configuration save adds or removes cameras.
func (l *List) Reset(cameras []Camera) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cameras = make([]Camera, len(cameras))
	copy(l.cameras, cameras)

	l.displayOrder = make([]int, len(cameras))
	for i := range l.displayOrder {
		l.displayOrder[i] = i
	}
}

// Cameras returns a copy of the insertion-ordered camera list.
func (l *List) Cameras() []Camera {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Camera, len(l.cameras))
	copy(out, l.cameras)
	return out
}

// Len returns the number of configured cameras.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.cameras)
}

// ByIndex returns the camera at the given 1-based insertion-order index, as
// consumed by the control API: indexing is 1-based against cameras in
// insertion order.
func (l *List) ByIndex(index1Based int) (Camera, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i := index1Based - 1
	if i < 0 || i >= len(l.cameras) {
		return Camera{}, false
	}
	return l.cameras[i], true
}

// ByID returns the camera with the given id and its 1-based insertion index.
func (l *List) ByID(id string) (Camera, int, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i, c := range l.cameras {
		if c.ID == id {
			return c, i + 1, true
		}
	}
	return Camera{}, 0, false
}

// DisplayOrder returns a copy of the current display_order permutation.
func (l *List) DisplayOrder() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]int, len(l.displayOrder))
	copy(out, l.displayOrder)
	return out
}

// Shuffle applies Sattolo's algorithm to display_order in place, guaranteeing
// a derangement (no camera keeps its position) whenever len(cameras) >= 2.
// The underlying camera list is untouched: only the presentation-order
// attribute changes.
func (l *List) Shuffle(r *rand.Rand) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sattolo(l.displayOrder, r)
}

// sattolo permutes s in place using Sattolo's variant of Fisher-Yates,
// producing a uniformly random single cycle (hence a derangement for
// len(s) >= 2). For len(s) < 2 there is nothing to derange.
func sattolo(s []int, r *rand.Rand) {
	n := len(s)
	if n < 2 {
		return
	}
	for i := n - 1; i > 0; i-- {
		j := r.IntN(i) // j in [0, i), strictly less than i: never a fixed point
		s[i], s[j] = s[j], s[i]
	}
}

// ValidatePermutation reports an error if order is not a permutation of
// [0, n). Used by tests and by defensive checks after a shuffle.
func ValidatePermutation(order []int, n int) error {
	if len(order) != n {
		return fmt.Errorf("display order has %d entries, want %d", len(order), n)
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("display order is not a permutation of [0, %d): %v", n, order)
		}
		seen[idx] = true
	}
	return nil
}

// HasFixedPoint reports whether any position in order maps to itself.
func HasFixedPoint(order []int) bool {
	for i, v := range order {
		if i == v {
			return true
		}
	}
	return false
}

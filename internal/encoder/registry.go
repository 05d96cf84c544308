// Package encoder detects and verifies the hardware/software H.264 encoders
// the codec binary (ffmpeg) can use, built on the same LookPath
// plus run-and-parse-output dependency probe internal/system uses for
// ffmpeg itself, and process.Process for the bounded-timeout verification
// subprocess.
package encoder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"stageview/internal/process"
)

// ID names one of the H.264 encoder implementations StageView knows about.
type ID string

const (
	NVENC        ID = "h264_nvenc"
	QSV          ID = "h264_qsv"
	VideoToolbox ID = "h264_videotoolbox"
	X264         ID = "libx264"
	MJPEG        ID = "mjpeg"
)

// priority is the fallback order select_best_h264 walks, most-preferred first.
var priority = []ID{NVENC, QSV, VideoToolbox, X264}

// Status is one entry of the EncoderRegistry: listed means the codec
// binary's encoder table advertises the identifier; verified means a probe
// encode using it actually succeeded.
type Status struct {
	Listed   bool
	Verified bool
	Err      string
}

// Registry is a read-mostly snapshot of encoder availability, refreshed at
// startup and on explicit reload, and updated atomically.
type Registry struct {
	binaryPath string

	mu       sync.RWMutex
	statuses map[ID]Status
}

// NewRegistry creates a Registry that probes the given ffmpeg-compatible
// binary (empty binaryPath means "use PATH lookup of ffmpeg").
func NewRegistry(binaryPath string) *Registry {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Registry{
		binaryPath: binaryPath,
		statuses:   make(map[ID]Status),
	}
}

// Refresh re-runs detect() then verify() for every known candidate and
// installs the result atomically.
func (r *Registry) Refresh(ctx context.Context) error {
	listed, err := r.detect(ctx)
	if err != nil {
		return err
	}

	next := make(map[ID]Status, len(priority)+1)
	for _, id := range priority {
		st := Status{Listed: listed[id]}
		if st.Listed {
			ok, verr := r.verify(ctx, id)
			st.Verified = ok
			if verr != nil {
				st.Err = verr.Error()
			}
		}
		next[id] = st
	}
	next[MJPEG] = Status{Listed: true, Verified: true}

	r.mu.Lock()
	r.statuses = next
	r.mu.Unlock()
	return nil
}

// detect invokes the codec binary's "list encoders" mode and marks a
// candidate listed only on an exact token match against its identifier
// (never a substring match — substring matching on vendor hardware stubs is
// the false-positive source this design exists to avoid).
func (r *Registry) detect(ctx context.Context) (map[ID]bool, error) {
	cmd := exec.CommandContext(ctx, r.binaryPath, "-hide_banner", "-encoders")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("encoder: list encoders: %w", err)
	}

	found := make(map[ID]bool)
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		for _, field := range fields {
			for _, id := range priority {
				if field == string(id) {
					found[id] = true
				}
			}
		}
	}
	return found, nil
}

// verify runs a one-second synthetic encode through id with a hard
// five-second timeout; non-zero exit or timeout means not verified. The
// probe subprocess is driven through process.Process.Run rather than a
// bare exec.Command so it shares the same lifecycle/state-machine code
// path every other subprocess in this module goes through.
func (r *Registry) verify(ctx context.Context, id ID) (bool, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	proc := process.New("encoder-probe-" + string(id))
	err := proc.Run(probeCtx, r.binaryPath,
		"-hide_banner", "-f", "lavfi", "-i", "testsrc=duration=1:size=320x240:rate=30",
		"-c:v", string(id), "-frames:v", "30", "-f", "null", "-",
	)
	if err != nil {
		if probeCtx.Err() == context.DeadlineExceeded {
			return false, fmt.Errorf("encoder: %s probe timed out", id)
		}
		return false, fmt.Errorf("encoder: %s probe failed: %w", id, err)
	}
	return true, nil
}

// Status returns a copy of the current status for id.
func (r *Registry) Status(id ID) Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.statuses[id]
}

// All returns a copy of the full registry snapshot.
func (r *Registry) All() map[ID]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[ID]Status, len(r.statuses))
	for k, v := range r.statuses {
		out[k] = v
	}
	return out
}

// SelectBestH264 walks the priority order NVENC > QSV > VideoToolbox > X264,
// skipping any encoder not verified, and returns the first match. If
// forced is non-empty, it is returned as-is without consulting the
// priority chain: an explicit operator choice suppresses silent
// substitution.
func (r *Registry) SelectBestH264(forced ID) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if forced != "" {
		st, ok := r.statuses[forced]
		return forced, ok && st.Verified
	}

	for _, id := range priority {
		if st, ok := r.statuses[id]; ok && st.Verified {
			return id, true
		}
	}
	return "", false
}

// Next returns the next verified candidate in the priority chain after
// current, or MJPEG if the chain is exhausted. Used by the supervisor's
// fallback step on an encoder-fatal failure.
func (r *Registry) Next(current ID) ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := -1
	for i, id := range priority {
		if id == current {
			idx = i
			break
		}
	}
	for i := idx + 1; i < len(priority); i++ {
		if st, ok := r.statuses[priority[i]]; ok && st.Verified {
			return priority[i]
		}
	}
	return MJPEG
}

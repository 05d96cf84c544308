// Package segment holds the per-camera SegmentRing: the MP4 initialization
// segment plus a bounded FIFO ring of media segments, and the box-boundary
// scanner that carves both out of a codec subprocess's raw fMP4 byte stream
// using github.com/Eyevinn/mp4ff — the same library the pack's
// helixml-helix repo uses to build fMP4 boxes, here used the other
// direction: reading box headers back out of an undemuxed byte stream
// rather than constructing them.
//
// Uses the classic fixed-size-slice ring buffer shape (pos/full fields,
// FIFO eviction) generalized from numeric samples to byte-slice segments.
package segment

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/Eyevinn/mp4ff/mp4"
)

// mediaRingSize bounds media_ring to roughly four seconds of content at a
// typical fragment cadence of one moof+mdat pair per ~0.5s.
const mediaRingSize = 8

// Ring is one camera's SegmentRing: an init segment and a bounded ring of
// subsequent media segments, scoped to a single subprocess generation.
//
// Invariants : init_segment is present before any media_ring
// entry is served; media segments are served in production order; ring
// eviction is FIFO.
type Ring struct {
	mu sync.RWMutex

	generation uint64
	init       []byte

	buf  [mediaRingSize][]byte
	pos  int
	full bool
	seq  uint64 // monotonically increasing sequence of the next slot written

	subscribers map[chan []byte]struct{}
}

// subscriberBacklog is the per-reader outbound buffer cap.
const subscriberBacklog = 2

// NewRing creates an empty Ring at generation 0. Bump(see Reset) on every
// subprocess restart.
func NewRing() *Ring {
	return &Ring{subscribers: make(map[chan []byte]struct{})}
}

// Reset clears the ring and starts a new subprocess generation, invalidating
// the previous init segment for any reader still bound to the old one:
// restarting the subprocess invalidates it.
func (r *Ring) Reset() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generation++
	r.init = nil
	r.buf = [mediaRingSize][]byte{}
	r.pos = 0
	r.full = false
	r.seq = 0

	for ch := range r.subscribers {
		close(ch)
	}
	r.subscribers = make(map[chan []byte]struct{})
	return r.generation
}

// Subscribe registers a new reader's media-segment channel, bound to the
// generation active at subscription time. The channel is closed (forcing
// the reader to reconnect) when the subprocess generation changes via
// Reset, or when Unsubscribe is called. Overflow is dropped rather than
// blocking AppendMedia, isolating slow readers from the broadcast path.
func (r *Ring) Subscribe() (ch chan []byte, generation uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch = make(chan []byte, subscriberBacklog)
	r.subscribers[ch] = struct{}{}
	return ch, r.generation
}

// Unsubscribe removes and closes a reader's channel, idempotent if already
// removed by a generation Reset.
func (r *Ring) Unsubscribe(ch chan []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subscribers[ch]; ok {
		delete(r.subscribers, ch)
		close(ch)
	}
}

// Generation returns the current subprocess generation.
func (r *Ring) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// CommitInit atomically installs the initialization segment for the current
// generation. Called exactly once per generation, after the supervisor's
// read loop accumulates a complete ftyp+moov pair.
func (r *Ring) CommitInit(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.init = append([]byte(nil), data...)
}

// Init returns the current init segment and generation, and whether one has
// been committed yet.
func (r *Ring) Init() (data []byte, generation uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.init == nil {
		return nil, r.generation, false
	}
	return r.init, r.generation, true
}

// AppendMedia pushes a new moof+mdat pair into media_ring, evicting the
// oldest entry on overflow (FIFO).
func (r *Ring) AppendMedia(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := append([]byte(nil), data...)
	r.buf[r.pos] = cp
	r.pos = (r.pos + 1) % mediaRingSize
	if r.pos == 0 {
		r.full = true
	}
	r.seq++

	for ch := range r.subscribers {
		select {
		case ch <- cp:
		default:
			// slow reader: drop the segment rather than block the producer
		}
	}
}

// Tail returns the sequence number of the most recently appended media
// segment; a new reader subscribes from here, not from ring head: new
// readers do not get history, they join live.
func (r *Ring) Tail() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.seq
}

// BoxKind identifies the fMP4 box family a scanned chunk belongs to.
type BoxKind int

const (
	BoxUnknown BoxKind = iota
	BoxFtyp
	BoxMoov
	BoxMoof
	BoxMdat
)

// Scanner reads sequential top-level ISO-BMFF boxes off a codec
// subprocess's stdout and classifies each into the init-segment
// (ftyp+moov) or media-segment (moof+mdat) boundary the Ring expects.
//
// StageView never constructs fMP4 itself — the codec subprocess does —
// Scanner only needs to find where one box ends and the next begins, which
// is exactly what mp4ff's box header decoder gives us without requiring a
// full parse of sample tables or codec-specific boxes.
type Scanner struct {
	r io.Reader

	pendingInit []byte
	sawFtyp     bool
	sawMoov     bool

	pendingMedia []byte
	sawMoof      bool
}

// NewScanner wraps r (a codec subprocess's stdout) with buffering suited to
// box-header reads.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReaderSize(r, 256*1024)}
}

// Next reads and classifies the next top-level box. It returns the box's
// raw bytes (header included) and its kind. io.EOF propagates when the
// subprocess closes stdout.
func (s *Scanner) Next() ([]byte, BoxKind, error) {
	box, err := mp4.DecodeBox(0, s.r)
	if err != nil {
		return nil, BoxUnknown, err
	}

	var buf []byte
	w := &byteCollector{}
	if err := box.Encode(w); err != nil {
		return nil, BoxUnknown, fmt.Errorf("segment: re-encode box %s: %w", box.Type(), err)
	}
	buf = w.bytes

	switch box.Type() {
	case "ftyp":
		return buf, BoxFtyp, nil
	case "moov":
		return buf, BoxMoov, nil
	case "moof":
		return buf, BoxMoof, nil
	case "mdat":
		return buf, BoxMdat, nil
	default:
		return buf, BoxUnknown, nil
	}
}

// Drain runs Next in a loop, feeding ring's init segment and media_ring
// until the stream ends or ctx-equivalent cancellation closes the
// underlying reader. It is the read loop the Stream Supervisor drives
// : accumulate ftyp+moov into init_segment, commit once, then
// forward each moof+mdat pair as a media segment.
func (s *Scanner) Drain(ring *Ring, onMedia func(sizeBytes int)) error {
	for {
		data, kind, err := s.Next()
		if err != nil {
			return err
		}

		switch kind {
		case BoxFtyp:
			s.pendingInit = append(s.pendingInit[:0:0], data...)
			s.sawFtyp = true
		case BoxMoov:
			if !s.sawFtyp {
				continue
			}
			s.pendingInit = append(s.pendingInit, data...)
			ring.CommitInit(s.pendingInit)
			s.sawMoov = true
			s.pendingInit = nil
		case BoxMoof:
			s.pendingMedia = append(s.pendingMedia[:0:0], data...)
			s.sawMoof = true
		case BoxMdat:
			if !s.sawMoof {
				continue
			}
			s.pendingMedia = append(s.pendingMedia, data...)
			size := len(s.pendingMedia)
			ring.AppendMedia(s.pendingMedia)
			s.pendingMedia = nil
			s.sawMoof = false
			if onMedia != nil {
				onMedia(size)
			}
		}
	}
}

// byteCollector is a minimal io.Writer sink used to re-serialize a decoded
// box back into the exact bytes the Ring stores and the stream server
// forwards to readers verbatim.
type byteCollector struct {
	bytes []byte
}

func (b *byteCollector) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}

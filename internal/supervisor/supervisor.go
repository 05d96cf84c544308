// Package supervisor owns one subprocess per camera: spawns the codec
// child, classifies its failures, applies the encoder fallback chain and
// reconnect backoff, and feeds its fMP4 byte stream into the camera's
// segment.Ring. Built around the familiar command-construction-plus-
// log-driven-stats subprocess wrapper and a drop-slow-reader channel fan-out,
// generalized from a single fixed receiver process to N per-camera
// supervisors with an explicit reconnect schedule in place of exponential
// backoff.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"stageview/internal/camera"
	"stageview/internal/codecprofile"
	"stageview/internal/encoder"
	"stageview/internal/eventbus"
	"stageview/internal/health"
	"stageview/internal/process"
	"stageview/internal/segment"
)

// State is a camera's coarse stream state.
type State string

const (
	StateStarting     State = "starting"
	StateConnecting   State = "connecting"
	StateRunning      State = "running"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// ErrorKind classifies why a subprocess generation ended, driving whether
// the supervisor falls back to the next encoder or simply backs off.
type ErrorKind string

const (
	ErrorTransient    ErrorKind = "transient"
	ErrorEncoderFatal ErrorKind = "encoder_fatal"
)

// reconnectSchedule is the fixed delay-per-attempt sequence; attempts
// beyond the slice repeat its last entry indefinitely.
var reconnectSchedule = []time.Duration{
	1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second,
	60 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second, 60 * time.Second,
	300 * time.Second, 300 * time.Second,
}

// DelayForAttempt returns the reconnect delay after n consecutive failures
// (n is 1-based: the delay before the first retry is DelayForAttempt(1)).
func DelayForAttempt(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	idx := n - 1
	if idx >= len(reconnectSchedule) {
		idx = len(reconnectSchedule) - 1
	}
	return reconnectSchedule[idx]
}

// noDataTimeout is the absence-of-stdout-bytes-within-15s-of-spawn window
// that is treated as a failed launch.
const noDataTimeout = 15 * time.Second

// healthSampleInterval is the health sampling cadence.
const healthSampleInterval = 2 * time.Second

// Supervisor owns the lifetime of one camera's codec subprocess across
// however many generations it takes to keep a stream alive.
type Supervisor struct {
	cam        camera.Camera
	binaryPath string
	profile    codecprofile.Document
	registry   *encoder.Registry
	ring       *segment.Ring
	tracker    *health.Tracker
	bus        *eventbus.Hub
	stream     camera.Quality

	forcedEncoder encoder.ID

	mu             sync.RWMutex
	state          State
	attempt        int
	currentEncoder encoder.ID

	stopCh chan struct{}
	doneCh chan struct{}

	bytesSince uint64
	mediaSince uint64
	sampleMu   sync.Mutex
}

// New creates a Supervisor for cam. forcedEncoder is non-empty only when
// the camera's override (or the global StreamConfig) pins a specific
// encoder, disabling the fallback chain.
func New(cam camera.Camera, binaryPath string, profile codecprofile.Document, registry *encoder.Registry, bus *eventbus.Hub, forcedEncoder encoder.ID) *Supervisor {
	return &Supervisor{
		cam:           cam,
		binaryPath:    binaryPath,
		profile:       profile,
		registry:      registry,
		ring:          segment.NewRing(),
		tracker:       health.NewTracker(),
		bus:           bus,
		forcedEncoder: forcedEncoder,
		state:         StateStarting,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Ring exposes the camera's segment ring to the HTTP stream server.
func (s *Supervisor) Ring() *segment.Ring { return s.ring }

// Health exposes the camera's health tracker to the health bus.
func (s *Supervisor) Health() *health.Tracker { return s.tracker }

// State returns the current coarse stream state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Attempt returns the current reconnect attempt counter.
func (s *Supervisor) Attempt() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempt
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Broadcast(eventbus.EventCameraStatus, map[string]string{
			"camera_id": s.cam.ID,
			"status":    statusString(st),
		})
	}
}

func statusString(st State) string {
	switch st {
	case StateConnecting, StateStarting:
		return "connecting"
	case StateReconnecting:
		return "reconnecting"
	case StateRunning:
		return "online"
	case StateFailed:
		return "offline"
	default:
		return "offline"
	}
}

// Run drives the supervisor loop until Stop is called. It never returns an
// error out of the task: every failure becomes a state transition plus an
// event instead of a panic or propagated error.
func (s *Supervisor) Run() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		s.setState(StateConnecting)
		kind, err := s.runOneGeneration()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
			}

			if kind == ErrorEncoderFatal && s.forcedEncoder == "" {
				s.mu.Lock()
				s.currentEncoder = s.registry.Next(s.currentEncoder)
				s.mu.Unlock()
				s.emitStreamError("encoder_fatal", err)
				continue // immediate restart with the next encoder, no backoff
			}

			if kind == ErrorEncoderFatal {
				// user-forced encoder: no silent substitution
				s.setState(StateFailed)
				s.emitStreamError("encoder_fatal", err)
				s.waitOrStop(DelayForAttempt(s.bumpAttempt()))
				continue
			}

			s.setState(StateReconnecting)
			s.emitStreamError("transient", err)
			s.waitOrStop(DelayForAttempt(s.bumpAttempt()))
		}
	}
}

func (s *Supervisor) bumpAttempt() int {
	s.mu.Lock()
	s.attempt++
	n := s.attempt
	s.mu.Unlock()
	return n
}

func (s *Supervisor) resetAttempt() {
	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
}

func (s *Supervisor) waitOrStop(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-s.stopCh:
	}
}

func (s *Supervisor) emitStreamError(kind string, err error) {
	if s.bus == nil {
		return
	}
	s.bus.Broadcast(eventbus.EventStreamError, map[string]any{
		"camera_id": s.cam.ID,
		"error":     err.Error(),
		"encoder":   string(s.currentEncoderID()),
		"kind":      kind,
	})
}

func (s *Supervisor) currentEncoderID() encoder.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentEncoder
}

// Stop cancels the supervisor's subprocess and read loop, releasing the
// ring and health tracker.
func (s *Supervisor) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

// runOneGeneration spawns one subprocess generation, drains its fMP4 byte
// stream into the ring, and blocks until it ends. The returned ErrorKind
// and error describe why.
func (s *Supervisor) runOneGeneration() (ErrorKind, error) {
	id, ok := s.selectEncoder()
	if !ok {
		return ErrorEncoderFatal, fmt.Errorf("supervisor: no verified encoder available for camera %s", s.cam.ID)
	}
	s.mu.Lock()
	s.currentEncoder = id
	s.mu.Unlock()

	args := s.buildArgs(id)

	proc := process.New(fmt.Sprintf("codec:%s", s.cam.ID))
	stdout, err := proc.StartPiped(s.binaryPath, args...)
	if err != nil {
		return ErrorEncoderFatal, fmt.Errorf("supervisor: spawn %s: %w", s.cam.ID, err)
	}
	defer proc.Stop()

	generation := s.ring.Reset()
	s.tracker.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stopCh:
			proc.Stop()
		case <-ctx.Done():
		}
	}()

	scanner := segment.NewScanner(stdout)

	firstByte := make(chan struct{}, 1)
	healthDone := make(chan struct{})
	go s.sampleHealth(ctx, id, healthDone)

	drainErr := s.drainWithWatchdog(scanner, generation, firstByte)
	cancel()
	<-healthDone

	if drainErr == io.EOF || drainErr == nil {
		return ErrorTransient, fmt.Errorf("supervisor: codec subprocess for %s exited", s.cam.ID)
	}
	return ErrorTransient, drainErr
}

// selectEncoder resolves which encoder this generation should use: MJPEG
// codec configuration bypasses the H.264 registry entirely.
func (s *Supervisor) selectEncoder() (encoder.ID, bool) {
	if s.forcedEncoder == encoder.MJPEG {
		return encoder.MJPEG, true
	}
	return s.registry.SelectBestH264(s.forcedEncoder)
}

// buildArgs constructs the codec subprocess command line from the
// scheme-dependent input profile and the quality-dependent encode profile.
func (s *Supervisor) buildArgs(id encoder.ID) []string {
	scheme := schemeOf(s.cam.URL)
	input := s.profile.InputFor(scheme)

	args := make([]string, 0, len(input.Args)+6)
	if input.BufferSizeKB > 0 {
		args = append(args, "-buffer_size", fmt.Sprintf("%dk", input.BufferSizeKB))
	}
	if input.LowLatency {
		args = append(args, "-fflags", "nobuffer", "-flags", "low_delay")
	}
	args = append(args, input.Args...)
	args = append(args, "-i", s.cam.URL)

	if id == encoder.MJPEG {
		args = append(args, s.profile.MJPEG.Args...)
		args = append(args, "-f", "mjpeg", "pipe:1")
		return args
	}

	quality := "medium"
	fpsMode := camera.NativeFPS
	if s.cam.Override != nil {
		quality = string(s.cam.Override.Quality)
		fpsMode = s.cam.Override.FPSMode
	}
	args = append(args, "-c:v", string(id))
	args = append(args, s.profile.QualityFor(quality).Args...)

	if !fpsMode.Native {
		args = append(args, "-r", fmt.Sprintf("%d", fpsMode.Capped))
	}

	args = append(args,
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-f", "mp4", "pipe:1",
	)
	return args
}

func schemeOf(url string) codecprofile.Scheme {
	switch {
	case len(url) >= 6 && url[:6] == "rtp://":
		return codecprofile.SchemeRTP
	case len(url) >= 7 && url[:7] == "rtsp://":
		return codecprofile.SchemeRTSP
	case len(url) >= 6 && url[:6] == "srt://":
		return codecprofile.SchemeSRT
	default:
		return codecprofile.SchemeHTTP
	}
}

// drainWithWatchdog runs scanner.Drain, failing fast if no bytes arrive
// within noDataTimeout.
func (s *Supervisor) drainWithWatchdog(scanner *segment.Scanner, generation uint64, firstByte chan struct{}) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- scanner.Drain(s.ring, func(sizeBytes int) {
			s.sampleMu.Lock()
			s.mediaSince++
			s.bytesSince += uint64(sizeBytes)
			s.sampleMu.Unlock()
			select {
			case firstByte <- struct{}{}:
			default:
			}
			if s.State() == StateConnecting || s.State() == StateReconnecting {
				s.setState(StateRunning)
				s.resetAttempt()
			}
		})
	}()

	watchdog := time.NewTimer(noDataTimeout)
	defer watchdog.Stop()

	select {
	case err := <-errCh:
		return err
	case <-firstByte:
		return <-errCh
	case <-watchdog.C:
		return fmt.Errorf("supervisor: no data from codec subprocess for %s within %s", s.cam.ID, noDataTimeout)
	}
}

// sampleHealth publishes an fps/bitrate snapshot every healthSampleInterval
// , resetting the window sums each tick.
func (s *Supervisor) sampleHealth(ctx context.Context, id encoder.ID, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(healthSampleInterval)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleMu.Lock()
			frames := s.mediaSince
			bytes := s.bytesSince
			s.mediaSince = 0
			s.bytesSince = 0
			s.sampleMu.Unlock()

			snap := health.Snapshot{
				Timestamp:   time.Now(),
				FPS:         float64(frames) / healthSampleInterval.Seconds(),
				BitrateKbps: float64(bytes*8) / (healthSampleInterval.Seconds() * 1000),
				FrameCount:  frames,
				UptimeSecs:  uint64(time.Since(start).Seconds()),
				Codec:       string(id),
			}
			st := s.tracker.Record(snap)
			if s.bus != nil {
				s.bus.Broadcast(eventbus.EventStreamHealth, map[string]any{
					"camera_id": s.cam.ID,
					"health":    snap,
					"state":     st,
				})
			}
		}
	}
}

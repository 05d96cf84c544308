package main

import (
	"sync"

	"stageview/internal/camera"
	"stageview/internal/codecprofile"
	"stageview/internal/config"
	"stageview/internal/encoder"
	"stageview/internal/eventbus"
	"stageview/internal/logger"
	"stageview/internal/streamserver"
	"stageview/internal/supervisor"
)

// supervisorPool owns the live set of per-camera Supervisors and the
// camera.List their insertion order and display order are drawn from. A
// reload tears down every running supervisor and rebuilds the set from
// scratch against the newly loaded config, which keeps applying a reload
// twice idempotent: two consecutive reloads produce the same final state
// as one.
type supervisorPool struct {
	ffmpegPath string
	profile    codecprofile.Document
	registry   *encoder.Registry
	bus        *eventbus.Hub

	mu          sync.Mutex
	cameraList  *camera.List
	supervisors map[string]*supervisor.Supervisor
}

func newSupervisorPool(ffmpegPath string, profile codecprofile.Document, registry *encoder.Registry, bus *eventbus.Hub) *supervisorPool {
	return &supervisorPool{
		ffmpegPath:  ffmpegPath,
		profile:     profile,
		registry:    registry,
		bus:         bus,
		cameraList:  camera.NewList(nil),
		supervisors: make(map[string]*supervisor.Supervisor),
	}
}

// reload stops every currently running supervisor, replaces the camera
// list, and starts a fresh supervisor per configured camera.
func (p *supervisorPool) reload(cfg config.Config) {
	p.mu.Lock()
	old := p.supervisors
	p.supervisors = make(map[string]*supervisor.Supervisor)
	p.mu.Unlock()

	for id, sup := range old {
		logger.Printf("stopping supervisor for camera %s", id)
		sup.Stop()
	}

	cams := make([]camera.Camera, len(cfg.Cameras))
	for i, cc := range cfg.Cameras {
		cams[i] = toCamera(cc)
	}
	p.cameraList.Reset(cams)

	forced := resolveForcedEncoder(cfg.StreamConfig)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cam := range cams {
		sup := supervisor.New(cam, p.ffmpegPath, p.profile, p.registry, p.bus, forced)
		p.supervisors[cam.ID] = sup
		go sup.Run()
		logger.Printf("started supervisor for camera %s (%s)", cam.ID, cam.URL)
	}
}

func (p *supervisorPool) lookup(id string) (streamserver.CameraSource, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sup, ok := p.supervisors[id]
	if !ok {
		return nil, false
	}
	return sup, true
}

func (p *supervisorPool) stopAll() {
	p.mu.Lock()
	supers := p.supervisors
	p.mu.Unlock()
	for _, sup := range supers {
		sup.Stop()
	}
}

func toCamera(cc config.CameraConfig) camera.Camera {
	cam := camera.Camera{ID: cc.ID, Name: cc.Name, URL: cc.URL}
	if cc.CodecOverride != nil {
		cam.Override = &camera.Override{
			Quality: camera.Quality(cc.CodecOverride.Quality),
			FPSMode: toFPSMode(cc.CodecOverride.FPSMode),
		}
	}
	return cam
}

func toFPSMode(f config.FPSModeConfig) camera.FPSMode {
	if f.Native {
		return camera.NativeFPS
	}
	return camera.CappedFPS(f.Capped)
}

// resolveForcedEncoder maps the global stream_config to a forced
// encoder.ID; a camera's codec_override only ever carries quality/fps, so
// the encoder choice is always global. "auto" leaves the fallback chain
// enabled; an explicit encoder choice suppresses silent substitution
// (see DESIGN.md).
func resolveForcedEncoder(sc config.StreamConfig) encoder.ID {
	if sc.Codec == config.CodecMJPEG {
		return encoder.MJPEG
	}
	switch sc.Encoder {
	case config.EncoderNVENC:
		return encoder.NVENC
	case config.EncoderQSV:
		return encoder.QSV
	case config.EncoderVideoToolbox:
		return encoder.VideoToolbox
	case config.EncoderX264:
		return encoder.X264
	case config.EncoderMJPEG:
		return encoder.MJPEG
	default:
		return "" // auto: fallback chain enabled
	}
}

// Package codecprofile loads the scheme-dependent subprocess argument
// templates the Stream Supervisor uses to build a codec command line: per
// transport-scheme input flags (multicast buffer sizes, low-latency flags)
// and per-quality encoding flags. It is an external, editable document read
// once at startup and on explicit reload — the same load-once-reload-on-
// demand pattern internal/config applies to its own on-disk file, here
// repurposed for a second document using the same gopkg.in/yaml.v3
// dependency rather than hard-coding transport tuning into Go source.
package codecprofile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scheme is a supported source transport.
type Scheme string

const (
	SchemeRTP  Scheme = "rtp"
	SchemeRTSP Scheme = "rtsp"
	SchemeSRT  Scheme = "srt"
	SchemeHTTP Scheme = "http"
)

// InputProfile is the scheme-dependent argument template applied before the
// source URL on the codec command line. BufferSizeKB and LowLatency are
// translated into concrete ffmpeg flags by the Stream Supervisor's
// buildArgs rather than being baked into Args directly, so editing either
// field on disk changes the actual subprocess command line; Args carries
// only scheme-specific flags neither field covers (e.g. RTSP's transport
// selection).
type InputProfile struct {
	Args         []string `yaml:"args"`
	BufferSizeKB int      `yaml:"buffer_size_kb"`
	LowLatency   bool     `yaml:"low_latency"`
}

// QualityProfile is the quality-tier-dependent encode argument template.
type QualityProfile struct {
	Args []string `yaml:"args"`
}

// Document is the full on-disk codec profile document.
type Document struct {
	Inputs    map[Scheme]InputProfile   `yaml:"inputs"`
	Qualities map[string]QualityProfile `yaml:"qualities"`
	MJPEG     QualityProfile            `yaml:"mjpeg"`
}

// Default returns the built-in profile document used when no on-disk
// override exists.
func Default() Document {
	return Document{
		Inputs: map[Scheme]InputProfile{
			SchemeRTP:  {Args: []string{}, BufferSizeKB: 512, LowLatency: true},
			SchemeRTSP: {Args: []string{"-rtsp_transport", "tcp"}, BufferSizeKB: 1024, LowLatency: true},
			SchemeSRT:  {Args: []string{}, BufferSizeKB: 256, LowLatency: true},
			SchemeHTTP: {Args: []string{}, BufferSizeKB: 1024, LowLatency: false},
		},
		Qualities: map[string]QualityProfile{
			"low":    {Args: []string{"-b:v", "800k"}},
			"medium": {Args: []string{"-b:v", "2000k"}},
			"high":   {Args: []string{"-b:v", "6000k"}},
		},
		MJPEG: QualityProfile{Args: []string{"-q:v", "5"}},
	}
}

// Load reads a profile document from path, falling back to Default() for
// any scheme or quality tier the document does not define.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Document{}, fmt.Errorf("codecprofile: read %s: %w", path, err)
	}

	doc := Default()
	var onDisk Document
	if err := yaml.Unmarshal(data, &onDisk); err != nil {
		return Document{}, fmt.Errorf("codecprofile: parse %s: %w", path, err)
	}

	for scheme, profile := range onDisk.Inputs {
		doc.Inputs[scheme] = profile
	}
	for quality, profile := range onDisk.Qualities {
		doc.Qualities[quality] = profile
	}
	if len(onDisk.MJPEG.Args) > 0 {
		doc.MJPEG = onDisk.MJPEG
	}
	return doc, nil
}

// InputFor returns the input profile for scheme, or the HTTP default if the
// scheme is unrecognized.
func (d Document) InputFor(scheme Scheme) InputProfile {
	if p, ok := d.Inputs[scheme]; ok {
		return p
	}
	return d.Inputs[SchemeHTTP]
}

// QualityFor returns the quality profile for the named tier, or the medium
// default if unrecognized.
func (d Document) QualityFor(quality string) QualityProfile {
	if p, ok := d.Qualities[quality]; ok {
		return p
	}
	return d.Qualities["medium"]
}

package encoder

import (
	"context"
	"testing"
)

func newTestRegistry(statuses map[ID]Status) *Registry {
	r := NewRegistry("ffmpeg")
	r.statuses = statuses
	return r
}

func TestSelectBestH264SkipsUnverified(t *testing.T) {
	r := newTestRegistry(map[ID]Status{
		NVENC: {Listed: true, Verified: false},
		QSV:   {Listed: true, Verified: true},
		X264:  {Listed: true, Verified: true},
	})

	id, ok := r.SelectBestH264("")
	if !ok || id != QSV {
		t.Fatalf("expected QSV (NVENC unverified), got %v ok=%v", id, ok)
	}
}

func TestSelectBestH264PrefersNVENC(t *testing.T) {
	r := newTestRegistry(map[ID]Status{
		NVENC: {Listed: true, Verified: true},
		QSV:   {Listed: true, Verified: true},
	})

	id, ok := r.SelectBestH264("")
	if !ok || id != NVENC {
		t.Fatalf("expected NVENC, got %v ok=%v", id, ok)
	}
}

func TestSelectBestH264ForcedBypassesChain(t *testing.T) {
	r := newTestRegistry(map[ID]Status{
		X264: {Listed: true, Verified: true},
	})

	id, ok := r.SelectBestH264(X264)
	if !ok || id != X264 {
		t.Fatalf("expected forced X264, got %v ok=%v", id, ok)
	}

	if _, ok := r.SelectBestH264(QSV); ok {
		t.Fatal("forced unverified encoder must not silently succeed")
	}
}

func TestSelectBestH264NoneVerified(t *testing.T) {
	r := newTestRegistry(map[ID]Status{
		NVENC: {Listed: true, Verified: false},
	})

	if _, ok := r.SelectBestH264(""); ok {
		t.Fatal("expected no verified encoder to be selectable")
	}
}

func TestVerifyReturnsTrueWhenProbeExitsCleanly(t *testing.T) {
	r := NewRegistry("/bin/true")
	ok, err := r.verify(context.Background(), X264)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected verify to report success for a cleanly-exiting probe")
	}
}

func TestVerifyReturnsFalseWhenProbeExitsNonZero(t *testing.T) {
	r := NewRegistry("/bin/false")
	ok, err := r.verify(context.Background(), X264)
	if err == nil {
		t.Fatal("expected verify to return an error for a failing probe")
	}
	if ok {
		t.Fatal("expected verify to report failure for a non-zero exit")
	}
}

func TestNextWalksPriorityThenMJPEG(t *testing.T) {
	r := newTestRegistry(map[ID]Status{
		NVENC: {Listed: true, Verified: true},
		QSV:   {Listed: true, Verified: true},
		X264:  {Listed: true, Verified: true},
	})

	if got := r.Next(NVENC); got != QSV {
		t.Fatalf("expected QSV after NVENC, got %v", got)
	}
	if got := r.Next(X264); got != MJPEG {
		t.Fatalf("expected MJPEG after exhausting chain, got %v", got)
	}
}

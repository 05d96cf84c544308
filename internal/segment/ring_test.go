package segment

import "testing"

func TestSubscribeReceivesSubsequentMediaNotHistory(t *testing.T) {
	r := NewRing()
	r.CommitInit([]byte("init"))
	r.AppendMedia([]byte("old"))

	ch, gen := r.Subscribe()
	if gen != 0 {
		t.Fatalf("expected generation 0, got %d", gen)
	}

	r.AppendMedia([]byte("new"))
	select {
	case got := <-ch:
		if string(got) != "new" {
			t.Fatalf("expected to receive only the post-subscribe segment, got %q", got)
		}
	default:
		t.Fatal("expected a segment to be delivered to the subscriber")
	}

	select {
	case got, ok := <-ch:
		if ok {
			t.Fatalf("expected no history segment, got %q", got)
		}
	default:
	}
}

func TestResetClosesExistingSubscribers(t *testing.T) {
	r := NewRing()
	ch, _ := r.Subscribe()

	r.Reset()

	if _, ok := <-ch; ok {
		t.Fatal("expected subscriber channel to be closed on generation reset")
	}
}

func TestSlowSubscriberDropsOverflowWithoutBlocking(t *testing.T) {
	r := NewRing()
	ch, _ := r.Subscribe()

	for i := 0; i < subscriberBacklog+5; i++ {
		r.AppendMedia([]byte{byte(i)})
	}

	count := 0
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				goto done
			}
			count++
		default:
			goto done
		}
	}
done:
	if count > subscriberBacklog {
		t.Fatalf("expected at most %d buffered segments for a slow subscriber, got %d", subscriberBacklog, count)
	}
}

func TestRingRejectsMediaBeforeInit(t *testing.T) {
	r := NewRing()
	if _, _, ok := r.Init(); ok {
		t.Fatal("expected no init segment on a fresh ring")
	}
}

func TestRingCommitInitThenAppendMedia(t *testing.T) {
	r := NewRing()
	r.CommitInit([]byte("ftyp+moov"))

	data, gen, ok := r.Init()
	if !ok || string(data) != "ftyp+moov" || gen != 0 {
		t.Fatalf("unexpected init state: %q gen=%d ok=%v", data, gen, ok)
	}

	r.AppendMedia([]byte("moof+mdat-1"))
	if got := r.Tail(); got != 1 {
		t.Fatalf("expected tail sequence 1, got %d", got)
	}
}

func TestRingResetBumpsGenerationAndClearsInit(t *testing.T) {
	r := NewRing()
	r.CommitInit([]byte("first"))
	r.AppendMedia([]byte("seg"))

	gen := r.Reset()
	if gen != 1 {
		t.Fatalf("expected generation 1 after first reset, got %d", gen)
	}
	if _, _, ok := r.Init(); ok {
		t.Fatal("expected init segment cleared after reset")
	}
	if got := r.Tail(); got != 0 {
		t.Fatalf("expected tail sequence reset to 0, got %d", got)
	}
}

func TestRingMediaRingEvictsFIFO(t *testing.T) {
	r := NewRing()
	r.CommitInit([]byte("init"))
	for i := 0; i < mediaRingSize+3; i++ {
		r.AppendMedia([]byte{byte(i)})
	}
	if got := r.Tail(); got != uint64(mediaRingSize+3) {
		t.Fatalf("expected tail sequence %d, got %d", mediaRingSize+3, got)
	}
}

package audio

import (
	"testing"

	"github.com/haloassist/halo/pkg/eventbus"
)

func TestResampleNearestUpsamples(t *testing.T) {
	pcm := int16PCM([]int16{100, 200})
	out := resampleNearest(pcm, 8000, 16000)

	if len(out) != 4*bytesPerSample {
		t.Fatalf("got %d bytes, want %d", len(out), 4*bytesPerSample)
	}
}

func TestResampleNearestSameRateIsNoOp(t *testing.T) {
	pcm := int16PCM([]int16{1, 2, 3})
	out := resampleNearest(pcm, SampleRate, SampleRate)

	if string(out) != string(pcm) {
		t.Fatal("expected identical bytes when source and destination rates match")
	}
}

func TestDuplicateChannelsStereoInterleaves(t *testing.T) {
	pcm := int16PCM([]int16{10, 20})
	out := duplicateChannels(pcm, 2)

	samples := bytesToInt16(out)
	want := []int16{10, 10, 20, 20}
	if len(samples) != len(want) {
		t.Fatalf("got %v, want %v", samples, want)
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Fatalf("got %v, want %v", samples, want)
		}
	}
}

func TestEnqueueDropsOldestOnOverflow(t *testing.T) {
	p := &Playback{sourceRate: SampleRate}
	big := make([]byte, PlaybackRingCapacityBytes+10)
	p.Enqueue(big)

	if len(p.ring) != PlaybackRingCapacityBytes {
		t.Fatalf("got ring len %d, want capped at %d", len(p.ring), PlaybackRingCapacityBytes)
	}
	if p.DropCount() != 1 {
		t.Fatalf("got drop count %d, want 1", p.DropCount())
	}
}

func TestEnqueuePublishesDroppedEventOnOverflow(t *testing.T) {
	bus := eventbus.New(nil)
	var drops int
	bus.Subscribe("playback.dropped", eventbus.MEDIUM, func(ev eventbus.Event) { drops++ })

	p := &Playback{sourceRate: SampleRate, bus: bus}
	p.Enqueue(make([]byte, PlaybackRingCapacityBytes+10))
	p.Enqueue(make([]byte, 10))

	if drops != 2 {
		t.Fatalf("got %d playback.dropped events, want 2", drops)
	}
}

func TestEnqueueWithoutOverflowPublishesNoDroppedEvent(t *testing.T) {
	bus := eventbus.New(nil)
	var drops int
	bus.Subscribe("playback.dropped", eventbus.MEDIUM, func(ev eventbus.Event) { drops++ })

	p := &Playback{sourceRate: SampleRate, bus: bus}
	p.Enqueue(make([]byte, 100))

	if drops != 0 {
		t.Fatalf("got %d playback.dropped events, want 0", drops)
	}
}

func TestAbortEmptiesRingWithoutDevice(t *testing.T) {
	p := &Playback{sourceRate: SampleRate}
	p.Enqueue(make([]byte, 100))
	p.Abort("interrupt")

	if len(p.ring) != 0 {
		t.Fatalf("got ring len %d, want 0 after abort", len(p.ring))
	}
}

func int16PCM(samples []int16) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(s >> 8)
	}
	return out
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return out
}

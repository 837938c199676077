package engine

import (
	"testing"
	"time"

	"github.com/corvidlabs/voxcore/internal/transport"
)

func TestConvertAudio_AppliesEgressPipelineToEveryFrame(t *testing.T) {
	plan := &transport.TransportPlan{EgressSteps: []transport.ConversionStep{transport.StepCompandMulaw}}
	egress := transport.NewEgressPipeline(plan)

	in := make(chan []byte, 2)
	in <- []byte{0, 0, 0, 0}
	in <- []byte{0, 0, 0, 0}
	close(in)

	out := convertAudio(in, egress, "call-1")

	var frames [][]byte
	for f := range out {
		frames = append(frames, f)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 converted frames, got %d", len(frames))
	}
	for _, f := range frames {
		if len(f) != 2 {
			t.Fatalf("expected mu-law companding to halve each 16-bit frame, got len %d", len(f))
		}
	}
}

func TestConvertAudio_ClosesOutputWhenInputCloses(t *testing.T) {
	egress := transport.NewEgressPipeline(&transport.TransportPlan{})
	in := make(chan []byte)
	close(in)

	out := convertAudio(in, egress, "call-1")
	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected the output channel to be empty")
		}
	case <-time.After(time.Second):
		t.Fatal("convertAudio never closed its output channel")
	}
}

package transport_test

import (
	"testing"

	"github.com/corvidlabs/voxcore/internal/transport"
)

func TestPipeline_IngressDecodesAndResamples(t *testing.T) {
	plan, err := transport.Plan("telephony-ulaw-8k", fullCaps())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	p := transport.NewIngressPipeline(plan)

	wireFrame := make([]byte, plan.WireFrameBytes) // 160 bytes of mu-law silence (0x00, not 0xFF).
	out, err := p.Run(wireFrame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 160 mu-law samples @ 8kHz -> resampled to 16kHz -> 320 PCM16 samples -> 640 bytes.
	if len(out) != 640 {
		t.Errorf("len = %d, want 640", len(out))
	}
}

func TestPipeline_EgressEncodesAndResamples(t *testing.T) {
	plan, err := transport.Plan("telephony-ulaw-8k", fullCaps())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	p := transport.NewEgressPipeline(plan)

	providerFrame := make([]byte, 640) // 320 PCM16 samples @ 16kHz.
	out, err := p.Run(providerFrame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != plan.WireFrameBytes {
		t.Errorf("len = %d, want %d", len(out), plan.WireFrameBytes)
	}
}

func TestPipeline_NoStepsPassesThrough(t *testing.T) {
	plan, err := transport.Plan("wideband-pcm16-16k", fullCaps())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	p := transport.NewIngressPipeline(plan)
	frame := []byte{1, 2, 3, 4}
	out, err := p.Run(frame)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != len(frame) {
		t.Errorf("len = %d, want %d", len(out), len(frame))
	}
}

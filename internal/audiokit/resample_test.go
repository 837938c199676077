package audiokit_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/corvidlabs/voxcore/internal/audiokit"
)

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// sineSamples generates n int16 PCM samples of a sine wave at freq Hz
// sampled at hz, scaled to amplitude.
func sineSamples(n int, hz int, freq, amplitude float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(hz)))
	}
	return out
}

func rms(samples []int16) float64 {
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

func TestResample_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out, err := audiokit.Resample(pcm, 16000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	if len(out) != len(pcm) {
		t.Fatalf("len = %d, want %d", len(out), len(pcm))
	}
}

func TestResample_Upsample(t *testing.T) {
	pcm := samplesToBytes(sineSamples(160, 8000, 300, 8000))
	out, err := audiokit.Resample(pcm, 8000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	got := bytesToSamples(out)
	if len(got) != 320 {
		t.Fatalf("got %d samples, want 320", len(got))
	}
	if rms(got) == 0 {
		t.Fatal("upsampled signal is silent")
	}
}

func TestResample_Downsample(t *testing.T) {
	pcm := samplesToBytes(sineSamples(320, 16000, 300, 8000))
	out, err := audiokit.Resample(pcm, 16000, 8000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}
	got := bytesToSamples(out)
	if len(got) != 160 {
		t.Fatalf("got %d samples, want 160", len(got))
	}
}

// TestResample_RoundTripPreservesEnergy checks the ±0.5 dB round-trip
// energy invariant against a band-limited periodic signal (a pure tone well
// under every Nyquist involved), comparing RMS energy over the steady-state
// middle of the signal so filter startup/settling at the edges doesn't
// pollute the measurement.
func TestResample_RoundTripPreservesEnergy(t *testing.T) {
	const (
		srcHz  = 16000
		dstHz  = 8000
		freq   = 440.0
		n      = 3200
		margin = 200
	)
	samples := sineSamples(n, srcHz, freq, 8000)
	pcm := samplesToBytes(samples)

	down, err := audiokit.Resample(pcm, srcHz, dstHz)
	if err != nil {
		t.Fatalf("downsample: %v", err)
	}
	up, err := audiokit.Resample(down, dstHz, srcHz)
	if err != nil {
		t.Fatalf("upsample: %v", err)
	}
	got := bytesToSamples(up)

	origSeg := samples[margin : n-margin]
	end := len(got) - margin
	if end > len(got) || margin >= end {
		t.Fatalf("round trip produced too few samples: %d", len(got))
	}
	gotSeg := got[margin:end]
	if len(gotSeg) > len(origSeg) {
		gotSeg = gotSeg[:len(origSeg)]
	} else if len(origSeg) > len(gotSeg) {
		origSeg = origSeg[:len(gotSeg)]
	}

	origRMS := rms(origSeg)
	gotRMS := rms(gotSeg)
	if origRMS == 0 || gotRMS == 0 {
		t.Fatal("zero RMS energy, signal degenerated")
	}
	dB := 20 * math.Log10(gotRMS/origRMS)
	if math.Abs(dB) > 0.5 {
		t.Errorf("round-trip energy changed by %.3f dB, want within ±0.5 dB", dB)
	}
}

func TestResample_UnsupportedRate(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3})
	_, err := audiokit.Resample(pcm, 16000, 44100)
	if err != audiokit.ErrUnsupportedRate {
		t.Fatalf("err = %v, want ErrUnsupportedRate", err)
	}
}

func TestResample_InvalidFrame(t *testing.T) {
	_, err := audiokit.Resample([]byte{0x01}, 8000, 16000)
	if err != audiokit.ErrInvalidFrame {
		t.Fatalf("err = %v, want ErrInvalidFrame", err)
	}
}

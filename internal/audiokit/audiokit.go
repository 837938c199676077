// Package audiokit implements the pure byte-buffer audio transforms shared by
// every call leg: G.711 companding, resampling, DC blocking, and fixed-duration
// reframing. Every function operates on little-endian PCM16 or compressed G.711
// byte slices and holds no state beyond what callers opt into (the DC blocker,
// the reframer); there are no goroutines, no I/O, and no allocation beyond the
// output buffer.
package audiokit

import "errors"

// ErrInvalidFrame is returned when an input buffer's length is not a multiple
// of the sample size the operation requires (2 bytes for PCM16, 1 byte for
// G.711).
var ErrInvalidFrame = errors.New("audiokit: invalid frame length")

// ErrUnsupportedRate is returned by Resample when asked to convert between a
// sample rate pair this package has no conversion path for.
var ErrUnsupportedRate = errors.New("audiokit: unsupported sample rate pair")

// FrameSamples returns the number of PCM16 samples in one frame of durationMs
// milliseconds at sampleRate Hz. Used to size 20 ms frames: 160 at 8 kHz, 320
// at 16 kHz, 480 at 24 kHz.
func FrameSamples(sampleRate, durationMs int) int {
	return sampleRate * durationMs / 1000
}

// FrameBytes returns the byte length of one frame of durationMs milliseconds
// at sampleRate Hz for the given bytes-per-sample (2 for PCM16, 1 for G.711).
func FrameBytes(sampleRate, durationMs, bytesPerSample int) int {
	return FrameSamples(sampleRate, durationMs) * bytesPerSample
}

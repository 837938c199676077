package gating

import (
	"encoding/binary"
	"math"
)

// rmsEnergy returns the root-mean-square amplitude of a little-endian PCM16
// frame, on the same int16 scale as the samples themselves.
func rmsEnergy(frame []byte) int {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sumSq float64
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2:]))
		f := float64(s)
		sumSq += f * f
	}
	return int(math.Sqrt(sumSq / float64(n)))
}

// frameDurationMs returns how many milliseconds of audio a PCM16 frame
// represents at the given sample rate.
func frameDurationMs(frame []byte, sampleRate int) int {
	samples := len(frame) / 2
	if sampleRate == 0 {
		return 0
	}
	return samples * 1000 / sampleRate
}

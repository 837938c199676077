package audiokit

import (
	"encoding/binary"
	"math"
)

// supportedRates lists the sample rates the Codec Kit resamples between:
// 8 kHz (telephony G.711 trunks), 16 kHz (STT-optimised mono), and 24 kHz
// (some S2S providers' native output rate).
var supportedRates = map[int]bool{8000: true, 16000: true, 24000: true}

// filterHalfWidth is the number of zero crossings of the windowed-sinc
// lowpass filter on each side of center, expressed in periods of the lower
// of the two rates being converted between. Larger values trade CPU for a
// sharper transition band and better stopband rejection.
const filterHalfWidth = 8

// Resample converts a little-endian PCM16 mono frame from srcHz to dstHz
// using polyphase rational resampling: the signal is conceptually upsampled
// by L, lowpass-filtered with a windowed-sinc filter to remove both
// upsampling images and downsampling aliases, then decimated by M, where
// L/M = dstHz/srcHz in lowest terms. The filter is applied directly in the
// polyphase (L,M) domain without ever materializing the zero-stuffed
// intermediate signal. Returns ErrInvalidFrame if pcm's length is not a
// multiple of 2, or ErrUnsupportedRate if either rate is outside the set
// this package resamples ({8000, 16000, 24000}). If srcHz == dstHz, pcm is
// returned unchanged.
func Resample(pcm []byte, srcHz, dstHz int) ([]byte, error) {
	if len(pcm)%2 != 0 {
		return nil, ErrInvalidFrame
	}
	if srcHz == dstHz {
		return pcm, nil
	}
	if !supportedRates[srcHz] || !supportedRates[dstHz] {
		return nil, ErrUnsupportedRate
	}

	srcSamples := len(pcm) / 2
	if srcSamples == 0 {
		return nil, nil
	}
	dstSamples := int(int64(srcSamples) * int64(dstHz) / int64(srcHz))
	if dstSamples == 0 {
		return nil, nil
	}

	x := make([]int16, srcSamples)
	for i := range x {
		x[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}

	g := gcd(srcHz, dstHz)
	l := dstHz / g
	m := srcHz / g
	h, center := polyphaseFilter(l, m)

	out := make([]byte, dstSamples*2)
	for n := range dstSamples {
		base := n*m + center
		k0 := base % l
		idx0 := (base - k0) / l

		var acc float64
		for k, step := k0, 0; k < len(h); k, step = k+l, step+1 {
			srcIdx := idx0 - step
			if srcIdx < 0 || srcIdx >= srcSamples {
				continue
			}
			acc += h[k] * float64(x[srcIdx])
		}

		sample := math.Round(acc)
		sample = math.Max(math.Min(sample, math.MaxInt16), math.MinInt16)
		binary.LittleEndian.PutUint16(out[n*2:], uint16(int16(sample)))
	}
	return out, nil
}

// polyphaseFilter designs a Hamming-windowed-sinc lowpass filter for
// converting between an interpolation factor l and a decimation factor m
// (in lowest terms), with cutoff at the Nyquist of whichever of the two
// rates is lower so that the single filter pass both removes interpolation
// images and prevents decimation aliasing. It returns the filter taps and
// the index of its center tap (the group delay to compensate for when
// indexing the filter from a given output sample).
func polyphaseFilter(l, m int) ([]float64, int) {
	branchFactor := l
	if m > branchFactor {
		branchFactor = m
	}
	center := filterHalfWidth * branchFactor
	n := 2*center + 1

	cutoff := 1.0 / float64(branchFactor)
	h := make([]float64, n)
	var sum float64
	for i := range n {
		x := float64(i - center)
		var sinc float64
		if x == 0 {
			sinc = cutoff
		} else {
			sinc = math.Sin(math.Pi*cutoff*x) / (math.Pi * x)
		}
		window := 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		h[i] = sinc * window
		sum += h[i]
	}
	// Normalize to unity DC gain in the upsampled domain, then scale by l
	// to restore the amplitude the zero-stuffing step would otherwise
	// divide by l.
	scale := float64(l) / sum
	for i := range h {
		h[i] *= scale
	}
	return h, center
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

package audiokit

import "encoding/binary"

// DCBlocker is a single-pole high-pass filter that removes DC offset from a
// PCM16 stream: y[n] = x[n] - x[n-1] + 0.995*y[n-1]. Create one per stream;
// it carries per-stream filter state across calls and is not safe for
// concurrent use.
type DCBlocker struct {
	prevX int16
	prevY float64
}

// pole is the filter's feedback coefficient.
const pole = 0.995

// Process runs the filter over a little-endian PCM16 frame in place and
// returns it. Returns ErrInvalidFrame if frame's length is not a multiple
// of 2.
func (d *DCBlocker) Process(frame []byte) ([]byte, error) {
	if len(frame)%2 != 0 {
		return nil, ErrInvalidFrame
	}
	for i := 0; i < len(frame); i += 2 {
		x := int16(binary.LittleEndian.Uint16(frame[i:]))
		y := float64(x) - float64(d.prevX) + pole*d.prevY
		d.prevX = x
		d.prevY = y

		out := y
		if out > 32767 {
			out = 32767
		} else if out < -32768 {
			out = -32768
		}
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(out)))
	}
	return frame, nil
}

// Reset clears the filter's history, e.g. between calls reusing a pooled
// DCBlocker.
func (d *DCBlocker) Reset() {
	d.prevX = 0
	d.prevY = 0
}

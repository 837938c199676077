// Package audiosocket implements the AudioSocket media adapter: a
// bidirectional TCP connection carrying fixed-length type-length-value
// frames. The PBX dials the engine once per call; the first frame on the
// connection carries a UUID that correlates the TCP stream to a CallSession.
//
// Mirrors pkg/audio/discord.Connection's shape in part: a done channel plus
// sync.Once for idempotent teardown. Reading runs on one goroutine started
// by Frames, which blocks (it does not drop) while the frame channel is
// full; WriteAudio writes synchronously under a mutex, with no send
// goroutine. The per-participant SSRC demux has no analogue here — one
// AudioSocket connection carries exactly one call leg — so this package is
// simpler than its model in that respect.
package audiosocket

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
)

// Kind identifies an AudioSocket frame's payload type.
type Kind uint8

const (
	// KindHangup signals the PBX is terminating the call; no further frames follow.
	KindHangup Kind = 0x00
	// KindID carries a 16-byte UUID identifying the call, sent once as the first frame.
	KindID Kind = 0x01
	// KindSilence carries a duration-as-payload marker; treated as a no-op audio frame.
	KindSilence Kind = 0x02
	// KindAudio carries a wire-format audio chunk in the negotiated AudioProfile encoding.
	KindAudio Kind = 0x10
	// KindError signals a PBX-side error condition; the payload is a single error code byte.
	KindError Kind = 0xff
)

const (
	headerLen       = 3 // 1 byte kind + 2 byte big-endian length
	maxPayloadBytes = 65535
)

// ErrConnectionClosed is returned by Conn methods once the connection has
// been closed, either locally via Close or because the peer hung up.
var ErrConnectionClosed = errors.New("audiosocket: connection closed")

// Frame is one decoded AudioSocket TLV frame.
type Frame struct {
	Kind    Kind
	Payload []byte
}

// Conn wraps one AudioSocket TCP connection. Call Handshake once to read the
// session-identifying first frame, then Frames/WriteAudio for the duration
// of the call.
type Conn struct {
	nc     net.Conn
	r      *bufio.Reader
	w      *bufio.Writer
	wMu    sync.Mutex
	closed chan struct{}
	once   sync.Once
}

// NewConn wraps an already-accepted net.Conn (from net.Listener.Accept) as an AudioSocket connection.
func NewConn(nc net.Conn) *Conn {
	return &Conn{
		nc:     nc,
		r:      bufio.NewReaderSize(nc, 4096),
		w:      bufio.NewWriterSize(nc, 4096),
		closed: make(chan struct{}),
	}
}

// Handshake reads the first frame off the connection and returns the
// session UUID it carries. Returns an error if the first frame is not
// KindID or the connection closes before one arrives.
func (c *Conn) Handshake() (uuid.UUID, error) {
	frame, err := c.readFrame()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("audiosocket: handshake read: %w", err)
	}
	if frame.Kind != KindID {
		return uuid.UUID{}, fmt.Errorf("audiosocket: expected id frame, got kind 0x%02x", frame.Kind)
	}
	id, err := uuid.FromBytes(frame.Payload)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("audiosocket: decode session id: %w", err)
	}
	return id, nil
}

func (c *Conn) readFrame() (Frame, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return Frame{}, err
	}
	kind := Kind(header[0])
	length := binary.BigEndian.Uint16(header[1:3])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return Frame{}, err
		}
	}
	return Frame{Kind: kind, Payload: payload}, nil
}

// Frames returns a channel of decoded frames read from the connection. The
// channel is closed when the peer disconnects or Close is called; callers
// should range over it.
func (c *Conn) Frames() <-chan Frame {
	out := make(chan Frame, 32)
	go func() {
		defer close(out)
		for {
			frame, err := c.readFrame()
			if err != nil {
				return
			}
			select {
			case out <- frame:
			case <-c.closed:
				return
			}
			if frame.Kind == KindHangup {
				return
			}
		}
	}()
	return out
}

// WriteAudio writes one wire-format audio chunk as a KindAudio frame. Safe
// for concurrent use; frames are serialized under an internal mutex.
func (c *Conn) WriteAudio(chunk []byte) error {
	return c.writeFrame(KindAudio, chunk)
}

func (c *Conn) writeFrame(kind Kind, payload []byte) error {
	select {
	case <-c.closed:
		return ErrConnectionClosed
	default:
	}
	if len(payload) > maxPayloadBytes {
		return fmt.Errorf("audiosocket: payload %d bytes exceeds max frame size", len(payload))
	}

	c.wMu.Lock()
	defer c.wMu.Unlock()

	var header [headerLen]byte
	header[0] = byte(kind)
	binary.BigEndian.PutUint16(header[1:3], uint16(len(payload)))

	if _, err := c.w.Write(header[:]); err != nil {
		return fmt.Errorf("audiosocket: write header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := c.w.Write(payload); err != nil {
			return fmt.Errorf("audiosocket: write payload: %w", err)
		}
	}
	return c.w.Flush()
}

// Close terminates the underlying TCP connection. Idempotent.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.nc.Close()
	})
	return err
}

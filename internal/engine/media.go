package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/media/audiosocket"
	"github.com/corvidlabs/voxcore/internal/media/rtp"
	"github.com/corvidlabs/voxcore/internal/transport"
)

// mediaConnectTimeout bounds how long opening a media transport waits for
// the PBX to actually connect its external media channel back to this
// engine, before giving up on the call.
const mediaConnectTimeout = 10 * time.Second

// mediaConn is the transport-agnostic surface call.go drives: a stream of
// decoded wire-format frames in, a frame writer out. Both the AudioSocket
// and RTP adapters satisfy it so the conversation loop never branches on
// which one a context selected.
type mediaConn interface {
	ReadFrames() <-chan []byte
	WriteFrame(frame []byte) error
	Close() error
}

type audiosocketMedia struct {
	conn *audiosocket.Conn
}

func (m *audiosocketMedia) ReadFrames() <-chan []byte {
	out := make(chan []byte, 32)
	go func() {
		defer close(out)
		for f := range m.conn.Frames() {
			if f.Kind == audiosocket.KindAudio {
				out <- f.Payload
			}
		}
	}()
	return out
}

func (m *audiosocketMedia) WriteFrame(frame []byte) error { return m.conn.WriteAudio(frame) }
func (m *audiosocketMedia) Close() error                  { return m.conn.Close() }

type rtpMedia struct {
	sess *rtp.Session
}

func (m *rtpMedia) ReadFrames() <-chan []byte {
	out := make(chan []byte, 32)
	go func() {
		defer close(out)
		for f := range m.sess.Input() {
			out <- f.Payload
		}
	}()
	return out
}

func (m *rtpMedia) WriteFrame(frame []byte) error {
	select {
	case m.sess.Output() <- frame:
		return nil
	default:
		return fmt.Errorf("engine: rtp output backlogged")
	}
}
func (m *rtpMedia) Close() error { return m.sess.Close() }

// asteriskFormatName maps a wire AudioFormat to the codec name Asterisk's
// externalMedia endpoint expects.
func asteriskFormatName(f transport.AudioFormat) string {
	switch f.Encoding {
	case transport.EncodingMulaw:
		return "ulaw"
	case transport.EncodingAlaw:
		return "alaw"
	default:
		return fmt.Sprintf("slin%d", f.SampleRate/1000)
	}
}

func rtpPayloadType(f transport.AudioFormat) rtp.PayloadType {
	switch f.Encoding {
	case transport.EncodingMulaw:
		return rtp.PayloadTypeMulaw8000
	case transport.EncodingAlaw:
		return rtp.PayloadTypeAlaw8000
	default:
		return rtp.PayloadTypeLinear16
	}
}

// openMedia creates an ARI external media channel for wireFormat using the
// transport named by mediaTransport ("audiosocket" or "rtp", empty meaning
// the audiosocket default), blocks until the PBX connects it, and returns
// the ready mediaConn plus the ARI channel resource it is carried on.
func (e *CallEngine) openMedia(ctx context.Context, mediaTransport string, wireFormat transport.AudioFormat) (mediaConn, ari.Channel, error) {
	if mediaTransport == "rtp" {
		return e.openRTPMedia(ctx, wireFormat)
	}
	return e.openAudioSocketMedia(ctx, wireFormat)
}

func (e *CallEngine) openAudioSocketMedia(ctx context.Context, wireFormat transport.AudioFormat) (mediaConn, ari.Channel, error) {
	sessionID := uuid.New()
	waitCh := make(chan *audiosocket.Conn, 1)

	e.mu.Lock()
	e.pendingAudioSocket[sessionID] = waitCh
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.pendingAudioSocket, sessionID)
		e.mu.Unlock()
	}()

	ch, err := e.ariClient.CreateExternalMediaChannel(ctx, ari.ExternalMediaRequest{
		ExternalHost:  e.audioListener.Addr().String(),
		Format:        asteriskFormatName(wireFormat),
		Transport:     "tcp",
		Encapsulation: "audiosocket",
		ChannelVars:   map[string]string{"AUDIOSOCKET_UUID": sessionID.String()},
	})
	if err != nil {
		return nil, ari.Channel{}, fmt.Errorf("engine: create audiosocket external media channel: %w", err)
	}

	select {
	case conn := <-waitCh:
		return &audiosocketMedia{conn: conn}, ch, nil
	case <-ctx.Done():
		return nil, ch, ctx.Err()
	case <-time.After(mediaConnectTimeout):
		return nil, ch, fmt.Errorf("engine: timed out waiting for audiosocket connection")
	}
}

func (e *CallEngine) openRTPMedia(ctx context.Context, wireFormat transport.AudioFormat) (mediaConn, ari.Channel, error) {
	ssrc := uuid.New()
	sess, err := rtp.NewSession(e.mediaHost+":0", nil, rtpPayloadType(wireFormat), uint32(wireFormat.SampleRate), binaryLE32(ssrc[:4]))
	if err != nil {
		return nil, ari.Channel{}, fmt.Errorf("engine: open rtp session: %w", err)
	}

	ch, err := e.ariClient.CreateExternalMediaChannel(ctx, ari.ExternalMediaRequest{
		ExternalHost:  sess.LocalAddr().String(),
		Format:        asteriskFormatName(wireFormat),
		Transport:     "udp",
		Encapsulation: "rtp",
	})
	if err != nil {
		_ = sess.Close()
		return nil, ari.Channel{}, fmt.Errorf("engine: create rtp external media channel: %w", err)
	}

	return &rtpMedia{sess: sess}, ch, nil
}

func binaryLE32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

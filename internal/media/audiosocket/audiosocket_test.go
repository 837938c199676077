package audiosocket_test

import (
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/corvidlabs/voxcore/internal/media/audiosocket"
	"github.com/google/uuid"
)

func pipeConns(t *testing.T) (*audiosocket.Conn, net.Conn) {
	t.Helper()
	clientNet, serverNet := net.Pipe()
	t.Cleanup(func() { _ = clientNet.Close() })
	return audiosocket.NewConn(serverNet), clientNet
}

func writeRawFrame(t *testing.T, nc net.Conn, kind audiosocket.Kind, payload []byte) {
	t.Helper()
	header := make([]byte, 3+len(payload))
	header[0] = byte(kind)
	binary.BigEndian.PutUint16(header[1:3], uint16(len(payload)))
	copy(header[3:], payload)
	if _, err := nc.Write(header); err != nil {
		t.Fatalf("write raw frame: %v", err)
	}
}

func TestHandshake_DecodesSessionID(t *testing.T) {
	conn, raw := pipeConns(t)
	id := uuid.New()
	go writeRawFrame(t, raw, audiosocket.KindID, id[:])

	got, err := conn.Handshake()
	if err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	if got != id {
		t.Fatalf("session id = %v, want %v", got, id)
	}
}

func TestHandshake_WrongFirstFrameKindErrors(t *testing.T) {
	conn, raw := pipeConns(t)
	go writeRawFrame(t, raw, audiosocket.KindAudio, []byte{1, 2, 3})

	if _, err := conn.Handshake(); err == nil {
		t.Fatalf("expected an error for a non-id first frame")
	}
}

func TestFrames_DeliversDecodedFramesAndStopsOnHangup(t *testing.T) {
	conn, raw := pipeConns(t)

	go func() {
		writeRawFrame(t, raw, audiosocket.KindAudio, []byte{0xDE, 0xAD})
		writeRawFrame(t, raw, audiosocket.KindHangup, nil)
	}()

	frames := conn.Frames()

	first := recvFrame(t, frames)
	if first.Kind != audiosocket.KindAudio || string(first.Payload) != "\xDE\xAD" {
		t.Fatalf("unexpected first frame: %+v", first)
	}
	second := recvFrame(t, frames)
	if second.Kind != audiosocket.KindHangup {
		t.Fatalf("expected hangup frame, got %+v", second)
	}

	select {
	case _, ok := <-frames:
		if ok {
			t.Fatalf("expected frames channel to close after hangup")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frames channel to close")
	}
}

func TestWriteAudio_EncodesTLVFrame(t *testing.T) {
	conn, raw := pipeConns(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := conn.WriteAudio([]byte{1, 2, 3, 4}); err != nil {
			t.Errorf("WriteAudio: %v", err)
		}
	}()

	header := make([]byte, 3)
	if _, err := readFull(raw, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	if audiosocket.Kind(header[0]) != audiosocket.KindAudio {
		t.Fatalf("unexpected kind byte: %v", header[0])
	}
	length := binary.BigEndian.Uint16(header[1:3])
	if length != 4 {
		t.Fatalf("unexpected length: %d", length)
	}
	payload := make([]byte, length)
	if _, err := readFull(raw, payload); err != nil {
		t.Fatalf("read payload: %v", err)
	}
	<-done
}

func TestWriteAudio_AfterCloseReturnsError(t *testing.T) {
	conn, _ := pipeConns(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := conn.WriteAudio([]byte{1}); err == nil {
		t.Fatalf("expected an error writing after close")
	}
}

func TestClose_Idempotent(t *testing.T) {
	conn, _ := pipeConns(t)
	if err := conn.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
}

func recvFrame(t *testing.T, frames <-chan audiosocket.Frame) audiosocket.Frame {
	t.Helper()
	select {
	case f, ok := <-frames:
		if !ok {
			t.Fatal("frames channel closed unexpectedly")
		}
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for frame")
	}
	return audiosocket.Frame{}
}

func readFull(nc net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := nc.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

package rtp_test

import (
	"net"
	"testing"
	"time"

	pionrtp "github.com/pion/rtp"

	voxrtp "github.com/corvidlabs/voxcore/internal/media/rtp"
)

func newTestSession(t *testing.T, remote *net.UDPAddr) *voxrtp.Session {
	t.Helper()
	s, err := voxrtp.NewSession("127.0.0.1:0", remote, voxrtp.PayloadTypeMulaw8000, 8000, 0x1234)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSend_EncodesRTPHeaderAndAdvancesSequence(t *testing.T) {
	peerConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen peer: %v", err)
	}
	defer peerConn.Close()

	s := newTestSession(t, peerConn.LocalAddr().(*net.UDPAddr))

	if err := s.Send([]byte{1, 2, 3}, 160); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Send([]byte{4, 5, 6}, 160); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1500)
	_ = peerConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n1, _, err := peerConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read first packet: %v", err)
	}
	var pkt1 pionrtp.Packet
	if err := pkt1.Unmarshal(buf[:n1]); err != nil {
		t.Fatalf("unmarshal first packet: %v", err)
	}
	if pkt1.PayloadType != uint8(voxrtp.PayloadTypeMulaw8000) {
		t.Fatalf("unexpected payload type: %d", pkt1.PayloadType)
	}
	if pkt1.SSRC != 0x1234 {
		t.Fatalf("unexpected ssrc: %x", pkt1.SSRC)
	}

	n2, _, err := peerConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read second packet: %v", err)
	}
	var pkt2 pionrtp.Packet
	if err := pkt2.Unmarshal(buf[:n2]); err != nil {
		t.Fatalf("unmarshal second packet: %v", err)
	}

	if pkt2.SequenceNumber != pkt1.SequenceNumber+1 {
		t.Fatalf("sequence did not advance: %d -> %d", pkt1.SequenceNumber, pkt2.SequenceNumber)
	}
	if pkt2.Timestamp != pkt1.Timestamp+160 {
		t.Fatalf("timestamp did not advance by sample count: %d -> %d", pkt1.Timestamp, pkt2.Timestamp)
	}
}

func TestSend_WithoutLearnedRemoteErrors(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.Send([]byte{1}, 160); err == nil {
		t.Fatalf("expected an error sending before a remote peer is known")
	}
}

func TestRecvLoop_LearnsRemoteAndDeliversFrame(t *testing.T) {
	s := newTestSession(t, nil)

	peerConn, err := net.DialUDP("udp", nil, s.LocalAddr())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer peerConn.Close()

	pkt := pionrtp.Packet{
		Header:  pionrtp.Header{Version: 2, PayloadType: 0, SequenceNumber: 42, Timestamp: 8000, SSRC: 0xabcd},
		Payload: []byte{9, 9, 9},
	}
	data, err := pkt.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := peerConn.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case frame := <-s.Input():
		if frame.SequenceNumber != 42 || string(frame.Payload) != "\x09\x09\x09" {
			t.Fatalf("unexpected frame: %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for inbound frame")
	}

	// A second Send should now succeed since the remote peer has been learned.
	if err := s.Send([]byte{1}, 160); err != nil {
		t.Fatalf("Send after learning remote: %v", err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	s := newTestSession(t, nil)
	if err := s.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got: %v", err)
	}
}

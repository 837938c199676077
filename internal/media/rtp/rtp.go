// Package rtp implements the RTP media adapter: a UDP socket pair carrying
// standard RTP-framed audio, used when a call profile selects RTP transport
// instead of AudioSocket. Payload bytes are opaque wire-format chunks already
// produced by the Codec Kit; this package only adds/strips RTP framing.
//
// The send/receive loop pair mirrors pkg/audio/discord.Connection's shape
// (a recvLoop demuxing inbound packets, a sendLoop draining an output
// channel, both torn down via a shared done channel and sync.Once), adapted
// from discordgo's OpusRecv/OpusSend channels to a raw net.PacketConn and
// pion/rtp's Packet marshal/unmarshal.
package rtp

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
)

const (
	inputChannelBuffer  = 64
	outputChannelBuffer = 64
	maxUDPPacketBytes   = 1500
)

// PayloadType identifies the static or negotiated RTP payload type carried
// by a Session. mulaw@8000 and alaw@8000 use the standard static assignments;
// pcm16le profiles use a dynamic type agreed out of band (SDP-equivalent
// config, not negotiated by this package).
type PayloadType uint8

const (
	PayloadTypeMulaw8000 PayloadType = 0
	PayloadTypeAlaw8000  PayloadType = 8
	PayloadTypeLinear16  PayloadType = 96 // dynamic; pcm16le @ 8k/16k/24k
)

// Frame is one decoded inbound RTP payload, with the sequence number
// preserved for jitter/loss accounting upstream.
type Frame struct {
	Payload        []byte
	SequenceNumber uint16
	Timestamp      uint32
}

// Session owns one call leg's RTP socket: a fixed remote peer address (the
// PBX's media endpoint for this call, learned from the first inbound
// packet or provided up front) and outgoing sequence/timestamp state.
type Session struct {
	conn        *net.UDPConn
	remote      atomic.Pointer[net.UDPAddr]
	payloadType PayloadType
	ssrc        uint32

	seq       uint16
	timestamp uint32
	clockRate uint32
	seqMu     sync.Mutex

	input  chan Frame
	output chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewSession binds a UDP socket on addr (host:port, port 0 for an
// ephemeral port) and starts its receive/send loops. remoteAddr may be nil
// if the peer address is learned from the first inbound packet (typical for
// an inbound call whose PBX-side RTP source port isn't known up front).
func NewSession(addr string, remoteAddr *net.UDPAddr, payloadType PayloadType, clockRate uint32, ssrc uint32) (*Session, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("rtp: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("rtp: listen %s: %w", addr, err)
	}

	s := &Session{
		conn:        conn,
		payloadType: payloadType,
		ssrc:        ssrc,
		clockRate:   clockRate,
		input:       make(chan Frame, inputChannelBuffer),
		output:      make(chan []byte, outputChannelBuffer),
		done:        make(chan struct{}),
	}
	if remoteAddr != nil {
		s.remote.Store(remoteAddr)
	}

	go s.recvLoop()
	go s.sendLoop()

	return s, nil
}

// LocalAddr returns the bound local UDP address, for advertising the RTP
// endpoint to the PBX during call setup.
func (s *Session) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Input returns the channel of decoded inbound RTP payloads. Closed when
// the session is closed or the socket errors.
func (s *Session) Input() <-chan Frame { return s.input }

// Send encodes payload as one RTP packet and writes it to the learned (or
// configured) remote peer. sampleCount is the number of audio samples in
// payload, used to advance the outgoing RTP timestamp at clockRate.
func (s *Session) Send(payload []byte, sampleCount uint32) error {
	select {
	case <-s.done:
		return fmt.Errorf("rtp: session closed")
	default:
	}

	remote := s.remote.Load()
	if remote == nil {
		return fmt.Errorf("rtp: no remote peer learned yet")
	}

	s.seqMu.Lock()
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    uint8(s.payloadType),
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	s.seq++
	s.timestamp += sampleCount
	s.seqMu.Unlock()

	data, err := pkt.Marshal()
	if err != nil {
		return fmt.Errorf("rtp: marshal packet: %w", err)
	}

	_, err = s.conn.WriteToUDP(data, remote)
	if err != nil {
		return fmt.Errorf("rtp: write: %w", err)
	}
	return nil
}

// recvLoop reads UDP datagrams, decodes them as RTP packets, learns the
// remote peer address from the first packet if not already configured, and
// delivers payloads to Input.
func (s *Session) recvLoop() {
	defer close(s.input)

	buf := make([]byte, maxUDPPacketBytes)
	for {
		n, raddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				slog.Warn("rtp: read error", "error", err)
			}
			return
		}

		if s.remote.Load() == nil {
			s.remote.Store(raddr)
		}

		var pkt rtp.Packet
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			slog.Warn("rtp: malformed packet dropped", "error", err)
			continue
		}

		frame := Frame{
			Payload:        append([]byte(nil), pkt.Payload...),
			SequenceNumber: pkt.SequenceNumber,
			Timestamp:      pkt.Timestamp,
		}

		select {
		case s.input <- frame:
		case <-s.done:
			return
		default:
			// Input channel full; drop rather than block the socket reader.
		}
	}
}

// Output returns the write-only channel of outgoing wire-format chunks. The
// sendLoop consumes it and calls Send with a fixed 20 ms sample count
// derived from clockRate.
func (s *Session) Output() chan<- []byte { return s.output }

func (s *Session) sendLoop() {
	samplesPer20ms := s.clockRate / 50
	for {
		select {
		case <-s.done:
			return
		case payload, ok := <-s.output:
			if !ok {
				return
			}
			if err := s.Send(payload, samplesPer20ms); err != nil {
				slog.Warn("rtp: send error", "error", err)
			}
		}
	}
}

// Close releases the UDP socket and stops both loops. Idempotent.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

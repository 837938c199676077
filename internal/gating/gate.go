// Package gating implements the per-call inbound audio gate: it decides
// whether each caller frame is forwarded to the active provider or dropped,
// and detects barge-in while the agent is speaking.
//
// The state machine and its interrupt handling generalize PriorityMixer's
// barge-in handling (pkg/audio/mixer/mixer.go's BargeIn / OnBargeIn) from
// mixer-scoped segment interruption to a call-scoped gate that also tracks
// post-playback echo protection.
package gating

import (
	"context"
	"sync"
	"time"

	"github.com/corvidlabs/voxcore/internal/observe"
	"github.com/corvidlabs/voxcore/pkg/provider/vad"
)

// State is the gate's current disposition toward inbound audio.
type State int

const (
	// StateOpen forwards inbound frames to the provider.
	StateOpen State = iota
	// StateClosed means playback is active; frames are evaluated for
	// barge-in (local-gate) or dropped outright (server-gate).
	StateClosed
	// StatePostProtect drops inbound frames for a short window after
	// playback ends, to mask wire echo tail.
	StatePostProtect
)

// StopPlaybackFunc stops the call's active playback session. It is invoked
// when a barge-in is confirmed.
type StopPlaybackFunc func(reason string)

// Gate tracks one call's gate state. It is not safe for use by more than
// one goroutine feeding frames concurrently, but OnPlaybackStart/End may be
// called from a different goroutine than ProcessFrame.
type Gate struct {
	cfg          Config
	vadSession   vad.SessionHandle
	stopPlayback StopPlaybackFunc
	metrics      *observe.Metrics

	mu           sync.Mutex
	state        State
	speechMs     int
	lastBargeIn  time.Time
	protectUntil time.Time
}

// New builds a Gate. vadSession may be nil when policy is PolicyServerGate,
// since server-gating never evaluates local VAD.
func New(cfg Config, vadSession vad.SessionHandle, stopPlayback StopPlaybackFunc, metrics *observe.Metrics) *Gate {
	return &Gate{
		cfg:          cfg.withDefaults(),
		vadSession:   vadSession,
		stopPlayback: stopPlayback,
		metrics:      metrics,
		state:        StateOpen,
	}
}

// State returns the gate's current state, resolving an expired
// post-playback-protect window to Open.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolveProtectLocked()
	return g.state
}

func (g *Gate) resolveProtectLocked() {
	if g.state == StatePostProtect && !time.Now().Before(g.protectUntil) {
		g.state = StateOpen
	}
}

// OnPlaybackStart transitions the gate to Closed. Call this when the
// Playback Manager begins emitting TTS audio for the call.
func (g *Gate) OnPlaybackStart() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateClosed
	g.speechMs = 0
	if g.vadSession != nil {
		g.vadSession.Reset()
	}
}

// OnPlaybackEnd transitions the gate to PostProtect for Config.PostPlaybackProtectMs,
// after which ProcessFrame/State resolve it to Open. Call this when playback
// ends naturally (not via barge-in, which opens the gate immediately).
func (g *Gate) OnPlaybackEnd() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StatePostProtect
	g.protectUntil = time.Now().Add(time.Duration(g.cfg.PostPlaybackProtectMs) * time.Millisecond)
}

// ProcessFrame evaluates one inbound frame and reports whether it should be
// forwarded to the provider. frame is raw little-endian PCM16.
func (g *Gate) ProcessFrame(ctx context.Context, frame []byte) (forward bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.resolveProtectLocked()

	switch g.state {
	case StateOpen:
		return true, nil
	case StatePostProtect:
		return false, nil
	}

	// StateClosed.
	if g.cfg.Policy == PolicyServerGate {
		return false, nil
	}
	return g.evaluateBargeInLocked(ctx, frame)
}

func (g *Gate) evaluateBargeInLocked(ctx context.Context, frame []byte) (bool, error) {
	dur := frameDurationMs(frame, g.cfg.SampleRate)

	var speaking bool
	if g.vadSession != nil {
		event, err := g.vadSession.ProcessFrame(frame)
		if err != nil {
			return false, err
		}
		speaking = event.Type == vad.VADSpeechStart || event.Type == vad.VADSpeechContinue
	}

	if !speaking {
		g.speechMs = 0
		return false, nil
	}
	g.speechMs += dur

	inCooldown := !g.lastBargeIn.IsZero() && time.Since(g.lastBargeIn) < time.Duration(g.cfg.CooldownMs)*time.Millisecond
	if inCooldown {
		return false, nil
	}

	energy := rmsEnergy(frame)
	if g.speechMs < g.cfg.BargeInMinMs || energy < g.cfg.EnergyThreshold {
		return false, nil
	}

	g.state = StateOpen
	g.speechMs = 0
	g.lastBargeIn = time.Now()
	if g.stopPlayback != nil {
		g.stopPlayback("barge_in")
	}
	if g.metrics != nil {
		g.metrics.RecordBargeIn(ctx)
	}
	return true, nil
}

// Package coordinator implements the Conversation Coordinator: the
// single-writer per-call state machine that wires the Playback Manager, the
// Audio Gating Manager, the Tool Execution Subsystem, and a Provider Session
// Manager (either variant) together.
//
// Its shape follows internal/agent/orchestrator.Orchestrator: one mutex
// serializing all state transitions, a narrow set of exported entrypoints
// driven by event callbacks rather than a run loop, and functional options
// for tuning. The turn state machine itself
// (Idle/UserSpeaking/ProviderThinking/ProviderSpeaking) has no analogue
// there — NPC voice loops are turn-based at the Process-call boundary and
// never needed an explicit state enum — so it is new code built in that
// idiom rather than adapted from an existing file.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	providers2s "github.com/corvidlabs/voxcore/internal/engine/s2s"
	"github.com/corvidlabs/voxcore/internal/gating"
	"github.com/corvidlabs/voxcore/internal/observe"
	"github.com/corvidlabs/voxcore/internal/playback"
	"github.com/corvidlabs/voxcore/internal/session"
)

// HangupFunc issues the actual PBX hangup once farewell audio has finished
// playing. Supplied by the Call Engine, which owns the PBX control client.
type HangupFunc func(ctx context.Context, callID, reason string) error

// Compile-time assertion: Coordinator can drive a Monolithic Agent session
// directly.
var (
	_ providers2s.EventSink = (*Coordinator)(nil)
)

// Coordinator owns one call's turn state. All exported methods are safe for
// concurrent use; internally every state transition is serialized by mu,
// matching the single-writer discipline CallSession mutation requires.
type Coordinator struct {
	callSession  *session.CallSession
	gate         *gating.Gate
	playbackMgr  *playback.Manager
	metrics      *observe.Metrics
	providerName string
	hangupFn     HangupFunc

	mu              sync.Mutex
	state           TurnState
	playbackID      string
	lastUserAudioAt time.Time
	latencyArmed    bool

	hangupPending atomic.Bool
}

// New builds a Coordinator for one call. hangupFn may be nil in tests that
// don't exercise the hangup-with-farewell path.
func New(callSession *session.CallSession, gate *gating.Gate, playbackMgr *playback.Manager, metrics *observe.Metrics, providerName string, hangupFn HangupFunc) *Coordinator {
	return &Coordinator{
		callSession:  callSession,
		gate:         gate,
		playbackMgr:  playbackMgr,
		metrics:      metrics,
		providerName: providerName,
		hangupFn:     hangupFn,
	}
}

// State returns the current turn state.
func (c *Coordinator) State() TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetPlaybackID records the Playback Manager session this coordinator drains
// agent audio into, so OnAgentAudioDone/playback-done handling know which
// session to stop.
func (c *Coordinator) SetPlaybackID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playbackID = id
}

func (c *Coordinator) transitionLocked(to TurnState) {
	if c.state == to {
		return
	}
	c.state = to
	if c.callSession != nil {
		c.callSession.AppendTurn(session.RoleSystem, "turn_state:"+to.String())
	}
}

// MarkUserAudioFrame records the arrival time of one caller audio frame.
// Call this from the ingress path for every frame the Audio Gating Manager
// forwards, so the turn latency metric (last user-audio frame to first
// agent-audio frame) has an accurate baseline.
func (c *Coordinator) MarkUserAudioFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastUserAudioAt = time.Now()
	c.latencyArmed = true
	if c.state == StateIdle || c.state == StateProviderSpeaking {
		c.transitionLocked(StateUserSpeaking)
	}
}

// OnUserStartedSpeaking implements providers2s.EventSink for a Monolithic
// Agent session whose own VAD detects caller speech independent of the
// ingress frame path.
func (c *Coordinator) OnUserStartedSpeaking() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.state == StateProviderSpeaking {
		c.transitionLocked(StateUserSpeaking)
	}
}

// OnUserTranscript implements providers2s.EventSink. Only a final transcript
// advances the turn state; interim transcripts are informational.
func (c *Coordinator) OnUserTranscript(text string, isFinal bool) {
	if !isFinal {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(StateProviderThinking)
}

// OnAgentAudioDone implements providers2s.EventSink. It stops the playback
// session, lets the Audio Gating Manager start its post-playback protect
// window, and issues a held hangup if the call's farewell has finished.
func (c *Coordinator) OnAgentAudioDone() {
	c.mu.Lock()
	playbackID := c.playbackID
	c.mu.Unlock()

	if c.gate != nil {
		c.gate.OnPlaybackEnd()
	}
	if c.playbackMgr != nil && playbackID != "" {
		_ = c.playbackMgr.Stop(playbackID, "agent_audio_done")
	}

	if c.hangupPending.Load() && c.hangupFn != nil {
		_ = c.hangupFn(context.Background(), c.callID(), "hangup_call")
	}
}

// OnTurnComplete implements providers2s.EventSink. It marks the provider's
// full turn (including any tool calls) as finished and returns the state
// machine to Idle.
func (c *Coordinator) OnTurnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitionLocked(StateIdle)
}

// OnProviderError implements providers2s.EventSink. The session remains
// open; this is purely observability.
func (c *Coordinator) OnProviderError(err error) {
	if c.metrics != nil {
		c.metrics.RecordProviderError(context.Background(), c.providerName, "session_event")
	}
}

// OnClosed implements providers2s.EventSink. A non-nil err means the
// provider session died underneath the call; the Call Engine is responsible
// for deciding fallback-message-or-terminate, and Coordinator only records
// the outcome when one hasn't already been set by the cleanup path.
func (c *Coordinator) OnClosed(err error) {
	if err == nil || c.callSession == nil {
		return
	}
	if c.callSession.Outcome() == session.OutcomeInProgress {
		c.callSession.SetOutcome(session.OutcomeError)
	}
}

// StartAgentAudio marks the first-audio-frame moment for the turn latency
// metric and transitions to ProviderSpeaking. Call once per turn, on the
// first frame read off the provider's audio channel (or, for a pipeline
// turn, the first frame out of Orchestrator.RunTurn's Audio channel).
func (c *Coordinator) StartAgentAudio() {
	c.mu.Lock()
	armed := c.latencyArmed
	since := c.lastUserAudioAt
	c.latencyArmed = false
	c.transitionLocked(StateProviderSpeaking)
	c.mu.Unlock()

	if c.gate != nil {
		c.gate.OnPlaybackStart()
	}

	if armed && c.callSession != nil {
		latencyMs := float64(time.Since(since)) / float64(time.Millisecond)
		c.callSession.RecordTurnLatency(latencyMs)
		if c.metrics != nil {
			c.metrics.RecordTurnLatency(context.Background(), c.providerName, latencyMs)
		}
	}
}

// MarkHangupPending implements tools.HangupGate. It never hangs up directly:
// the actual hangup fires from OnAgentAudioDone once farewell audio has
// finished streaming, so the caller always hears the farewell.
func (c *Coordinator) MarkHangupPending(callID string) {
	c.hangupPending.Store(true)
}

// HangupPending reports whether a hangup_call tool invocation is waiting on
// farewell audio to finish.
func (c *Coordinator) HangupPending() bool {
	return c.hangupPending.Load()
}

func (c *Coordinator) callID() string {
	if c.callSession == nil {
		return ""
	}
	return c.callSession.CallID
}

// PumpEgressAudio drains a turn's agent-audio channel (from either Provider
// Session Manager variant — both expose <-chan []byte) into the Playback
// Manager, applying the turn-latency/state-transition bookkeeping on the
// first frame and the done-handling on channel close. It blocks until
// audioCh closes or ctx is cancelled.
func (c *Coordinator) PumpEgressAudio(ctx context.Context, audioCh <-chan []byte) error {
	c.mu.Lock()
	playbackID := c.playbackID
	c.mu.Unlock()
	if c.playbackMgr == nil || playbackID == "" {
		return fmt.Errorf("coordinator: no playback session configured")
	}

	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-audioCh:
			if !ok {
				c.OnAgentAudioDone()
				return nil
			}
			if first {
				first = false
				c.StartAgentAudio()
			}
			if err := c.playbackMgr.Push(playbackID, frame); err != nil {
				return fmt.Errorf("coordinator: push playback frame: %w", err)
			}
		}
	}
}

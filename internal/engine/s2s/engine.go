// Package s2s bridges a Monolithic Agent provider session
// (pkg/provider/s2s.Provider) into the call lifecycle: it opens the session
// with a bounded handshake timeout, routes the provider's function-call
// mechanism through the Tool Execution Subsystem under the provider's
// deadline, records every tool invocation onto the call's CallSession, and
// fans the provider's event stream out to an EventSink for the Conversation
// Coordinator to drive its turn state machine from.
//
// Unlike internal/agent/orchestrator, which lazily opens (and transparently
// reopens) a session on every Process call because each call is one
// independent utterance, a telephony Monolithic Agent session is scoped to
// the entire call: Start opens exactly one session and Engine surfaces its
// death via EventSink.OnClosed rather than silently reconnecting, since a
// provider disconnect here calls for the Call Engine's own failure handling
// (fallback message or graceful termination), not a fresh session.
package s2s

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corvidlabs/voxcore/internal/session"
	"github.com/corvidlabs/voxcore/internal/tools"
	providers2s "github.com/corvidlabs/voxcore/pkg/provider/s2s"
)

// Engine wraps one providers2s.Provider session for the lifetime of a call.
// Safe for concurrent use.
type Engine struct {
	provider    providers2s.Provider
	toolReg     *tools.Registry
	callSession *session.CallSession
	allowlist   map[string]bool
	cfg         Config

	mu      sync.Mutex
	sess    providers2s.SessionHandle
	started bool
	closed  bool
}

// New builds an Engine. allowlist, if non-nil, restricts in-call tool
// execution to the named tools regardless of what the registry holds;
// a nil allowlist permits any tool the registry can resolve in the
// PhaseInCall phase.
func New(provider providers2s.Provider, toolReg *tools.Registry, callSession *session.CallSession, allowlist []string, cfg Config) *Engine {
	e := &Engine{
		provider:    provider,
		toolReg:     toolReg,
		callSession: callSession,
		cfg:         cfg.withDefaults(),
	}
	if allowlist != nil {
		e.allowlist = make(map[string]bool, len(allowlist))
		for _, name := range allowlist {
			e.allowlist[name] = true
		}
	}
	return e
}

// Start opens the provider session, blocking until the handshake
// acknowledgement arrives or Config.HandshakeTimeout elapses. It wires the
// tool-call handler and starts the event pump goroutine that drives sink.
func (e *Engine) Start(ctx context.Context, cfg providers2s.SessionConfig, sink EventSink) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return fmt.Errorf("s2s: engine already started")
	}
	e.mu.Unlock()

	handshakeCtx, cancel := context.WithTimeout(ctx, e.cfg.HandshakeTimeout)
	defer cancel()

	sess, err := e.provider.Connect(handshakeCtx, cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderHandshakeFailed, err)
	}

	sess.OnToolCall(e.handleToolCall)

	e.mu.Lock()
	e.sess = sess
	e.started = true
	e.mu.Unlock()

	go e.pumpEvents(sess, sink)

	return nil
}

// handleToolCall is registered as the session's ToolCallHandler. It is
// invoked on the session's internal receive goroutine, so it must not call
// any other blocking SessionHandle method.
func (e *Engine) handleToolCall(ctx context.Context, req providers2s.ToolCallRequest) (string, error) {
	if e.allowlist != nil && !e.allowlist[req.Name] {
		err := fmt.Errorf("s2s: tool %q is not allowed for this context", req.Name)
		return fmt.Sprintf(`{"error":%q}`, err.Error()), err
	}

	start := time.Now()
	result, err := e.toolReg.ExecuteInCall(ctx, req.Name, req.Args)
	durationMs := float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		result = fmt.Sprintf(`{"error":%q}`, err.Error())
	}

	if e.callSession != nil {
		var params map[string]any
		_ = json.Unmarshal([]byte(req.Args), &params)
		e.callSession.AppendToolCall(req.Name, params, result, durationMs)
	}

	return result, err
}

// pumpEvents reads sess.Events() until it closes, translating each event
// into the matching EventSink call. It exits when the channel closes,
// reporting sess.Err() via OnClosed.
func (e *Engine) pumpEvents(sess providers2s.SessionHandle, sink EventSink) {
	for evt := range sess.Events() {
		switch evt.Type {
		case providers2s.EventUserStartedSpeaking:
			sink.OnUserStartedSpeaking()
		case providers2s.EventUserTranscript:
			if e.callSession != nil && evt.Transcript.IsFinal {
				e.callSession.AppendTurn(session.RoleUser, evt.Transcript.Text)
			}
			sink.OnUserTranscript(evt.Transcript.Text, evt.Transcript.IsFinal)
		case providers2s.EventAgentAudioDone:
			sink.OnAgentAudioDone()
		case providers2s.EventTurnComplete:
			sink.OnTurnComplete()
		case providers2s.EventError:
			slog.Warn("s2s provider non-fatal error", "err", evt.Err)
			sink.OnProviderError(evt.Err)
		case providers2s.EventFunctionCallRequest:
			// Informational only: the tool call itself is executed
			// synchronously by handleToolCall via OnToolCall.
		case providers2s.EventClosed:
			// Providers are not required to emit this explicitly; the loop
			// also exits naturally when the channel closes below.
		}
	}
	sink.OnClosed(sess.Err())
}

// SendAudio delivers a raw audio chunk to the open session.
func (e *Engine) SendAudio(chunk []byte) error {
	sess, err := e.activeSession()
	if err != nil {
		return err
	}
	return sess.SendAudio(chunk)
}

// Audio returns the session's outbound audio channel. Returns nil if no
// session is open.
func (e *Engine) Audio() <-chan []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil
	}
	return e.sess.Audio()
}

// Interrupt signals the provider to stop generating and discard buffered
// audio, for caller barge-in.
func (e *Engine) Interrupt() error {
	sess, err := e.activeSession()
	if err != nil {
		return err
	}
	return sess.Interrupt()
}

// UpdateInstructions replaces the session's system-level instructions.
func (e *Engine) UpdateInstructions(instructions string) error {
	sess, err := e.activeSession()
	if err != nil {
		return err
	}
	return sess.UpdateInstructions(instructions)
}

// InjectTextContext inserts context items into the session's rolling
// context without waiting for caller speech.
func (e *Engine) InjectTextContext(items []providers2s.ContextItem) error {
	sess, err := e.activeSession()
	if err != nil {
		return err
	}
	return sess.InjectTextContext(items)
}

func (e *Engine) activeSession() (providers2s.SessionHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return nil, ErrNotStarted
	}
	return e.sess, nil
}

// Close terminates the open session. Safe to call more than once.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sess := e.sess
	e.mu.Unlock()

	if sess == nil {
		return nil
	}
	return sess.Close()
}

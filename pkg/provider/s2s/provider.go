// Package s2s defines the Provider interface for Speech-to-Speech (S2S) backends.
//
// An S2S provider wraps a real-time voice AI service that accepts raw audio input
// and returns synthesised audio output in a single, stateful session — bypassing
// the separate STT → LLM → TTS pipeline entirely. Examples include the OpenAI
// Realtime API and Google's Gemini Live API.
//
// The central abstraction is SessionHandle: a bidirectional, multiplexed channel
// that carries audio, transcripts, and tool calls concurrently. Sessions are
// scoped to a single call leg and support mid-call reconfiguration (instruction
// updates, tool set changes) when the provider allows it.
//
// All implementations must be safe for concurrent use.
package s2s

import (
	"context"
	"time"

	"github.com/corvidlabs/voxcore/pkg/provider/llm"
	"github.com/corvidlabs/voxcore/pkg/provider/tts"
	"github.com/corvidlabs/voxcore/pkg/types"
)

// ToolCallDeadline is the maximum time a ToolCallHandler may take before the
// session gives up waiting and surfaces a timeout result to the provider.
const ToolCallDeadline = 10 * time.Second

// ToolCallHandler is a callback invoked by the session whenever the underlying
// model requests a tool call. The handler receives the parsed request and must
// return either a result string (to be injected back into the session as tool
// output) or an error. Implementations must honor ctx's deadline, which is set
// to ToolCallDeadline by the session.
//
// The handler may be called from the session's internal receive goroutine —
// implementors must not call blocking session methods from within the handler
// to avoid deadlocks.
type ToolCallHandler func(ctx context.Context, req ToolCallRequest) (string, error)

// ToolCallRequest is the provider's request to invoke a tool mid-session, as
// carried on the event stream's function_call_request event.
type ToolCallRequest struct {
	// ID is the provider-assigned call identifier, echoed back in the tool result.
	ID string

	// Name is the tool/function name.
	Name string

	// Args is the JSON-encoded argument string.
	Args string
}

// ContextItem is a text message injected into the session's context mid-call.
// It is used to surface corrected transcripts or out-of-band state without
// resending the full conversation history.
type ContextItem struct {
	// Role is the speaker role for this context item, matching LLM message
	// roles: "system", "user", "assistant".
	Role string

	// Content is the text content of the context item.
	Content string
}

// SessionConfig is the initial configuration for a new S2S session.
type SessionConfig struct {
	// AudioProfile names the wire audio format this session will exchange with
	// the caller leg, as resolved by the Transport Orchestrator. Providers that
	// require a specific sample rate use this to pick their native format and
	// report a mismatch via Connect's error return.
	AudioProfile string

	// Voice defines the voice the model will use for synthesised speech output.
	Voice tts.VoiceProfile

	// Instructions is the system-level prompt for this call context.
	Instructions string

	// GreetingText, if non-empty, is spoken by the model immediately after the
	// handshake acknowledgement, before the caller says anything.
	GreetingText string

	// Tools is the initial set of tool definitions offered to the model. The
	// model may invoke these during the session; tool calls are surfaced via
	// the ToolCallHandler set with OnToolCall.
	Tools []llm.ToolDefinition
}

// EventType enumerates the kinds of events a SessionHandle's event stream can
// carry.
type EventType int

const (
	// EventUserStartedSpeaking indicates the provider's own VAD detected the
	// caller beginning to speak.
	EventUserStartedSpeaking EventType = iota

	// EventUserTranscript carries a recognised transcript of caller speech.
	EventUserTranscript

	// EventAgentAudioDone indicates the model has finished streaming audio for
	// the current turn.
	EventAgentAudioDone

	// EventFunctionCallRequest carries a tool call request from the model.
	EventFunctionCallRequest

	// EventTurnComplete indicates the model has finished its full turn,
	// including any tool calls.
	EventTurnComplete

	// EventError carries a non-fatal provider-reported error.
	EventError

	// EventClosed indicates the session ended.
	EventClosed
)

// Event is a single item on a SessionHandle's event stream. Only the field
// relevant to Type is populated.
type Event struct {
	Type       EventType
	Transcript types.Transcript
	ToolCall   ToolCallRequest
	Err        error
}

// S2SCapabilities describes static properties of the S2S provider.
// The values are assumed constant for the lifetime of the Provider instance.
type S2SCapabilities struct {
	// ContextWindow is the maximum token count (or provider-equivalent unit)
	// the model can maintain across the session.
	ContextWindow int

	// MaxSessionDurationMs is the hard upper bound on session lifetime in
	// milliseconds, as imposed by the provider. Zero means no documented limit.
	MaxSessionDurationMs int

	// SupportsResumption indicates whether a session can be reconnected after
	// a transient network failure without losing accumulated context.
	SupportsResumption bool

	// Voices lists the voice profiles available for this provider.
	Voices []tts.VoiceProfile
}

// SessionHandle represents an open S2S session. It is an interface so that
// test code can supply mock implementations without a live provider
// connection.
//
// The session is the hot path of the call — every method must return
// quickly. Audio I/O is channel-based to avoid blocking the caller's media
// thread. All methods must be safe for concurrent use.
//
// Implementations must not emit agent audio on the Audio channel until the
// handshake acknowledgement has been received from the provider; callers may
// rely on Events() emitting nothing before that point either.
//
// Callers must call Close when the session is no longer needed.
type SessionHandle interface {
	// SendAudio delivers a raw audio chunk to the provider for processing.
	// The chunk must match the format negotiated via SessionConfig.AudioProfile.
	// Returns an error if the session is closed or if the provider cannot
	// accept the chunk (e.g., buffer full, network error).
	SendAudio(chunk []byte) error

	// Audio returns a read-only channel that emits raw audio byte slices as
	// the model synthesises its spoken response. The channel is closed when
	// the session ends or when a mid-stream error occurs. After the channel
	// closes, call [SessionHandle.Err] to check whether the session ended
	// cleanly. Consumers must drain this channel promptly to prevent
	// backpressure from stalling the provider's receive loop.
	Audio() <-chan []byte

	// Events returns a read-only channel of session lifecycle events
	// (transcripts, tool calls, turn boundaries, errors). Closed together
	// with the Audio channel.
	Events() <-chan Event

	// Err returns the error that caused the session's channels to close
	// prematurely, or nil if the session ended cleanly.
	Err() error

	// OnToolCall registers a handler that is invoked whenever the model
	// requests a tool call. Only one handler can be active at a time; calling
	// OnToolCall again replaces the previous handler. Passing nil clears the
	// handler. See ToolCallHandler for concurrency constraints.
	OnToolCall(handler ToolCallHandler)

	// SetTools replaces the active tool definitions without restarting the
	// session. Providers that do not support mid-session tool updates may
	// return an error.
	SetTools(tools []llm.ToolDefinition) error

	// UpdateInstructions replaces the system-level instructions for this
	// call. Providers that do not support mid-session instruction updates
	// may return an error. Effective immediately for the next model turn.
	UpdateInstructions(instructions string) error

	// InjectTextContext inserts one or more ContextItems into the session's
	// rolling context, without waiting for the caller to speak.
	InjectTextContext(items []ContextItem) error

	// Interrupt signals the provider to stop generating the current response
	// and discard any buffered audio. Use this on caller barge-in. Returns an
	// error if the provider does not support interruption.
	Interrupt() error

	// Close terminates the session, releases all resources, and closes the
	// Audio and Events channels. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any S2S backend.
//
// Implementations must be safe for concurrent use; the call engine may open
// multiple concurrent sessions across different calls.
type Provider interface {
	// Connect establishes a new S2S session with the given configuration and
	// blocks until the handshake acknowledgement is received or ctx's
	// deadline expires. The returned SessionHandle is ready to accept audio
	// immediately.
	//
	// Returns an error if the session cannot be established (e.g.,
	// authentication failure, invalid voice, unsupported audio profile, or
	// ctx already cancelled).  The caller owns the SessionHandle and is
	// responsible for calling Close.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)

	// Capabilities returns static metadata about this provider's underlying
	// model. The result is assumed to be constant for the lifetime of the
	// Provider instance.
	Capabilities() S2SCapabilities
}

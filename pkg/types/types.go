// Package types defines the shared types used across all voxcore packages.
//
// These types form the lingua franca between audio codecs, providers, tool
// execution, and the call engine. They are intentionally minimal — each
// package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// AudioFrame represents a single frame of audio data flowing through the
// pipeline. Frames are the atomic unit of audio transport — read from the
// media channel, processed by VAD, encoded/decoded by the codec kit, and
// written back to the media channel or to a provider transport.
type AudioFrame struct {
	// Data is the raw audio payload, encoded as described by Encoding.
	Data []byte

	// SampleRate in Hz (e.g. 8000 for telephony wire audio, 16000/24000 for
	// provider-side PCM16).
	SampleRate int

	// Channels is always 1 for this engine; telephony audio is mono.
	Channels int

	// Encoding names the sample encoding ("mulaw", "alaw", "pcm16le").
	Encoding string

	// Timestamp marks when this frame was captured, relative to call start.
	Timestamp time.Duration
}

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial (interim) transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the provider
	// does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram, Google).
	// May be nil for providers that don't support word-level output.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to call start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// ConversationRole identifies the speaker of a ConversationTurn.
type ConversationRole string

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
	RoleSystem    ConversationRole = "system"
)

// ConversationTurn is a single entry in a CallSession's conversation history.
// Every append is stamped by the single-writer helper that owns the history —
// callers never supply their own timestamp, which is what keeps the history's
// monotonic-timestamp invariant true by construction.
type ConversationTurn struct {
	Role      ConversationRole
	Content   string
	Timestamp time.Time
}

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// Name is an optional participant name (for multi-speaker contexts).
	Name string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this responds to.
	ToolCallID string
}

// ToolCall represents a tool/function invocation requested by the LLM.
type ToolCall struct {
	// ID is the unique identifier for this tool call (provider-assigned).
	ID string

	// Name is the tool/function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to an LLM. This is the
// LLM-facing shape (JSON Schema parameters); the richer call-phase/lifecycle
// shape used by the tool registry lives in package tools.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in LLM prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// VoiceProfile describes a TTS voice configuration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// PitchShift adjusts pitch (-10 to +10, 0 = default).
	PitchShift float64

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default).
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsToolCalling indicates native function/tool calling support.
	SupportsToolCalling bool

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}

// KeywordBoost represents a keyword to boost in STT recognition.
// Used to improve recognition of caller-specific proper nouns (names,
// addresses, product names) via a context hint list.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g. "Glendale").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

package s2s

// EventSink receives the lifecycle events of a monolithic agent session,
// translated 1:1 from the provider's event stream. A Conversation
// Coordinator implements this interface to drive its own turn state
// machine; the Engine itself holds no turn-taking state.
type EventSink interface {
	// OnUserStartedSpeaking fires when the provider's own VAD detects the
	// caller beginning to speak.
	OnUserStartedSpeaking()

	// OnUserTranscript fires when the provider recognizes caller speech.
	// isFinal distinguishes an authoritative transcript (safe to append to
	// conversation history and to drive turn-taking) from an interim one.
	OnUserTranscript(text string, isFinal bool)

	// OnAgentAudioDone fires when the model finishes streaming audio for the
	// current turn.
	OnAgentAudioDone()

	// OnTurnComplete fires when the model finishes its full turn, including
	// any tool calls.
	OnTurnComplete()

	// OnProviderError fires on a non-fatal provider-reported error. The
	// session remains open.
	OnProviderError(err error)

	// OnClosed fires once, when the session's channels close. err is nil for
	// a clean shutdown (Engine.Close was called) and non-nil for a session
	// that died underneath the call.
	OnClosed(err error)
}

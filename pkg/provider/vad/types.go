package vad

import "github.com/corvidlabs/voxcore/pkg/types"

// VADEvent and VADEventType are aliases of the shared pkg/types
// definitions, kept package-local so call sites read vad.VADEvent while
// interoperating with callers that pass types.VADEvent directly (e.g. the
// gating manager, which never imports a specific VAD backend package).
type (
	VADEvent     = types.VADEvent
	VADEventType = types.VADEventType
)

const (
	VADSpeechStart    = types.VADSpeechStart
	VADSpeechContinue = types.VADSpeechContinue
	VADSpeechEnd      = types.VADSpeechEnd
	VADSilence        = types.VADSilence
)

package tts

import "github.com/corvidlabs/voxcore/pkg/types"

// VoiceProfile is an alias of the shared pkg/types definition, kept
// package-local so call sites read tts.VoiceProfile while remaining
// interface-compatible with the types.VoiceProfile used elsewhere.
type VoiceProfile = types.VoiceProfile

package transport

import "sync"

var (
	profileMu sync.RWMutex
	profiles  = map[string]AudioProfile{
		"telephony-ulaw-8k": {
			Name:           "telephony-ulaw-8k",
			Wire:           AudioFormat{Encoding: EncodingMulaw, SampleRate: 8000, Channels: 1},
			ProviderInput:  AudioFormat{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
			ProviderOutput: AudioFormat{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
		},
		"telephony-alaw-8k": {
			Name:           "telephony-alaw-8k",
			Wire:           AudioFormat{Encoding: EncodingAlaw, SampleRate: 8000, Channels: 1},
			ProviderInput:  AudioFormat{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
			ProviderOutput: AudioFormat{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
		},
		"wideband-pcm16-16k": {
			Name:           "wideband-pcm16-16k",
			Wire:           AudioFormat{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
			ProviderInput:  AudioFormat{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
			ProviderOutput: AudioFormat{Encoding: EncodingPCM16, SampleRate: 16000, Channels: 1},
		},
		"realtime-pcm16-24k": {
			Name:           "realtime-pcm16-24k",
			Wire:           AudioFormat{Encoding: EncodingMulaw, SampleRate: 8000, Channels: 1},
			ProviderInput:  AudioFormat{Encoding: EncodingPCM16, SampleRate: 24000, Channels: 1},
			ProviderOutput: AudioFormat{Encoding: EncodingPCM16, SampleRate: 24000, Channels: 1},
		},
	}
)

// LookupProfile returns the registered AudioProfile for name.
func LookupProfile(name string) (AudioProfile, bool) {
	profileMu.RLock()
	defer profileMu.RUnlock()
	p, ok := profiles[name]
	return p, ok
}

// RegisterProfile adds or replaces a named AudioProfile. Configuration loading
// calls this for any profile declared outside the built-in defaults above.
func RegisterProfile(p AudioProfile) {
	profileMu.Lock()
	defer profileMu.Unlock()
	profiles[p.Name] = p
}

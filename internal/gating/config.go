package gating

// Policy selects how a call's inbound audio gate responds to caller speech
// while the agent is playing TTS. Local-gating providers (pipeline mode)
// rely on this package's own VAD/energy evaluation to detect barge-in;
// server-gating providers (OpenAI Realtime, Google Live) run their own
// turn detection, so local barge-in cancellation is suppressed to avoid a
// feedback loop where the provider's own audio is mistaken for speech.
type Policy string

const (
	PolicyLocalGate  Policy = "local-gate"
	PolicyServerGate Policy = "server-gate"
)

// Config tunes the gate's barge-in sensitivity and echo-tail protection.
// Zero-value fields are replaced by defaults in New.
type Config struct {
	Policy Policy

	// SampleRate is the PCM16 sample rate of frames passed to ProcessFrame,
	// used to convert frame length into elapsed milliseconds. Default 16000.
	SampleRate int

	// BargeInMinMs is the minimum continuous-speech duration, per VAD,
	// required before a barge-in is allowed to trigger. Default 250.
	BargeInMinMs int

	// EnergyThreshold is the minimum RMS energy (int16 scale) a frame must
	// carry, alongside the VAD decision, to count toward barge-in. Default 1500.
	EnergyThreshold int

	// CooldownMs suppresses further barge-in triggers for this long after one
	// fires. Default 500.
	CooldownMs int

	// PostPlaybackProtectMs is how long inbound frames are dropped after
	// playback ends naturally, to mask wire echo tail. Default 200.
	PostPlaybackProtectMs int

	// VADAggressiveness is the VAD session's sensitivity tier, 0-2. Level 1 is
	// required for server-gating providers; level 0 causes self-interruption.
	VADAggressiveness int
}

const (
	defaultSampleRate             = 16000
	defaultBargeInMinMs           = 250
	defaultEnergyThreshold        = 1500
	defaultCooldownMs             = 500
	defaultPostPlaybackProtectMs  = 200
	defaultVADAggressivenessLevel = 1
)

func (c Config) withDefaults() Config {
	if c.Policy == "" {
		c.Policy = PolicyLocalGate
	}
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.BargeInMinMs <= 0 {
		c.BargeInMinMs = defaultBargeInMinMs
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = defaultEnergyThreshold
	}
	if c.CooldownMs <= 0 {
		c.CooldownMs = defaultCooldownMs
	}
	if c.PostPlaybackProtectMs <= 0 {
		c.PostPlaybackProtectMs = defaultPostPlaybackProtectMs
	}
	if c.VADAggressiveness <= 0 {
		c.VADAggressiveness = defaultVADAggressivenessLevel
	}
	return c
}

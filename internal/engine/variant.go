package engine

import "github.com/corvidlabs/voxcore/internal/config"

// variant identifies which Provider Session Manager shape a context uses.
type variant int

const (
	// variantMonolithic drives a single pkg/provider/s2s.Provider session
	// covering STT, reasoning, and TTS in one bidirectional stream.
	variantMonolithic variant = iota

	// variantPipeline composes a separate pkg/provider/stt.Provider session
	// with internal/pipeline.Orchestrator (LLM + TTS).
	variantPipeline
)

// resolveVariant decides which Provider Session Manager a context's
// configured ProviderName selects. ProvidersConfig holds exactly one global
// entry per pipeline stage rather than a map keyed by name, so ProviderName
// is matched against the two entries capable of driving a full
// conversation: the S2S entry (monolithic) and the LLM entry (the anchor of
// the modular STT+LLM+TTS pipeline). This mirrors the warning check
// config.Validate already performs on an unrecognised provider_name.
func resolveVariant(providers config.ProvidersConfig, providerName string) variant {
	if providerName != "" && providerName == providers.S2S.Name {
		return variantMonolithic
	}
	return variantPipeline
}

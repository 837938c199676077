package app

import (
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/pkg/provider/llm"
	"github.com/corvidlabs/voxcore/pkg/provider/llm/anyllm"
	openaillm "github.com/corvidlabs/voxcore/pkg/provider/llm/openai"
	"github.com/corvidlabs/voxcore/pkg/provider/s2s"
	"github.com/corvidlabs/voxcore/pkg/provider/s2s/gemini"
	openais2s "github.com/corvidlabs/voxcore/pkg/provider/s2s/openai"
	"github.com/corvidlabs/voxcore/pkg/provider/stt"
	"github.com/corvidlabs/voxcore/pkg/provider/stt/deepgram"
	"github.com/corvidlabs/voxcore/pkg/provider/stt/whisper"
	"github.com/corvidlabs/voxcore/pkg/provider/tts"
	"github.com/corvidlabs/voxcore/pkg/provider/tts/coqui"
	"github.com/corvidlabs/voxcore/pkg/provider/tts/elevenlabs"
	"github.com/corvidlabs/voxcore/pkg/provider/vad"
	vadmock "github.com/corvidlabs/voxcore/pkg/provider/vad/mock"
)

// registerBuiltinProviders wires every provider implementation this module
// ships into reg, one factory per name. A ContextConfig/Campaign selects
// among them by name at call time via config.Registry.CreateX, mirroring
// cmd/glyphoxa/main.go's own registerBuiltinProviders wiring — only here
// the factories construct real providers instead of logging placeholders,
// since the corresponding pkg/provider/* packages already exist in this
// module.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		var opts []openaillm.Option
		if e.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(e.BaseURL))
		}
		return openaillm.New(e.APIKey, e.Model, opts...)
	})
	for _, backend := range []string{"anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"} {
		backend := backend
		reg.RegisterLLM(backend, func(e config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if e.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(e.APIKey))
			}
			if e.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(e.BaseURL))
			}
			return anyllm.New(backend, e.Model, opts...)
		})
	}

	reg.RegisterSTT("deepgram", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if e.Model != "" {
			opts = append(opts, deepgram.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if rate := optInt(e.Options, "sample_rate"); rate != 0 {
			opts = append(opts, deepgram.WithSampleRate(rate))
		}
		return deepgram.New(e.APIKey, opts...)
	})
	reg.RegisterSTT("whisper", func(e config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if e.Model != "" {
			opts = append(opts, whisper.WithModel(e.Model))
		}
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rate := optInt(e.Options, "sample_rate"); rate != 0 {
			opts = append(opts, whisper.WithSampleRate(rate))
		}
		return whisper.New(e.BaseURL, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if e.Model != "" {
			opts = append(opts, elevenlabs.WithModel(e.Model))
		}
		if format := optString(e.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		return elevenlabs.New(e.APIKey, opts...)
	})
	reg.RegisterTTS("coqui", func(e config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := optString(e.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if rate := optInt(e.Options, "output_sample_rate"); rate != 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		return coqui.New(e.BaseURL, opts...)
	})

	reg.RegisterS2S("openai-realtime", func(e config.ProviderEntry) (s2s.Provider, error) {
		var opts []openais2s.Option
		if e.Model != "" {
			opts = append(opts, openais2s.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, openais2s.WithBaseURL(e.BaseURL))
		}
		return openais2s.New(e.APIKey, opts...), nil
	})
	reg.RegisterS2S("gemini-live", func(e config.ProviderEntry) (s2s.Provider, error) {
		var opts []gemini.Option
		if e.Model != "" {
			opts = append(opts, gemini.WithModel(e.Model))
		}
		if e.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(e.BaseURL))
		}
		return gemini.New(e.APIKey, opts...), nil
	})

	reg.RegisterVAD("mock", func(e config.ProviderEntry) (vad.Engine, error) {
		return &vadmock.Engine{}, nil
	})
}

func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func optInt(opts map[string]any, key string) int {
	v, ok := opts[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

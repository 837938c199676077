package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram", "whisper", "whisper-native"},
	"tts": {"elevenlabs", "coqui"},
	"s2s": {"openai-realtime", "gemini-live"},
	"vad": {"silero"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("s2s", cfg.Providers.S2S.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Context duplicate name / DID collision detection.
	namesSeen := make(map[string]int, len(cfg.Contexts))
	didOwner := make(map[string]string)

	for i, ctx := range cfg.Contexts {
		prefix := fmt.Sprintf("contexts[%d]", i)
		if ctx.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[ctx.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of contexts[%d]", prefix, ctx.Name, prev))
			}
			namesSeen[ctx.Name] = i
		}

		for _, did := range ctx.DIDs {
			if owner, ok := didOwner[did]; ok {
				errs = append(errs, fmt.Errorf("%s: DID %q is already routed to context %q", prefix, did, owner))
				continue
			}
			didOwner[did] = ctx.Name
		}

		if ctx.ProviderName == "" {
			errs = append(errs, fmt.Errorf("%s.provider_name is required", prefix))
		} else if ctx.ProviderName != cfg.Providers.S2S.Name &&
			ctx.ProviderName != cfg.Providers.LLM.Name {
			slog.Warn("context provider_name does not match any configured provider entry",
				"context", ctx.Name, "provider_name", ctx.ProviderName)
		}

		if ctx.MediaTransport != "" && ctx.MediaTransport != "audiosocket" && ctx.MediaTransport != "rtp" {
			errs = append(errs, fmt.Errorf("%s.media_transport %q is invalid; valid values: audiosocket, rtp", prefix, ctx.MediaTransport))
		}

		if ctx.Voice.SpeedFactor != 0 && (ctx.Voice.SpeedFactor < 0.5 || ctx.Voice.SpeedFactor > 2.0) {
			errs = append(errs, fmt.Errorf("%s.voice.speed_factor %.2f is out of range [0.5, 2.0]", prefix, ctx.Voice.SpeedFactor))
		}
		if ctx.Voice.PitchShift < -10 || ctx.Voice.PitchShift > 10 {
			errs = append(errs, fmt.Errorf("%s.voice.pitch_shift %.2f is out of range [-10, 10]", prefix, ctx.Voice.PitchShift))
		}
	}

	// Campaigns must reference a known context.
	for i, camp := range cfg.Campaigns {
		prefix := fmt.Sprintf("campaigns[%d]", i)
		if camp.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if _, ok := namesSeen[camp.ContextName]; !ok {
			errs = append(errs, fmt.Errorf("%s.context_name %q does not reference a configured context", prefix, camp.ContextName))
		}
		if camp.MaxConcurrent < 0 {
			errs = append(errs, fmt.Errorf("%s.max_concurrent must be non-negative", prefix))
		}
	}

	// Tool declarations.
	toolNamesSeen := make(map[string]int, len(cfg.Tools.Declarations))
	for i, tool := range cfg.Tools.Declarations {
		prefix := fmt.Sprintf("tools.declarations[%d]", i)
		if tool.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := toolNamesSeen[tool.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of tools.declarations[%d]", prefix, tool.Name, prev))
			}
			toolNamesSeen[tool.Name] = i
		}
		if tool.Phase != "" && !tool.Phase.IsValid() {
			errs = append(errs, fmt.Errorf("%s.phase %q is invalid; valid values: pre_call, in_call, post_call", prefix, tool.Phase))
		}
		if tool.URL != "" && tool.Method == "" {
			errs = append(errs, fmt.Errorf("%s.method is required when url is set", prefix))
		}
		if (tool.MCPServerURL == "") != (tool.MCPToolName == "") {
			errs = append(errs, fmt.Errorf("%s.mcp_server_url and mcp_tool_name must be set together", prefix))
		}
	}

	// History.
	if cfg.History.RetentionDays < 0 {
		errs = append(errs, errors.New("history.retention_days must be non-negative"))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

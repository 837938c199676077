// Package config provides the configuration schema, loader, and provider registry
// for the voxengine telephony voice agent.
package config

// Config is the root configuration structure for voxengine.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Contexts  []ContextConfig `yaml:"contexts"`
	Campaigns []Campaign      `yaml:"campaigns"`
	Tools     ToolsConfig     `yaml:"tools"`
	History   HistoryConfig   `yaml:"history"`
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// ServerConfig holds network and logging settings for the voxengine process.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// AdminBindAddr is the TCP address the health/metrics/admin HTTP surface
	// listens on (e.g., ":9090").
	AdminBindAddr string `yaml:"admin_bind_addr"`

	// AriURL is the base URL of the Asterisk REST Interface (e.g.,
	// "http://localhost:8088/ari").
	AriURL string `yaml:"ari_url"`

	// AriUsername and AriPassword authenticate against the ARI endpoint.
	AriUsername string `yaml:"ari_username"`
	AriPassword string `yaml:"ari_password"`

	// MediaBindHost is the host address the AudioSocket/RTP listeners bind to.
	MediaBindHost string `yaml:"media_bind_host"`

	// DialerDSN is the Postgres connection string backing the outbound
	// dialer's lead/campaign queue (internal/dialer/store). Campaigns are
	// high-write-volume and benefit from a real server rather than an
	// embedded file, unlike call history.
	DialerDSN string `yaml:"dialer_dsn"`
}

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	S2S ProviderEntry `yaml:"s2s"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// ContextConfig describes a named call context: a DID-routed bundle of prompt,
// voice, provider selection, and tool policy applied to calls that land on it.
type ContextConfig struct {
	// Name uniquely identifies this context (used in logs and the admin API).
	Name string `yaml:"name"`

	// DIDs lists the inbound phone numbers that route to this context.
	// An outbound campaign may also reference a context by Name directly.
	DIDs []string `yaml:"dids"`

	// SystemPrompt is injected as the LLM/S2S system instructions for calls in
	// this context.
	SystemPrompt string `yaml:"system_prompt"`

	// GreetingTemplate is rendered and spoken (or injected, for S2S providers)
	// immediately after the call is answered and the provider session handshake
	// completes.
	GreetingTemplate string `yaml:"greeting_template"`

	// ProviderName selects which configured provider entry drives this context's
	// conversation (an S2S entry for the monolithic agent path, or an STT/LLM/TTS
	// triple for the modular pipeline path).
	ProviderName string `yaml:"provider_name"`

	// AudioProfileName selects the wire audio format negotiated with both the
	// PBX media transport and the conversation provider (e.g., "telephony-ulaw-8k").
	AudioProfileName string `yaml:"audio_profile_name"`

	// MediaTransport selects the PBX media adapter this context's calls use:
	// "audiosocket" (TCP, the default) or "rtp" (UDP). Both carry the same
	// AudioProfileName wire format; the choice only affects framing.
	MediaTransport string `yaml:"media_transport"`

	// Voice configures the TTS voice profile used by this context.
	Voice VoiceConfig `yaml:"voice"`

	// PreCallTools, InCallTools, and PostCallTools list tool names (declared in
	// ToolsConfig) permitted during each call phase, in addition to any
	// globally-scoped tools of the same phase unless disabled below.
	PreCallTools  []string `yaml:"pre_call_tools"`
	InCallTools   []string `yaml:"in_call_tools"`
	PostCallTools []string `yaml:"post_call_tools"`

	// DisableGlobalPreCall, DisableGlobalInCall, and DisableGlobalPostCall opt
	// this context out of tools declared without a context restriction.
	DisableGlobalPreCall  bool `yaml:"disable_global_pre_call"`
	DisableGlobalInCall   bool `yaml:"disable_global_in_call"`
	DisableGlobalPostCall bool `yaml:"disable_global_post_call"`
}

// VoiceConfig specifies the TTS voice parameters for a context.
type VoiceConfig struct {
	// Provider is the TTS provider name (e.g., "elevenlabs", "coqui").
	Provider string `yaml:"provider"`

	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// PitchShift adjusts pitch in the range [-10, +10]. 0 means default.
	PitchShift float64 `yaml:"pitch_shift"`

	// SpeedFactor adjusts speaking rate in the range [0.5, 2.0]. 1.0 means default.
	SpeedFactor float64 `yaml:"speed_factor"`
}

// Campaign is an outbound dialing campaign seeded at load time. Once running,
// campaigns are mutated through the admin API, not by editing YAML.
type Campaign struct {
	// Name uniquely identifies the campaign.
	Name string `yaml:"name"`

	// ContextName selects the ContextConfig applied to calls this campaign places.
	ContextName string `yaml:"context_name"`

	// CallerID is the outbound caller ID presented on originated calls.
	CallerID string `yaml:"caller_id"`

	// MaxConcurrent bounds how many calls this campaign may have active at once.
	MaxConcurrent int `yaml:"max_concurrent"`

	// RequireConsent, when true, requires a consent tool/prompt to run before
	// the campaign's primary conversation is allowed to proceed.
	RequireConsent bool `yaml:"require_consent"`

	// VoicemailDropAudio, if set, is played on detected answering machines
	// instead of running the live conversation flow.
	VoicemailDropAudio string `yaml:"voicemail_drop_audio"`

	// DialContext is the dialplan context leads are originated into. It must
	// run the PBX's AMD algorithm and redirect back into the Engine's Stasis
	// application with outbound_amd args before any conversation provider is
	// attached.
	DialContext string `yaml:"dial_context"`

	// MinIntervalMs paces originations: the dialer will not place a new call
	// for this campaign sooner than this many milliseconds after the last.
	MinIntervalMs int `yaml:"min_interval_ms"`

	// LeaseSeconds bounds how long a leased-but-not-yet-dialed lead is held
	// before the recovery sweep returns it to pending.
	LeaseSeconds int `yaml:"lease_seconds"`
}

// ToolsConfig holds the tool declarations available to contexts: built-ins
// referenced by name plus HTTP-backed declarations with templated payloads.
type ToolsConfig struct {
	Declarations []ToolDeclaration `yaml:"declarations"`
}

// ToolPhase restricts when a tool may be invoked during a call.
type ToolPhase string

const (
	ToolPhasePreCall  ToolPhase = "pre_call"
	ToolPhaseInCall   ToolPhase = "in_call"
	ToolPhasePostCall ToolPhase = "post_call"
)

// IsValid reports whether p is one of the recognised tool phases.
func (p ToolPhase) IsValid() bool {
	switch p {
	case ToolPhasePreCall, ToolPhaseInCall, ToolPhasePostCall:
		return true
	default:
		return false
	}
}

// ToolDeclaration describes a single tool available to the Tool Registry.
type ToolDeclaration struct {
	// Name uniquely identifies the tool; built-ins use fixed names
	// (blind_transfer, hangup_call, http_lookup).
	Name string `yaml:"name"`

	// Phase restricts when this tool may be invoked.
	Phase ToolPhase `yaml:"phase"`

	// Description is surfaced to the LLM/S2S provider's tool definition.
	Description string `yaml:"description"`

	// Parameters is the JSON-schema-shaped parameter definition surfaced to
	// the provider.
	Parameters map[string]any `yaml:"parameters"`

	// URL, Method, Headers, and Payload configure an HTTP-backed tool. Unused
	// for built-ins.
	URL     string            `yaml:"url"`
	Method  string            `yaml:"method"`
	Headers map[string]string `yaml:"headers"`
	Payload string            `yaml:"payload"`

	// OutputVariables maps tool response fields to the names under which they
	// are exposed for template substitution (pre-call) or stored verbatim
	// (in-call, when not returning raw JSON to the provider).
	OutputVariables []string `yaml:"output_variables"`

	// TimeoutMs bounds how long this tool may run before being treated as
	// failed. Defaults to 2000ms for pre-call and in-call tools when zero.
	TimeoutMs int `yaml:"timeout_ms"`

	// Idempotent marks a post-call tool as safe to skip on retry once it has
	// already fired successfully for a given call.
	Idempotent bool `yaml:"idempotent"`

	// GenerateSummary is the post-call webhook's summary flag. It is loaded
	// and compared on reload; the engine runs no summarization pass and
	// substitutes no {summary}/{summary_json} placeholder.
	GenerateSummary bool `yaml:"generate_summary"`

	// SummaryMaxWords is the configured word bound for that summary; like
	// GenerateSummary it is loaded and compared on reload only.
	SummaryMaxWords int `yaml:"summary_max_words"`

	// Global, when true, makes this tool available to every context unless a
	// context explicitly disables tools of this phase.
	Global bool `yaml:"global"`

	// MCPServerURL, when set, declares this tool as backed by a remote MCP
	// server over the streamable-HTTP transport instead of a direct HTTP
	// call or a built-in handler. MCPToolName selects which tool on that
	// server's catalogue to invoke. URL/Method/Headers/Payload are unused
	// for MCP-backed tools.
	MCPServerURL string `yaml:"mcp_server_url"`
	MCPToolName  string `yaml:"mcp_tool_name"`
}

// HistoryConfig configures the call history persistence layer.
type HistoryConfig struct {
	// Path is the filesystem path to the SQLite database file.
	Path string `yaml:"path"`

	// RetentionDays is how long call records are kept before the retention
	// sweep deletes them.
	RetentionDays int `yaml:"retention_days"`

	// RetentionCron is the cron expression driving the retention sweep.
	RetentionCron string `yaml:"retention_cron"`
}

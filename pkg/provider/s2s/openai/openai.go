// Package openai implements the s2s.Provider interface for OpenAI's Realtime API.
//
// It establishes a bidirectional WebSocket connection to the OpenAI Realtime
// endpoint and exchanges JSON events according to the Realtime API protocol.
// Audio is transmitted as base64-encoded chunks in the format negotiated via
// SessionConfig.AudioProfile; tool calls are surfaced via the ToolCallHandler
// callback. Mid-session updates (instructions, tools, interruption) are fully
// supported via session.update / response.cancel events.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/corvidlabs/voxcore/pkg/provider/llm"
	"github.com/corvidlabs/voxcore/pkg/provider/s2s"
	"github.com/corvidlabs/voxcore/pkg/provider/tts"
	"github.com/corvidlabs/voxcore/pkg/types"
)

// Compile-time assertions that Provider and session satisfy the s2s interfaces.
var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"

	// handshakeTimeout bounds how long Connect waits for session.updated
	// before failing with a handshake error.
	handshakeTimeout = 5 * time.Second
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the OpenAI Realtime provider.
func (p *Provider) Capabilities() s2s.S2SCapabilities {
	return s2s.S2SCapabilities{
		ContextWindow:        128_000,
		MaxSessionDurationMs: 30 * 60 * 1000,
		SupportsResumption:   false,
		Voices: []tts.VoiceProfile{
			{ID: "alloy", Name: "Alloy", Provider: "openai"},
			{ID: "ash", Name: "Ash", Provider: "openai"},
			{ID: "ballad", Name: "Ballad", Provider: "openai"},
			{ID: "coral", Name: "Coral", Provider: "openai"},
			{ID: "echo", Name: "Echo", Provider: "openai"},
			{ID: "sage", Name: "Sage", Provider: "openai"},
			{ID: "shimmer", Name: "Shimmer", Provider: "openai"},
			{ID: "verse", Name: "Verse", Provider: "openai"},
		},
	}
}

// audioFormatFor maps an audio profile name to the Realtime API's audio
// format identifier. Telephony profiles carry G.711 over the wire so the
// model can consume it without an intermediate PCM16 hop; anything else
// falls back to pcm16.
func audioFormatFor(profile string) string {
	switch profile {
	case "telephony-ulaw-8k":
		return "g711_ulaw"
	case "telephony-alaw-8k":
		return "g711_alaw"
	default:
		return "pcm16"
	}
}

// Connect establishes a new OpenAI Realtime session and blocks until
// session.updated is received or handshakeTimeout elapses.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:     conn,
		audioCh:  make(chan []byte, 64),
		events:   make(chan s2s.Event, 16),
		setupAck: make(chan struct{}),
		ctx:      sessCtx,
		cancel:   sessCancel,
	}

	format := audioFormatFor(cfg.AudioProfile)
	if err := sess.sendSessionUpdate(format, cfg.Voice, cfg.Instructions, cfg.Tools); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	handshakeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	select {
	case <-sess.setupAck:
	case <-handshakeCtx.Done():
		sess.Close()
		return nil, fmt.Errorf("openai: handshake: %w", handshakeCtx.Err())
	}

	if cfg.GreetingText != "" {
		_ = sess.InjectTextContext([]s2s.ContextItem{{Role: "assistant", Content: cfg.GreetingText}})
		_ = sess.writeJSON(map[string]string{"type": "response.create"})
	}

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Voice             string    `json:"voice,omitempty"`
	Instructions      string    `json:"instructions,omitempty"`
	Tools             []oaiTool `json:"tools,omitempty"`
	InputAudioFormat  string    `json:"input_audio_format"`
	OutputAudioFormat string    `json:"output_audio_format"`
}

type oaiTool struct {
	Type        string         `json:"type"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded, format negotiated at session.update
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
	CallID  string             `json:"call_id,omitempty"`
	Output  string             `json:"output,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// serverErrorDetail represents the nested error object in an OpenAI Realtime
// error event: {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type string `json:"type"`

	// response.audio.delta / response.audio_transcript.delta /
	// conversation.item.input_audio_transcription.completed (field name differs)
	Delta string `json:"delta,omitempty"`

	// conversation.item.input_audio_transcription.completed
	Transcript string `json:"transcript,omitempty"`

	// response.function_call_arguments.done
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	CallID    string `json:"call_id,omitempty"`

	// error event
	Error *serverErrorDetail `json:"error,omitempty"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn        *websocket.Conn
	audioCh     chan []byte
	events      chan s2s.Event
	toolHandler s2s.ToolCallHandler

	mu        sync.Mutex
	errVal    error
	closed    bool
	setupAck  chan struct{}
	setupOnce sync.Once

	// currentTxText accumulates response.audio_transcript.delta events until
	// response.audio_transcript.done is received.
	currentTxText string

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// sendSessionUpdate sends a session.update event to configure voice, instructions,
// tools and audio formats.
func (s *session) sendSessionUpdate(format string, voice tts.VoiceProfile, instructions string, tools []llm.ToolDefinition) error {
	params := sessionParams{
		InputAudioFormat:  format,
		OutputAudioFormat: format,
	}
	if voice.ID != "" {
		params.Voice = voice.ID
	}
	if instructions != "" {
		params.Instructions = instructions
	}
	if len(tools) > 0 {
		params.Tools = toOAITools(tools)
	}
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads events from the WebSocket and dispatches them.
// It owns audioCh and events: it closes both when it exits.
func (s *session) receiveLoop() {
	defer s.closeChannels()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.setErr(err)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			continue
		}

		s.handleServerEvent(&evt)
	}
}

func (s *session) emit(ev s2s.Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *session) handleServerEvent(evt *serverEvent) {
	switch evt.Type {
	case "session.updated":
		s.setupOnce.Do(func() { close(s.setupAck) })

	case "input_audio_buffer.speech_started":
		s.emit(s2s.Event{Type: s2s.EventUserStartedSpeaking})

	case "response.audio.delta":
		if evt.Delta == "" {
			return
		}
		audioData, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil || len(audioData) == 0 {
			return
		}
		select {
		case s.audioCh <- audioData:
		case <-s.ctx.Done():
		}

	case "response.audio.done":
		s.emit(s2s.Event{Type: s2s.EventAgentAudioDone})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return
		}
		s.mu.Lock()
		s.currentTxText += evt.Delta
		s.mu.Unlock()

	case "response.audio_transcript.done":
		s.mu.Lock()
		s.currentTxText = ""
		s.mu.Unlock()

	case "conversation.item.input_audio_transcription.completed":
		if evt.Transcript == "" {
			return
		}
		s.emit(s2s.Event{
			Type:       s2s.EventUserTranscript,
			Transcript: types.Transcript{Text: evt.Transcript, IsFinal: true},
		})

	case "response.function_call_arguments.done":
		s.handleFunctionCall(evt)

	case "response.done":
		s.emit(s2s.Event{Type: s2s.EventTurnComplete})

	case "error":
		s.handleErrorEvent(evt)
	}
}

func (s *session) handleErrorEvent(evt *serverEvent) {
	msg := "unknown error"
	if evt.Error != nil && evt.Error.Message != "" {
		msg = evt.Error.Message
	}
	s.emit(s2s.Event{Type: s2s.EventError, Err: fmt.Errorf("openai: %s", msg)})
}

func (s *session) handleFunctionCall(evt *serverEvent) {
	s.mu.Lock()
	handler := s.toolHandler
	s.mu.Unlock()

	req := s2s.ToolCallRequest{ID: evt.CallID, Name: evt.Name, Args: evt.Arguments}
	s.emit(s2s.Event{Type: s2s.EventFunctionCallRequest, ToolCall: req})

	if handler == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(s.ctx, s2s.ToolCallDeadline)
	result, callErr := handler(callCtx, req)
	cancel()
	if callErr != nil {
		result = fmt.Sprintf(`{"error": %q}`, callErr.Error())
	}

	// Return tool result and trigger the next model response.
	_ = s.writeJSON(createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:   "function_call_output",
			CallID: evt.CallID,
			Output: result,
		},
	})
	_ = s.writeJSON(map[string]string{"type": "response.create"})
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeChannels() {
	s.closeOnce.Do(func() {
		close(s.audioCh)
		close(s.events)
	})
}

// toOAITools converts llm.ToolDefinition slice to OpenAI Realtime tool format.
func toOAITools(tools []llm.ToolDefinition) []oaiTool {
	out := make([]oaiTool, len(tools))
	for i, t := range tools {
		out[i] = oaiTool{
			Type:        "function",
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters,
		}
	}
	return out
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio delivers a raw audio chunk, encoded per the negotiated audio
// format, to the model. No explicit input_audio_buffer.commit is sent: the
// session relies on the Realtime API's server-side VAD (turn_detection) to
// segment caller turns.
func (s *session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	encoded := base64.StdEncoding.EncodeToString(chunk)
	return s.writeJSON(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: encoded,
	})
}

// Audio returns the channel on which the model's synthesised audio arrives.
func (s *session) Audio() <-chan []byte { return s.audioCh }

// Events returns the channel on which session lifecycle events arrive.
func (s *session) Events() <-chan s2s.Event { return s.events }

// Err returns the first non-nil error that caused the session to terminate.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// OnToolCall registers a callback for tool invocations from the model.
func (s *session) OnToolCall(handler s2s.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolHandler = handler
}

// SetTools replaces the active tools by sending a session.update event.
func (s *session) SetTools(tools []llm.ToolDefinition) error {
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: sessionParams{
		Tools:             toOAITools(tools),
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}})
}

// UpdateInstructions replaces the system instructions by sending a session.update
// event.
func (s *session) UpdateInstructions(instructions string) error {
	return s.writeJSON(sessionUpdateMessage{Type: "session.update", Session: sessionParams{
		Instructions:      instructions,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}})
}

// InjectTextContext inserts ContextItems as conversation.item.create events.
func (s *session) InjectTextContext(items []s2s.ContextItem) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("openai: session closed")
	}
	s.mu.Unlock()

	for _, item := range items {
		role := item.Role
		switch role {
		case "assistant", "system":
			// keep as-is
		default:
			role = "user"
		}

		partType := "input_text"
		if role == "assistant" {
			partType = "text"
		}

		msg := createConversationItemMessage{
			Type: "conversation.item.create",
			Item: conversationItem{
				Type: "message",
				Role: role,
				Content: []conversationPart{
					{Type: partType, Text: item.Content},
				},
			},
		}
		if err := s.writeJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

// Interrupt sends a response.cancel event to stop the current model response.
func (s *session) Interrupt() error {
	return s.writeJSON(map[string]string{"type": "response.cancel"})
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

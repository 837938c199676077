package s2s

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corvidlabs/voxcore/internal/session"
	"github.com/corvidlabs/voxcore/internal/tools"
	providers2s "github.com/corvidlabs/voxcore/pkg/provider/s2s"
	s2smock "github.com/corvidlabs/voxcore/pkg/provider/s2s/mock"
	"github.com/corvidlabs/voxcore/pkg/types"
)

type recordingSink struct {
	startedSpeaking int
	transcripts     []string
	finalFlags      []bool
	audioDone       int
	turnComplete    int
	errs            []error
	closedErr       error
	closedCh        chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{closedCh: make(chan struct{})}
}

func (s *recordingSink) OnUserStartedSpeaking() { s.startedSpeaking++ }
func (s *recordingSink) OnUserTranscript(t string, isFinal bool) {
	s.transcripts = append(s.transcripts, t)
	s.finalFlags = append(s.finalFlags, isFinal)
}
func (s *recordingSink) OnAgentAudioDone()         { s.audioDone++ }
func (s *recordingSink) OnTurnComplete()           { s.turnComplete++ }
func (s *recordingSink) OnProviderError(err error) { s.errs = append(s.errs, err) }
func (s *recordingSink) OnClosed(err error) {
	s.closedErr = err
	close(s.closedCh)
}

func newRegistryWithTool(t *testing.T, name string, handler tools.Handler) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	if err := r.Register(tools.Definition{
		ToolDefinition: types.ToolDefinition{Name: name},
		Phases:         []tools.Phase{tools.PhaseInCall},
		Handler:        handler,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func TestEngine_StartWiresToolHandlerAndOpensSession(t *testing.T) {
	sess := &s2smock.Session{AudioCh: make(chan []byte, 4), EventsCh: make(chan providers2s.Event, 4)}
	provider := &s2smock.Provider{Session: sess}
	registry := newRegistryWithTool(t, "noop", func(ctx context.Context, args string) (string, error) { return `{}`, nil })
	cs := session.New("call-1", "+1000", "+2000", "default", session.DirectionInbound)

	e := New(provider, registry, cs, nil, Config{})
	sink := newRecordingSink()
	if err := e.Start(context.Background(), providers2s.SessionConfig{}, sink); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.OnToolCallSetCount != 1 {
		t.Fatalf("expected OnToolCall to be registered once, got %d", sess.OnToolCallSetCount)
	}
	close(sess.AudioCh)
	close(sess.EventsCh)
	<-sink.closedCh
}

func TestEngine_StartSecondTimeErrors(t *testing.T) {
	sess := &s2smock.Session{AudioCh: make(chan []byte), EventsCh: make(chan providers2s.Event)}
	provider := &s2smock.Provider{Session: sess}
	registry := tools.NewRegistry()
	e := New(provider, registry, nil, nil, Config{})
	sink := newRecordingSink()
	if err := e.Start(context.Background(), providers2s.SessionConfig{}, sink); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := e.Start(context.Background(), providers2s.SessionConfig{}, sink); err == nil {
		t.Fatalf("expected second Start to error")
	}
	close(sess.AudioCh)
	close(sess.EventsCh)
}

func TestEngine_StartWrapsConnectErrorAsHandshakeFailure(t *testing.T) {
	provider := &s2smock.Provider{ConnectErr: errors.New("boom")}
	e := New(provider, tools.NewRegistry(), nil, nil, Config{})
	err := e.Start(context.Background(), providers2s.SessionConfig{}, newRecordingSink())
	if !errors.Is(err, ErrProviderHandshakeFailed) {
		t.Fatalf("expected ErrProviderHandshakeFailed, got %v", err)
	}
}

func TestEngine_ToolCallExecutesAndRecordsOnCallSession(t *testing.T) {
	sess := &s2smock.Session{AudioCh: make(chan []byte, 1), EventsCh: make(chan providers2s.Event, 1)}
	provider := &s2smock.Provider{Session: sess}
	called := false
	registry := newRegistryWithTool(t, "lookup", func(ctx context.Context, args string) (string, error) {
		called = true
		return `{"answer":"42"}`, nil
	})
	cs := session.New("call-2", "+1000", "+2000", "default", session.DirectionInbound)

	e := New(provider, registry, cs, nil, Config{})
	if err := e.Start(context.Background(), providers2s.SessionConfig{}, newRecordingSink()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	handler := sess.Handler()
	if handler == nil {
		t.Fatalf("expected a tool handler to be registered")
	}
	result, err := handler(context.Background(), providers2s.ToolCallRequest{ID: "x1", Name: "lookup", Args: `{"q":"life"}`})
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if !called {
		t.Fatalf("expected the registered tool handler to run")
	}
	if result != `{"answer":"42"}` {
		t.Fatalf("unexpected result: %q", result)
	}

	snap := cs.Snapshot(time.Now(), "test-provider", nil, "", "", "")
	if len(snap.ToolCalls) != 1 || snap.ToolCalls[0].Name != "lookup" {
		t.Fatalf("expected one recorded tool call, got %+v", snap.ToolCalls)
	}
}

func TestEngine_ToolCallDeniedWhenNotInAllowlist(t *testing.T) {
	sess := &s2smock.Session{AudioCh: make(chan []byte, 1), EventsCh: make(chan providers2s.Event, 1)}
	provider := &s2smock.Provider{Session: sess}
	ran := false
	registry := newRegistryWithTool(t, "dangerous", func(ctx context.Context, args string) (string, error) {
		ran = true
		return `{}`, nil
	})

	e := New(provider, registry, nil, []string{"safe_tool"}, Config{})
	if err := e.Start(context.Background(), providers2s.SessionConfig{}, newRecordingSink()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	handler := sess.Handler()
	_, err := handler(context.Background(), providers2s.ToolCallRequest{Name: "dangerous", Args: `{}`})
	if err == nil {
		t.Fatalf("expected an error for a tool outside the allowlist")
	}
	if ran {
		t.Fatalf("tool handler must not run when the tool is not allowed")
	}
}

func TestEngine_PumpEventsForwardsToSink(t *testing.T) {
	sess := &s2smock.Session{AudioCh: make(chan []byte, 1), EventsCh: make(chan providers2s.Event, 8)}
	provider := &s2smock.Provider{Session: sess}
	cs := session.New("call-3", "+1000", "+2000", "default", session.DirectionInbound)
	e := New(provider, tools.NewRegistry(), cs, nil, Config{})
	sink := newRecordingSink()
	if err := e.Start(context.Background(), providers2s.SessionConfig{}, sink); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.EventsCh <- providers2s.Event{Type: providers2s.EventUserStartedSpeaking}
	sess.EventsCh <- providers2s.Event{Type: providers2s.EventUserTranscript, Transcript: types.Transcript{Text: "hello", IsFinal: true}}
	sess.EventsCh <- providers2s.Event{Type: providers2s.EventAgentAudioDone}
	sess.EventsCh <- providers2s.Event{Type: providers2s.EventTurnComplete}
	sess.EventsCh <- providers2s.Event{Type: providers2s.EventError, Err: errors.New("transient")}
	close(sess.EventsCh)
	close(sess.AudioCh)

	<-sink.closedCh

	if sink.startedSpeaking != 1 {
		t.Fatalf("expected 1 OnUserStartedSpeaking, got %d", sink.startedSpeaking)
	}
	if len(sink.transcripts) != 1 || sink.transcripts[0] != "hello" {
		t.Fatalf("unexpected transcripts: %v", sink.transcripts)
	}
	if sink.audioDone != 1 || sink.turnComplete != 1 {
		t.Fatalf("expected one audioDone and one turnComplete, got %d/%d", sink.audioDone, sink.turnComplete)
	}
	if len(sink.errs) != 1 {
		t.Fatalf("expected one provider error forwarded, got %d", len(sink.errs))
	}

	snap := cs.Snapshot(time.Now(), "test-provider", nil, "", "", "")
	if len(snap.ConversationHistory) != 1 || snap.ConversationHistory[0].Content != "hello" {
		t.Fatalf("expected the final transcript appended to history, got %+v", snap.ConversationHistory)
	}
}

func TestEngine_CloseIsIdempotentAndClosesSession(t *testing.T) {
	sess := &s2smock.Session{AudioCh: make(chan []byte), EventsCh: make(chan providers2s.Event)}
	provider := &s2smock.Provider{Session: sess}
	e := New(provider, tools.NewRegistry(), nil, nil, Config{})
	if err := e.Start(context.Background(), providers2s.SessionConfig{}, newRecordingSink()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(sess.AudioCh)
	close(sess.EventsCh)

	if err := e.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
	if sess.CloseCallCount != 1 {
		t.Fatalf("expected exactly one underlying Close call, got %d", sess.CloseCallCount)
	}
}

func TestEngine_SendAudioBeforeStartReturnsErrNotStarted(t *testing.T) {
	e := New(&s2smock.Provider{}, tools.NewRegistry(), nil, nil, Config{})
	if err := e.SendAudio([]byte("x")); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}

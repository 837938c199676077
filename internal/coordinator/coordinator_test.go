package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/corvidlabs/voxcore/internal/gating"
	"github.com/corvidlabs/voxcore/internal/playback"
	"github.com/corvidlabs/voxcore/internal/session"
	vadmock "github.com/corvidlabs/voxcore/pkg/provider/vad/mock"
)

func newTestGate() *gating.Gate {
	return gating.New(gating.Config{Policy: gating.PolicyLocalGate}, &vadmock.Session{}, func(string) {}, nil)
}

func TestCoordinator_MarkUserAudioFrameTransitionsToUserSpeaking(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	c := New(cs, nil, nil, nil, "test", nil)
	c.MarkUserAudioFrame()
	if c.State() != StateUserSpeaking {
		t.Fatalf("state = %v, want StateUserSpeaking", c.State())
	}
}

func TestCoordinator_FinalTranscriptTransitionsToProviderThinking(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	c := New(cs, nil, nil, nil, "test", nil)
	c.MarkUserAudioFrame()
	c.OnUserTranscript("partial", false)
	if c.State() != StateUserSpeaking {
		t.Fatalf("interim transcript must not change state, got %v", c.State())
	}
	c.OnUserTranscript("final text", true)
	if c.State() != StateProviderThinking {
		t.Fatalf("state = %v, want StateProviderThinking", c.State())
	}
}

func TestCoordinator_StartAgentAudioRecordsTurnLatency(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	c := New(cs, nil, nil, nil, "test", nil)
	c.MarkUserAudioFrame()
	time.Sleep(2 * time.Millisecond)
	c.StartAgentAudio()

	if c.State() != StateProviderSpeaking {
		t.Fatalf("state = %v, want StateProviderSpeaking", c.State())
	}
	snap := cs.Snapshot(time.Now(), "test", nil, "", "", "")
	if snap.TotalTurns != 1 {
		t.Fatalf("expected one recorded turn latency sample, got TotalTurns=%d", snap.TotalTurns)
	}
	if snap.AvgTurnLatencyMs <= 0 {
		t.Fatalf("expected a positive AvgTurnLatencyMs, got %f", snap.AvgTurnLatencyMs)
	}
}

func TestCoordinator_StartAgentAudioWithoutArmedLatencySkipsRecording(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	c := New(cs, nil, nil, nil, "test", nil)
	c.StartAgentAudio()
	snap := cs.Snapshot(time.Now(), "test", nil, "", "", "")
	if snap.TotalTurns != 0 {
		t.Fatalf("expected no turn latency sample without a preceding user audio frame, got %d", snap.TotalTurns)
	}
}

func TestCoordinator_OnTurnCompleteReturnsToIdle(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	c := New(cs, nil, nil, nil, "test", nil)
	c.MarkUserAudioFrame()
	c.OnTurnComplete()
	if c.State() != StateIdle {
		t.Fatalf("state = %v, want StateIdle", c.State())
	}
}

func TestCoordinator_HangupPendingFiresOnAgentAudioDone(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	var mu sync.Mutex
	var firedCallID, firedReason string
	hangupFn := func(ctx context.Context, callID, reason string) error {
		mu.Lock()
		defer mu.Unlock()
		firedCallID, firedReason = callID, reason
		return nil
	}
	c := New(cs, nil, nil, nil, "test", hangupFn)
	c.MarkHangupPending("c1")
	c.OnAgentAudioDone()

	mu.Lock()
	defer mu.Unlock()
	if firedCallID != "c1" || firedReason != "hangup_call" {
		t.Fatalf("hangupFn not invoked correctly: callID=%q reason=%q", firedCallID, firedReason)
	}
}

func TestCoordinator_NoHangupFnDoesNotPanicWhenPending(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	c := New(cs, nil, nil, nil, "test", nil)
	c.MarkHangupPending("c1")
	c.OnAgentAudioDone()
}

func TestCoordinator_OnClosedSetsErrorOutcomeOnlyWhenInProgress(t *testing.T) {
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	c := New(cs, nil, nil, nil, "test", nil)
	c.OnClosed(nil)
	if cs.Outcome() != session.OutcomeInProgress {
		t.Fatalf("a clean close must not change outcome, got %v", cs.Outcome())
	}

	c.OnClosed(context.DeadlineExceeded)
	if cs.Outcome() != session.OutcomeError {
		t.Fatalf("outcome = %v, want OutcomeError", cs.Outcome())
	}

	cs.SetOutcome(session.OutcomeCompleted)
	c.OnClosed(context.DeadlineExceeded)
	if cs.Outcome() != session.OutcomeCompleted {
		t.Fatalf("OnClosed must not override an already-terminal outcome, got %v", cs.Outcome())
	}
}

func TestCoordinator_PumpEgressAudioPushesFramesAndStops(t *testing.T) {
	mgr := playback.NewManager(playback.Config{}, nil)
	cs := session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)
	gate := newTestGate()

	var emitted [][]byte
	var emitMu sync.Mutex
	playbackID := mgr.Start(context.Background(), "c1", func(frame []byte) error {
		emitMu.Lock()
		emitted = append(emitted, frame)
		emitMu.Unlock()
		return nil
	})

	c := New(cs, gate, mgr, nil, "test", nil)
	c.SetPlaybackID(playbackID)
	c.MarkUserAudioFrame()

	audioCh := make(chan []byte, 4)
	audioCh <- make([]byte, 640)
	audioCh <- make([]byte, 640)
	close(audioCh)

	if err := c.PumpEgressAudio(context.Background(), audioCh); err != nil {
		t.Fatalf("PumpEgressAudio: %v", err)
	}
	if c.State() != StateProviderSpeaking {
		t.Fatalf("state after pump should remain ProviderSpeaking until OnTurnComplete, got %v", c.State())
	}
	_ = mgr.Stop(playbackID, "test_done")
}

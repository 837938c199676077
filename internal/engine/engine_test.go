package engine

import (
	"context"
	"testing"
	"time"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/session"
)

func TestWaitForChannelEntry_ReturnsOnceOnChannelEnteredSignalsIt(t *testing.T) {
	e := New(Deps{AppName: "voxengine"})

	done := make(chan error, 1)
	go func() { done <- e.waitForChannelEntry(context.Background(), "chan-1") }()

	// Give the waiter goroutine a chance to register itself before firing
	// the event that satisfies it.
	time.Sleep(5 * time.Millisecond)
	e.onChannelEntered(context.Background(), ari.Event{Type: ari.EventChannelEnteredApplication, Channel: &ari.Channel{ID: "chan-1"}})

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("waitForChannelEntry: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waitForChannelEntry never returned")
	}
}

func TestWaitForChannelEntry_ContextCancelReturnsError(t *testing.T) {
	e := New(Deps{AppName: "voxengine"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.waitForChannelEntry(ctx, "chan-1"); err == nil {
		t.Fatalf("expected an error for an already-cancelled context")
	}
}

func TestOnChannelEntered_KnownWaiterDoesNotStartANewCall(t *testing.T) {
	e := New(Deps{AppName: "voxengine"})
	e.mu.Lock()
	e.channelWaiters["chan-1"] = make(chan struct{})
	e.mu.Unlock()

	e.onChannelEntered(context.Background(), ari.Event{Type: ari.EventChannelEnteredApplication, Channel: &ari.Channel{ID: "chan-1"}})

	e.mu.Lock()
	_, stillWaiting := e.channelWaiters["chan-1"]
	_, becameActive := e.active["chan-1"]
	e.mu.Unlock()
	if stillWaiting {
		t.Fatalf("expected the waiter to be cleared once satisfied")
	}
	if becameActive {
		t.Fatalf("a satisfied transfer/outbound waiter must not also spawn an inbound call")
	}
}

func TestOnChannelGone_MarksActiveCallHungUp(t *testing.T) {
	e := New(Deps{AppName: "voxengine"})
	call := &activeCall{hangupCh: make(chan struct{})}
	e.mu.Lock()
	e.active["chan-1"] = call
	e.mu.Unlock()

	e.onChannelGone(ari.Event{Type: ari.EventChannelDestroyed, Channel: &ari.Channel{ID: "chan-1"}})

	select {
	case <-call.hangupCh:
	default:
		t.Fatalf("expected hangupCh to be closed")
	}
}

func TestAnyCallHangupGate_NoCoordinatorYetFallsBackToDirectHangup(t *testing.T) {
	e := New(Deps{AppName: "voxengine"})
	call := &activeCall{hangupCh: make(chan struct{}), callSession: session.New("c1", "+1", "+2", "ctx", session.DirectionInbound)}
	e.mu.Lock()
	e.active["c1"] = call
	e.mu.Unlock()

	anyCallHangupGate{e}.MarkHangupPending("c1")

	select {
	case <-call.hangupCh:
	default:
		t.Fatalf("expected a direct hangup when the call has no coordinator yet")
	}
}

func TestAnyCallHangupGate_UnknownCallIsANoop(t *testing.T) {
	e := New(Deps{AppName: "voxengine"})
	// Must not panic for a call ID the engine never registered.
	anyCallHangupGate{e}.MarkHangupPending("does-not-exist")
}

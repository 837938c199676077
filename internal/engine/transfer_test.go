package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/session"
)

func newTestARIClient(t *testing.T, handler http.HandlerFunc) *ari.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return ari.NewClient(srv.URL, "asterisk", "secret", "voxengine")
}

func TestOriginateTransfer_BridgesCallerWithTargetAndDropsOldBridge(t *testing.T) {
	var bridgesCreated, bridgesDestroyed atomic.Int32
	var destroyedIDs []string

	client := newTestARIClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/channels":
			_ = json.NewEncoder(w).Encode(ari.Channel{ID: "target-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/bridges":
			bridgesCreated.Add(1)
			_ = json.NewEncoder(w).Encode(ari.Bridge{ID: "bridge-new"})
		case r.Method == http.MethodDelete && r.URL.Path == "/bridges/bridge-old":
			bridgesDestroyed.Add(1)
			destroyedIDs = append(destroyedIDs, "bridge-old")
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	call := &activeCall{
		callerChannelID: "caller-1",
		mediaChannelID:  "media-1",
		bridgeID:        "bridge-old",
		hangupCh:        make(chan struct{}),
		callSession:     session.New("c1", "+1", "+2", "ctx", session.DirectionInbound),
	}
	lookup := func(id string) (*activeCall, bool) {
		if id == "c1" {
			return call, true
		}
		return nil, false
	}
	waitForChannel := func(ctx context.Context, channelID string) error { return nil }

	tc := newTransferClient(client, "voxengine", lookup, waitForChannel)
	if err := tc.OriginateTransfer(context.Background(), "c1", "PJSIP/6000@trunk", "6000"); err != nil {
		t.Fatalf("OriginateTransfer: %v", err)
	}

	if bridgesCreated.Load() != 1 {
		t.Fatalf("expected exactly one new bridge, got %d", bridgesCreated.Load())
	}
	if bridgesDestroyed.Load() != 1 || destroyedIDs[0] != "bridge-old" {
		t.Fatalf("expected the old bridge to be destroyed, got %v", destroyedIDs)
	}

	call.mu.Lock()
	defer call.mu.Unlock()
	if call.bridgeID != "bridge-new" {
		t.Fatalf("bridgeID = %q, want bridge-new", call.bridgeID)
	}
	if call.mediaChannelID != "" {
		t.Fatalf("expected mediaChannelID to be cleared once the AI media channel is hung up")
	}
	if call.transferTarget != "PJSIP/6000@trunk" {
		t.Fatalf("transferTarget = %q, want the dial string", call.transferTarget)
	}
	if call.callSession.Outcome() != session.OutcomeTransferred {
		t.Fatalf("outcome = %v, want OutcomeTransferred", call.callSession.Outcome())
	}
	select {
	case <-call.hangupCh:
	default:
		t.Fatalf("expected the call to be marked hung up once control passes to the transferred channel")
	}
}

func TestOriginateTransfer_UnknownCallIDErrors(t *testing.T) {
	client := newTestARIClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	lookup := func(id string) (*activeCall, bool) { return nil, false }
	tc := newTransferClient(client, "voxengine", lookup, func(context.Context, string) error { return nil })

	if err := tc.OriginateTransfer(context.Background(), "missing", "PJSIP/6000@trunk", "6000"); err == nil {
		t.Fatalf("expected an error for an unknown call ID")
	}
}

func TestOriginateTransfer_TargetNeverJoiningHangsItUpAndErrors(t *testing.T) {
	var hungUpTarget bool
	client := newTestARIClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/channels":
			_ = json.NewEncoder(w).Encode(ari.Channel{ID: "target-1"})
		case r.Method == http.MethodDelete && r.URL.Path == "/channels/target-1":
			hungUpTarget = true
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	})

	call := &activeCall{callerChannelID: "caller-1", hangupCh: make(chan struct{})}
	lookup := func(id string) (*activeCall, bool) { return call, true }
	waitErr := func(ctx context.Context, channelID string) error { return context.DeadlineExceeded }

	tc := newTransferClient(client, "voxengine", lookup, waitErr)
	if err := tc.OriginateTransfer(context.Background(), "c1", "PJSIP/6000@trunk", "6000"); err == nil {
		t.Fatalf("expected an error when the target never joins the application")
	}
	if !hungUpTarget {
		t.Fatalf("expected the never-answered target channel to be hung up")
	}
}

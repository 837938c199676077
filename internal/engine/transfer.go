package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/session"
)

// ariTransferClient adapts internal/ari's bridge/originate primitives into
// tools.TransferClient. It holds no state of its own; it looks the caller's
// current channel/bridge identifiers up through the engine's active-call
// table at the moment a transfer is requested.
type ariTransferClient struct {
	ariClient      *ari.Client
	appName        string
	lookup         func(callID string) (*activeCall, bool)
	waitForChannel func(ctx context.Context, channelID string) error
}

func newTransferClient(ariClient *ari.Client, appName string, lookup func(string) (*activeCall, bool), waitForChannel func(context.Context, string) error) *ariTransferClient {
	return &ariTransferClient{ariClient: ariClient, appName: appName, lookup: lookup, waitForChannel: waitForChannel}
}

// OriginateTransfer implements tools.TransferClient. It dials dialString
// presented as virtualExtension, waits for the new channel to join this
// engine's Stasis application, bridges it with the caller, and removes the
// AI media channel from the bridge — all without ever routing through an
// intermediate local channel, per the interface's contract.
func (t *ariTransferClient) OriginateTransfer(ctx context.Context, callID, dialString, virtualExtension string) error {
	call, ok := t.lookup(callID)
	if !ok {
		return fmt.Errorf("engine: transfer: no active call %q", callID)
	}

	target, err := t.ariClient.OriginateChannel(ctx, ari.OriginateRequest{
		Endpoint:       dialString,
		App:            t.appName,
		CallerID:       virtualExtension,
		TimeoutSeconds: 30,
	})
	if err != nil {
		return fmt.Errorf("engine: transfer: originate %q: %w", dialString, err)
	}

	if err := t.waitForChannel(ctx, target.ID); err != nil {
		_ = t.ariClient.HangupChannel(ctx, target.ID, "normal")
		return fmt.Errorf("engine: transfer: target never joined application: %w", err)
	}

	bridge, err := t.ariClient.CreateBridge(ctx, "mixing")
	if err != nil {
		return fmt.Errorf("engine: transfer: create bridge: %w", err)
	}

	call.mu.Lock()
	callerChannelID := call.callerChannelID
	mediaChannelID := call.mediaChannelID
	oldBridgeID := call.bridgeID
	call.mu.Unlock()

	if err := t.ariClient.AddChannelToBridge(ctx, bridge.ID, callerChannelID); err != nil {
		return fmt.Errorf("engine: transfer: add caller channel: %w", err)
	}
	if err := t.ariClient.AddChannelToBridge(ctx, bridge.ID, target.ID); err != nil {
		return fmt.Errorf("engine: transfer: add target channel: %w", err)
	}

	if mediaChannelID != "" && oldBridgeID != "" {
		if err := t.ariClient.RemoveChannelFromBridge(ctx, oldBridgeID, mediaChannelID); err != nil {
			slog.Warn("engine: transfer: remove ai media channel from old bridge", "call_id", callID, "error", err)
		}
		if err := t.ariClient.HangupChannel(ctx, mediaChannelID, "normal"); err != nil {
			slog.Warn("engine: transfer: hang up ai media channel", "call_id", callID, "error", err)
		}
	}
	if oldBridgeID != "" {
		if err := t.ariClient.DestroyBridge(ctx, oldBridgeID); err != nil {
			slog.Warn("engine: transfer: destroy old bridge", "call_id", callID, "error", err)
		}
	}

	call.mu.Lock()
	call.bridgeID = bridge.ID
	call.mediaChannelID = ""
	call.transferTarget = dialString
	call.mu.Unlock()

	if call.callSession != nil {
		call.callSession.SetOutcome(session.OutcomeTransferred)
	}
	// The caller now talks directly to the transferred-to channel; this
	// engine has no further part to play on the call.
	call.markHungUp()

	return nil
}

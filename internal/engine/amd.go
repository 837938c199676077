package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/internal/session"
)

// amdPlaybackTimeout bounds how long the engine waits for a voicemail-drop
// announcement to finish before giving up and hanging the channel up anyway.
const amdPlaybackTimeout = 2 * time.Minute

// AMDAttemptOutcome is the terminal disposition the engine reports back to
// the Outbound Dialer once an outbound_amd leg has been resolved one way or
// another. It mirrors the subset of session.Outcome values an AMD branch can
// reach without ever attaching a conversation provider.
type AMDAttemptOutcome struct {
	Outcome      session.Outcome
	ConsentDigit string
	Error        error
}

// AMDOutcomeRecorder is the narrow view of the Outbound Dialer the Call
// Engine needs to close the loop on an outbound_amd re-entry: it must learn
// which campaign and destination number an attempt_id belongs to, and it
// must report back how the attempt ended so the dialer can update lead
// state and campaign pacing. Declaring this interface here (rather than
// depending on internal/dialer directly) keeps internal/dialer, which
// imports internal/engine for AMDAttemptOutcome, from forming an import cycle —
// the same narrow-interface-at-the-consumer shape as CallRecorder.
type AMDOutcomeRecorder interface {
	ResolveAttempt(attemptID string) (campaign config.Campaign, calledNumber string, ok bool)
	RecordAttemptOutcome(attemptID string, outcome AMDAttemptOutcome)
}

// handleOutboundAMD processes a StasisStart whose Stasis args mark it as a
// dialplan hop back from the PBX's AMD algorithm, per the args layout
// (outbound_amd, attempt_id, status, cause, consent_digit?, consent_reason?).
// It never treats this channel as a fresh inbound call: the channel already
// exists, is already answered, and its disposition is resolved here and
// here alone.
func (e *CallEngine) handleOutboundAMD(ctx context.Context, evt ari.Event) {
	channelID := evt.ChannelID()
	args := evt.Args
	if channelID == "" || len(args) < 3 {
		slog.Warn("engine: outbound_amd re-entry with malformed args", "channel_id", channelID, "args", args)
		if channelID != "" {
			_ = e.ariClient.HangupChannel(ctx, channelID, "normal")
		}
		return
	}

	attemptID, status, cause := args[1], args[2], ""
	if len(args) > 3 {
		cause = args[3]
	}
	consentDigit := ""
	if len(args) > 4 {
		consentDigit = args[4]
	}

	if e.amdRecorder == nil {
		slog.Error("engine: outbound_amd re-entry with no dialer wired", "channel_id", channelID, "attempt_id", attemptID)
		_ = e.ariClient.HangupChannel(ctx, channelID, "normal")
		return
	}

	campaign, calledNumber, ok := e.amdRecorder.ResolveAttempt(attemptID)
	if !ok {
		slog.Warn("engine: outbound_amd re-entry for unknown attempt", "channel_id", channelID, "attempt_id", attemptID)
		_ = e.ariClient.HangupChannel(ctx, channelID, "normal")
		return
	}

	channel := ari.Channel{ID: channelID}
	if evt.Channel != nil {
		channel = *evt.Channel
	}

	switch status {
	case "HUMAN":
		e.handleAMDHuman(ctx, channel, campaign, calledNumber, attemptID, consentDigit)
	case "MACHINE", "NOTSURE":
		e.handleAMDMachine(ctx, channel, campaign, attemptID, cause)
	default:
		slog.Warn("engine: outbound_amd re-entry with unrecognised status", "channel_id", channelID, "attempt_id", attemptID, "status", status)
		_ = e.ariClient.HangupChannel(ctx, channelID, "normal")
		e.amdRecorder.RecordAttemptOutcome(attemptID, AMDAttemptOutcome{
			Outcome: session.OutcomeError,
			Error:   fmt.Errorf("engine: unrecognised amd status %q", status),
		})
	}
}

func (e *CallEngine) handleAMDHuman(ctx context.Context, channel ari.Channel, campaign config.Campaign, calledNumber, attemptID, consentDigit string) {
	if !campaign.RequireConsent {
		e.attachAMDCall(ctx, channel, campaign, calledNumber, attemptID, "")
		return
	}

	switch consentDigit {
	case "1":
		e.attachAMDCall(ctx, channel, campaign, calledNumber, attemptID, consentDigit)
	case "2":
		_ = e.ariClient.HangupChannel(ctx, channel.ID, "normal")
		e.amdRecorder.RecordAttemptOutcome(attemptID, AMDAttemptOutcome{Outcome: session.OutcomeConsentDenied, ConsentDigit: consentDigit})
	default:
		_ = e.ariClient.HangupChannel(ctx, channel.ID, "normal")
		e.amdRecorder.RecordAttemptOutcome(attemptID, AMDAttemptOutcome{Outcome: session.OutcomeConsentTimeout})
	}
}

func (e *CallEngine) attachAMDCall(ctx context.Context, channel ari.Channel, campaign config.Campaign, calledNumber, attemptID, consentDigit string) {
	err := e.AttachOutboundCall(ctx, campaign, channel, calledNumber)
	outcome := session.OutcomeCompleted
	if err != nil {
		outcome = session.OutcomeError
		slog.Warn("engine: attach outbound call after amd clear failed", "channel_id", channel.ID, "attempt_id", attemptID, "error", err)
	}
	e.amdRecorder.RecordAttemptOutcome(attemptID, AMDAttemptOutcome{Outcome: outcome, ConsentDigit: consentDigit, Error: err})
}

func (e *CallEngine) handleAMDMachine(ctx context.Context, channel ari.Channel, campaign config.Campaign, attemptID, cause string) {
	if campaign.VoicemailDropAudio == "" {
		_ = e.ariClient.HangupChannel(ctx, channel.ID, "normal")
		e.amdRecorder.RecordAttemptOutcome(attemptID, AMDAttemptOutcome{Outcome: session.OutcomeMachineDetected})
		return
	}

	pb, err := e.ariClient.StartPlayback(ctx, "channels/"+channel.ID, campaign.VoicemailDropAudio)
	if err != nil {
		slog.Warn("engine: voicemail drop playback failed to start", "channel_id", channel.ID, "attempt_id", attemptID, "error", err)
		_ = e.ariClient.HangupChannel(ctx, channel.ID, "normal")
		e.amdRecorder.RecordAttemptOutcome(attemptID, AMDAttemptOutcome{Outcome: session.OutcomeError, Error: err})
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, amdPlaybackTimeout)
	defer cancel()
	if err := e.waitForPlaybackFinished(waitCtx, pb.ID); err != nil {
		slog.Warn("engine: voicemail drop playback never finished", "channel_id", channel.ID, "attempt_id", attemptID, "error", err)
	}

	_ = e.ariClient.HangupChannel(ctx, channel.ID, "normal")
	_ = cause
	e.amdRecorder.RecordAttemptOutcome(attemptID, AMDAttemptOutcome{Outcome: session.OutcomeVoicemailDrop})
}

// waitForPlaybackFinished blocks until a PlaybackFinished event for
// playbackID has been observed by dispatchEvent, or ctx is cancelled.
func (e *CallEngine) waitForPlaybackFinished(ctx context.Context, playbackID string) error {
	e.mu.Lock()
	waiter, ok := e.playbackWaiters[playbackID]
	if !ok {
		waiter = make(chan struct{})
		e.playbackWaiters[playbackID] = waiter
	}
	e.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *CallEngine) onPlaybackFinished(evt ari.Event) {
	if evt.Playback == nil {
		return
	}
	e.mu.Lock()
	waiter, ok := e.playbackWaiters[evt.Playback.ID]
	if ok {
		delete(e.playbackWaiters, evt.Playback.ID)
	}
	e.mu.Unlock()
	if ok {
		close(waiter)
	}
}

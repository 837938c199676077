package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/internal/coordinator"
	providers2s "github.com/corvidlabs/voxcore/internal/engine/s2s"
	"github.com/corvidlabs/voxcore/internal/gating"
	"github.com/corvidlabs/voxcore/internal/pipeline"
	"github.com/corvidlabs/voxcore/internal/playback"
	"github.com/corvidlabs/voxcore/internal/session"
	"github.com/corvidlabs/voxcore/internal/tools"
	"github.com/corvidlabs/voxcore/internal/transport"
	s2sprovider "github.com/corvidlabs/voxcore/pkg/provider/s2s"
	"github.com/corvidlabs/voxcore/pkg/provider/stt"
	"github.com/corvidlabs/voxcore/pkg/provider/vad"
	"github.com/corvidlabs/voxcore/pkg/types"
)

// RunInboundCall answers channel, resolves its context from the dialed DID,
// and runs the call through to completion. It returns once the call has
// fully ended and every cleanup step — post-call tools, history snapshot,
// deregistration — has finished. A DID with no matching context releases the
// channel back to the dialplan rather than answering it into dead air.
func (e *CallEngine) RunInboundCall(ctx context.Context, channel ari.Channel) error {
	cfg := e.cfgSource()
	ctxCfg, err := ResolveInboundContext(cfg, channel.Dialplan.Exten)
	if err != nil {
		slog.Warn("engine: no context matches dialed number, releasing to dialplan", "channel_id", channel.ID, "exten", channel.Dialplan.Exten)
		return e.ariClient.ContinueInDialplan(ctx, channel.ID, "default", "s", 1)
	}

	if err := e.ariClient.AnswerChannel(ctx, channel.ID); err != nil {
		return fmt.Errorf("engine: answer channel %s: %w", channel.ID, err)
	}

	callSession := session.New(channel.ID, channel.CallerNumber, channel.Dialplan.Exten, ctxCfg.Name, session.DirectionInbound)
	return e.runCall(ctx, channel.ID, callSession, ctxCfg)
}

// RunOutboundCall originates dialString under campaign's context, waits for
// it to join this engine's Stasis application, and then runs the call
// exactly as an inbound call would. Used by the Outbound Dialer once a lease
// has been acquired for the destination number.
func (e *CallEngine) RunOutboundCall(ctx context.Context, campaign config.Campaign, dialString, calledNumber string) error {
	cfg := e.cfgSource()
	ctxCfg, err := ResolveContextByName(cfg, campaign.ContextName)
	if err != nil {
		return err
	}

	ch, err := e.ariClient.OriginateChannel(ctx, ari.OriginateRequest{
		Endpoint:       dialString,
		App:            e.appName,
		CallerID:       campaign.CallerID,
		TimeoutSeconds: 30,
	})
	if err != nil {
		return fmt.Errorf("engine: originate outbound call to %q: %w", dialString, err)
	}

	if err := e.waitForChannelEntry(ctx, ch.ID); err != nil {
		_ = e.ariClient.HangupChannel(ctx, ch.ID, "normal")
		return fmt.Errorf("engine: outbound channel %s never answered: %w", ch.ID, err)
	}

	callSession := session.New(ch.ID, campaign.CallerID, calledNumber, ctxCfg.Name, session.DirectionOutbound)
	return e.runCall(ctx, ch.ID, callSession, ctxCfg)
}

// AttachOutboundCall runs a conversation provider over a channel that has
// already been answered and has already entered this engine's Stasis
// application via an outbound_amd dialplan hop — the AMD algorithm cleared
// it as a live human, and optionally a consent prompt has already been
// satisfied. Unlike RunOutboundCall it never originates or waits for
// channel entry; the channel named here already exists.
func (e *CallEngine) AttachOutboundCall(ctx context.Context, campaign config.Campaign, channel ari.Channel, calledNumber string) error {
	cfg := e.cfgSource()
	ctxCfg, err := ResolveContextByName(cfg, campaign.ContextName)
	if err != nil {
		return err
	}

	callSession := session.New(channel.ID, campaign.CallerID, calledNumber, ctxCfg.Name, session.DirectionOutbound)
	return e.runCall(ctx, channel.ID, callSession, ctxCfg)
}

// callOutcome accumulates the details runCall's cleanup needs to snapshot
// the session, since they are decided at different depths of the call setup
// and conversation loop.
type callOutcome struct {
	runErr              error
	providerName        string
	pipelineComponents  []string
	transferDestination string
	callerAudioFormat   string
}

// runCall is the shared post-answer lifecycle for both inbound and outbound
// calls: bridge/media setup, pre-call tools, the provider session for
// whichever variant the context resolves to, the conversation loop, and
// cleanup. callerChannelID must already be answered and a member of this
// engine's Stasis application.
func (e *CallEngine) runCall(ctx context.Context, callerChannelID string, callSession *session.CallSession, ctxCfg config.ContextConfig) error {
	startTime := time.Now()
	e.sessions.Add(callSession)

	call := &activeCall{callSession: callSession, callerChannelID: callerChannelID, hangupCh: make(chan struct{})}
	e.mu.Lock()
	e.active[callerChannelID] = call
	e.mu.Unlock()

	var out callOutcome
	defer e.finishCall(call, callSession, startTime, &out, ctxCfg)

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-call.hangupCh:
			cancel()
		case <-callCtx.Done():
		}
	}()

	profile, ok := transport.LookupProfile(ctxCfg.AudioProfileName)
	if !ok {
		out.runErr = fmt.Errorf("engine: unknown audio profile %q", ctxCfg.AudioProfileName)
		callSession.SetOutcome(session.OutcomeError)
		return out.runErr
	}
	out.callerAudioFormat = string(profile.Wire.Encoding)

	media, mediaChannel, err := e.openMedia(callCtx, ctxCfg.MediaTransport, profile.Wire)
	if err != nil {
		out.runErr = fmt.Errorf("engine: open media: %w", err)
		callSession.SetOutcome(session.OutcomeError)
		return out.runErr
	}
	defer media.Close()

	call.mu.Lock()
	call.mediaChannelID = mediaChannel.ID
	call.mu.Unlock()

	bridge, err := e.ariClient.CreateBridge(callCtx, "mixing")
	if err != nil {
		out.runErr = fmt.Errorf("engine: create bridge: %w", err)
		callSession.SetOutcome(session.OutcomeError)
		return out.runErr
	}
	call.mu.Lock()
	call.bridgeID = bridge.ID
	call.mu.Unlock()
	defer func() {
		call.mu.Lock()
		currentBridge := call.bridgeID
		call.mu.Unlock()
		if currentBridge != "" {
			_ = e.ariClient.DestroyBridge(context.Background(), currentBridge)
		}
	}()

	if err := e.ariClient.AddChannelToBridge(callCtx, bridge.ID, callerChannelID); err != nil {
		out.runErr = fmt.Errorf("engine: add caller channel to bridge: %w", err)
		callSession.SetOutcome(session.OutcomeError)
		return out.runErr
	}
	if err := e.ariClient.AddChannelToBridge(callCtx, bridge.ID, mediaChannel.ID); err != nil {
		out.runErr = fmt.Errorf("engine: add media channel to bridge: %w", err)
		callSession.SetOutcome(session.OutcomeError)
		return out.runErr
	}

	toolReg, err := e.toolRegistryFor(callSession.CallID, nil)
	if err != nil {
		out.runErr = fmt.Errorf("engine: build tool registry: %w", err)
		callSession.SetOutcome(session.OutcomeError)
		return out.runErr
	}

	preCallSet := toolReg.PreCallSet(ctxCfg.PreCallTools, optedOutGlobalNames(toolReg, tools.PhasePreCall, ctxCfg.DisableGlobalPreCall))
	preCallVars := tools.ExecutePreCall(callCtx, preCallSet, func(toolName string) {
		slog.Debug("engine: pre-call tool exceeding hold threshold", "call_id", callSession.CallID, "tool", toolName)
	})
	for k, v := range preCallVars {
		callSession.SetPreCallResult(k, v)
	}

	systemPrompt := tools.Substitute(ctxCfg.SystemPrompt, preCallVars)
	greeting := tools.Substitute(ctxCfg.GreetingTemplate, preCallVars)

	plan, err := transport.Plan(ctxCfg.AudioProfileName, transport.ProviderCapabilities{
		SupportedInput:  []transport.AudioFormat{profile.ProviderInput},
		SupportedOutput: []transport.AudioFormat{profile.ProviderOutput},
	})
	if err != nil {
		out.runErr = fmt.Errorf("engine: build transport plan: %w", err)
		callSession.SetOutcome(session.OutcomeError)
		return out.runErr
	}
	ingress := transport.NewIngressPipeline(plan)
	egress := transport.NewEgressPipeline(plan)

	playbackMgr := playback.NewManager(playback.Config{}, e.metrics)
	playbackID := playbackMgr.Start(callCtx, callSession.CallID, media.WriteFrame)
	callSession.SetPlaybackRef(playbackID)
	defer func() { _ = playbackMgr.Stop(playbackID, "call_ended") }()

	providersCfg := e.cfgSource().Providers
	variantKind := resolveVariant(providersCfg, ctxCfg.ProviderName)

	gatePolicy := gating.PolicyLocalGate
	if variantKind == variantMonolithic {
		gatePolicy = gating.PolicyServerGate
	}

	var vadSession vad.SessionHandle
	if gatePolicy == gating.PolicyLocalGate {
		if vadEngine, verr := e.providers.CreateVAD(providersCfg.VAD); verr != nil {
			slog.Warn("engine: vad provider unavailable, barge-in detection disabled", "call_id", callSession.CallID, "error", verr)
		} else if vs, serr := vadEngine.NewSession(vad.Config{
			SampleRate:       profile.ProviderInput.SampleRate,
			FrameSizeMs:      20,
			SpeechThreshold:  0.5,
			SilenceThreshold: 0.35,
		}); serr != nil {
			slog.Warn("engine: open vad session failed, barge-in detection disabled", "call_id", callSession.CallID, "error", serr)
		} else {
			vadSession = vs
			defer vadSession.Close()
		}
	}

	gate := gating.New(gating.Config{Policy: gatePolicy, SampleRate: profile.ProviderInput.SampleRate}, vadSession, func(reason string) {
		_ = playbackMgr.Stop(playbackID, reason)
		callSession.RecordBargeIn()
	}, e.metrics)

	hangupFn := func(ctx context.Context, _, reason string) error {
		return e.ariClient.HangupChannel(ctx, callerChannelID, reason)
	}
	coord := coordinator.New(callSession, gate, playbackMgr, e.metrics, ctxCfg.ProviderName, hangupFn)
	coord.SetPlaybackID(playbackID)

	call.mu.Lock()
	call.coord = coord
	call.mu.Unlock()

	switch variantKind {
	case variantMonolithic:
		out.providerName = providersCfg.S2S.Name
		out.pipelineComponents = []string{"s2s:" + providersCfg.S2S.Name}
		out.runErr = e.runMonolithicCall(callCtx, callSession, ctxCfg, providersCfg, toolReg, media, gate, ingress, egress, profile, systemPrompt, greeting, coord, playbackMgr, playbackID)
	default:
		out.providerName = providersCfg.LLM.Name
		out.pipelineComponents = []string{"stt:" + providersCfg.STT.Name, "llm:" + providersCfg.LLM.Name, "tts:" + providersCfg.TTS.Name}
		out.runErr = e.runPipelineCall(callCtx, callSession, ctxCfg, providersCfg, toolReg, media, gate, ingress, egress, profile, systemPrompt, greeting, coord)
	}

	call.mu.Lock()
	out.transferDestination = call.transferTarget
	call.mu.Unlock()

	if out.runErr != nil && callSession.Outcome() == session.OutcomeInProgress {
		callSession.SetOutcome(session.OutcomeError)
	} else if callSession.Outcome() == session.OutcomeInProgress {
		callSession.SetOutcome(session.OutcomeCompleted)
	}

	return out.runErr
}

// runMonolithicCall drives a Monolithic Agent (S2S) session for the
// lifetime of the call: it opens the session, pumps caller audio in,
// converts and plays the session's audio out, and returns once the session
// closes or callCtx is cancelled.
func (e *CallEngine) runMonolithicCall(ctx context.Context, callSession *session.CallSession, ctxCfg config.ContextConfig, providersCfg config.ProvidersConfig, toolReg *tools.Registry, media mediaConn, gate *gating.Gate, ingress, egress *transport.Pipeline, profile transport.AudioProfile, systemPrompt, greeting string, coord *coordinator.Coordinator, playbackMgr *playback.Manager, playbackID string) error {
	provider, err := e.providers.CreateS2S(providersCfg.S2S)
	if err != nil {
		return fmt.Errorf("engine: create s2s provider: %w", err)
	}

	inCallDefs := InCallSet(toolReg, ctxCfg.InCallTools, optedOutGlobalNames(toolReg, tools.PhaseInCall, ctxCfg.DisableGlobalInCall))
	toolDefs := make([]types.ToolDefinition, 0, len(inCallDefs))
	allowlist := make([]string, 0, len(inCallDefs))
	for _, d := range inCallDefs {
		toolDefs = append(toolDefs, d.ToolDefinition)
		allowlist = append(allowlist, d.Name)
	}

	eng := providers2s.New(provider, toolReg, callSession, allowlist, providers2s.Config{})
	if err := eng.Start(ctx, s2sprovider.SessionConfig{
		AudioProfile: ctxCfg.AudioProfileName,
		Voice: types.VoiceProfile{
			ID:          ctxCfg.Voice.VoiceID,
			Provider:    ctxCfg.Voice.Provider,
			PitchShift:  ctxCfg.Voice.PitchShift,
			SpeedFactor: ctxCfg.Voice.SpeedFactor,
		},
		Instructions: systemPrompt,
		GreetingText: greeting,
		Tools:        toolDefs,
	}, coord); err != nil {
		return fmt.Errorf("engine: start s2s session: %w", err)
	}
	defer eng.Close()

	go func() {
		for frame := range media.ReadFrames() {
			if !callSession.AudioCaptureEnabled() {
				continue
			}
			forward, err := gate.ProcessFrame(ctx, frame)
			if err != nil || !forward {
				continue
			}
			coord.MarkUserAudioFrame()
			converted, err := ingress.Run(frame)
			if err != nil {
				slog.Warn("engine: ingress conversion failed", "call_id", callSession.CallID, "error", err)
				continue
			}
			if err := eng.SendAudio(converted); err != nil {
				return
			}
		}
	}()

	// The session's audio channel spans the whole call rather than closing
	// between turns (unlike the pipeline variant's per-turn Audio channel),
	// so coordinator.PumpEgressAudio's one-shot first-frame arming would only
	// fire the turn-latency metric once for the entire call. This loop
	// re-arms StartAgentAudio itself on every transition out of
	// ProviderSpeaking instead of delegating to PumpEgressAudio.
egressLoop:
	for {
		select {
		case <-ctx.Done():
			break egressLoop
		case frame, ok := <-eng.Audio():
			if !ok {
				break egressLoop
			}
			out, err := egress.Run(frame)
			if err != nil {
				slog.Warn("engine: egress conversion failed", "call_id", callSession.CallID, "error", err)
				continue
			}
			if coord.State() != coordinator.StateProviderSpeaking {
				coord.StartAgentAudio()
			}
			if err := playbackMgr.Push(playbackID, out); err != nil {
				slog.Warn("engine: push agent audio frame", "call_id", callSession.CallID, "error", err)
			}
		}
	}
	coord.OnAgentAudioDone()

	return ctx.Err()
}

// runPipelineCall drives the Modular Pipeline Orchestrator for the lifetime
// of the call: an STT session decodes caller speech into final transcripts,
// each of which runs one Orchestrator.RunTurn round trip (LLM plus any tool
// calls, then TTS), with the resulting audio drained into playback before
// the next transcript is accepted.
func (e *CallEngine) runPipelineCall(ctx context.Context, callSession *session.CallSession, ctxCfg config.ContextConfig, providersCfg config.ProvidersConfig, toolReg *tools.Registry, media mediaConn, gate *gating.Gate, ingress, egress *transport.Pipeline, profile transport.AudioProfile, systemPrompt, greeting string, coord *coordinator.Coordinator) error {
	llmProvider, err := e.providers.CreateLLM(providersCfg.LLM)
	if err != nil {
		return fmt.Errorf("engine: create llm provider: %w", err)
	}
	ttsProvider, err := e.providers.CreateTTS(providersCfg.TTS)
	if err != nil {
		return fmt.Errorf("engine: create tts provider: %w", err)
	}
	sttProvider, err := e.providers.CreateSTT(providersCfg.STT)
	if err != nil {
		return fmt.Errorf("engine: create stt provider: %w", err)
	}

	sttSess, err := sttProvider.StartStream(ctx, stt.StreamConfig{SampleRate: profile.ProviderInput.SampleRate, Channels: 1})
	if err != nil {
		return fmt.Errorf("engine: start stt stream: %w", err)
	}
	defer sttSess.Close()

	inCallDefs := InCallSet(toolReg, ctxCfg.InCallTools, optedOutGlobalNames(toolReg, tools.PhaseInCall, ctxCfg.DisableGlobalInCall))
	toolDefs := make([]types.ToolDefinition, 0, len(inCallDefs))
	for _, d := range inCallDefs {
		toolDefs = append(toolDefs, d.ToolDefinition)
	}

	orch := pipeline.New(llmProvider, ttsProvider, toolReg, pipeline.Config{})
	voiceProfile := types.VoiceProfile{
		ID:          ctxCfg.Voice.VoiceID,
		Provider:    ctxCfg.Voice.Provider,
		PitchShift:  ctxCfg.Voice.PitchShift,
		SpeedFactor: ctxCfg.Voice.SpeedFactor,
	}

	if greeting != "" {
		textCh := make(chan string, 1)
		textCh <- greeting
		close(textCh)
		audio, err := ttsProvider.SynthesizeStream(ctx, textCh, voiceProfile)
		if err != nil {
			slog.Warn("engine: greeting synthesis failed", "call_id", callSession.CallID, "error", err)
		} else if err := coord.PumpEgressAudio(ctx, convertAudio(audio, egress, callSession.CallID)); err != nil {
			slog.Warn("engine: greeting playback failed", "call_id", callSession.CallID, "error", err)
		} else {
			callSession.AppendTurn(session.RoleAssistant, greeting)
		}
	}

	go func() {
		for frame := range media.ReadFrames() {
			if !callSession.AudioCaptureEnabled() {
				continue
			}
			forward, err := gate.ProcessFrame(ctx, frame)
			if err != nil || !forward {
				continue
			}
			coord.MarkUserAudioFrame()
			converted, err := ingress.Run(frame)
			if err != nil {
				slog.Warn("engine: ingress conversion failed", "call_id", callSession.CallID, "error", err)
				continue
			}
			if err := sttSess.SendAudio(converted); err != nil {
				return
			}
		}
	}()

	var history []types.Message
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case final, ok := <-sttSess.Finals():
			if !ok {
				return nil
			}
			if final.Text == "" {
				continue
			}
			coord.OnUserTranscript(final.Text, true)
			result, err := orch.RunTurn(ctx, history, systemPrompt, final.Text, toolDefs, voiceProfile)
			if err != nil {
				coord.OnProviderError(err)
				slog.Warn("engine: pipeline turn failed", "call_id", callSession.CallID, "error", err)
				continue
			}
			history = result.History
			for _, tc := range result.ToolCalls {
				status := "ok"
				if tc.Err != nil {
					status = tc.Err.Error()
				}
				callSession.AppendToolCall(tc.Name, nil, tc.Result, 0)
				_ = status
			}
			callSession.AppendTurn(session.RoleAssistant, result.FinalText)

			if err := coord.PumpEgressAudio(ctx, convertAudio(result.Audio, egress, callSession.CallID)); err != nil {
				slog.Warn("engine: turn playback failed", "call_id", callSession.CallID, "error", err)
			}
			coord.OnTurnComplete()
		}
	}
}

// convertAudio applies egress's conversion chain to a TTS/S2S audio channel,
// so the caller can feed the result straight into
// coordinator.Coordinator.PumpEgressAudio without the pump itself needing to
// know about format conversion.
func convertAudio(in <-chan []byte, egress *transport.Pipeline, callID string) <-chan []byte {
	out := make(chan []byte, 32)
	go func() {
		defer close(out)
		for frame := range in {
			converted, err := egress.Run(frame)
			if err != nil {
				slog.Warn("engine: egress conversion failed", "call_id", callID, "error", err)
				continue
			}
			out <- converted
		}
	}()
	return out
}

// finishCall runs the post-conversation cleanup sequence exactly once per
// call: fire post-call tools, snapshot the session into history, and
// deregister the call from every engine-owned table.
func (e *CallEngine) finishCall(call *activeCall, callSession *session.CallSession, startTime time.Time, out *callOutcome, ctxCfg config.ContextConfig) {
	errMsg := ""
	if out.runErr != nil {
		errMsg = out.runErr.Error()
	}

	if callSession.TryFirePostCall() {
		toolReg, err := e.toolRegistryFor(callSession.CallID, nil)
		if err == nil {
			postCallSet := toolReg.PostCallSet(ctxCfg.PostCallTools, optedOutGlobalNames(toolReg, tools.PhasePostCall, ctxCfg.DisableGlobalPostCall))
			tools.DispatchPostCall(context.Background(), postCallSet, tools.PostCallContext{
				CallID:          callSession.CallID,
				Direction:       string(callSession.Direction),
				CallerNumber:    callSession.CallerNumber,
				CalledNumber:    callSession.CalledNumber,
				DurationSeconds: time.Since(startTime).Seconds(),
				Outcome:         string(callSession.Outcome()),
				PreCallResults:  callSession.PreCallResults(),
				ProviderName:    out.providerName,
			})
		}
	}

	record := callSession.Snapshot(startTime, out.providerName, out.pipelineComponents, errMsg, out.transferDestination, out.callerAudioFormat)
	if e.recorder != nil {
		if err := e.recorder.RecordCall(record); err != nil {
			slog.Warn("engine: record call history failed", "call_id", callSession.CallID, "error", err)
		}
	}

	e.mu.Lock()
	delete(e.active, call.callerChannelID)
	e.mu.Unlock()
	e.sessions.Remove(callSession.CallID)
}

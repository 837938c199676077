package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/internal/coordinator"
	"github.com/corvidlabs/voxcore/internal/media/audiosocket"
	"github.com/corvidlabs/voxcore/internal/observe"
	"github.com/corvidlabs/voxcore/internal/session"
	"github.com/corvidlabs/voxcore/internal/tools"
)

// activeCall tracks the ARI-side identifiers a running call needs for
// mid-call control (blind transfer, hangup) that CallSession itself has no
// reason to know about.
type activeCall struct {
	callSession *session.CallSession

	mu              sync.Mutex
	callerChannelID string
	mediaChannelID  string
	bridgeID        string
	transferTarget  string
	coord           *coordinator.Coordinator
	hangupCh        chan struct{}
	hangupOnce      sync.Once
}

func (a *activeCall) markHungUp() {
	a.hangupOnce.Do(func() { close(a.hangupCh) })
}

// Deps bundles a CallEngine's collaborators. AppName is the Stasis
// application every channel this engine drives runs under.
type Deps struct {
	ConfigSource  func() *config.Config
	Providers     *config.Registry
	ARIClient     *ari.Client
	AppName       string
	MediaHost     string
	AudioListener *audiosocket.Listener
	Metrics       *observe.Metrics
	Sessions      *session.Registry
	Recorder      CallRecorder
	HTTPClient    *http.Client
	AMDRecorder   AMDOutcomeRecorder
}

// CallEngine drives the full lifecycle of every call this process handles.
// One instance is shared across all concurrent calls; each call runs on its
// own goroutine under runCall.
type CallEngine struct {
	cfgSource     func() *config.Config
	providers     *config.Registry
	ariClient     *ari.Client
	appName       string
	mediaHost     string
	audioListener *audiosocket.Listener
	metrics       *observe.Metrics
	sessions      *session.Registry
	recorder      CallRecorder
	httpClient    *http.Client
	amdRecorder   AMDOutcomeRecorder

	mu                 sync.Mutex
	active             map[string]*activeCall
	pendingAudioSocket map[uuid.UUID]chan *audiosocket.Conn
	channelWaiters     map[string]chan struct{}
	playbackWaiters    map[string]chan struct{}

	toolsOnce sync.Once
	toolReg   *tools.Registry
	toolErr   error
}

// New builds a CallEngine. The AudioSocket listener in deps must already be
// serving (see audiosocket.Listener.Serve) before any call reaches
// openMedia, since the engine only registers pending sessions — it does not
// own the listener's accept loop.
func New(deps Deps) *CallEngine {
	e := &CallEngine{
		cfgSource:          deps.ConfigSource,
		providers:          deps.Providers,
		ariClient:          deps.ARIClient,
		appName:            deps.AppName,
		mediaHost:          deps.MediaHost,
		audioListener:      deps.AudioListener,
		metrics:            deps.Metrics,
		sessions:           deps.Sessions,
		recorder:           deps.Recorder,
		httpClient:         deps.HTTPClient,
		amdRecorder:        deps.AMDRecorder,
		active:             make(map[string]*activeCall),
		pendingAudioSocket: make(map[uuid.UUID]chan *audiosocket.Conn),
		channelWaiters:     make(map[string]chan struct{}),
		playbackWaiters:    make(map[string]chan struct{}),
	}
	return e
}

// AudioSocketHandler is registered as the engine's AudioSocket listener
// Handler. It hands the accepted connection to whichever openMedia call is
// waiting on the matching session UUID, or closes it if none is.
func (e *CallEngine) AudioSocketHandler(ctx context.Context, sessionID uuid.UUID, conn *audiosocket.Conn) {
	e.mu.Lock()
	ch, ok := e.pendingAudioSocket[sessionID]
	e.mu.Unlock()
	if !ok {
		slog.Warn("engine: audiosocket connection with no pending session", "session_id", sessionID)
		_ = conn.Close()
		return
	}
	ch <- conn
}

// toolRegistryFor lazily builds the shared tool registry on first use. It is
// built once per engine, with an engine-wide transfer client and
// anyCallHangupGate; the callID and hangupGate arguments are not used.
func (e *CallEngine) toolRegistryFor(callID string, hangupGate tools.HangupGate) (*tools.Registry, error) {
	e.toolsOnce.Do(func() {
		transferClient := newTransferClient(e.ariClient, e.appName, e.lookupActive, e.waitForChannelEntry)
		// MCP-backed tool declarations connect to their server once, here,
		// not per call; context.Background() outlives any one call.
		e.toolReg, e.toolErr = BuildRegistry(context.Background(), e.cfgSource().Tools, transferClient, anyCallHangupGate{e}, e.httpClient)
	})
	return e.toolReg, e.toolErr
}

// anyCallHangupGate adapts the engine's per-call hangup-pending tracking
// (owned by each call's coordinator.Coordinator) into the single
// tools.HangupGate the shared registry's hangup_call handler needs, by
// looking the right Coordinator up at invocation time via the call ID the
// tool call itself carries. It only marks intent on the coordinator; the
// coordinator issues the real hangup once farewell audio finishes playing.
type anyCallHangupGate struct{ e *CallEngine }

func (g anyCallHangupGate) MarkHangupPending(callID string) {
	g.e.mu.Lock()
	call, ok := g.e.active[callID]
	g.e.mu.Unlock()
	if !ok {
		slog.Warn("engine: hangup_call for unknown active call", "call_id", callID)
		return
	}

	call.mu.Lock()
	coord := call.coord
	call.mu.Unlock()
	if coord == nil {
		// No coordinator yet means the call hasn't finished setting up its
		// provider session; there is no farewell audio to wait for.
		call.markHungUp()
		return
	}
	coord.MarkHangupPending(callID)
}

func (e *CallEngine) lookupActive(callID string) (*activeCall, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	call, ok := e.active[callID]
	return call, ok
}

// waitForChannelEntry blocks until a StasisStart event for channelID has
// been observed by dispatchEvent, or ctx is cancelled.
func (e *CallEngine) waitForChannelEntry(ctx context.Context, channelID string) error {
	e.mu.Lock()
	waiter, ok := e.channelWaiters[channelID]
	if !ok {
		waiter = make(chan struct{})
		e.channelWaiters[channelID] = waiter
	}
	e.mu.Unlock()

	select {
	case <-waiter:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mediaConnectTimeout):
		return fmt.Errorf("engine: channel %q never entered the application", channelID)
	}
}

// Serve subscribes to the PBX event stream and dispatches StasisStart events
// for inbound channels to a new call goroutine, forwarding every other event
// to dispatchEvent for channel-waiter/hangup bookkeeping. It blocks until
// ctx is cancelled or the event stream ends.
func (e *CallEngine) Serve(ctx context.Context) error {
	events, closeFn, err := e.ariClient.SubscribeEvents(ctx)
	if err != nil {
		return fmt.Errorf("engine: subscribe to ari events: %w", err)
	}
	defer closeFn()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return fmt.Errorf("engine: ari event stream closed")
			}
			e.dispatchEvent(ctx, evt)
		}
	}
}

func (e *CallEngine) dispatchEvent(ctx context.Context, evt ari.Event) {
	switch evt.Type {
	case ari.EventChannelEnteredApplication:
		e.onChannelEntered(ctx, evt)
	case ari.EventChannelLeftApplication, ari.EventChannelDestroyed:
		e.onChannelGone(evt)
	case ari.EventPlaybackFinished:
		e.onPlaybackFinished(evt)
	}
}

func (e *CallEngine) onChannelEntered(ctx context.Context, evt ari.Event) {
	channelID := evt.ChannelID()
	if channelID == "" {
		return
	}

	if len(evt.Args) > 0 && evt.Args[0] == "outbound_amd" {
		// A re-entry from the AMD dialplan hop, not a fresh call of either
		// direction; it is resolved entirely within handleOutboundAMD.
		go e.handleOutboundAMD(ctx, evt)
		return
	}

	e.mu.Lock()
	waiter, waited := e.channelWaiters[channelID]
	_, alreadyActive := e.active[channelID]
	e.mu.Unlock()

	if waited {
		close(waiter)
		e.mu.Lock()
		delete(e.channelWaiters, channelID)
		e.mu.Unlock()
		// This channel entry was a transfer-target or external-media
		// channel someone is already waiting on synchronously; it is not
		// a fresh inbound call.
		return
	}
	if alreadyActive || evt.Channel == nil {
		return
	}

	go func() {
		if err := e.RunInboundCall(ctx, *evt.Channel); err != nil {
			slog.Warn("engine: inbound call failed", "channel_id", channelID, "error", err)
		}
	}()
}

func (e *CallEngine) onChannelGone(evt ari.Event) {
	channelID := evt.ChannelID()
	if channelID == "" {
		return
	}
	e.mu.Lock()
	call, ok := e.active[channelID]
	e.mu.Unlock()
	if ok {
		call.markHungUp()
	}
}

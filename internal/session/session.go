// Package session defines CallSession, the engine-owned mutable state of
// one active call, and CallRecord, its immutable post-call snapshot.
//
// CallSession is mutated only by the engine task that owns the call; the
// mutex here exists to let the admin surface read a consistent snapshot
// concurrently, not to allow multiple writers. The append helpers follow
// the monotonic-timestamp and partial-write-tolerant pattern of the
// teacher's session.Consolidator (internal/session/consolidator.go),
// adapted from periodic batch flushing to per-event in-memory append.
package session

import (
	"sync"
	"sync/atomic"
	"time"
)

// CallSession is the live state of one in-progress call.
type CallSession struct {
	CallID       string
	CallerNumber string
	CalledNumber string
	ContextName  string
	Direction    Direction

	mu                  sync.Mutex
	conversationHistory []Turn
	preCallResults      map[string]string
	toolCalls           []ToolCallRecord
	playbackRef         string
	audioCaptureEnabled bool
	currentAction       *CurrentAction
	metrics             Metrics
	outcome             Outcome
	lastTimestamp       int64

	postCallFired atomic.Bool
}

// New creates a CallSession in the OutcomeInProgress state.
func New(callID, callerNumber, calledNumber, contextName string, direction Direction) *CallSession {
	return &CallSession{
		CallID:              callID,
		CallerNumber:        callerNumber,
		CalledNumber:        calledNumber,
		ContextName:         contextName,
		Direction:           direction,
		preCallResults:      make(map[string]string),
		audioCaptureEnabled: true,
		outcome:             OutcomeInProgress,
	}
}

// nextTimestampLocked returns a unix-nanosecond timestamp strictly
// increasing relative to every prior call within this session, even if
// the wall clock does not advance between calls.
func (s *CallSession) nextTimestampLocked() int64 {
	now := time.Now().UnixNano()
	if now <= s.lastTimestamp {
		now = s.lastTimestamp + 1
	}
	s.lastTimestamp = now
	return now
}

// AppendTurn records one conversation turn with a monotonic timestamp.
func (s *CallSession) AppendTurn(role Role, content string) Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := Turn{Role: role, Content: content, Timestamp: s.nextTimestampLocked()}
	s.conversationHistory = append(s.conversationHistory, t)
	return t
}

// AppendToolCall records one completed tool invocation.
func (s *CallSession) AppendToolCall(name string, params map[string]any, result string, durationMs float64) ToolCallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	tc := ToolCallRecord{
		Name:       name,
		Params:     params,
		Result:     result,
		Timestamp:  s.nextTimestampLocked(),
		DurationMs: durationMs,
	}
	s.toolCalls = append(s.toolCalls, tc)
	return tc
}

// SetPreCallResult stores one pre-call variable lookup, recording an empty
// string for a missed lookup per the documented contract.
func (s *CallSession) SetPreCallResult(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preCallResults[name] = value
}

// PreCallResults returns a copy of the pre-call variable map.
func (s *CallSession) PreCallResults() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.preCallResults))
	for k, v := range s.preCallResults {
		out[k] = v
	}
	return out
}

// SetPlaybackRef records the currently-playing audio's identifier, or
// clears it when id is empty.
func (s *CallSession) SetPlaybackRef(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playbackRef = id
}

// PlaybackRef returns the current playback identifier, or "" if none.
func (s *CallSession) PlaybackRef() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playbackRef
}

// SetAudioCaptureEnabled toggles whether inbound audio is captured for the
// provider session.
func (s *CallSession) SetAudioCaptureEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioCaptureEnabled = enabled
}

// AudioCaptureEnabled reports the current capture gate flag.
func (s *CallSession) AudioCaptureEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioCaptureEnabled
}

// SetCurrentAction records an in-flight transfer or similar action.
func (s *CallSession) SetCurrentAction(actionType, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAction = &CurrentAction{Type: actionType, Target: target, StartedAt: s.nextTimestampLocked()}
}

// ClearCurrentAction clears any in-flight action.
func (s *CallSession) ClearCurrentAction() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAction = nil
}

// CurrentAction returns a copy of the in-flight action, or nil.
func (s *CallSession) CurrentAction() *CurrentAction {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentAction == nil {
		return nil
	}
	cp := *s.currentAction
	return &cp
}

// RecordTurnLatency folds one turn's latency into the running average/max.
func (s *CallSession) RecordTurnLatency(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.recordTurnLatency(ms)
}

// RecordBargeIn increments the call's barge-in counter.
func (s *CallSession) RecordBargeIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.BargeInCount++
}

// RecordUnderflow increments the call's playback-underflow counter.
func (s *CallSession) RecordUnderflow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.UnderflowCount++
}

// SetSNREstimate records the call's current signal-to-noise estimate.
func (s *CallSession) SetSNREstimate(snr float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.SNREstimate = snr
}

// SetOutcome records the call's terminal disposition. It may be called more
// than once (e.g. an engine error path overriding a prior in-progress
// state); the last write before Snapshot wins.
func (s *CallSession) SetOutcome(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = o
}

// Outcome returns the call's current disposition.
func (s *CallSession) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// TryFirePostCall atomically marks post-call tool dispatch as started,
// returning true the first time it is called for this session and false on
// every subsequent call. Cleanup can run concurrently from a PBX hangup
// event, an engine-initiated hangup, and a provider-initiated hangup; this
// gate ensures post-call tools fire exactly once regardless of which path
// wins the race.
func (s *CallSession) TryFirePostCall() bool {
	return s.postCallFired.CompareAndSwap(false, true)
}

// Snapshot returns an immutable CallRecord capturing the session's state at
// the moment of the call. Further mutation of the CallSession does not
// affect a previously returned CallRecord.
func (s *CallSession) Snapshot(startTime time.Time, providerName string, pipelineComponents []string, errorMessage, transferDestination, callerAudioFormat string) CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := make([]Turn, len(s.conversationHistory))
	copy(history, s.conversationHistory)

	toolCalls := make([]ToolCallRecord, len(s.toolCalls))
	copy(toolCalls, s.toolCalls)

	preCall := make(map[string]string, len(s.preCallResults))
	for k, v := range s.preCallResults {
		preCall[k] = v
	}

	return CallRecord{
		CallID:               s.CallID,
		CallerNumber:         s.CallerNumber,
		CalledNumber:         s.CalledNumber,
		ContextName:          s.ContextName,
		Direction:            s.Direction,
		StartTime:            startTime,
		EndTime:              time.Now(),
		ConversationHistory:  history,
		ToolCalls:            toolCalls,
		PreCallResults:       preCall,
		Outcome:              s.outcome,
		ProviderName:         providerName,
		PipelineComponents:   pipelineComponents,
		ErrorMessage:         errorMessage,
		TransferDestination:  transferDestination,
		AvgTurnLatencyMs:     s.metrics.AvgTurnLatencyMs,
		MaxTurnLatencyMs:     s.metrics.MaxTurnLatencyMs,
		TotalTurns:           s.metrics.TurnCount,
		BargeInCount:         s.metrics.BargeInCount,
		UnderflowCount:       s.metrics.UnderflowCount,
		CallerAudioFormat:    callerAudioFormat,
	}
}

// CallRecord is an immutable, persisted snapshot of a completed call.
type CallRecord struct {
	CallID       string
	CallerNumber string
	CalledNumber string
	ContextName  string
	Direction    Direction

	StartTime time.Time
	EndTime   time.Time

	ConversationHistory []Turn
	ToolCalls           []ToolCallRecord
	PreCallResults      map[string]string

	Outcome             Outcome
	ProviderName        string
	PipelineComponents  []string
	ErrorMessage        string
	TransferDestination string

	AvgTurnLatencyMs  float64
	MaxTurnLatencyMs  float64
	TotalTurns        int
	BargeInCount      int
	UnderflowCount    int
	CallerAudioFormat string
}

// DurationSeconds returns the call's wall-clock duration.
func (r CallRecord) DurationSeconds() float64 {
	return r.EndTime.Sub(r.StartTime).Seconds()
}

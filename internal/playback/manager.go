// Package playback implements the outbound audio playback state machine:
// warm-up buffering, low-watermark pause-not-restart, idle auto-close, and
// a post-stop grace window for frames still in flight from the provider.
//
// The dispatch loop, timer-reuse, and channel-based cancellation follow the
// priority mixer in pkg/audio/mixer.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvidlabs/voxcore/internal/observe"
)

// ErrNotFound is returned by Stop when the playback ID is unknown or the
// session already stopped outside its grace window.
var ErrNotFound = errors.New("playback: session not found")

type state int

const (
	stateWarmup state = iota
	stateSteady
	statePaused
	stateClosed
)

// EmitFunc writes one wire-format frame to the call leg. It must not block
// indefinitely; a blocked EmitFunc stalls the dispatch loop for that session.
type EmitFunc func(frame []byte) error

// Manager creates and tracks playback sessions for a single call engine
// instance. It is safe for concurrent use.
type Manager struct {
	cfg     Config
	metrics *observe.Metrics

	mu       sync.Mutex
	sessions map[string]*session
}

// NewManager builds a Manager. A nil metrics recorder disables underflow
// accounting.
func NewManager(cfg Config, metrics *observe.Metrics) *Manager {
	return &Manager{
		cfg:      cfg.withDefaults(),
		metrics:  metrics,
		sessions: make(map[string]*session),
	}
}

// Start creates a playback session and returns its ID immediately. Frames
// pushed with Push are queued, warmed up, and dispatched to emit on a
// 20ms tick. The session runs until Stop is called or it goes idle for
// longer than Config.IdleCutoffMs.
func (m *Manager) Start(ctx context.Context, callID string, emit EmitFunc) string {
	id := uuid.NewString()
	s := &session{
		id:       id,
		callID:   callID,
		cfg:      m.cfg,
		metrics:  m.metrics,
		emit:     emit,
		queue:    &frameQueue{},
		notify:   make(chan struct{}, 1),
		stopCh:   make(chan string, 1),
		doneCh:   make(chan struct{}),
		state:    stateWarmup,
		lastFeed: time.Time{},
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	go s.run(ctx)
	go func() {
		<-s.doneCh
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
	}()

	return id
}

// Push enqueues a wire-format frame produced by the provider. Once the
// session has stopped and its grace window has elapsed, Push returns
// ErrNotFound.
func (m *Manager) Push(playbackID string, frame []byte) error {
	m.mu.Lock()
	s, ok := m.sessions[playbackID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	return s.push(frame)
}

// Stop requests the session end. Frames arriving within Config.ProviderGraceMs
// of Stop are still accepted and played; after the grace window the session
// closes and further Push calls return ErrNotFound. Stop is idempotent.
func (m *Manager) Stop(playbackID, reason string) error {
	m.mu.Lock()
	s, ok := m.sessions[playbackID]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.requestStop(reason)
	return nil
}

// Buffered reports how many milliseconds of audio remain queued for a
// session, or -1 if the session is unknown.
func (m *Manager) Buffered(playbackID string) int {
	m.mu.Lock()
	s, ok := m.sessions[playbackID]
	m.mu.Unlock()
	if !ok {
		return -1
	}
	return s.queue.bufferedMs()
}

type session struct {
	id      string
	callID  string
	cfg     Config
	metrics *observe.Metrics
	emit    EmitFunc
	queue   *frameQueue

	notify chan struct{}
	stopCh chan string
	doneCh chan struct{}

	mu       sync.Mutex
	state    state
	lastFeed time.Time

	stopOnce  sync.Once
	stopGrace time.Time
	stopped   bool
}

func (s *session) push(frame []byte) error {
	s.mu.Lock()
	if s.state == stateClosed {
		grace := s.stopped && time.Now().Before(s.stopGrace)
		s.mu.Unlock()
		if !grace {
			return ErrNotFound
		}
	} else {
		s.mu.Unlock()
	}

	s.queue.push(frame)

	s.mu.Lock()
	s.lastFeed = time.Now()
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *session) requestStop(reason string) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.stopGrace = time.Now().Add(s.cfg.providerGraceDuration())
		s.mu.Unlock()
		select {
		case s.stopCh <- reason:
		default:
		}
	})
}

// run drives the warm-up -> steady -> paused state machine on a fixed tick,
// reusing one timer for the tick and one for idle detection rather than
// allocating per-iteration.
func (s *session) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(time.Duration(frameMs) * time.Millisecond)
	defer ticker.Stop()

	idleTimer := time.NewTimer(s.cfg.idleCutoffDuration())
	defer idleTimer.Stop()

	var stopReason string
	graceTimer := time.NewTimer(time.Hour)
	graceTimer.Stop()
	defer graceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.close()
			return

		case reason := <-s.stopCh:
			stopReason = reason
			_ = stopReason
			graceTimer.Reset(s.cfg.providerGraceDuration())

		case <-graceTimer.C:
			s.close()
			return

		case <-idleTimer.C:
			if s.queue.bufferedMs() == 0 {
				s.close()
				return
			}
			idleTimer.Reset(s.cfg.idleCutoffDuration())

		case <-s.notify:
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(s.cfg.idleCutoffDuration())
			s.maybeStartWarmup()

		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *session) maybeStartWarmup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == stateClosed {
		return
	}
	if s.state == stateWarmup && s.queue.bufferedMs() >= s.cfg.MinStartMs {
		s.state = stateSteady
	}
}

// tick emits at most one frame per call. A steady session whose buffered
// depth has fallen below Config.LowWatermarkMs pauses proactively rather
// than waiting for the queue to run dry, matching a producer that is
// falling behind but hasn't stalled outright. A paused session that regains
// any buffer resumes without re-running warm-up; the underflow counter
// increments once per pause transition, not once per tick spent paused.
func (s *session) tick(ctx context.Context) {
	s.mu.Lock()
	st := s.state
	s.mu.Unlock()

	if st == stateClosed || st == stateWarmup {
		return
	}

	if st == stateSteady && s.queue.bufferedMs() < s.cfg.LowWatermarkMs {
		s.mu.Lock()
		s.state = statePaused
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.RecordPlaybackUnderflow(ctx)
		}
		return
	}

	frame, ok := s.queue.pop()
	if !ok {
		return
	}

	if st == statePaused {
		s.mu.Lock()
		s.state = stateSteady
		s.mu.Unlock()
	}

	if err := s.emit(frame); err != nil {
		slog.Warn("playback: emit failed", "playback_id", s.id, "call_id", s.callID, "error", err)
	}
}

func (s *session) close() {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return
	}
	s.state = stateClosed
	s.mu.Unlock()
	s.queue.drain()
}

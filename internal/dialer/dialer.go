// Package dialer is the Outbound Dialer: a control-plane loop, separate
// from the Call Engine's media-plane work, that leases queued leads,
// originates them through a per-campaign AMD dialplan hop, and resolves
// each attempt's outcome once the Call Engine reports it back.
//
// Its polling-loop shape follows internal/agent/orchestrator's
// retry/backoff style (a ticker-driven loop checking bounded amounts of
// work per tick rather than a tight spin), and its attempt bookkeeping
// uses the same narrow-interface pattern as internal/engine's
// CallRecorder: the engine depends only on engine.AMDOutcomeRecorder,
// which Worker implements, so neither package imports the other's
// concrete types.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/corvidlabs/voxcore/internal/ari"
	"github.com/corvidlabs/voxcore/internal/config"
	"github.com/corvidlabs/voxcore/internal/dialer/store"
	"github.com/corvidlabs/voxcore/internal/engine"
	"github.com/corvidlabs/voxcore/internal/observe"
	"github.com/corvidlabs/voxcore/internal/session"
)

const (
	// pollInterval is how often Run re-evaluates every configured campaign.
	pollInterval = 2 * time.Second

	// defaultLeaseTTL bounds how long a leased lead may sit undialed before
	// the recovery sweep requeues it.
	defaultLeaseTTL = 60 * time.Second

	// defaultDialContext is used when a campaign does not name its own AMD
	// dialplan context.
	defaultDialContext = "outbound-amd"

	// originateTimeoutSeconds bounds how long the PBX rings the destination
	// before giving up on one origination attempt.
	originateTimeoutSeconds = 30

	// recoverySweepEvery bounds how often the expired-lease recovery sweep runs.
	recoverySweepEvery = 30 * time.Second
)

// Deps bundles the Worker's collaborators.
type Deps struct {
	ConfigSource func() *config.Config
	Store        *store.Store
	ARIClient    *ari.Client
	Metrics      *observe.Metrics
}

// leadStore is the subset of *store.Store the Worker drives, narrowed so
// tests can exercise the pacing/lease/outcome logic against a hand-written
// fake instead of a live PostgreSQL connection.
type leadStore interface {
	GetCampaignRun(ctx context.Context, campaignName string) (*store.CampaignRun, error)
	CountInFlight(ctx context.Context, campaignName string) (int, error)
	CountPending(ctx context.Context, campaignName string) (int, error)
	LeaseNext(ctx context.Context, campaignName string, limit int, leaseTTL time.Duration) ([]store.Lead, error)
	StartAttempt(ctx context.Context, leadID int64, campaignName string) (string, error)
	MarkAttemptOutcome(ctx context.Context, attemptID, amdStatus, amdCause, consentDigit, outcome, callID string, finalLeadState store.LeadState) error
	RecoverExpiredLeases(ctx context.Context) (int64, error)
	CompleteCampaignIfDrained(ctx context.Context, campaignName string) (bool, error)
}

// attemptContext is what the Worker remembers about one in-flight
// origination so that the engine's AMD re-entry can look it up synchronously
// by attempt ID, without a database round trip on the hot path.
type attemptContext struct {
	leadID       int64
	campaign     config.Campaign
	calledNumber string
}

// Worker drives the lease/originate/recover loop for every campaign whose
// run has been started (store.CampaignStatusRunning), and implements
// engine.AMDOutcomeRecorder so the Call Engine can resolve and report on
// attempts it re-enters via the outbound_amd dialplan hop.
type Worker struct {
	cfgSource func() *config.Config
	store     leadStore
	ariClient *ari.Client
	metrics   *observe.Metrics

	mu            sync.Mutex
	attempts      map[string]attemptContext
	lastOriginate map[string]time.Time

	lastRecoverySweep time.Time
}

var _ engine.AMDOutcomeRecorder = (*Worker)(nil)

// New builds a Worker. Call Run to start its polling loop.
func New(deps Deps) *Worker {
	return &Worker{
		cfgSource:     deps.ConfigSource,
		store:         deps.Store,
		ariClient:     deps.ARIClient,
		metrics:       deps.Metrics,
		attempts:      make(map[string]attemptContext),
		lastOriginate: make(map[string]time.Time),
	}
}

// Run polls every configured campaign until ctx is cancelled, leasing and
// originating leads within each campaign's pacing and concurrency limits
// and periodically sweeping expired leases back to pending.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	if time.Since(w.lastRecoverySweep) >= recoverySweepEvery {
		w.lastRecoverySweep = time.Now()
		if n, err := w.store.RecoverExpiredLeases(ctx); err != nil {
			slog.Warn("dialer: recovery sweep failed", "error", err)
		} else if n > 0 {
			slog.Info("dialer: recovered expired leases", "count", n)
		}
	}

	for _, campaign := range w.cfgSource().Campaigns {
		w.tickCampaign(ctx, campaign)
	}
}

func (w *Worker) tickCampaign(ctx context.Context, campaign config.Campaign) {
	run, err := w.store.GetCampaignRun(ctx, campaign.Name)
	if err != nil {
		slog.Warn("dialer: get campaign run failed", "campaign", campaign.Name, "error", err)
		return
	}
	if run == nil || run.Status != store.CampaignStatusRunning {
		return
	}
	if !withinWindow(run, time.Now()) {
		return
	}

	minInterval := time.Duration(campaign.MinIntervalMs) * time.Millisecond
	w.mu.Lock()
	last, paced := w.lastOriginate[campaign.Name]
	w.mu.Unlock()
	if minInterval > 0 && paced && time.Since(last) < minInterval {
		return
	}

	inFlight, err := w.store.CountInFlight(ctx, campaign.Name)
	if err != nil {
		slog.Warn("dialer: count in-flight failed", "campaign", campaign.Name, "error", err)
		return
	}
	capacity := campaign.MaxConcurrent - inFlight
	if capacity <= 0 {
		return
	}
	// No predictive dialing: never lease more than one lead past a
	// configured pacing interval in a single tick.
	if minInterval > 0 && capacity > 1 {
		capacity = 1
	}

	leaseTTL := defaultLeaseTTL
	if campaign.LeaseSeconds > 0 {
		leaseTTL = time.Duration(campaign.LeaseSeconds) * time.Second
	}

	leads, err := w.store.LeaseNext(ctx, campaign.Name, capacity, leaseTTL)
	if err != nil {
		slog.Warn("dialer: lease next failed", "campaign", campaign.Name, "error", err)
		return
	}

	if len(leads) == 0 {
		w.maybeCompleteCampaign(ctx, campaign.Name)
		return
	}

	for _, lead := range leads {
		w.mu.Lock()
		w.lastOriginate[campaign.Name] = time.Now()
		w.mu.Unlock()
		go w.originate(ctx, campaign, lead)
	}
}

func (w *Worker) maybeCompleteCampaign(ctx context.Context, campaignName string) {
	pending, err := w.store.CountPending(ctx, campaignName)
	if err != nil || pending > 0 {
		return
	}
	inFlight, err := w.store.CountInFlight(ctx, campaignName)
	if err != nil || inFlight > 0 {
		return
	}
	if done, err := w.store.CompleteCampaignIfDrained(ctx, campaignName); err != nil {
		slog.Warn("dialer: complete campaign failed", "campaign", campaignName, "error", err)
	} else if done {
		slog.Info("dialer: campaign completed", "campaign", campaignName)
	}
}

// withinWindow reports whether now falls inside the campaign's configured
// time-of-day dialing window. A zero-width window (start == end) is treated
// as always open; the UpsertCampaignRun default of 0/1440 covers the whole
// day through the ordinary start <= end branch.
func withinWindow(run *store.CampaignRun, now time.Time) bool {
	if run.WindowStartMinute == run.WindowEndMinute {
		return true
	}
	minuteOfDay := now.Hour()*60 + now.Minute()
	if run.WindowStartMinute <= run.WindowEndMinute {
		return minuteOfDay >= run.WindowStartMinute && minuteOfDay < run.WindowEndMinute
	}
	// A window that wraps past midnight, e.g. 22:00-07:00.
	return minuteOfDay >= run.WindowStartMinute || minuteOfDay < run.WindowEndMinute
}

func (w *Worker) originate(ctx context.Context, campaign config.Campaign, lead store.Lead) {
	attemptID, err := w.store.StartAttempt(ctx, lead.ID, campaign.Name)
	if err != nil {
		slog.Warn("dialer: start attempt failed", "campaign", campaign.Name, "lead_id", lead.ID, "error", err)
		return
	}

	w.mu.Lock()
	w.attempts[attemptID] = attemptContext{leadID: lead.ID, campaign: campaign, calledNumber: lead.PhoneNumber}
	w.mu.Unlock()

	dialContext := campaign.DialContext
	if dialContext == "" {
		dialContext = defaultDialContext
	}
	endpoint := fmt.Sprintf("Local/%s@%s", lead.PhoneNumber, dialContext)

	_, err = w.ariClient.OriginateChannel(ctx, ari.OriginateRequest{
		Endpoint:       endpoint,
		CallerID:       campaign.CallerID,
		ChannelVars:    map[string]string{"DIALER_ATTEMPT_ID": attemptID},
		TimeoutSeconds: originateTimeoutSeconds,
	})
	if err != nil {
		cause := classifyOriginateError(err)
		slog.Warn("dialer: originate failed", "campaign", campaign.Name, "lead_id", lead.ID, "cause", cause, "error", err)
		w.forgetAttempt(attemptID)
		if markErr := w.store.MarkAttemptOutcome(ctx, attemptID, "", cause, "", "originate_failed", "", store.LeadStatePending); markErr != nil {
			slog.Warn("dialer: mark originate failure failed", "attempt_id", attemptID, "error", markErr)
		}
		if w.metrics != nil {
			w.metrics.RecordOutboundCall(ctx, "originate_failed")
		}
		return
	}
	// The attempt now lives entirely in Stasis control: the PBX answers,
	// runs AMD, and re-enters the engine's application with outbound_amd
	// args. ResolveAttempt/RecordAttemptOutcome close the loop from there.
}

// classifyOriginateError distinguishes a client-side dial string/endpoint
// problem (4xx) from a PBX-side failure (5xx) using the status code
// ari.Client embeds in ErrUnexpectedStatus's message, since the PBX control
// surface has no structured error code today.
func classifyOriginateError(err error) string {
	if !errors.Is(err, ari.ErrUnexpectedStatus) {
		return "transport_error"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "returned 4"):
		return "client_error"
	case strings.Contains(msg, "returned 5"):
		return "server_error"
	default:
		return "unknown_error"
	}
}

func (w *Worker) forgetAttempt(attemptID string) {
	w.mu.Lock()
	delete(w.attempts, attemptID)
	w.mu.Unlock()
}

// ResolveAttempt implements engine.AMDOutcomeRecorder.
func (w *Worker) ResolveAttempt(attemptID string) (config.Campaign, string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ac, ok := w.attempts[attemptID]
	if !ok {
		return config.Campaign{}, "", false
	}
	return ac.campaign, ac.calledNumber, true
}

// RecordAttemptOutcome implements engine.AMDOutcomeRecorder. It persists the
// attempt's disposition and retires or recycles its lead depending on the
// outcome: a call that was attached to a conversation provider or resolved
// to a terminal non-conversation disposition (consent denied/timed out,
// voicemail dropped, machine detected) retires the lead; an error outcome
// marks the lead as errored; anything else leaves it pending for a future
// lease.
func (w *Worker) RecordAttemptOutcome(attemptID string, outcome engine.AMDAttemptOutcome) {
	w.forgetAttempt(attemptID)

	finalState := store.LeadStatePending
	switch outcome.Outcome {
	case session.OutcomeCompleted, session.OutcomeTransferred,
		session.OutcomeConsentDenied, session.OutcomeConsentTimeout,
		session.OutcomeVoicemailDrop, session.OutcomeMachineDetected:
		finalState = store.LeadStateCompleted
	case session.OutcomeError:
		finalState = store.LeadStateError
	}

	amdStatus := "HUMAN"
	if outcome.Outcome == session.OutcomeMachineDetected || outcome.Outcome == session.OutcomeVoicemailDrop {
		amdStatus = "MACHINE"
	}

	ctx := context.Background()
	if err := w.store.MarkAttemptOutcome(ctx, attemptID, amdStatus, "", outcome.ConsentDigit, string(outcome.Outcome), "", finalState); err != nil {
		slog.Warn("dialer: record attempt outcome failed", "attempt_id", attemptID, "error", err)
	}
	if w.metrics != nil {
		w.metrics.RecordOutboundCall(ctx, string(outcome.Outcome))
	}
}

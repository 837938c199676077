// Package store persists the Outbound Dialer's lead queue and campaign
// pacing state in PostgreSQL. It is a higher-write-volume, optionally
// networked sibling of internal/history's embedded call-history database —
// every lease acquisition and attempt outcome is a write, so it is grounded
// on jackc/pgx/v5 rather than modernc.org/sqlite.
//
// Its interface split (Queryer/Tx/DB) and query style are grounded on
// internal/agent/npcstore's PostgresStore: typed $N placeholders, RETURNING
// on writes that need server-generated columns, and a (nil, nil) not-found
// convention via errors.Is(err, pgx.ErrNoRows). The lease transaction itself
// has no precedent in that package — it never ran a multi-statement
// transaction — and is authored fresh using Postgres's SELECT ... FOR UPDATE
// SKIP LOCKED, the idiomatic equivalent of the "BEGIN IMMEDIATE
// select-then-update" pattern.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"
)

// Schema is the SQL DDL for the Outbound Dialer's lead queue and campaign
// pacing tables. Execute it via [Store.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS outbound_campaign_runs (
    campaign_name       TEXT PRIMARY KEY,
    status              TEXT NOT NULL DEFAULT 'draft',
    window_start_minute INT NOT NULL DEFAULT 0,
    window_end_minute   INT NOT NULL DEFAULT 1440,
    started_at          TIMESTAMPTZ,
    completed_at        TIMESTAMPTZ,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbound_leads (
    id            BIGSERIAL PRIMARY KEY,
    campaign_name TEXT NOT NULL,
    phone_number  TEXT NOT NULL,
    lead_name     TEXT NOT NULL DEFAULT '',
    custom_vars   JSONB NOT NULL DEFAULT '{}',
    state         TEXT NOT NULL DEFAULT 'pending',
    leased_until  TIMESTAMPTZ,
    attempt_count INT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_outbound_leads_campaign_state ON outbound_leads(campaign_name, state);

CREATE TABLE IF NOT EXISTS outbound_attempts (
    id            BIGSERIAL PRIMARY KEY,
    attempt_uid   TEXT NOT NULL UNIQUE,
    lead_id       BIGINT NOT NULL REFERENCES outbound_leads(id),
    campaign_name TEXT NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    ended_at      TIMESTAMPTZ,
    amd_status    TEXT NOT NULL DEFAULT '',
    amd_cause     TEXT NOT NULL DEFAULT '',
    consent_digit TEXT NOT NULL DEFAULT '',
    outcome       TEXT NOT NULL DEFAULT '',
    call_id       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_outbound_attempts_lead ON outbound_attempts(lead_id);
`

// LeadState is a lead's position in the dial queue lifecycle.
type LeadState string

const (
	LeadStatePending   LeadState = "pending"
	LeadStateLeased    LeadState = "leased"
	LeadStateDialing   LeadState = "dialing"
	LeadStateCompleted LeadState = "completed"
	LeadStateCanceled  LeadState = "canceled"
	LeadStateError     LeadState = "error"
)

// CampaignStatus is a campaign run's pacing lifecycle, distinct from the
// static config.Campaign declaration: it tracks the mutable state an admin
// surface or the dialer itself advances over time.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusRunning   CampaignStatus = "running"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// Lead is one destination number queued for an outbound campaign.
type Lead struct {
	ID           int64
	CampaignName string
	PhoneNumber  string
	LeadName     string
	CustomVars   map[string]string
	State        LeadState
	LeasedUntil  time.Time
	AttemptCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CampaignRun is the mutable pacing/window state for one named campaign.
type CampaignRun struct {
	CampaignName      string
	Status            CampaignStatus
	WindowStartMinute int
	WindowEndMinute   int
	StartedAt         time.Time
	CompletedAt       time.Time
}

// ErrLeadNotFound is returned by operations addressing a lead ID that does
// not exist.
var ErrLeadNotFound = errors.New("store: lead not found")

// ErrAttemptNotFound is returned by operations addressing an attempt UID
// that does not exist.
var ErrAttemptNotFound = errors.New("store: attempt not found")

// Queryer is the read/write query surface both a plain connection/pool and a
// transaction expose. Both *pgxpool.Pool and pgx.Tx satisfy it structurally.
type Queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Tx is the subset of pgx.Tx the store needs. A *pgx.Tx value returned from
// DB.Begin already satisfies this interface directly.
type Tx interface {
	Queryer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// DB is the database handle the store is built against. poolDB adapts
// *pgxpool.Pool to it.
type DB interface {
	Queryer
	Begin(ctx context.Context) (Tx, error)
}

// poolDB adapts *pgxpool.Pool to DB; the pool's QueryRow/Query/Exec methods
// already match Queryer's signatures exactly, so only Begin needs adapting
// to narrow pgx.Tx's return type down to this package's Tx interface.
type poolDB struct{ pool *pgxpool.Pool }

// NewPoolDB wraps a pgxpool.Pool as a DB.
func NewPoolDB(pool *pgxpool.Pool) DB { return poolDB{pool: pool} }

func (p poolDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.pool.QueryRow(ctx, sql, args...)
}
func (p poolDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.pool.Query(ctx, sql, args...)
}
func (p poolDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.pool.Exec(ctx, sql, args...)
}
func (p poolDB) Begin(ctx context.Context) (Tx, error) {
	return p.pool.Begin(ctx)
}

// Store is the Outbound Dialer's persistence layer.
type Store struct {
	db DB
}

// New builds a Store over db. Call Migrate before issuing queries against a
// fresh database.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes Schema, creating the dialer's tables and indexes if they
// do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// UpsertCampaignRun seeds or updates a campaign's pacing window, leaving its
// status untouched if the row already exists.
func (s *Store) UpsertCampaignRun(ctx context.Context, campaignName string, windowStartMinute, windowEndMinute int) error {
	const query = `
		INSERT INTO outbound_campaign_runs (campaign_name, window_start_minute, window_end_minute)
		VALUES ($1, $2, $3)
		ON CONFLICT (campaign_name) DO UPDATE SET
			window_start_minute = EXCLUDED.window_start_minute,
			window_end_minute = EXCLUDED.window_end_minute,
			updated_at = now()`
	_, err := s.db.Exec(ctx, query, campaignName, windowStartMinute, windowEndMinute)
	if err != nil {
		return fmt.Errorf("store: upsert campaign run %q: %w", campaignName, err)
	}
	return nil
}

// SetCampaignStatus transitions a campaign's pacing status, stamping
// started_at/completed_at when entering running/completed respectively.
func (s *Store) SetCampaignStatus(ctx context.Context, campaignName string, status CampaignStatus) error {
	var query string
	switch status {
	case CampaignStatusRunning:
		query = `UPDATE outbound_campaign_runs SET status = $2, started_at = now(), updated_at = now() WHERE campaign_name = $1`
	case CampaignStatusCompleted:
		query = `UPDATE outbound_campaign_runs SET status = $2, completed_at = now(), updated_at = now() WHERE campaign_name = $1`
	default:
		query = `UPDATE outbound_campaign_runs SET status = $2, updated_at = now() WHERE campaign_name = $1`
	}
	tag, err := s.db.Exec(ctx, query, campaignName, string(status))
	if err != nil {
		return fmt.Errorf("store: set campaign status %q: %w", campaignName, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("store: campaign run %q not found", campaignName)
	}
	return nil
}

// GetCampaignRun returns the campaign's pacing state, or (nil, nil) if it
// has never been seeded via UpsertCampaignRun.
func (s *Store) GetCampaignRun(ctx context.Context, campaignName string) (*CampaignRun, error) {
	const query = `
		SELECT campaign_name, status, window_start_minute, window_end_minute,
		       COALESCE(started_at, 'epoch'::timestamptz), COALESCE(completed_at, 'epoch'::timestamptz)
		FROM outbound_campaign_runs WHERE campaign_name = $1`

	var run CampaignRun
	var status string
	err := s.db.QueryRow(ctx, query, campaignName).Scan(
		&run.CampaignName, &status, &run.WindowStartMinute, &run.WindowEndMinute,
		&run.StartedAt, &run.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get campaign run %q: %w", campaignName, err)
	}
	run.Status = CampaignStatus(status)
	return &run, nil
}

// EnqueueLead inserts one pending lead for campaignName.
func (s *Store) EnqueueLead(ctx context.Context, campaignName, phoneNumber, leadName string, customVars map[string]string) (*Lead, error) {
	varsJSON, err := json.Marshal(emptyMap(customVars))
	if err != nil {
		return nil, fmt.Errorf("store: marshal custom_vars: %w", err)
	}

	const query = `
		INSERT INTO outbound_leads (campaign_name, phone_number, lead_name, custom_vars)
		VALUES ($1, $2, $3, $4)
		RETURNING id, state, created_at, updated_at`

	lead := &Lead{CampaignName: campaignName, PhoneNumber: phoneNumber, LeadName: leadName, CustomVars: customVars}
	var state string
	if err := s.db.QueryRow(ctx, query, campaignName, phoneNumber, leadName, varsJSON).Scan(
		&lead.ID, &state, &lead.CreatedAt, &lead.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("store: enqueue lead: %w", err)
	}
	lead.State = LeadState(state)
	return lead, nil
}

// LeaseNext atomically claims up to limit pending leads for campaignName,
// marking them leased with leasedUntil, and returns the claimed rows. It
// runs as a single transaction using SELECT ... FOR UPDATE SKIP LOCKED so
// concurrent dialer workers never double-lease the same lead.
func (s *Store) LeaseNext(ctx context.Context, campaignName string, limit int, leaseTTL time.Duration) ([]Lead, error) {
	if limit <= 0 {
		return nil, nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: lease next: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const selectQuery = `
		SELECT id, phone_number, lead_name, custom_vars, attempt_count
		FROM outbound_leads
		WHERE campaign_name = $1 AND state = $2
		ORDER BY id
		LIMIT $3
		FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, selectQuery, campaignName, string(LeadStatePending), limit)
	if err != nil {
		return nil, fmt.Errorf("store: lease next: select: %w", err)
	}

	var leads []Lead
	for rows.Next() {
		var l Lead
		var varsJSON []byte
		if err := rows.Scan(&l.ID, &l.PhoneNumber, &l.LeadName, &varsJSON, &l.AttemptCount); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: lease next: scan: %w", err)
		}
		if err := json.Unmarshal(varsJSON, &l.CustomVars); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: lease next: unmarshal custom_vars: %w", err)
		}
		l.CampaignName = campaignName
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("store: lease next: rows: %w", err)
	}
	rows.Close()

	if len(leads) == 0 {
		return nil, tx.Commit(ctx)
	}

	leasedUntil := time.Now().Add(leaseTTL)
	ids := make([]int64, len(leads))
	for i := range leads {
		ids[i] = leads[i].ID
	}

	const updateQuery = `
		UPDATE outbound_leads SET state = $1, leased_until = $2, updated_at = now()
		WHERE id = ANY($3)`
	if _, err := tx.Exec(ctx, updateQuery, string(LeadStateLeased), leasedUntil, ids); err != nil {
		return nil, fmt.Errorf("store: lease next: update: %w", err)
	}

	for i := range leads {
		leads[i].State = LeadStateLeased
		leads[i].LeasedUntil = leasedUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: lease next: commit: %w", err)
	}
	return leads, nil
}

// StartAttempt transitions a leased lead to dialing and records a new
// append-only attempt row, returning the attempt's UID — the identifier
// threaded through the PBX origination's channel variables and back through
// the outbound_amd Stasis args.
func (s *Store) StartAttempt(ctx context.Context, leadID int64, campaignName string) (string, error) {
	attemptID := uuid.NewString()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("store: start attempt: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateLead = `
		UPDATE outbound_leads SET state = $1, attempt_count = attempt_count + 1, updated_at = now()
		WHERE id = $2 AND state = $3`
	tag, err := tx.Exec(ctx, updateLead, string(LeadStateDialing), leadID, string(LeadStateLeased))
	if err != nil {
		return "", fmt.Errorf("store: start attempt: update lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: lead %d is not leased", ErrLeadNotFound, leadID)
	}

	const insertAttempt = `
		INSERT INTO outbound_attempts (attempt_uid, lead_id, campaign_name)
		VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, insertAttempt, attemptID, leadID, campaignName); err != nil {
		return "", fmt.Errorf("store: start attempt: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("store: start attempt: commit: %w", err)
	}
	return attemptID, nil
}

// MarkAttemptOutcome records the terminal disposition of an attempt and
// moves its lead to finalLeadState — LeadStatePending to make it eligible
// for another lease, or a terminal state (LeadStateCompleted/
// LeadStateError/LeadStateCanceled) to retire it. The caller (the dialer's
// Worker) owns the retry policy; this package only persists the decision.
func (s *Store) MarkAttemptOutcome(ctx context.Context, attemptID, amdStatus, amdCause, consentDigit, outcome, callID string, finalLeadState LeadState) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: mark attempt outcome: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateAttempt = `
		UPDATE outbound_attempts
		SET ended_at = now(), amd_status = $2, amd_cause = $3, consent_digit = $4, outcome = $5, call_id = $6
		WHERE attempt_uid = $1
		RETURNING lead_id`
	var leadID int64
	if err := tx.QueryRow(ctx, updateAttempt, attemptID, amdStatus, amdCause, consentDigit, outcome, callID).Scan(&leadID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAttemptNotFound
		}
		return fmt.Errorf("store: mark attempt outcome: update attempt: %w", err)
	}

	const updateLead = `UPDATE outbound_leads SET state = $1, leased_until = NULL, updated_at = now() WHERE id = $2`
	if _, err := tx.Exec(ctx, updateLead, string(finalLeadState), leadID); err != nil {
		return fmt.Errorf("store: mark attempt outcome: update lead: %w", err)
	}

	return tx.Commit(ctx)
}

// RecoverExpiredLeases returns any lead stuck in leased or dialing whose
// lease has expired back to pending, and reports how many it recovered.
func (s *Store) RecoverExpiredLeases(ctx context.Context) (int64, error) {
	const query = `
		UPDATE outbound_leads SET state = $1, leased_until = NULL, updated_at = now()
		WHERE state IN ($2, $3) AND leased_until IS NOT NULL AND leased_until < now()`
	tag, err := s.db.Exec(ctx, query, string(LeadStatePending), string(LeadStateLeased), string(LeadStateDialing))
	if err != nil {
		return 0, fmt.Errorf("store: recover expired leases: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountInFlight reports how many leads for campaignName are currently leased
// or dialing.
func (s *Store) CountInFlight(ctx context.Context, campaignName string) (int, error) {
	const query = `SELECT count(*) FROM outbound_leads WHERE campaign_name = $1 AND state IN ($2, $3)`
	var n int
	err := s.db.QueryRow(ctx, query, campaignName, string(LeadStateLeased), string(LeadStateDialing)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count in flight: %w", err)
	}
	return n, nil
}

// CountPending reports how many leads for campaignName are still waiting to
// be leased.
func (s *Store) CountPending(ctx context.Context, campaignName string) (int, error) {
	const query = `SELECT count(*) FROM outbound_leads WHERE campaign_name = $1 AND state = $2`
	var n int
	err := s.db.QueryRow(ctx, query, campaignName, string(LeadStatePending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count pending: %w", err)
	}
	return n, nil
}

// CompleteCampaignIfDrained atomically transitions a running campaign to
// completed if its queue has no pending and no in-flight leads remaining,
// reporting whether it did so.
func (s *Store) CompleteCampaignIfDrained(ctx context.Context, campaignName string) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("store: complete campaign if drained: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const countQuery = `
		SELECT count(*) FROM outbound_leads
		WHERE campaign_name = $1 AND state IN ($2, $3, $4)`
	var remaining int
	if err := tx.QueryRow(ctx, countQuery, campaignName, string(LeadStatePending), string(LeadStateLeased), string(LeadStateDialing)).Scan(&remaining); err != nil {
		return false, fmt.Errorf("store: complete campaign if drained: count: %w", err)
	}
	if remaining > 0 {
		return false, tx.Commit(ctx)
	}

	const updateQuery = `
		UPDATE outbound_campaign_runs SET status = $2, completed_at = now(), updated_at = now()
		WHERE campaign_name = $1 AND status = $3`
	tag, err := tx.Exec(ctx, updateQuery, campaignName, string(CampaignStatusCompleted), string(CampaignStatusRunning))
	if err != nil {
		return false, fmt.Errorf("store: complete campaign if drained: update: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("store: complete campaign if drained: commit: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func emptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

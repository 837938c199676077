package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Mock DB/Tx types, grounded on internal/agent/npcstore's postgres_test.go
// mockRow/mockRows idiom and extended with a mockTx to exercise the
// transactional lease/outcome paths.
// ---------------------------------------------------------------------------

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockRows struct {
	data   [][]any
	idx    int
	err    error
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *int64:
			*d = v.(int64)
		case *int:
			*d = v.(int)
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

// mockQueryer implements Queryer via swappable funcs, shared by mockDB and
// mockTx so a test can script one transaction's behavior in one place.
type mockQueryer struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockQueryer) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
}

func (m *mockQueryer) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockQueryer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

type mockTx struct {
	mockQueryer
	committed  bool
	rolledBack bool
}

func (t *mockTx) Commit(ctx context.Context) error   { t.committed = true; return nil }
func (t *mockTx) Rollback(ctx context.Context) error { t.rolledBack = true; return nil }

type mockDB struct {
	mockQueryer
	tx        *mockTx
	beginFunc func(ctx context.Context) (Tx, error)
}

func (m *mockDB) Begin(ctx context.Context) (Tx, error) {
	if m.beginFunc != nil {
		return m.beginFunc(ctx)
	}
	if m.tx == nil {
		m.tx = &mockTx{}
	}
	return m.tx, nil
}

// ---------------------------------------------------------------------------

func TestEnqueueLead_InsertsAndReturnsGeneratedFields(t *testing.T) {
	now := time.Now()
	db := &mockDB{mockQueryer: mockQueryer{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int64) = 42
				*dest[1].(*string) = "pending"
				*dest[2].(*time.Time) = now
				*dest[3].(*time.Time) = now
				return nil
			}}
		},
	}}

	s := New(db)
	lead, err := s.EnqueueLead(context.Background(), "spring-promo", "+18005551000", "Jane", map[string]string{"zip": "02139"})
	if err != nil {
		t.Fatalf("EnqueueLead: %v", err)
	}
	if lead.ID != 42 || lead.State != LeadStatePending {
		t.Fatalf("lead = %+v, want id 42 in state pending", lead)
	}
}

func TestLeaseNext_ClaimsPendingLeadsAndCommits(t *testing.T) {
	tx := &mockTx{mockQueryer: mockQueryer{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &mockRows{data: [][]any{
				{int64(1), "+18005551000", "Jane", []byte(`{}`), 0},
				{int64(2), "+18005552000", "", []byte(`{}`), 1},
			}}, nil
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	leads, err := s.LeaseNext(context.Background(), "spring-promo", 2, time.Minute)
	if err != nil {
		t.Fatalf("LeaseNext: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("expected 2 leased leads, got %d", len(leads))
	}
	for _, l := range leads {
		if l.State != LeadStateLeased {
			t.Fatalf("lead %d state = %q, want leased", l.ID, l.State)
		}
		if l.LeasedUntil.IsZero() {
			t.Fatalf("lead %d has no LeasedUntil set", l.ID)
		}
	}
	if !tx.committed {
		t.Fatalf("expected the lease transaction to commit")
	}
	if tx.rolledBack {
		t.Fatalf("did not expect rollback to run after a successful commit (deferred rollback on a committed tx is a no-op in real pgx, but the mock should never be asked to roll back a clean path)")
	}
}

func TestLeaseNext_NoPendingLeadsCommitsEmptyResult(t *testing.T) {
	tx := &mockTx{mockQueryer: mockQueryer{
		queryFunc: func(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
			return &mockRows{}, nil
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	leads, err := s.LeaseNext(context.Background(), "spring-promo", 5, time.Minute)
	if err != nil {
		t.Fatalf("LeaseNext: %v", err)
	}
	if len(leads) != 0 {
		t.Fatalf("expected no leads, got %d", len(leads))
	}
	if !tx.committed {
		t.Fatalf("expected a commit even when nothing was leased")
	}
}

func TestLeaseNext_ZeroLimitIsANoop(t *testing.T) {
	db := &mockDB{}
	s := New(db)
	leads, err := s.LeaseNext(context.Background(), "spring-promo", 0, time.Minute)
	if err != nil || leads != nil {
		t.Fatalf("LeaseNext(limit=0) = %v, %v, want nil, nil", leads, err)
	}
}

func TestStartAttempt_UpdatesLeadAndInsertsAttempt(t *testing.T) {
	var execCalls []string
	tx := &mockTx{mockQueryer: mockQueryer{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			execCalls = append(execCalls, sql)
			if len(execCalls) == 1 {
				return pgconn.NewCommandTag("UPDATE 1"), nil
			}
			return pgconn.NewCommandTag("INSERT 0 1"), nil
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	attemptID, err := s.StartAttempt(context.Background(), 7, "spring-promo")
	if err != nil {
		t.Fatalf("StartAttempt: %v", err)
	}
	if attemptID == "" {
		t.Fatalf("expected a non-empty attempt ID")
	}
	if len(execCalls) != 2 {
		t.Fatalf("expected an UPDATE then an INSERT, got %d exec calls", len(execCalls))
	}
	if !tx.committed {
		t.Fatalf("expected the attempt transaction to commit")
	}
}

func TestStartAttempt_LeadNotLeasedErrors(t *testing.T) {
	tx := &mockTx{mockQueryer: mockQueryer{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 0"), nil
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	if _, err := s.StartAttempt(context.Background(), 7, "spring-promo"); err == nil {
		t.Fatalf("expected an error when the lead row update affects 0 rows")
	}
}

func TestMarkAttemptOutcome_CompletesLeadOnDone(t *testing.T) {
	tx := &mockTx{mockQueryer: mockQueryer{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int64) = 9
				return nil
			}}
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	if err := s.MarkAttemptOutcome(context.Background(), "attempt-1", "HUMAN", "", "1", "completed", "call-9", LeadStateCompleted); err != nil {
		t.Fatalf("MarkAttemptOutcome: %v", err)
	}
	if !tx.committed {
		t.Fatalf("expected the outcome transaction to commit")
	}
}

func TestMarkAttemptOutcome_UnknownAttemptErrors(t *testing.T) {
	tx := &mockTx{mockQueryer: mockQueryer{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	err := s.MarkAttemptOutcome(context.Background(), "missing", "HUMAN", "", "", "completed", "", LeadStateCompleted)
	if err != ErrAttemptNotFound {
		t.Fatalf("err = %v, want ErrAttemptNotFound", err)
	}
}

func TestRecoverExpiredLeases_ReportsRowsAffected(t *testing.T) {
	db := &mockDB{mockQueryer: mockQueryer{
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 3"), nil
		},
	}}
	s := New(db)
	n, err := s.RecoverExpiredLeases(context.Background())
	if err != nil {
		t.Fatalf("RecoverExpiredLeases: %v", err)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}
}

func TestCountInFlight_ReturnsScannedCount(t *testing.T) {
	db := &mockDB{mockQueryer: mockQueryer{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int) = 2
				return nil
			}}
		},
	}}
	s := New(db)
	n, err := s.CountInFlight(context.Background(), "spring-promo")
	if err != nil {
		t.Fatalf("CountInFlight: %v", err)
	}
	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
}

func TestCompleteCampaignIfDrained_CompletesWhenQueueEmpty(t *testing.T) {
	tx := &mockTx{mockQueryer: mockQueryer{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int) = 0
				return nil
			}}
		},
		execFunc: func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
			return pgconn.NewCommandTag("UPDATE 1"), nil
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	completed, err := s.CompleteCampaignIfDrained(context.Background(), "spring-promo")
	if err != nil {
		t.Fatalf("CompleteCampaignIfDrained: %v", err)
	}
	if !completed {
		t.Fatalf("expected the campaign to complete")
	}
}

func TestCompleteCampaignIfDrained_LeavesRunningWhenLeadsRemain(t *testing.T) {
	tx := &mockTx{mockQueryer: mockQueryer{
		queryRowFunc: func(ctx context.Context, sql string, args ...any) pgx.Row {
			return &mockRow{scanFunc: func(dest ...any) error {
				*dest[0].(*int) = 4
				return nil
			}}
		},
	}}
	db := &mockDB{tx: tx}

	s := New(db)
	completed, err := s.CompleteCampaignIfDrained(context.Background(), "spring-promo")
	if err != nil {
		t.Fatalf("CompleteCampaignIfDrained: %v", err)
	}
	if completed {
		t.Fatalf("did not expect completion while leads remain")
	}
	if !tx.committed {
		t.Fatalf("expected a commit on the read-only short-circuit path")
	}
}

package history

import (
	"context"
	"testing"
	"time"

	"github.com/corvidlabs/voxcore/internal/config"
)

func historyConfigNoRetention() config.HistoryConfig {
	return config.HistoryConfig{}
}

func TestDeleteOlderThan_ZeroDaysIsNoop(t *testing.T) {
	s := newTestStore(t)
	rec := sampleRecord("call-1", time.Now().Add(-365*24*time.Hour))
	if err := s.RecordCall(rec); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	n, err := s.DeleteOlderThan(context.Background(), 0)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0", n)
	}
}

func TestDeleteOlderThan_RemovesOldRowsOnly(t *testing.T) {
	s := newTestStore(t)
	old := sampleRecord("call-old", time.Now().Add(-30*24*time.Hour))
	recent := sampleRecord("call-recent", time.Now().Add(-1*time.Hour))
	if err := s.RecordCall(old); err != nil {
		t.Fatalf("RecordCall old: %v", err)
	}
	if err := s.RecordCall(recent); err != nil {
		t.Fatalf("RecordCall recent: %v", err)
	}

	n, err := s.DeleteOlderThan(context.Background(), 7)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}

	summaries, err := s.ListSummaries(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("ListSummaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].CallID != "call-recent" {
		t.Fatalf("summaries = %+v, want only call-recent", summaries)
	}
}

func TestRetentionSweeper_StartIsNoopWithoutCronConfigured(t *testing.T) {
	s := newTestStore(t)
	sweeper := NewRetentionSweeper(s, historyConfigNoRetention())
	if err := sweeper.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// No cron was configured, so stopping an unstarted sweeper must not
	// block waiting on a nil scheduler.
	sweeper.Stop()
}

package ratelimit

import (
	"context"
	"testing"
)

func TestQuotaTracker_NilRedis_FailOpen(t *testing.T) {
	q := NewQuotaTracker(nil)
	result, err := q.CheckDailyQuota(context.Background(), "team-1", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.Limit != 100 {
		t.Errorf("expected limit=100, got %d", result.Limit)
	}
}

func TestQuotaTracker_NilRedis_RecordAnalysis(t *testing.T) {
	q := NewQuotaTracker(nil)
	// RecordAnalysis should be a no-op with nil Redis
	err := q.RecordAnalysis(context.Background(), "team-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

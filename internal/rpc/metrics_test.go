package rpc

import (
	"context"
	"testing"
	"time"
)

func TestMetricsRecording(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	t.Run("record request", func(t *testing.T) {
		m.RecordRequest(ctx, "create", 10*time.Millisecond)
		m.RecordRequest(ctx, "create", 20*time.Millisecond)

		m.mu.RLock()
		count := m.requestCounts["create"]
		m.mu.RUnlock()

		if count != 2 {
			t.Errorf("Expected 2 requests, got %d", count)
		}
	})

	t.Run("record error", func(t *testing.T) {
		m.RecordError(ctx, "create")

		m.mu.RLock()
		errors := m.requestErrors["create"]
		m.mu.RUnlock()

		if errors != 1 {
			t.Errorf("Expected 1 error, got %d", errors)
		}
	})
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	ctx := context.Background()

	m.RecordRequest(ctx, "create", 10*time.Millisecond)
	m.RecordRequest(ctx, "create", 20*time.Millisecond)
	m.RecordRequest(ctx, "update", 5*time.Millisecond)
	m.RecordError(ctx, "create")

	snapshot := m.Snapshot()

	if len(snapshot.Operations) != 2 {
		t.Errorf("Expected 2 operations, got %d", len(snapshot.Operations))
	}

	var createOp *OperationMetrics
	for i := range snapshot.Operations {
		if snapshot.Operations[i].Operation == "create" {
			createOp = &snapshot.Operations[i]
			break
		}
	}

	if createOp == nil {
		t.Fatal("Expected to find 'create' operation")
	}
	if createOp.TotalCount != 2 {
		t.Errorf("Expected 2 total creates, got %d", createOp.TotalCount)
	}
	if createOp.ErrorCount != 1 {
		t.Errorf("Expected 1 error, got %d", createOp.ErrorCount)
	}

	if snapshot.UptimeSeconds < 0 {
		t.Errorf("Expected non-negative uptime, got %f", snapshot.UptimeSeconds)
	}
}

package rpc

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Grupo-AFAL/smartsuite-bridge/internal/telemetry"
)

// Metrics tracks per-operation request counts, error counts, and
// latency for this bridge's single stdio dispatch loop, mirroring each
// observation into the OTel meter stood up by internal/telemetry so it
// is exported alongside cache and summarizer metrics.
type Metrics struct {
	mu            sync.RWMutex
	requestCounts map[string]int64
	requestErrors map[string]int64
	startTime     time.Time

	requestCounter   metric.Int64Counter
	errorCounter     metric.Int64Counter
	latencyHistogram metric.Float64Histogram
}

var (
	dispatchMetricsOnce sync.Once
	dispatchMetrics     struct {
		requestCounter   metric.Int64Counter
		errorCounter     metric.Int64Counter
		latencyHistogram metric.Float64Histogram
	}
)

func initDispatchMetrics() {
	m := telemetry.Meter("github.com/Grupo-AFAL/smartsuite-bridge/rpc")
	dispatchMetrics.requestCounter, _ = m.Int64Counter("ssbridge.rpc.requests",
		metric.WithDescription("JSON-RPC requests handled by the stdio dispatch loop"),
		metric.WithUnit("{request}"),
	)
	dispatchMetrics.errorCounter, _ = m.Int64Counter("ssbridge.rpc.errors",
		metric.WithDescription("JSON-RPC requests that returned an error"),
		metric.WithUnit("{request}"),
	)
	dispatchMetrics.latencyHistogram, _ = m.Float64Histogram("ssbridge.rpc.latency",
		metric.WithDescription("JSON-RPC request handling latency"),
		metric.WithUnit("ms"),
	)
}

// NewMetrics creates a new metrics collector for one Dispatcher.
func NewMetrics() *Metrics {
	dispatchMetricsOnce.Do(initDispatchMetrics)
	return &Metrics{
		requestCounts:    make(map[string]int64),
		requestErrors:    make(map[string]int64),
		startTime:        time.Now(),
		requestCounter:   dispatchMetrics.requestCounter,
		errorCounter:     dispatchMetrics.errorCounter,
		latencyHistogram: dispatchMetrics.latencyHistogram,
	}
}

// RecordRequest records one handled request and its latency, for both
// the in-process snapshot and the OTel exporter.
func (m *Metrics) RecordRequest(ctx context.Context, operation string, latency time.Duration) {
	m.mu.Lock()
	m.requestCounts[operation]++
	m.mu.Unlock()

	attr := metric.WithAttributes(attribute.String("operation", operation))
	if m.requestCounter != nil {
		m.requestCounter.Add(ctx, 1, attr)
	}
	if m.latencyHistogram != nil {
		m.latencyHistogram.Record(ctx, float64(latency)/float64(time.Millisecond), attr)
	}
}

// RecordError records a failed request.
func (m *Metrics) RecordError(ctx context.Context, operation string) {
	m.mu.Lock()
	m.requestErrors[operation]++
	m.mu.Unlock()

	if m.errorCounter != nil {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
	}
}

// Snapshot returns a point-in-time view of per-operation request and
// error counts, used by the status/health surfaces for a quick
// in-process summary without reaching into the OTel exporter.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opsSet := make(map[string]struct{}, len(m.requestCounts))
	for op := range m.requestCounts {
		opsSet[op] = struct{}{}
	}
	for op := range m.requestErrors {
		opsSet[op] = struct{}{}
	}

	operations := make([]OperationMetrics, 0, len(opsSet))
	for op := range opsSet {
		operations = append(operations, OperationMetrics{
			Operation:  op,
			TotalCount: m.requestCounts[op],
			ErrorCount: m.requestErrors[op],
		})
	}

	return MetricsSnapshot{
		UptimeSeconds: time.Since(m.startTime).Seconds(),
		Operations:    operations,
	}
}

// MetricsSnapshot is a point-in-time view of request/error counts.
type MetricsSnapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Operations    []OperationMetrics `json:"operations"`
}

// OperationMetrics holds request/error counts for a single operation.
type OperationMetrics struct {
	Operation  string `json:"operation"`
	TotalCount int64  `json:"total_count"`
	ErrorCount int64  `json:"error_count"`
}

package scheduler

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
)

// MetricsRegistry holds lock-free counters for the scheduler. All fields are
// atomics; per-counter reads are consistent, cross-counter consistency
// across a single snapshot() call is not guaranteed (spec.md §4.1) — that's
// fine for operational dashboards and doesn't matter for the invariants in
// spec.md §8, which only relate cumulative counters to each other, not to a
// single atomic read.
type MetricsRegistry struct {
	submitted uint64
	completed uint64
	failed    uint64
	cancelled uint64

	currentDepth int64
	peakDepth    int64

	totalProcNanos int64 // accumulated generation time, nanoseconds
	totalTokens    uint64

	throughputBits uint64 // float64 bits, atomically stored/loaded

	// throughputGaugeLimiter caps how often the otel throughput gauge is
	// re-recorded, so a burst of small/fast completions doesn't thrash the
	// exporter. The atomic throughput figure itself is always up to date;
	// this only smooths the side-channel mirror.
	throughputGaugeLimiter rate.Sometimes

	otel *otelMirror
}

// otelMirror mirrors the atomic counters into otel instruments. It is a
// side channel: failures here never affect record_* return values, and
// instruments are only touched after the atomics have already been updated.
type otelMirror struct {
	submitted  metric.Int64Counter
	completed  metric.Int64Counter
	failed     metric.Int64Counter
	cancelled  metric.Int64Counter
	depth      metric.Int64UpDownCounter
	tokens     metric.Int64Counter
	throughput metric.Float64Gauge
}

// NewMetricsRegistry builds a registry with atomic counters mirrored into
// instruments created on the given otel Meter. meter may be nil (e.g. in
// tests), in which case mirroring is skipped entirely.
func NewMetricsRegistry(meter metric.Meter) *MetricsRegistry {
	m := &MetricsRegistry{throughputGaugeLimiter: rate.Sometimes{Interval: 250 * time.Millisecond}}
	if meter == nil {
		return m
	}

	om := &otelMirror{}
	om.submitted, _ = meter.Int64Counter("scheduler.requests.submitted")
	om.completed, _ = meter.Int64Counter("scheduler.requests.completed")
	om.failed, _ = meter.Int64Counter("scheduler.requests.failed")
	om.cancelled, _ = meter.Int64Counter("scheduler.requests.cancelled")
	om.depth, _ = meter.Int64UpDownCounter("scheduler.queue.depth")
	om.tokens, _ = meter.Int64Counter("scheduler.tokens.generated")
	om.throughput, _ = meter.Float64Gauge("scheduler.throughput.tokens_per_sec")
	m.otel = om
	return m
}

// RecordSubmitted increments total submissions and current depth, and
// updates peak depth via a CAS retry loop so concurrent increments never
// lose the running maximum.
func (m *MetricsRegistry) RecordSubmitted() {
	atomic.AddUint64(&m.submitted, 1)
	depth := atomic.AddInt64(&m.currentDepth, 1)
	for {
		peak := atomic.LoadInt64(&m.peakDepth)
		if depth <= peak {
			break
		}
		if atomic.CompareAndSwapInt64(&m.peakDepth, peak, depth) {
			break
		}
	}
	if m.otel != nil {
		ctx := context.Background()
		m.otel.submitted.Add(ctx, 1)
		m.otel.depth.Add(ctx, 1)
	}
}

// RecordCompleted increments completed, decrements current depth, and folds
// duration/tokens into the running totals and last-window throughput.
func (m *MetricsRegistry) RecordCompleted(duration time.Duration, tokens int) {
	atomic.AddUint64(&m.completed, 1)
	atomic.AddInt64(&m.currentDepth, -1)
	atomic.AddInt64(&m.totalProcNanos, int64(duration))
	atomic.AddUint64(&m.totalTokens, uint64(tokens))
	m.recomputeThroughput(duration, tokens)

	if m.otel != nil {
		ctx := context.Background()
		m.otel.completed.Add(ctx, 1)
		m.otel.depth.Add(ctx, -1)
		m.otel.tokens.Add(ctx, int64(tokens))
	}
}

// recomputeThroughput stores tokens*1000/duration_ms as the last-window
// throughput figure, guarding against a zero duration.
func (m *MetricsRegistry) recomputeThroughput(duration time.Duration, tokens int) {
	ms := duration.Milliseconds()
	if ms <= 0 {
		return
	}
	throughput := float64(tokens) * 1000 / float64(ms)
	atomic.StoreUint64(&m.throughputBits, floatBits(throughput))
	if m.otel != nil {
		m.throughputGaugeLimiter.Do(func() {
			m.otel.throughput.Record(context.Background(), throughput)
		})
	}
}

// RecordFailed increments total failures and decrements current depth.
func (m *MetricsRegistry) RecordFailed() {
	atomic.AddUint64(&m.failed, 1)
	atomic.AddInt64(&m.currentDepth, -1)
	if m.otel != nil {
		ctx := context.Background()
		m.otel.failed.Add(ctx, 1)
		m.otel.depth.Add(ctx, -1)
	}
}

// RecordCancelled increments total cancellations and decrements current depth.
func (m *MetricsRegistry) RecordCancelled() {
	atomic.AddUint64(&m.cancelled, 1)
	atomic.AddInt64(&m.currentDepth, -1)
	if m.otel != nil {
		ctx := context.Background()
		m.otel.cancelled.Add(ctx, 1)
		m.otel.depth.Add(ctx, -1)
	}
}

// Depth returns the current queue depth.
func (m *MetricsRegistry) Depth() int64 { return atomic.LoadInt64(&m.currentDepth) }

// Snapshot reads a consistent-enough QueueStats (spec.md §4.1: per-counter
// atomicity is sufficient).
func (m *MetricsRegistry) Snapshot() QueueStats {
	completed := atomic.LoadUint64(&m.completed)
	totalNanos := atomic.LoadInt64(&m.totalProcNanos)
	var avg time.Duration
	if completed > 0 {
		avg = time.Duration(totalNanos / int64(completed))
	}
	return QueueStats{
		Submitted:              atomic.LoadUint64(&m.submitted),
		Completed:              completed,
		Failed:                 atomic.LoadUint64(&m.failed),
		Cancelled:              atomic.LoadUint64(&m.cancelled),
		CurrentDepth:           atomic.LoadInt64(&m.currentDepth),
		PeakDepth:              atomic.LoadInt64(&m.peakDepth),
		AverageProcessing:      avg,
		TotalTokensGenerated:   atomic.LoadUint64(&m.totalTokens),
		ThroughputTokensPerSec: floatFromBits(atomic.LoadUint64(&m.throughputBits)),
	}
}

func floatBits(f float64) uint64     { return math.Float64bits(f) }
func floatFromBits(b uint64) float64 { return math.Float64frombits(b) }

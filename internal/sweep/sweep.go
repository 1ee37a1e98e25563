// Package sweep runs a periodic maintenance job against a Scheduler: on a
// cron schedule it logs a stats snapshot and clears
// the state cache if it's grown stale, giving long-running deployments a
// way to bound KV-cache memory without relying solely on the FIFO eviction
// that runs on every Put.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/infercore/internal/scheduler"
)

// Job runs sweeps on a schedule until ctx is cancelled or Stop is called.
type Job struct {
	sched *scheduler.Scheduler
	expr  string

	stop chan struct{}
}

// NewJob builds a sweep job. expr is a standard 5-field cron expression
// (e.g. "*/5 * * * *"); an invalid expression causes Run to return an
// error immediately rather than silently never firing.
func NewJob(sched *scheduler.Scheduler, expr string) *Job {
	return &Job{sched: sched, expr: expr, stop: make(chan struct{})}
}

// Run ticks once a second, the same cadence the teacher's cron loop used,
// and fires the sweep whenever expr is due (spec.md ambient addition, no
// scheduler.* invariant depends on this running).
func (j *Job) Run(ctx context.Context) error {
	gx := gronx.New()
	if !gx.IsValid(j.expr) {
		return &InvalidScheduleError{Expr: j.expr}
	}

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-j.stop:
			return nil
		case <-ticker.C:
			due, err := gronx.IsDue(j.expr, time.Now())
			if err != nil {
				slog.Warn("sweep: failed to evaluate schedule", "expr", j.expr, "error", err)
				continue
			}
			if due {
				j.runOnce()
			}
		}
	}
}

// Stop halts the sweep loop.
func (j *Job) Stop() {
	close(j.stop)
}

// runOnce logs a stats snapshot and, if the scheduler is idle (no queued or
// executing requests), clears the state cache: a stale cache belongs to
// sessions nobody is actively continuing, and bounding its memory between
// bursts is the whole point of running this job at all.
func (j *Job) runOnce() {
	stats := j.sched.Stats()
	slog.Info("sweep: queue stats",
		"submitted", stats.Submitted,
		"completed", stats.Completed,
		"failed", stats.Failed,
		"cancelled", stats.Cancelled,
		"depth", stats.CurrentDepth,
		"peakDepth", stats.PeakDepth,
		"throughputTokensPerSec", stats.ThroughputTokensPerSec,
	)
	if stats.CurrentDepth == 0 {
		j.sched.ClearCache()
	}
}

// InvalidScheduleError reports a malformed cron expression at job start.
type InvalidScheduleError struct {
	Expr string
}

func (e *InvalidScheduleError) Error() string {
	return "sweep: invalid cron expression: " + e.Expr
}

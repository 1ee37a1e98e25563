package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// Config configures the scheduler's bounded resources (spec.md §6).
type Config struct {
	// MaxQueueSize is the hard cap on queued-but-undispatched envelopes.
	MaxQueueSize int

	// WorkerThreads is the number of worker goroutines spawned at
	// construction.
	WorkerThreads int

	// CacheCapacity overrides the derived default
	// (max(1, runtime.NumCPU()/2)) when positive.
	CacheCapacity int

	// ShutdownTimeout bounds shutdown_with_timeout's wait for workers to
	// join (ambient addition, SPEC_FULL §6).
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sane defaults: one worker, a modest queue, and the
// derived cache capacity.
func DefaultConfig() Config {
	return Config{
		MaxQueueSize:    64,
		WorkerThreads:   1,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Scheduler is the public facade: submit batch and streaming requests,
// route cancellations, expose stats, orchestrate shutdown (spec.md §4.6).
type Scheduler struct {
	dispatch *Dispatcher
	cancels  *CancellationRegistry
	metrics  *MetricsRegistry
	cache    *StateCache
	workers  []*Worker

	group *errgroup.Group

	draining atomic.Bool
}

// New constructs the scheduler and starts its worker pool. model, template
// and generator are the out-of-scope collaborators (spec.md §1, §6); meter
// may be nil to skip otel mirroring.
func New(cfg Config, model ModelManager, template TemplateEngine, generator Generator, meter metric.Meter) *Scheduler {
	if cfg.WorkerThreads <= 0 {
		cfg.WorkerThreads = 1
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 64
	}

	metrics := NewMetricsRegistry(meter)
	cache := NewStateCache(cfg.CacheCapacity)
	dispatch := NewDispatcher(cfg.MaxQueueSize)

	group, groupCtx := errgroup.WithContext(context.Background())

	s := &Scheduler{
		dispatch: dispatch,
		cancels:  NewCancellationRegistry(),
		metrics:  metrics,
		cache:    cache,
	}

	for i := 0; i < cfg.WorkerThreads; i++ {
		w := NewWorker(i, dispatch, model, template, generator, metrics, cache)
		s.workers = append(s.workers, w)
		group.Go(func() error {
			return w.Run(groupCtx)
		})
	}
	s.group = group

	return s
}

// SubmitBatch registers a cancellation token under session.ID, enqueues the
// request, and blocks until the worker replies (spec.md §4.6). The caller
// is responsible for not submitting concurrently for the same session.
func (s *Scheduler) SubmitBatch(ctx context.Context, req GenerationRequest, session Session) (GenerationResponse, error) {
	if s.draining.Load() {
		return GenerationResponse{}, NewWorkerError(ErrShuttingDown.Error(), nil)
	}

	token := s.cancels.Register(session.ID)
	env := &RequestEnvelope{
		Request:   req,
		Session:   session,
		Cancel:    token,
		Submitted: time.Now(),
		ResultCh:  make(chan batchOutcome, 1),
	}

	s.metrics.RecordSubmitted()
	if err := s.dispatch.TrySend(env); err != nil {
		s.metrics.RecordFailed()
		s.cancels.Remove(session.ID)
		if err == ErrShuttingDown {
			return GenerationResponse{}, NewWorkerError(ErrShuttingDown.Error(), nil)
		}
		return GenerationResponse{}, ErrFull
	}

	select {
	case outcome, ok := <-env.ResultCh:
		s.cancels.Remove(session.ID)
		if !ok {
			return GenerationResponse{}, NewWorkerError("worker channel closed unexpectedly", nil)
		}
		return outcome.Response, outcome.Err
	case <-ctx.Done():
		// The request is still queued or executing — the worker hasn't
		// replied yet — so the registry entry must survive until it does
		// (spec.md §3: an entry exists iff a request is queued or
		// executing). Reap it once the worker finishes, off the caller's
		// goroutine.
		go func() {
			<-env.ResultCh
			s.cancels.Remove(session.ID)
		}()
		return GenerationResponse{}, ctx.Err()
	}
}

// SubmitStream is SubmitBatch's streaming counterpart: it returns a
// receive-only channel of chunks immediately rather than blocking. The
// bounded capacity of 100 matches spec.md §4.6. The caller should drain the
// returned channel and the completion channel, and is responsible for
// calling CancelSession if it abandons the stream early.
func (s *Scheduler) SubmitStream(ctx context.Context, req GenerationRequest, session Session) (<-chan StreamChunk, <-chan error, error) {
	if s.draining.Load() {
		return nil, nil, NewWorkerError(ErrShuttingDown.Error(), nil)
	}

	token := s.cancels.Register(session.ID)
	env := &RequestEnvelope{
		Request:        req,
		Session:        session,
		Cancel:         token,
		Submitted:      time.Now(),
		StreamCh:       make(chan StreamChunk, 100),
		StreamResultCh: make(chan error, 1),
	}

	s.metrics.RecordSubmitted()
	if err := s.dispatch.TrySend(env); err != nil {
		s.metrics.RecordFailed()
		s.cancels.Remove(session.ID)
		if err == ErrShuttingDown {
			return nil, nil, NewWorkerError(ErrShuttingDown.Error(), nil)
		}
		return nil, nil, ErrFull
	}

	// The token is removed once stream completion is observed, here or via
	// CancelSession.
	done := make(chan error, 1)
	go func() {
		err := <-env.StreamResultCh
		s.cancels.Remove(session.ID)
		done <- err
	}()

	return env.StreamCh, done, nil
}

// CancelSession trips the in-flight request's token for sessionID, if any.
// Returns whether one was tripped. Never blocks waiting for the worker to
// observe the trip.
func (s *Scheduler) CancelSession(sessionID SessionID) bool {
	return s.cancels.Cancel(sessionID)
}

// Stats returns a point-in-time snapshot. A pure read; does not perturb
// counters.
func (s *Scheduler) Stats() QueueStats {
	return s.metrics.Snapshot()
}

// QueueDepth returns the current queue depth.
func (s *Scheduler) QueueDepth() int64 {
	return s.metrics.Depth()
}

// ClearCache drops every cached session's KV state. Safe to call while the
// scheduler is running; a request whose session loses its cache entry this
// way just takes the cold-start (no-offset) path on its next submission
// instead of erroring (internal/sweep calls this during idle periods to
// bound memory between bursts).
func (s *Scheduler) ClearCache() {
	s.cache.Clear()
}

// WorkerStats reports per-worker utilization (SPEC_FULL §4 addition).
func (s *Scheduler) WorkerStats() []RunStats {
	stats := make([]RunStats, len(s.workers))
	for i, w := range s.workers {
		stats[i] = w.Stats()
	}
	return stats
}

// Shutdown closes the dispatcher and awaits all worker tasks. Cooperative:
// workers finish the request they are currently processing; nothing is
// forcibly terminated. New submissions after this call return
// WorkerError("shutting down").
func (s *Scheduler) Shutdown() {
	s.draining.Store(true)
	s.dispatch.Close()
	if err := s.group.Wait(); err != nil {
		slog.Warn("scheduler: worker exited with error during shutdown", "error", err)
	}
}

// ShutdownWithTimeout is Shutdown, but returns the stats captured at
// shutdown start if workers have not all joined within d. Workers continue
// draining in the background; nothing is force-killed (spec.md §4.6).
func (s *Scheduler) ShutdownWithTimeout(d time.Duration) QueueStats {
	s.draining.Store(true)
	startStats := s.metrics.Snapshot()
	s.dispatch.Close()

	done := make(chan struct{})
	go func() {
		if err := s.group.Wait(); err != nil {
			slog.Warn("scheduler: worker exited with error during shutdown", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		return s.metrics.Snapshot()
	case <-time.After(d):
		slog.Warn("scheduler: shutdown timed out, workers still draining in background", "timeout", d)
		return startStats
	}
}

// Close implements the "Dropping without shutdown" design note (spec.md
// §9): close the dispatcher so workers exit, clear the state cache, and
// never block. Callers wanting a graceful drain should call Shutdown or
// ShutdownWithTimeout instead.
func (s *Scheduler) Close() {
	s.draining.Store(true)
	s.dispatch.Close()
	s.cache.Clear()
}

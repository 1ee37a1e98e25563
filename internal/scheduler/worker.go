package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Worker is a long-running loop owned by the Scheduler: receive envelope,
// acquire the shared model, restore/advance KV state, run generation, save
// state, reply (spec.md §4.5).
type Worker struct {
	index     int
	dispatch  *Dispatcher
	model     ModelManager
	template  TemplateEngine
	generator Generator
	metrics   *MetricsRegistry
	cache     *StateCache

	runsCompleted atomic.Uint64
	lastActive    atomic.Int64 // unix nanos
}

// NewWorker constructs a worker. The model's own config, fetched via
// ModelManager.Config(), is forwarded to the template engine as-is
// (spec.md §6's `Option<&Config>`).
func NewWorker(index int, dispatch *Dispatcher, model ModelManager, template TemplateEngine, generator Generator, metrics *MetricsRegistry, cache *StateCache) *Worker {
	return &Worker{
		index:     index,
		dispatch:  dispatch,
		model:     model,
		template:  template,
		generator: generator,
		metrics:   metrics,
		cache:     cache,
	}
}

// Run is the worker loop (spec.md §4.5). It returns once the dispatcher is
// closed and drained; ctx is not watched by the loop itself and is only
// passed on to the collaborators for each request.
func (w *Worker) Run(ctx context.Context) error {
	for {
		env, ok := w.dispatch.Recv()
		if !ok {
			return nil
		}
		w.handleEnvelope(ctx, env)
	}
}

// handleEnvelope processes one envelope, recovering from a panic inside the
// request-specific work so one bad request doesn't take the whole worker
// pool down (spec.md §4.8: "Worker task panic during an envelope: treated
// as failed").
func (w *Worker) handleEnvelope(ctx context.Context, env *RequestEnvelope) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("scheduler: worker recovered from panic", "worker", w.index, "session", env.Session.ID, "panic", r)
			w.metrics.RecordFailed()
			w.failEnvelope(env, NewWorkerError(fmt.Sprintf("worker panic: %v", r), nil))
		}
	}()

	// Step 2: pre-dispatch cancellation check.
	if env.Cancel.IsCancelled() {
		w.metrics.RecordCancelled()
		w.replyCancelled(env)
		return
	}

	// Step 3: ensure the model is loaded.
	if !w.model.IsLoaded(ctx) {
		w.metrics.RecordFailed()
		w.failEnvelope(env, NewWorkerError(ErrModelNotLoaded.Error(), nil))
		return
	}

	w.runsCompleted.Add(1)
	w.lastActive.Store(time.Now().UnixNano())

	if env.isStream() {
		w.runStream(ctx, env)
		return
	}
	w.runBatch(ctx, env)
}

// Stats reports this worker's utilization for RunStats.
func (w *Worker) Stats() RunStats {
	nanos := w.lastActive.Load()
	var last time.Time
	if nanos != 0 {
		last = time.Unix(0, nanos)
	}
	return RunStats{WorkerIndex: w.index, RunsCompleted: w.runsCompleted.Load(), LastActive: last}
}

// --- batch path (spec.md §4.5.1) ---

func (w *Worker) runBatch(ctx context.Context, env *RequestEnvelope) {
	start := time.Now()

	var response GenerationResponse
	var failErr *WorkerError

	err := w.model.WithModel(ctx, func(model Model) error {
		sessionID := env.Session.ID

		// a. Cache probe.
		hasCache := w.cache.Contains(sessionID) && env.Session.CachedMessageCount > 0

		// b. Prompt rendering: always render the full conversation.
		prompt, err := w.template.RenderSessionWithConfig(env.Session, model, w.model.Config())
		if err != nil {
			failErr = NewWorkerError("Template rendering failed", err)
			return failErr
		}

		// c. Context creation.
		rctx, err := w.model.CreateSessionContext(ctx, model, sessionID)
		if err != nil {
			failErr = NewWorkerError("Session context creation failed", err)
			return failErr
		}

		// d. State restore and offset computation.
		var offset *int
		if hasCache {
			cached, ok := w.cache.Get(sessionID)
			if !ok || len(cached) == 0 {
				failErr = NewWorkerError(ErrInternalState.Error(), nil)
				return failErr
			}
			if _, err := rctx.SetStateData(cached); err != nil {
				failErr = NewWorkerError("Session context creation failed", err)
				return failErr
			}
			posMax := rctx.KVCacheSeqPosMax(0)
			off := int(posMax) + 1
			offset = &off
		}

		// e. Generate.
		result, err := w.generator.GenerateText(ctx, model, rctx, prompt, env.Request, env.Cancel, w.model.BatchSize(), offset)
		if err != nil {
			if env.Cancel.IsCancelled() {
				failErr = NewWorkerError(ErrCancelled.Error(), nil)
				return failErr
			}
			failErr = NewWorkerError("Generation failed", err)
			return failErr
		}
		if env.Cancel.IsCancelled() || result.FinishReason.Kind == FinishCancelled {
			failErr = NewWorkerError(ErrCancelled.Error(), nil)
			return failErr
		}

		// f. Tool-call post-processing.
		if result.FinishReason.eligibleForToolCallRewrite() {
			calls, err := w.template.ExtractToolCalls(result.GeneratedText)
			if err == nil && len(calls) > 0 {
				result.FinishReason = FinishReason{Kind: FinishStopped, Reason: "Tool call detected"}
			}
		}

		// g. State save.
		size := rctx.StateSize()
		buf := make([]byte, size)
		n := rctx.CopyStateData(buf)
		w.cache.Put(sessionID, buf[:n])

		response = result
		return nil
	})

	if err != nil {
		if failErr == nil {
			failErr = NewWorkerError("Generation failed", err)
		}
		if failErr.Message == ErrCancelled.Error() {
			w.metrics.RecordCancelled()
		} else {
			w.metrics.RecordFailed()
		}
		w.failEnvelope(env, failErr)
		return
	}

	response.GenerationTime = time.Since(start)
	w.metrics.RecordCompleted(response.GenerationTime, response.TokensGenerated)
	env.ResultCh <- batchOutcome{Response: response}
	close(env.ResultCh)
}

// --- stream path (spec.md §4.5.2) ---

func (w *Worker) runStream(ctx context.Context, env *RequestEnvelope) {
	start := time.Now()
	var tokens int

	err := w.model.WithModel(ctx, func(model Model) error {
		prompt, err := w.template.RenderSessionWithConfig(env.Session, model, w.model.Config())
		if err != nil {
			return NewWorkerError("Template rendering failed", err)
		}

		rctx, err := w.model.CreateSessionContext(ctx, model, env.Session.ID)
		if err != nil {
			return NewWorkerError("Session context creation failed", err)
		}

		// Streaming never restores or saves cache state (spec.md §4.5.2).
		genErr := w.generator.GenerateStream(ctx, model, rctx, prompt, env.Request, env.StreamCh, env.Cancel, w.model.BatchSize(), nil)
		if genErr != nil {
			if env.Cancel.IsCancelled() {
				return NewWorkerError(ErrCancelled.Error(), nil)
			}
			return NewWorkerError("Generation failed", genErr)
		}
		return nil
	})

	close(env.StreamCh)

	if err != nil {
		we, ok := err.(*WorkerError)
		if !ok {
			we = NewWorkerError("Generation failed", err)
		}
		if we.Message == ErrCancelled.Error() {
			w.metrics.RecordCancelled()
		} else {
			w.metrics.RecordFailed()
		}
		env.StreamResultCh <- we
		close(env.StreamResultCh)
		return
	}

	w.metrics.RecordCompleted(time.Since(start), tokens)
	close(env.StreamResultCh)
}

func (w *Worker) failEnvelope(env *RequestEnvelope, werr *WorkerError) {
	if env.isStream() {
		close(env.StreamCh)
		env.StreamResultCh <- werr
		close(env.StreamResultCh)
		return
	}
	env.ResultCh <- batchOutcome{Err: werr}
	close(env.ResultCh)
}

func (w *Worker) replyCancelled(env *RequestEnvelope) {
	w.failEnvelope(env, NewWorkerError(ErrCancelled.Error(), nil))
}

package scheduler

import "context"

// Model is an opaque handle to the loaded language model. The scheduler
// never stores a long-lived reference to it — only a *ModelManager*,
// handed out scoped access inside WithModel's closure (spec.md §5, §9).
type Model any

// ModelManager is the out-of-scope collaborator that owns the single shared
// model instance. WithModel pins the model for the duration of the closure;
// workers never hold it across other suspension points.
type ModelManager interface {
	// IsLoaded reports whether a model is currently loaded.
	IsLoaded(ctx context.Context) bool

	// WithModel runs fn with the loaded model pinned for the closure's
	// duration. Returns an error if no model is loaded, or fn's error.
	WithModel(ctx context.Context, fn func(Model) error) error

	// CreateSessionContext creates an owned inference context bound to the
	// given session identity, so stateful context pools (if any) can reuse
	// their own internal buffers across turns (spec.md §4.5.1c).
	CreateSessionContext(ctx context.Context, model Model, sessionID SessionID) (InferenceContext, error)

	// BatchSize returns the generator batch size to use for this model.
	BatchSize() int

	// Config returns the model's own opaque configuration, forwarded
	// verbatim to the template engine as RenderSessionWithConfig's cfg
	// argument (spec.md §6).
	Config() any
}

// InferenceContext is the per-request, per-session inference state: KV
// cache restore/save and position query (spec.md §6).
type InferenceContext interface {
	// SetStateData loads previously-saved bytes into the context and
	// returns the number of bytes consumed.
	SetStateData(data []byte) (int, error)

	// StateSize returns the size in bytes the current state would
	// serialize to.
	StateSize() int

	// CopyStateData copies the context's serialized state into buf and
	// returns the number of bytes written.
	CopyStateData(buf []byte) int

	// KVCacheSeqPosMax returns the highest populated KV-cache position for
	// the given sequence, or -1 if empty.
	KVCacheSeqPosMax(seqID int) int32
}

// TemplateEngine renders a session's transcript into a prompt string and
// extracts tool calls from generated text. Out of scope per spec.md §1; the
// core only consumes this interface.
type TemplateEngine interface {
	RenderSessionWithConfig(session Session, model Model, cfg any) (string, error)
	ExtractToolCalls(text string) ([]ToolCall, error)
}

// Generator runs the token-generation loop given an owned inference
// context. Out of scope per spec.md §1; the core only consumes this
// interface. offset, when non-nil, tells the generator to treat the first
// *offset tokens of prompt as already reflected in ctx's restored KV state
// and begin producing only after them (spec.md §4.5.1d, GLOSSARY).
type Generator interface {
	GenerateText(
		ctx context.Context,
		model Model,
		rctx InferenceContext,
		prompt string,
		req GenerationRequest,
		cancel CancellationToken,
		batchSize int,
		offset *int,
	) (GenerationResponse, error)

	GenerateStream(
		ctx context.Context,
		model Model,
		rctx InferenceContext,
		prompt string,
		req GenerationRequest,
		tx chan<- StreamChunk,
		cancel CancellationToken,
		batchSize int,
		offset *int,
	) error
}

// Package modelhost is a reference ModelManager: a single model handle
// guarded by a mutex, borrowed out to callers through a closure so the
// scheduler never holds a long-lived reference across suspension points.
package modelhost

import (
	"context"
	"sync"

	"github.com/nextlevelbuilder/infercore/internal/scheduler"
)

// Host owns the one shared model instance for a process. Load/Unload can be
// called concurrently with WithModel; a request that arrives mid-swap either
// sees the old model to completion or ErrModelNotLoaded, never a half state.
type Host struct {
	batchSize int

	// cfgMu guards config separately from mu, so Config can be called from
	// inside a WithModel closure (the worker does this while rendering).
	cfgMu  sync.Mutex
	config any

	mu    sync.Mutex
	model scheduler.Model
}

// NewHost builds an empty host; call Load before any request can be served.
func NewHost(batchSize int) *Host {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Host{batchSize: batchSize}
}

// SetConfig installs the opaque config handed back by Config(). A reference
// host has no config of its own; callers that want RenderSessionWithConfig
// to see something other than nil set it here after construction.
func (h *Host) SetConfig(cfg any) {
	h.cfgMu.Lock()
	h.config = cfg
	h.cfgMu.Unlock()
}

// Config returns the model's own opaque configuration (spec.md §6). This
// reference host just returns whatever SetConfig last installed, nil by
// default.
func (h *Host) Config() any {
	h.cfgMu.Lock()
	defer h.cfgMu.Unlock()
	return h.config
}

// Load installs model as the current handle, replacing any previous one.
func (h *Host) Load(model scheduler.Model) {
	h.mu.Lock()
	h.model = model
	h.mu.Unlock()
}

// Unload clears the current handle; subsequent requests see IsLoaded=false.
func (h *Host) Unload() {
	h.mu.Lock()
	h.model = nil
	h.mu.Unlock()
}

func (h *Host) IsLoaded(_ context.Context) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model != nil
}

// WithModel pins the current model for fn's duration. The mutex is held
// across the whole call, so Load/Unload block until fn returns — matching
// the single-shared-model contract of spec.md §9 rather than a
// check-then-use race.
func (h *Host) WithModel(_ context.Context, fn func(scheduler.Model) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return scheduler.ErrModelNotLoaded
	}
	return fn(h.model)
}

// CreateSessionContext builds a fresh SessionContext bound to sessionID.
// This reference host allocates a new one per call rather than pooling;
// a production implementation might keep a small per-session pool instead.
func (h *Host) CreateSessionContext(_ context.Context, _ scheduler.Model, sessionID scheduler.SessionID) (scheduler.InferenceContext, error) {
	return newSessionContext(sessionID), nil
}

func (h *Host) BatchSize() int { return h.batchSize }

// SessionContext is a minimal in-memory InferenceContext: the "KV state" is
// just the raw bytes last handed to SetStateData, and KVCacheSeqPosMax
// reports len(state)-1, matching the fake-model scenario's literal contract.
type SessionContext struct {
	sessionID scheduler.SessionID
	state     []byte
}

func newSessionContext(id scheduler.SessionID) *SessionContext {
	return &SessionContext{sessionID: id}
}

func (c *SessionContext) SetStateData(data []byte) (int, error) {
	c.state = append([]byte(nil), data...)
	return len(c.state), nil
}

func (c *SessionContext) StateSize() int { return len(c.state) }

func (c *SessionContext) CopyStateData(buf []byte) int {
	return copy(buf, c.state)
}

func (c *SessionContext) KVCacheSeqPosMax(_ int) int32 {
	if len(c.state) == 0 {
		return -1
	}
	return int32(len(c.state) - 1)
}

// Package scheduler implements the concurrent inference request scheduler
// and per-session state cache at the heart of the agent runtime: a bounded
// FIFO work queue, a pool of workers bound to a single shared model, a
// content-addressed KV-state cache with insertion-order eviction, and
// cooperative cancellation — all coordinated through the Scheduler facade.
package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionID identifies a conversational session. At most one request may be
// in flight for a given SessionID at any time; callers are expected to
// serialize their own submissions per session (see Scheduler.SubmitBatch).
type SessionID string

// NewSessionID wraps an opaque identifier as a SessionID.
func NewSessionID(id string) SessionID { return SessionID(id) }

// NewRandomSessionID mints a fresh SessionID backed by a random UUID, for
// callers that don't have a natural channel-native key to use.
func NewRandomSessionID() SessionID { return SessionID(uuid.NewString()) }

// Message is one turn of a session's transcript.
type Message struct {
	Role    string
	Content string
}

// Session is a read-only snapshot of a conversation, cloned into the
// envelope at submission time. Mutating the live session afterward does not
// affect a request already in flight.
type Session struct {
	ID      SessionID
	Messages []Message

	// CachedMessageCount is the number of leading Messages already reflected
	// in the cache entry for this session, as understood by the caller. It
	// must never exceed len(Messages). A cache hit with CachedMessageCount
	// == 0 is treated as a miss (see Worker.runBatch).
	CachedMessageCount int
}

// ToolCall is a parsed tool invocation extracted from generated text, shaped
// like an MCP tool call so a goclaw-style runtime can dispatch it directly.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// GenerationRequest is the caller's request for one turn of generation.
type GenerationRequest struct {
	SessionID      SessionID
	MaxTokens      int // 0 = collaborator default
	Temperature    float64
	TopP           float64
	StopTokens     []string
	StoppingConfig any // opaque, forwarded verbatim to the generator
}

// FinishReasonKind tags why generation stopped.
type FinishReasonKind int

const (
	FinishStopped FinishReasonKind = iota
	FinishMaxTokens
	FinishCancelled
	FinishError
)

// FinishReason is the tagged reason generation ended.
type FinishReason struct {
	Kind    FinishReasonKind
	Reason  string // set when Kind == FinishStopped or FinishError
}

func (f FinishReason) String() string {
	switch f.Kind {
	case FinishStopped:
		return fmt.Sprintf("Stopped(%s)", f.Reason)
	case FinishMaxTokens:
		return "MaxTokens"
	case FinishCancelled:
		return "Cancelled"
	case FinishError:
		return fmt.Sprintf("Error(%s)", f.Reason)
	default:
		return "Unknown"
	}
}

// eligibleForToolCallRewrite reports whether f is a Stopped completion whose
// reason is one a post-processor should scan for a tool call: end-of-sequence,
// stop-token, or max-tokens. The structural FinishMaxTokens kind is distinct
// from a Stopped("max_tokens") reason and is never eligible.
func (f FinishReason) eligibleForToolCallRewrite() bool {
	if f.Kind != FinishStopped {
		return false
	}
	switch f.Reason {
	case "end_of_sequence", "stop_token", "max_tokens":
		return true
	default:
		return false
	}
}

// GenerationResponse is the batch-path result delivered to the caller.
type GenerationResponse struct {
	GeneratedText         string
	TokensGenerated       int
	GenerationTime        time.Duration
	FinishReason          FinishReason
	CompleteTokenSequence []int // optional; nil if the generator didn't report one
}

// StreamChunk is one incremental unit forwarded on the streaming path. Its
// payload beyond DeltaText is opaque to the scheduler — it forwards
// whatever the generator emits.
type StreamChunk struct {
	DeltaText    string
	Token        *int
	FinishReason *FinishReason
}

// QueueStats is a point-in-time snapshot of scheduler metrics.
type QueueStats struct {
	Submitted           uint64
	Completed           uint64
	Failed              uint64
	Cancelled           uint64
	CurrentDepth        int64
	PeakDepth           int64
	AverageProcessing   time.Duration
	TotalTokensGenerated uint64
	ThroughputTokensPerSec float64
}

// RunStats reports per-worker utilization, supplementing the spec's global
// QueueStats with the kind of per-lane figures the original runtime tracked.
type RunStats struct {
	WorkerIndex   int
	RunsCompleted uint64
	LastActive    time.Time
}

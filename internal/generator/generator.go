// Package generator provides reference Generator implementations: a
// word-echo generator for local testing and wiring, and a
// deterministic FakeGenerator matching the literal fixture scenario used to
// validate the scheduler's cache-offset plumbing.
package generator

import (
	"context"
	"strings"
	"time"

	"github.com/nextlevelbuilder/infercore/internal/scheduler"
)

// EchoGenerator is a minimal real-ish Generator: it "generates" by echoing
// back the prompt's own words (skipping the first *offset words when offset
// is set and smaller than the word count), consuming one token per word up
// to MaxTokens (16 when unset). It has no real model behind it — it
// exists so a full Scheduler can be wired end-to-end without a model
// backend, and as the default used by the reference cmd/serve.
type EchoGenerator struct{}

func NewEchoGenerator() *EchoGenerator { return &EchoGenerator{} }

func (g *EchoGenerator) GenerateText(
	ctx context.Context,
	_ scheduler.Model,
	rctx scheduler.InferenceContext,
	prompt string,
	req scheduler.GenerationRequest,
	cancel scheduler.CancellationToken,
	_ int,
	offset *int,
) (scheduler.GenerationResponse, error) {
	words := strings.Fields(prompt)
	start := 0
	if offset != nil && *offset < len(words) {
		start = *offset
	}

	max := req.MaxTokens
	if max <= 0 {
		max = 16
	}

	var out []string
	for i := start; i < len(words) && len(out) < max; i++ {
		select {
		case <-ctx.Done():
			return scheduler.GenerationResponse{}, ctx.Err()
		default:
		}
		if cancel.IsCancelled() {
			return scheduler.GenerationResponse{FinishReason: scheduler.FinishReason{Kind: scheduler.FinishCancelled}}, nil
		}
		out = append(out, words[i])
	}

	finish := scheduler.FinishReason{Kind: scheduler.FinishStopped, Reason: "end_of_sequence"}
	if len(out) >= max {
		finish = scheduler.FinishReason{Kind: scheduler.FinishMaxTokens}
	}

	if _, err := rctx.SetStateData([]byte(strings.Join(out, " "))); err != nil {
		return scheduler.GenerationResponse{}, err
	}

	return scheduler.GenerationResponse{
		GeneratedText:   strings.Join(out, " "),
		TokensGenerated: len(out),
		FinishReason:    finish,
	}, nil
}

func (g *EchoGenerator) GenerateStream(
	ctx context.Context,
	model scheduler.Model,
	rctx scheduler.InferenceContext,
	prompt string,
	req scheduler.GenerationRequest,
	tx chan<- scheduler.StreamChunk,
	cancel scheduler.CancellationToken,
	batchSize int,
	offset *int,
) error {
	resp, err := g.GenerateText(ctx, model, rctx, prompt, req, cancel, batchSize, offset)
	if err != nil {
		return err
	}
	for _, word := range strings.Fields(resp.GeneratedText) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tx <- scheduler.StreamChunk{DeltaText: word + " "}:
		}
	}
	finish := resp.FinishReason
	tx <- scheduler.StreamChunk{FinishReason: &finish}
	return nil
}

// FakeGenerator is the literal fixture used by spec.md §8's worked example:
// generate_text always returns ("OUT", 3, end_of_sequence) after the
// optional Delay, regardless of prompt or offset, and always overwrites the
// context's saved state with the literal bytes "OUT-state" so repeated
// calls are trivially observable in tests.
type FakeGenerator struct {
	Delay time.Duration
}

func NewFakeGenerator() *FakeGenerator { return &FakeGenerator{} }

func (g *FakeGenerator) GenerateText(
	_ context.Context,
	_ scheduler.Model,
	rctx scheduler.InferenceContext,
	_ string,
	_ scheduler.GenerationRequest,
	_ scheduler.CancellationToken,
	_ int,
	offset *int,
) (scheduler.GenerationResponse, error) {
	if g.Delay > 0 {
		time.Sleep(g.Delay)
	}
	_, _ = rctx.SetStateData([]byte("OUT-state"))
	_ = offset // ignored: the output is the same for every offset

	return scheduler.GenerationResponse{
		GeneratedText:   "OUT",
		TokensGenerated: 3,
		FinishReason:    scheduler.FinishReason{Kind: scheduler.FinishStopped, Reason: "end_of_sequence"},
	}, nil
}

func (g *FakeGenerator) GenerateStream(
	ctx context.Context,
	model scheduler.Model,
	rctx scheduler.InferenceContext,
	prompt string,
	req scheduler.GenerationRequest,
	tx chan<- scheduler.StreamChunk,
	cancel scheduler.CancellationToken,
	batchSize int,
	offset *int,
) error {
	resp, err := g.GenerateText(ctx, model, rctx, prompt, req, cancel, batchSize, offset)
	if err != nil {
		return err
	}
	tx <- scheduler.StreamChunk{DeltaText: resp.GeneratedText}
	finish := resp.FinishReason
	tx <- scheduler.StreamChunk{FinishReason: &finish}
	return nil
}

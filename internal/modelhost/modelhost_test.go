package modelhost

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/infercore/internal/scheduler"
)

func TestHost_NotLoadedByDefault(t *testing.T) {
	h := NewHost(4)
	if h.IsLoaded(context.Background()) {
		t.Fatal("expected fresh host to report not loaded")
	}
	err := h.WithModel(context.Background(), func(m scheduler.Model) error { return nil })
	if err == nil {
		t.Fatal("expected WithModel to fail before Load")
	}
}

func TestHost_LoadUnload(t *testing.T) {
	h := NewHost(4)
	h.Load("gpt-fake")
	if !h.IsLoaded(context.Background()) {
		t.Fatal("expected loaded after Load")
	}

	var seen string
	err := h.WithModel(context.Background(), func(m scheduler.Model) error {
		seen = m.(string)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != "gpt-fake" {
		t.Fatalf("expected to observe the loaded model, got %q", seen)
	}

	h.Unload()
	if h.IsLoaded(context.Background()) {
		t.Fatal("expected not loaded after Unload")
	}
}

func TestHost_ConfigDefaultsToNilUntilSet(t *testing.T) {
	h := NewHost(4)
	if h.Config() != nil {
		t.Fatalf("expected nil config by default, got %v", h.Config())
	}

	h.SetConfig("some-config")
	if got := h.Config(); got != "some-config" {
		t.Fatalf("expected installed config, got %v", got)
	}
}

func TestSessionContext_StateRoundTrip(t *testing.T) {
	ctx := newSessionContext("s1")
	if ctx.KVCacheSeqPosMax(0) != -1 {
		t.Fatalf("expected -1 for empty state, got %d", ctx.KVCacheSeqPosMax(0))
	}

	n, err := ctx.SetStateData([]byte("hello"))
	if err != nil || n != 5 {
		t.Fatalf("unexpected SetStateData result: n=%d err=%v", n, err)
	}
	if ctx.StateSize() != 5 {
		t.Fatalf("expected state size 5, got %d", ctx.StateSize())
	}
	if ctx.KVCacheSeqPosMax(0) != 4 {
		t.Fatalf("expected pos max 4 (len-1), got %d", ctx.KVCacheSeqPosMax(0))
	}

	buf := make([]byte, 5)
	copied := ctx.CopyStateData(buf)
	if copied != 5 || string(buf) != "hello" {
		t.Fatalf("unexpected copy result: %d %q", copied, buf)
	}
}

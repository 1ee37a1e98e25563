package chattemplate

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/infercore/internal/scheduler"
)

func TestEngine_RenderSessionWithConfig_NoSystemPrompt(t *testing.T) {
	e := NewEngine()
	session := scheduler.Session{
		ID: "s1",
		Messages: []scheduler.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
	}

	prompt, err := e.RenderSessionWithConfig(session, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "user: hi") || !strings.Contains(prompt, "assistant: hello") {
		t.Fatalf("expected rendered transcript, got %q", prompt)
	}
	if !strings.HasSuffix(prompt, "assistant:") {
		t.Fatalf("expected prompt to end with the assistant turn marker, got %q", prompt)
	}
}

func TestEngine_RenderSessionWithConfig_SystemPrompt(t *testing.T) {
	e := NewEngine()
	session := scheduler.Session{ID: "s1", Messages: []scheduler.Message{{Role: "user", Content: "hi"}}}

	prompt, err := e.RenderSessionWithConfig(session, nil, &Config{SystemPrompt: "be terse"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(prompt, "be terse\n") {
		t.Fatalf("expected system prompt prefix, got %q", prompt)
	}
}

func TestEngine_ExtractToolCalls_None(t *testing.T) {
	e := NewEngine()
	calls, err := e.ExtractToolCalls("just plain text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no tool calls, got %d", len(calls))
	}
}

func TestEngine_ExtractToolCalls_SingleCall(t *testing.T) {
	e := NewEngine()
	text := `before <tool_call>{"name": "lookup", "arguments": {"key": "value"}}</tool_call> after`

	calls, err := e.ExtractToolCalls(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].Name != "lookup" {
		t.Fatalf("expected name lookup, got %q", calls[0].Name)
	}
	if calls[0].Arguments["key"] != "value" {
		t.Fatalf("expected arguments to round-trip, got %+v", calls[0].Arguments)
	}
	if calls[0].ID == "" {
		t.Fatal("expected a generated ID")
	}
}

func TestEngine_ExtractToolCalls_MultipleCalls(t *testing.T) {
	e := NewEngine()
	text := `<tool_call>{"name": "a", "arguments": {}}</tool_call>` +
		`<tool_call>{"name": "b", "arguments": {}}</tool_call>`

	calls, err := e.ExtractToolCalls(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	if calls[0].ID == calls[1].ID {
		t.Fatal("expected distinct IDs per call")
	}
}

func TestEngine_ExtractToolCalls_MalformedBlockSkipped(t *testing.T) {
	e := NewEngine()
	text := `<tool_call>{not json}</tool_call>`
	calls, err := e.ExtractToolCalls(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected malformed block to be skipped, got %d calls", len(calls))
	}
}

// Package chattemplate renders a Session's transcript into a prompt string
// and extracts tool calls from generated text, shaped as MCP tool-call
// requests so a runtime can dispatch them without a second conversion.
package chattemplate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/infercore/internal/scheduler"
)

// Config controls prompt construction. Forwarded opaquely by the scheduler
// as the RenderSessionWithConfig cfg argument; a nil Config renders the bare
// transcript with the default role labels.
type Config struct {
	SystemPrompt string
}

// Engine is a reference TemplateEngine: a plain role-prefixed transcript
// renderer plus a `<tool_call>{...}</tool_call>` text-block extractor.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// RenderSessionWithConfig builds the prompt by the teacher's
// section-at-a-time construction idiom: a system preamble first, then one
// line per transcript message, finally the assistant turn marker.
func (e *Engine) RenderSessionWithConfig(session scheduler.Session, _ scheduler.Model, cfg any) (string, error) {
	var lines []string

	if c, ok := cfg.(*Config); ok && c != nil && c.SystemPrompt != "" {
		lines = append(lines, c.SystemPrompt, "")
	}

	for _, msg := range session.Messages {
		lines = append(lines, fmt.Sprintf("%s: %s", roleLabel(msg.Role), msg.Content))
	}
	lines = append(lines, "assistant:")

	result := strings.Join(lines, "\n")
	slog.Debug("chattemplate: rendered prompt", "session", session.ID, "messages", len(session.Messages), "promptLen", len(result))
	return result, nil
}

func roleLabel(role string) string {
	if role == "" {
		return "user"
	}
	return role
}

// toolCallBlock matches a `<tool_call>{...json...}</tool_call>` span.
var toolCallBlock = regexp.MustCompile(`(?s)<tool_call>\s*(\{.*?\})\s*</tool_call>`)

// rawToolCall is the JSON shape a model is expected to emit inside a
// tool_call block: {"name": "...", "arguments": {...}}.
type rawToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ExtractToolCalls scans text for tool_call blocks and converts each one
// through mcp.CallToolRequest, so the shape downstream consumers receive
// matches what they'd get calling an MCP server directly, then projects it
// back into scheduler.ToolCall.
func (e *Engine) ExtractToolCalls(text string) ([]scheduler.ToolCall, error) {
	matches := toolCallBlock.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil, nil
	}

	calls := make([]scheduler.ToolCall, 0, len(matches))
	for _, m := range matches {
		var raw rawToolCall
		if err := json.Unmarshal([]byte(m[1]), &raw); err != nil {
			slog.Warn("chattemplate: skipping malformed tool_call block", "error", err)
			continue
		}
		if raw.Name == "" {
			continue
		}

		req := mcp.CallToolRequest{}
		req.Params.Name = raw.Name
		req.Params.Arguments = raw.Arguments

		calls = append(calls, scheduler.ToolCall{
			ID:        uuid.NewString(),
			Name:      req.Params.Name,
			Arguments: toArgMap(req.Params.Arguments),
		})
	}
	return calls, nil
}

func toArgMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// Package provider defines the unified interface and shared types for the
// narrative generation services. Each adapter (openai.go, anthropic.go,
// gemini.go) implements Provider, normalizing vendor streaming responses
// into a unified Event sequence.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content is a single content block within a message.
type Content struct {
	Type       ContentType
	Text       string
	ToolUseID  string          // tool_use / tool_result
	ToolName   string          // tool_use / tool_result
	ToolInput  json.RawMessage // tool_use
	ToolResult string          // tool_result
	IsError    bool            // tool_result
}

// Message is a single message in the conversation history.
type Message struct {
	Role    Role
	Content []Content
}

// TextMessage builds a single-block text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []Content{{Type: ContentTypeText, Text: text}}}
}

// ── Tool Schema ───────────────────────────────────────────────────────────────

// ToolSchema describes a tool sent to the LLM (JSON Schema format).
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema properties
	Required    []string
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	Tools        []ToolSchema
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
	TopP         *float64

	// JSONOutput asks the provider for a bare JSON response when supported.
	JSONOutput bool
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM, rendered in real time.
	EventTextDelta EventType = iota

	// EventToolCallDone: a complete tool call (emitted after internal JSON assembly).
	EventToolCallDone

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventToolCallDone
	ToolCall *ToolCallRequest

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// ToolCallRequest represents a tool call requested by the LLM.
type ToolCallRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all narrative providers.
// Implementors are responsible for:
// 1. Converting the unified ChatRequest into the provider's API request format
// 2. Converting the provider's streaming response into a unified Event sequence
// 3. Internally assembling streaming tool-use JSON fragments
// 4. Reporting tool calls only through EventToolCallDone
type Provider interface {
	// Chat initiates a streaming conversation.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Name returns the provider identifier, e.g. "gemini", "openai", "deepseek".
	Name() string

	// DefaultModel returns the default model.
	DefaultModel() string
}

// Complete runs a tool-less request and returns the concatenated text.
// Used for one-shot calls such as summaries and reply suggestions.
func Complete(ctx context.Context, p Provider, req *ChatRequest) (string, error) {
	events, err := p.Chat(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%s call failed: %w", p.Name(), err)
	}

	var result strings.Builder
	var streamErr error
	for event := range events {
		switch event.Type {
		case EventTextDelta:
			result.WriteString(event.TextDelta)
		case EventError:
			streamErr = event.Error
		}
	}
	if streamErr != nil {
		return "", fmt.Errorf("%s stream error: %w", p.Name(), streamErr)
	}
	return strings.TrimSpace(result.String()), nil
}

// StripCodeFence removes a surrounding ```json ... ``` fence some models add
// around JSON output.
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// jsonPrefill opens the assistant turn when a request wants JSON. The
// Messages API has no response format switch, so the reply is started as an
// object and the model continues it.
const jsonPrefill = "{"

const jsonOnlyInstruction = "Reply with a single JSON object and nothing else."

// AnthropicProvider talks to the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
	model  string
}

// NewAnthropicProvider builds a provider. An empty baseURL uses the
// public endpoint.
func NewAnthropicProvider(apiKey, baseURL, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(opts...), model: model}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) DefaultModel() string { return p.model }

func (p *AnthropicProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	params, prefill := p.buildParams(req)
	stream := p.client.Messages.NewStreaming(ctx, params)

	ch := make(chan Event, 16)
	go p.processStream(ctx, stream, prefill, ch)
	return ch, nil
}

// buildParams returns the request and the text the reply was prefilled
// with, which the stream re-emits so callers see the whole object.
func (p *AnthropicProvider) buildParams(req *ChatRequest) (anthropic.MessageNewParams, string) {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  buildAnthropicMessages(req.Messages),
		MaxTokens: maxTokens,
		Tools:     buildAnthropicTools(req.Tools),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}

	system := req.SystemPrompt
	var prefill string
	if req.JSONOutput {
		system = strings.TrimSpace(system + "\n\n" + jsonOnlyInstruction)
		// A prefill is only valid as the final turn after a user message.
		if n := len(params.Messages); n > 0 && params.Messages[n-1].Role == anthropic.MessageParamRoleUser {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(jsonPrefill)))
			prefill = jsonPrefill
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params, prefill
}

type anthropicToolCall struct {
	id   string
	name string
	args strings.Builder
}

// processStream turns content blocks into events. Blocks arrive one at a
// time in index order, so tool calls are reported as each block stops.
func (p *AnthropicProvider) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], prefill string, ch chan<- Event) {
	defer close(ch)
	defer stream.Close()

	send := func(e Event) bool {
		select {
		case ch <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if prefill != "" && !send(Event{Type: EventTextDelta, TextDelta: prefill}) {
		return
	}

	calls := make(map[int64]*anthropicToolCall)
	usage := &Usage{}
	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.InputTokens = int(ev.Message.Usage.InputTokens)

		case anthropic.ContentBlockStartEvent:
			if ev.ContentBlock.Type == "tool_use" {
				tu := ev.ContentBlock.AsToolUse()
				calls[ev.Index] = &anthropicToolCall{id: tu.ID, name: tu.Name}
			}

		case anthropic.ContentBlockDeltaEvent:
			switch d := ev.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if !send(Event{Type: EventTextDelta, TextDelta: d.Text}) {
					return
				}
			case anthropic.InputJSONDelta:
				if c := calls[ev.Index]; c != nil {
					c.args.WriteString(d.PartialJSON)
				}
			}

		case anthropic.ContentBlockStopEvent:
			c := calls[ev.Index]
			if c == nil {
				continue
			}
			delete(calls, ev.Index)
			input := c.args.String()
			if strings.TrimSpace(input) == "" {
				input = "{}"
			}
			call := &ToolCallRequest{ID: c.id, Name: c.name, Input: json.RawMessage(input)}
			if !send(Event{Type: EventToolCallDone, ToolCall: call}) {
				return
			}

		case anthropic.MessageDeltaEvent:
			if ev.Usage.InputTokens > 0 {
				usage.InputTokens = int(ev.Usage.InputTokens)
			}
			usage.OutputTokens = int(ev.Usage.OutputTokens)
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		send(Event{Type: EventError, Error: fmt.Errorf("anthropic stream: %w", err)})
		return
	}
	send(Event{Type: EventDone, Usage: usage})
}

func buildAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, c := range msg.Content {
			switch c.Type {
			case ContentTypeText:
				blocks = append(blocks, anthropic.NewTextBlock(c.Text))
			case ContentTypeToolUse:
				input := map[string]any{}
				if len(c.ToolInput) > 0 {
					_ = json.Unmarshal(c.ToolInput, &input)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(c.ToolUseID, input, c.ToolName))
			case ContentTypeToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(c.ToolUseID, c.ToolResult, c.IsError))
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if msg.Role == RoleAssistant {
			params = append(params, anthropic.NewAssistantMessage(blocks...))
		} else {
			params = append(params, anthropic.NewUserMessage(blocks...))
		}
	}
	return params
}

func buildAnthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Parameters,
				Required:   t.Required,
			},
		}})
	}
	return out
}

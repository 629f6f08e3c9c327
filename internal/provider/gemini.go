package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiProvider implements Provider on the Google Gen AI SDK. It is the
// default narrative service.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiProvider{client: client, model: model}, nil
}

// Client exposes the underlying SDK client so image synthesis can share it.
func (p *GeminiProvider) Client() *genai.Client { return p.client }

func (p *GeminiProvider) Name() string         { return "gemini" }
func (p *GeminiProvider) DefaultModel() string { return p.model }

func (p *GeminiProvider) Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	config := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}
	if req.TopP != nil {
		config.TopP = genai.Ptr(float32(*req.TopP))
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.Tools) > 0 {
		config.Tools = buildGeminiTools(req.Tools)
	}
	if req.JSONOutput {
		config.ResponseMIMEType = "application/json"
	}

	contents := buildGeminiContents(req.Messages)

	ch := make(chan Event, 16)
	go p.processStream(ctx, model, contents, config, ch)
	return ch, nil
}

// processStream drains the SDK's iterator. Gemini delivers function calls
// whole, so each one becomes an EventToolCallDone as soon as it is seen.
func (p *GeminiProvider) processStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, ch chan<- Event) {
	defer close(ch)

	usage := &Usage{}
	for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			ch <- Event{Type: EventError, Error: fmt.Errorf("gemini streaming error: %w", err)}
			return
		}
		if resp.UsageMetadata != nil {
			usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" && !part.Thought {
				ch <- Event{Type: EventTextDelta, TextDelta: part.Text}
			}
			if fc := part.FunctionCall; fc != nil {
				args, _ := json.Marshal(fc.Args)
				if len(args) == 0 || string(args) == "null" {
					args = []byte("{}")
				}
				id := fc.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				ch <- Event{
					Type:     EventToolCallDone,
					ToolCall: &ToolCallRequest{ID: id, Name: fc.Name, Input: args},
				}
			}
		}
	}

	ch <- Event{Type: EventDone, Usage: usage}
}

// buildGeminiContents converts unified messages. Tool results carry only a
// tool_use id, so names are recovered from the preceding function calls.
func buildGeminiContents(msgs []Message) []*genai.Content {
	names := make(map[string]string)
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		var parts []*genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case ContentTypeText:
				parts = append(parts, &genai.Part{Text: c.Text})
			case ContentTypeToolUse:
				names[c.ToolUseID] = c.ToolName
				var args map[string]any
				_ = json.Unmarshal(c.ToolInput, &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   c.ToolUseID,
					Name: c.ToolName,
					Args: args,
				}})
			case ContentTypeToolResult:
				name := c.ToolName
				if name == "" {
					name = names[c.ToolUseID]
				}
				var response map[string]any
				if err := json.Unmarshal([]byte(c.ToolResult), &response); err != nil {
					response = map[string]any{"result": c.ToolResult}
				}
				if c.IsError {
					response = map[string]any{"error": c.ToolResult}
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       c.ToolUseID,
					Name:     name,
					Response: response,
				}})
			}
		}
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}
	return contents
}

func buildGeminiTools(tools []ToolSchema) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		raw, _ := json.Marshal(geminiTypes(map[string]any{
			"type":       "object",
			"properties": t.Parameters,
			"required":   t.Required,
		}))
		var params *genai.Schema
		_ = json.Unmarshal(raw, &params)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// geminiTypes copies a JSON Schema fragment, upper-casing "type" values to
// the genai.Type spelling (STRING, OBJECT, ...).
func geminiTypes(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if s, ok := val.(string); ok && k == "type" {
				out[k] = strings.ToUpper(s)
				continue
			}
			out[k] = geminiTypes(val)
		}
		return out
	default:
		return v
	}
}

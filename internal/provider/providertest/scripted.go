// Package providertest provides a scripted provider.Provider for tests.
package providertest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/Dev-Umb/wife-generate-game/internal/provider"
)

// Step is the scripted response to one Chat call.
type Step struct {
	Text      []string // streamed as separate deltas
	ToolCalls []provider.ToolCallRequest

	// StreamErr is emitted after Text and ToolCalls instead of EventDone.
	StreamErr error
	// ChatErr makes Chat itself fail.
	ChatErr error
	// Block holds the stream open until the context is cancelled or Release is closed.
	Block   bool
	Release chan struct{}
}

// Scripted replays Steps in order, one per Chat call, and records every
// request it received. When the script is exhausted it falls back to
// Default (or an empty text reply).
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	requests []*provider.ChatRequest
	Default  *Step
}

// New creates a scripted provider.
func New(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Call builds a tool call with a JSON-encoded argument map.
func Call(id, name string, args map[string]any) provider.ToolCallRequest {
	raw, _ := json.Marshal(args)
	return provider.ToolCallRequest{ID: id, Name: name, Input: raw}
}

// Reply is a text-only step.
func Reply(text ...string) Step { return Step{Text: text} }

// Push appends steps to the script.
func (s *Scripted) Push(steps ...Step) {
	s.mu.Lock()
	s.steps = append(s.steps, steps...)
	s.mu.Unlock()
}

// Requests returns copies of all recorded requests.
func (s *Scripted) Requests() []*provider.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*provider.ChatRequest(nil), s.requests...)
}

// Calls returns how many times Chat was called.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Scripted) Name() string         { return "scripted" }
func (s *Scripted) DefaultModel() string { return "scripted-model" }

func (s *Scripted) Chat(ctx context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	s.mu.Lock()
	cp := *req
	cp.Messages = append([]provider.Message(nil), req.Messages...)
	s.requests = append(s.requests, &cp)
	var step Step
	switch {
	case len(s.steps) > 0:
		step = s.steps[0]
		s.steps = s.steps[1:]
	case s.Default != nil:
		step = *s.Default
	}
	s.mu.Unlock()

	if step.ChatErr != nil {
		return nil, step.ChatErr
	}

	ch := make(chan provider.Event, len(step.Text)+len(step.ToolCalls)+1)
	go func() {
		defer close(ch)
		for _, t := range step.Text {
			ch <- provider.Event{Type: provider.EventTextDelta, TextDelta: t}
		}
		for i := range step.ToolCalls {
			tc := step.ToolCalls[i]
			ch <- provider.Event{Type: provider.EventToolCallDone, ToolCall: &tc}
		}
		if step.Block {
			select {
			case <-ctx.Done():
				ch <- provider.Event{Type: provider.EventError, Error: ctx.Err()}
				return
			case <-step.Release:
			}
		}
		if step.StreamErr != nil {
			ch <- provider.Event{Type: provider.EventError, Error: step.StreamErr}
			return
		}
		ch <- provider.Event{Type: provider.EventDone, Usage: &provider.Usage{}}
	}()
	return ch, nil
}

// ErrScripted is a generic stream failure for tests.
var ErrScripted = errors.New("scripted failure")

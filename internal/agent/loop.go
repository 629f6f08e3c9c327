package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/metrics"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
	"github.com/Dev-Umb/wife-generate-game/internal/tools"
)

// turnContext is what one turn captured when it started.
type turnContext struct {
	seq         uint64
	conv        *Conversation
	base        *game.State
	text        string
	placeholder string
	journal     *Journal
}

// runTurn executes the round loop:
//  1. Stream the conversation, patching text into the placeholder message
//  2. Collect tool calls from the dedicated tool-call events only
//  3. With no calls, commit; otherwise dispatch them in order and resubmit
//     all acknowledgements as a single message
//  4. Stop at an ending, a stream failure, or after maxRounds openings
//
// Effects accumulate on a tools.Turn and reach the store once, through
// game.Apply, at the end.
func (o *Orchestrator) runTurn(ctx context.Context, tc turnContext) *TurnOutcome {
	start := time.Now()
	turn := tools.NewTurn(tc.base, tc.placeholder)
	outcome := &TurnOutcome{MessageID: tc.placeholder}
	logger := o.logger.With(zap.String("session_id", tc.base.SessionID), zap.Uint64("turn", tc.seq))

	var reply strings.Builder
	pending := []provider.Content{{Type: provider.ContentTypeText, Text: tc.text}}

	for round := 1; round <= o.maxRounds; round++ {
		outcome.Rounds = round
		tc.conv.Append(provider.Message{Role: provider.RoleUser, Content: pending})

		text, calls, err := o.streamRound(ctx, tc.conv, tc.placeholder, reply.String())
		reply.WriteString(text)
		if err != nil {
			outcome.Failed = true
			outcome.Err = err
			logger.Warn("turn failed", zap.Int("round", round), zap.Error(err))
			tc.journal.Log(JournalError, map[string]any{"round": round, "text": err.Error()})
			break
		}
		tc.conv.Append(buildAssistantMessage(text, calls))

		if len(calls) == 0 {
			break
		}

		var ended bool
		pending, ended = o.dispatchCalls(ctx, turn, calls, tc.journal)
		if ended {
			outcome.Ended = true
			break
		}

		if round == o.maxRounds {
			// The acknowledgements ride along with the next user message.
			tc.conv.Append(provider.Message{Role: provider.RoleUser, Content: pending})
			outcome.Capped = true
			logger.Warn("round ceiling reached", zap.Int("rounds", round))
		}
	}

	r := turn.Result
	r.Reply = game.Message{
		ID:        tc.placeholder,
		Sender:    game.SenderPersona,
		Text:      reply.String(),
		ImageURL:  r.Reply.ImageURL,
		Timestamp: time.Now(),
	}
	if outcome.Failed {
		r.Failed = true
		r.Reply.Text = game.ConnectionErrorText
		r.ContextReset = false
	}
	if !outcome.Ended {
		o.io.TextDone(tc.placeholder, r.Reply.Text)
	}

	outcome.Reply = r.Reply.Text
	outcome.resetRequested = r.ContextReset
	outcome.State = o.store.Commit(*r)

	status := "ok"
	switch {
	case outcome.Ended:
		status = "ending"
		tc.journal.Log(JournalEnding, map[string]any{"kind": string(r.Ending.Kind), "title": r.Ending.Title})
		logger.Info("story ended", zap.String("kind", string(r.Ending.Kind)), zap.String("title", r.Ending.Title))
	case outcome.Failed:
		status = "failed"
	default:
		tc.journal.Log(JournalReply, map[string]any{"text": r.Reply.Text, "rounds": outcome.Rounds})
	}
	metrics.RecordTurn(status, outcome.Rounds, time.Since(start))
	logger.Debug("turn committed",
		zap.String("status", status),
		zap.Int("rounds", outcome.Rounds),
		zap.Bool("capped", outcome.Capped),
		zap.Bool("reset", outcome.resetRequested))
	return outcome
}

// streamRound opens one stream and drains it. Transient errors that arrive
// before any content are retried with backoff; after content has been
// shown, an error ends the round with whatever text arrived. Each delta is
// also written to the placeholder in the store after shown, the reply text
// of earlier rounds.
func (o *Orchestrator) streamRound(ctx context.Context, conv *Conversation, placeholderID, shown string) (string, []*provider.ToolCallRequest, error) {
	topP := defaultTopP
	temperature := o.temperature
	req := &provider.ChatRequest{
		Model:        o.model,
		Messages:     conv.Messages(),
		Tools:        o.toolSchemas,
		SystemPrompt: conv.System(),
		MaxTokens:    o.maxTokens,
		Temperature:  &temperature,
		TopP:         &topP,
	}

	for attempt := range maxRetries + 1 {
		events, err := o.provider.Chat(ctx, req)
		if err != nil {
			if attempt < maxRetries && isRetryableError(err) {
				if werr := o.waitRetry(ctx, attempt, err); werr != nil {
					return "", nil, werr
				}
				continue
			}
			return "", nil, fmt.Errorf("narrative call failed: %w", err)
		}

		o.io.ThinkingStart()

		var text strings.Builder
		var calls []*provider.ToolCallRequest
		var streamErr error
		receivedContent := false
		for event := range events {
			switch event.Type {
			case provider.EventTextDelta:
				receivedContent = true
				text.WriteString(event.TextDelta)
				o.store.SetMessageText(placeholderID, shown+text.String())
				o.io.TextDelta(placeholderID, event.TextDelta)
			case provider.EventToolCallDone:
				if event.ToolCall != nil {
					receivedContent = true
					calls = append(calls, event.ToolCall)
				}
			case provider.EventError:
				streamErr = event.Error
			}
		}

		if streamErr != nil && !receivedContent && attempt < maxRetries && isRetryableError(streamErr) {
			if werr := o.waitRetry(ctx, attempt, streamErr); werr != nil {
				return "", nil, werr
			}
			continue
		}
		if streamErr != nil {
			return text.String(), calls, fmt.Errorf("stream error: %w", streamErr)
		}
		return text.String(), calls, nil
	}
	return "", nil, fmt.Errorf("narrative call failed after %d retries", maxRetries)
}

func (o *Orchestrator) waitRetry(ctx context.Context, attempt int, cause error) error {
	delay := o.backoff(attempt)
	o.io.SystemMessage(formatRetryMessage(attempt, maxRetries, delay, cause))
	o.logger.Info("retrying narrative call", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(cause))
	if err := o.sleep(ctx, delay); err != nil {
		return fmt.Errorf("retry interrupted: %w", err)
	}
	return nil
}

// dispatchCalls runs calls in order against turn and returns their
// acknowledgements as tool_result contents. It stops at the first call that
// ends the story; later calls are discarded.
func (o *Orchestrator) dispatchCalls(ctx context.Context, turn *tools.Turn, calls []*provider.ToolCallRequest, journal *Journal) ([]provider.Content, bool) {
	acks := make([]provider.Content, 0, len(calls))
	for i, call := range calls {
		o.io.ToolStart(call.ID, call.Name, string(call.Input))
		journal.Log(JournalToolCall, map[string]any{"action": call.Name, "input": string(call.Input)})

		res := o.dispatcher.Dispatch(ctx, turn, *call)

		o.io.ToolDone(call.ID, call.Name, res.Status, res.IsError)
		journal.Log(JournalToolResult, map[string]any{"action": call.Name, "result": res.Status, "error": res.IsError})

		acks = append(acks, provider.Content{
			Type:       provider.ContentTypeToolResult,
			ToolUseID:  call.ID,
			ToolName:   call.Name,
			ToolResult: res.Content(),
			IsError:    res.IsError,
		})

		if turn.Ended() {
			if skipped := len(calls) - i - 1; skipped > 0 {
				o.logger.Info("ending reached, discarding remaining calls", zap.Int("discarded", skipped))
			}
			return acks, true
		}
	}
	return acks, false
}

// buildAssistantMessage creates a history message from a round's response.
func buildAssistantMessage(text string, toolCalls []*provider.ToolCallRequest) provider.Message {
	var contents []provider.Content

	if text != "" {
		contents = append(contents, provider.Content{
			Type: provider.ContentTypeText,
			Text: text,
		})
	}

	for _, tc := range toolCalls {
		contents = append(contents, provider.Content{
			Type:      provider.ContentTypeToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Name,
			ToolInput: tc.Input,
		})
	}

	if len(contents) == 0 {
		contents = append(contents, provider.Content{Type: provider.ContentTypeText, Text: " "})
	}
	return provider.Message{Role: provider.RoleAssistant, Content: contents}
}

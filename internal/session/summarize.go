package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
)

// Summary is a compacted stretch of conversation.
type Summary struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FallbackSummary is used when the narrative service cannot summarize.
var FallbackSummary = Summary{Title: "记忆片段", Content: "一段模糊的记忆..."}

// Summarizer compacts a span of chat into a memory. It never fails; on any
// error it returns FallbackSummary.
type Summarizer interface {
	Summarize(ctx context.Context, personaName, userName string, msgs []game.Message) Summary
}

// LLMSummarizer asks a narrative provider for a JSON summary.
type LLMSummarizer struct {
	Provider provider.Provider
	Model    string // optional: a cheaper model. Empty = provider default.
	Logger   *zap.Logger
}

const summarizePrompt = `Please summarize the following conversation dialogue into a concise narrative memory (Paragraph format).
Context: %s and %s.

Instructions:
1. Focus on the key events, emotional shifts, and scene changes.
2. Keep it under 150 words.
3. Create a short poetic title (max 6 words).
4. Language: Chinese.
5. Output JSON: { "title": string, "content": string }

Dialogue:
%s`

// Transcript renders messages as "speaker: text" lines.
func Transcript(msgs []game.Message, personaName, userName string) string {
	var b strings.Builder
	for _, m := range msgs {
		speaker := "System"
		switch m.Sender {
		case game.SenderUser:
			speaker = userName
		case game.SenderPersona:
			speaker = personaName
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *LLMSummarizer) Summarize(ctx context.Context, personaName, userName string, msgs []game.Message) Summary {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prompt := fmt.Sprintf(summarizePrompt, userName, personaName, Transcript(msgs, personaName, userName))
	text, err := provider.Complete(ctx, s.Provider, &provider.ChatRequest{
		Model:      s.Model,
		Messages:   []provider.Message{provider.TextMessage(provider.RoleUser, prompt)},
		MaxTokens:  1024,
		JSONOutput: true,
	})
	if err != nil {
		logger.Warn("summarization failed", zap.Error(err))
		return FallbackSummary
	}

	var sum Summary
	if err := json.Unmarshal([]byte(provider.StripCodeFence(text)), &sum); err != nil || (sum.Title == "" && sum.Content == "") {
		logger.Warn("summarization returned unusable output", zap.String("output", text), zap.Error(err))
		return FallbackSummary
	}
	return sum
}

// SpanImage picks the illustration for a summary memory: the newest message
// image in span, else fallback.
func SpanImage(span []game.Message, fallback string) string {
	for i := len(span) - 1; i >= 0; i-- {
		if span[i].ImageURL != "" {
			return span[i].ImageURL
		}
	}
	return fallback
}

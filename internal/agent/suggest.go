package agent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
)

// suggestionLines is how much recent chat the suggestion prompt sees.
const suggestionLines = 5

// FallbackSuggestions are offered when generation fails.
var FallbackSuggestions = []string{"(微笑)", "我们去别的地方吧", "接下来做什么？"}

// SuggestionGenerator asks the narrative service for three reply options.
// It never fails; any problem yields FallbackSuggestions.
type SuggestionGenerator struct {
	Provider provider.Provider
	Prompts  *Prompts
	Model    string
	Logger   *zap.Logger
}

// Generate returns up to three replies for the player given st.
func (g *SuggestionGenerator) Generate(ctx context.Context, st *game.State) []string {
	logger := g.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	prompt, err := g.Prompts.suggestionPrompt(st, chatLines(st, suggestionLines))
	if err != nil {
		logger.Warn("suggestion prompt failed", zap.Error(err))
		return fallbackSuggestions()
	}

	// JSON mode is left off: OpenAI's json_object format cannot return a
	// bare array, and parseSuggestions accepts both shapes.
	text, err := provider.Complete(ctx, g.Provider, &provider.ChatRequest{
		Model:     g.Model,
		Messages:  []provider.Message{provider.TextMessage(provider.RoleUser, prompt)},
		MaxTokens: 512,
	})
	if err != nil {
		logger.Warn("suggestion generation failed", zap.Error(err))
		return fallbackSuggestions()
	}

	replies, ok := parseSuggestions(text)
	if !ok {
		logger.Warn("suggestion output unusable", zap.String("output", truncate(text, 200)))
		return fallbackSuggestions()
	}
	return replies
}

func fallbackSuggestions() []string {
	return append([]string(nil), FallbackSuggestions...)
}

// parseSuggestions accepts a JSON array of strings or an object with a
// "suggestions" array, optionally fenced. Blank entries are dropped and at
// most three are kept.
func parseSuggestions(text string) ([]string, bool) {
	raw := provider.StripCodeFence(text)
	if i := strings.IndexAny(raw, "[{"); i > 0 {
		raw = raw[i:]
	}

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		var wrapped struct {
			Suggestions []string `json:"suggestions"`
		}
		if err := json.Unmarshal([]byte(raw), &wrapped); err != nil {
			return nil, false
		}
		list = wrapped.Suggestions
	}

	out := make([]string, 0, 3)
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
		if len(out) == 3 {
			break
		}
	}
	return out, len(out) > 0
}

// chatLines renders the last n history entries as "speaker: text".
func chatLines(st *game.State, n int) []string {
	history := st.History
	if len(history) > n {
		history = history[len(history)-n:]
	}
	personaName := ""
	if st.Persona != nil {
		personaName = st.Persona.Name
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		speaker := "System"
		switch m.Sender {
		case game.SenderUser:
			speaker = st.UserName
		case game.SenderPersona:
			speaker = personaName
		}
		lines = append(lines, speaker+": "+m.Text)
	}
	return lines
}

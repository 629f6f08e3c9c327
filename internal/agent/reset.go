package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/session"
)

// resetContext compacts everything since the last summary into one story
// memory and swaps in a fresh conversation seeded with the memories and any
// history committed after the summarized span.
// committed is the session right after the scene-switching turn;
// fallbackImage is the scene image from before the switch.
func (o *Orchestrator) resetContext(ctx context.Context, committed *game.State, fallbackImage string) error {
	from := committed.SummaryIndex
	if from < 0 || from > len(committed.History) {
		from = 0
	}
	span := committed.History[from:]
	nextIndex := len(committed.History)

	sum := o.summarizer.Summarize(ctx, personaName(committed), committed.UserName, span)
	memory := game.StoryMemory{
		ID:          game.NewID("mem-summary"),
		Title:       sum.Title,
		Description: sum.Content,
		ImageURL:    session.SpanImage(span, fallbackImage),
		Timestamp:   time.Now(),
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sessionID != committed.SessionID {
		return fmt.Errorf("session %s unloaded before its summary was applied", committed.SessionID)
	}

	updated := o.store.Update(func(st *game.State) {
		st.Memories = append(st.Memories, memory)
		st.SummaryIndex = nextIndex
	})
	if updated == nil {
		return ErrNoSession
	}

	system, err := o.prompts.SystemPrompt(updated, game.MemoriesContext(updated.Memories))
	if err != nil {
		return fmt.Errorf("rebuild system prompt: %w", err)
	}
	var later []game.Message
	if nextIndex <= len(updated.History) {
		// Turns that committed while the summary ran stay live.
		later = updated.History[nextIndex:]
	}
	o.conv = NewConversation(system, later)

	o.journal.Log(JournalContextReset, map[string]any{
		"title":    sum.Title,
		"messages": len(span),
		"memories": len(updated.Memories),
	})
	o.logger.Info("context reset",
		zap.String("session_id", committed.SessionID),
		zap.String("summary", sum.Title),
		zap.Int("span", len(span)),
		zap.Int("summary_index", nextIndex))
	return nil
}

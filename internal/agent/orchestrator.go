// Package agent runs roleplay turns: it streams the narrative service,
// dispatches the actions the model requests, commits each turn's effects
// atomically and schedules the detached work (context resets and reply
// suggestions) that follows a turn.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/imagegen"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
	"github.com/Dev-Umb/wife-generate-game/internal/session"
	"github.com/Dev-Umb/wife-generate-game/internal/tools"
	"github.com/Dev-Umb/wife-generate-game/internal/tui"
)

var (
	// ErrTurnInProgress is returned when a message arrives while a turn runs.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrSessionEnded is returned once the story reached an ending.
	ErrSessionEnded = errors.New("the story has ended")
	// ErrNoSession is returned when no session is loaded.
	ErrNoSession = errors.New("no session loaded")
)

const (
	defaultMaxRounds   = 5
	defaultTemperature = 0.9
	defaultTopP        = 0.95
)

// Options configures an Orchestrator. Provider, Synthesizer and IO are
// required.
type Options struct {
	Provider    provider.Provider
	Synthesizer imagegen.Synthesizer
	IO          tui.IO
	Logger      *zap.Logger
	Prompts     *Prompts

	// Summarizer compacts history on scene switches. Nil uses an
	// LLMSummarizer on Provider.
	Summarizer session.Summarizer
	// Saver persists snapshots. Nil keeps sessions in memory only.
	Saver *session.Saver

	Model       string
	Temperature *float64
	MaxTokens   int
	MaxRounds   int

	// JournalDir receives per-session JSONL journals. Empty disables them.
	JournalDir string
}

// TurnOutcome reports how a turn finished.
type TurnOutcome struct {
	// MessageID is the id of the assistant message the turn produced.
	MessageID string
	Reply     string
	Rounds    int
	Ended     bool
	// Failed is set when the narrative service broke off the turn; Err
	// holds the cause.
	Failed bool
	Err    error
	// Capped is set when the round ceiling stopped the turn.
	Capped bool
	State  *game.State

	resetRequested bool
}

// Orchestrator owns one active session at a time.
type Orchestrator struct {
	provider    provider.Provider
	dispatcher  *tools.Dispatcher
	summarizer  session.Summarizer
	suggestions *SuggestionGenerator
	synth       imagegen.Synthesizer
	saver       *session.Saver
	prompts     *Prompts
	io          tui.IO
	logger      *zap.Logger

	model       string
	temperature float64
	maxTokens   int
	maxRounds   int
	journalDir  string
	toolSchemas []provider.ToolSchema

	store *game.StateStore
	bg    *BackgroundManager

	// backoff and sleep are swapped out by tests.
	backoff func(attempt int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	conv      *Conversation
	busy      bool
	seq       uint64
	sessionID string
	journal   *Journal
}

// New creates an Orchestrator with no session loaded.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	prompts := opts.Prompts
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	summarizer := opts.Summarizer
	if summarizer == nil {
		summarizer = &session.LLMSummarizer{Provider: opts.Provider, Logger: logger}
	}
	temperature := defaultTemperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxRounds := opts.MaxRounds
	if maxRounds <= 0 {
		maxRounds = defaultMaxRounds
	}

	o := &Orchestrator{
		provider:   opts.Provider,
		dispatcher: tools.NewDispatcher(opts.Synthesizer, logger.Named("tools")),
		summarizer: summarizer,
		suggestions: &SuggestionGenerator{
			Provider: opts.Provider,
			Prompts:  prompts,
			Model:    opts.Model,
			Logger:   logger,
		},
		synth:       opts.Synthesizer,
		saver:       opts.Saver,
		prompts:     prompts,
		io:          opts.IO,
		logger:      logger,
		model:       opts.Model,
		temperature: temperature,
		maxTokens:   opts.MaxTokens,
		maxRounds:   maxRounds,
		journalDir:  opts.JournalDir,
		toolSchemas: tools.Schemas(),
		store:       game.NewStateStore(nil),
		bg:          NewBackgroundManager(logger.Named("background")),
		backoff:     retryDelay,
		sleep:       sleepWithContext,
	}
	o.store.OnChange(func(st *game.State) {
		o.io.Snapshot(st)
		if o.saver != nil {
			o.saver.Schedule(st)
		}
	})
	return o
}

// Snapshot returns a copy of the active session, or nil.
func (o *Orchestrator) Snapshot() *game.State {
	return o.store.Snapshot()
}

// Start installs st as the active session and rebuilds its conversation.
func (o *Orchestrator) Start(st *game.State) error {
	if st == nil {
		return ErrNoSession
	}
	if st.SummaryIndex < 0 || st.SummaryIndex > len(st.History) {
		st.SummaryIndex = len(st.History)
	}
	conv, err := o.restoreConversation(st)
	if err != nil {
		return err
	}

	var journal *Journal
	if o.journalDir != "" {
		journal, err = OpenJournal(o.journalDir, st.SessionID)
		if err != nil {
			o.logger.Warn("journal disabled", zap.Error(err))
			journal = nil
		}
	}

	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		journal.Close()
		return ErrTurnInProgress
	}
	o.journal.Close()
	o.conv = conv
	o.seq++
	o.sessionID = st.SessionID
	o.journal = journal
	o.mu.Unlock()

	o.store.Replace(st)
	journal.Log(JournalSessionStart, map[string]any{
		"persona":  personaName(st),
		"messages": len(st.History),
		"ended":    st.Ended(),
	})
	o.logger.Info("session started",
		zap.String("session_id", st.SessionID),
		zap.Int("messages", len(st.History)),
		zap.Int("summary_index", st.SummaryIndex))

	if len(st.SuggestedReplies) > 0 && !st.Ended() {
		o.io.Suggestions(st.SuggestedReplies)
	}
	return nil
}

// restoreConversation rebuilds the narrative handle: the system prompt
// carries every memory as backstory, and only history after the last
// summary is replayed.
func (o *Orchestrator) restoreConversation(st *game.State) (*Conversation, error) {
	system, err := o.prompts.SystemPrompt(st, game.MemoriesContext(st.Memories))
	if err != nil {
		return nil, fmt.Errorf("build system prompt: %w", err)
	}
	return NewConversation(system, st.History[st.SummaryIndex:]), nil
}

// SendAction sends a UI action as its encoded user message.
func (o *Orchestrator) SendAction(ctx context.Context, action game.UIAction) (*TurnOutcome, error) {
	text, err := action.Text()
	if err != nil {
		return nil, err
	}
	return o.SendMessage(ctx, text)
}

// SendMessage runs one turn for text. It returns an error only when the
// turn could not start; a turn broken off by the narrative service returns
// an outcome with Failed set.
func (o *Orchestrator) SendMessage(ctx context.Context, text string) (*TurnOutcome, error) {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return nil, ErrTurnInProgress
	}
	base := o.store.Snapshot()
	if base == nil || o.conv == nil {
		o.mu.Unlock()
		return nil, ErrNoSession
	}
	if base.Ended() {
		o.mu.Unlock()
		return nil, ErrSessionEnded
	}
	o.busy = true
	o.seq++
	seq := o.seq
	conv := o.conv
	journal := o.journal
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.busy = false
		o.mu.Unlock()
	}()

	now := time.Now()
	userMsg := game.Message{ID: game.NewID("msg-user"), Sender: game.SenderUser, Text: text, Timestamp: now}
	placeholder := game.Message{ID: game.NewID("msg-persona"), Sender: game.SenderPersona, Timestamp: now}
	base = o.store.Update(func(st *game.State) {
		st.History = append(st.History, userMsg, placeholder)
		st.SuggestedReplies = nil
	})
	if base == nil {
		return nil, ErrNoSession
	}
	journal.Log(JournalUserMessage, map[string]any{"text": text})

	outcome := o.runTurn(ctx, turnContext{
		seq:         seq,
		conv:        conv,
		base:        base,
		text:        text,
		placeholder: placeholder.ID,
		journal:     journal,
	})
	o.afterTurn(outcome, base, seq)
	return outcome, nil
}

// afterTurn schedules the detached work a committed turn triggers.
func (o *Orchestrator) afterTurn(outcome *TurnOutcome, base *game.State, seq uint64) {
	if outcome.Failed || outcome.Ended || outcome.State == nil {
		return
	}
	committed := outcome.State
	if outcome.resetRequested {
		o.bg.Go(JobSummarize, func(ctx context.Context) error {
			return o.resetContext(ctx, committed, base.SceneImage)
		})
	}
	o.bg.Go(JobSuggest, func(ctx context.Context) error {
		replies := o.suggestions.Generate(ctx, committed)
		o.applySuggestions(seq, replies)
		return nil
	})
}

// applySuggestions installs replies unless a newer turn (or session) has
// started since they were requested.
func (o *Orchestrator) applySuggestions(seq uint64, replies []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seq != seq {
		o.logger.Debug("dropping stale suggestions", zap.Uint64("seq", seq), zap.Uint64("current", o.seq))
		return
	}
	if o.store.Update(func(st *game.State) { st.SuggestedReplies = replies }) == nil {
		return
	}
	o.journal.Log(JournalSuggestions, replies)
	o.io.Suggestions(replies)
}

// ReturnToMenu writes a final save and unloads the session. Detached work
// still running for it is discarded when it finishes.
func (o *Orchestrator) ReturnToMenu(ctx context.Context) error {
	o.mu.Lock()
	if o.busy {
		o.mu.Unlock()
		return ErrTurnInProgress
	}
	o.seq++
	journal := o.journal
	o.journal = nil
	o.conv = nil
	o.sessionID = ""
	o.mu.Unlock()

	var err error
	if o.saver != nil {
		err = o.saver.Flush(ctx)
	}
	prev := o.store.Reset()
	if prev != nil {
		journal.Log(JournalSessionEnd, map[string]any{"messages": len(prev.History)})
	}
	journal.Close()
	return err
}

// Close unloads the session, stops background work and flushes the saver.
func (o *Orchestrator) Close(ctx context.Context) error {
	err := o.ReturnToMenu(ctx)
	if errors.Is(err, ErrTurnInProgress) {
		return err
	}
	o.bg.Close()
	if o.saver != nil {
		if cerr := o.saver.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Wait blocks until detached work launched so far has finished.
func (o *Orchestrator) Wait(ctx context.Context) error {
	return o.bg.Wait(ctx)
}

func personaName(st *game.State) string {
	if st.Persona == nil {
		return ""
	}
	return st.Persona.Name
}

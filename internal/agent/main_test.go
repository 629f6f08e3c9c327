package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/imagegen"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
	"github.com/Dev-Umb/wife-generate-game/internal/provider/providertest"
	"github.com/Dev-Umb/wife-generate-game/internal/session"
	"github.com/Dev-Umb/wife-generate-game/internal/tui"
)

func TestMain(m *testing.M) {
	// The genai SDK pulls in opencensus, whose init starts a stats worker.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// fakeSynth returns deterministic URLs and can fail per image class.
type fakeSynth struct {
	mu    sync.Mutex
	fail  map[imagegen.Class]bool
	calls []imagegen.Request
}

func (f *fakeSynth) Synthesize(_ context.Context, req imagegen.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.fail[req.Class] {
		return "", imagegen.ErrNoImage
	}
	return fmt.Sprintf("img://%s/%d", req.Class, len(f.calls)), nil
}

func (f *fakeSynth) requests() []imagegen.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]imagegen.Request(nil), f.calls...)
}

// fakeSummarizer records each span it is asked to compact.
type fakeSummarizer struct {
	mu    sync.Mutex
	spans [][]game.Message
}

func (f *fakeSummarizer) Summarize(_ context.Context, _, _ string, msgs []game.Message) session.Summary {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spans = append(f.spans, append([]game.Message(nil), msgs...))
	return session.Summary{Title: "雨夜", Content: "They walked to the library."}
}

func (f *fakeSummarizer) calls() [][]game.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]game.Message(nil), f.spans...)
}

// memStore is an in-memory session.Store.
type memStore struct {
	mu     sync.Mutex
	states map[string]*game.State
	saves  int
}

func newMemStore() *memStore { return &memStore{states: make(map[string]*game.State)} }

func (m *memStore) Save(_ context.Context, st *game.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[st.SessionID] = st.Clone()
	m.saves++
	return nil
}

func (m *memStore) Load(_ context.Context, id string) (*game.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return st.Clone(), nil
}

func (m *memStore) List(context.Context) ([]session.SessionInfo, error) { return nil, nil }

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *memStore) Close() error { return nil }

type harness struct {
	o       *Orchestrator
	ui      *tui.BufferIO
	prov    *providertest.Scripted
	suggest *providertest.Scripted
	synth   *fakeSynth
	summ    *fakeSummarizer
	store   *memStore
}

// newHarness builds an orchestrator whose narrative turns come from steps.
// Suggestions use a separate scripted provider so their detached calls do
// not consume the turn script.
func newHarness(t *testing.T, steps ...providertest.Step) *harness {
	t.Helper()
	h := &harness{
		ui:      tui.NewBufferIO(),
		prov:    providertest.New(steps...),
		suggest: providertest.New(),
		synth:   &fakeSynth{fail: make(map[imagegen.Class]bool)},
		summ:    &fakeSummarizer{},
		store:   newMemStore(),
	}
	h.suggest.Default = &providertest.Step{Text: []string{`["好啊", "(点头)", "然后呢？"]`}}

	h.o = New(Options{
		Provider:    h.prov,
		Synthesizer: h.synth,
		IO:          h.ui,
		Summarizer:  h.summ,
		Saver:       session.NewSaver(h.store, time.Hour, nil, nil),
	})
	h.o.suggestions.Provider = h.suggest
	h.o.backoff = func(int) time.Duration { return 0 }
	t.Cleanup(func() {
		_ = h.o.Close(context.Background())
	})
	return h
}

// start loads a fresh session with affection 40 and two opening messages.
func (h *harness) start(t *testing.T) *game.State {
	t.Helper()
	st := game.NewState("阿明", &game.Persona{
		Name:             "Luna",
		Appearance:       "silver hair",
		Job:              "librarian",
		CurrentScenario:  "Rainy station",
		HiddenSecrets:    []string{"fragment"},
		InitialAffection: 40,
	})
	st.SceneImage = "img://old-scene"
	st.History = []game.Message{
		game.PrologueMessage("初遇", "Rainy station"),
		{ID: "msg-persona-0", Sender: game.SenderPersona, Text: "你好"},
	}
	if err := h.o.Start(st); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return st
}

func (h *harness) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.o.Wait(ctx); err != nil {
		t.Fatalf("background work did not finish: %v", err)
	}
}

// toolStep is a step that requests the given calls and no text.
func toolStep(calls ...provider.ToolCallRequest) providertest.Step {
	return providertest.Step{ToolCalls: calls}
}

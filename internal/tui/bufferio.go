package tui

import (
	"io"
	"strings"
	"sync"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

// ToolEvent is one recorded ToolStart/ToolDone pair.
type ToolEvent struct {
	ID     string
	Name   string
	Result string
	IsErr  bool
	Done   bool
}

// BufferIO is a silent IO that records everything it receives. It backs
// headless runs and tests.
type BufferIO struct {
	mu          sync.Mutex
	inputs      []string
	texts       map[string]*strings.Builder
	snapshots   int
	last        *game.State
	tools       []ToolEvent
	suggestions [][]string
	notices     []string
	warnings    []string
	errs        []string
	streams     int
}

var _ IO = (*BufferIO)(nil)

// NewBufferIO creates a BufferIO that will return inputs from ReadInput
// in order, then io.EOF.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs, texts: make(map[string]*strings.Builder)}
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	line := b.inputs[0]
	b.inputs = b.inputs[1:]
	return line, nil
}

func (b *BufferIO) Snapshot(st *game.State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots++
	b.last = st
}

func (b *BufferIO) ThinkingStart() {
	b.mu.Lock()
	b.streams++
	b.mu.Unlock()
}

func (b *BufferIO) TextDelta(id, delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sb, ok := b.texts[id]
	if !ok {
		sb = &strings.Builder{}
		b.texts[id] = sb
	}
	sb.WriteString(delta)
}

func (b *BufferIO) TextDone(_, _ string) {}

func (b *BufferIO) ToolStart(id, name, _ string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools = append(b.tools, ToolEvent{ID: id, Name: name})
}

func (b *BufferIO) ToolDone(id, name, result string, isErr bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.tools) - 1; i >= 0; i-- {
		if b.tools[i].ID == id && !b.tools[i].Done {
			b.tools[i] = ToolEvent{ID: id, Name: name, Result: result, IsErr: isErr, Done: true}
			return
		}
	}
	b.tools = append(b.tools, ToolEvent{ID: id, Name: name, Result: result, IsErr: isErr, Done: true})
}

func (b *BufferIO) Suggestions(replies []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.suggestions = append(b.suggestions, append([]string(nil), replies...))
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notices = append(b.notices, text)
}

func (b *BufferIO) Warning(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.warnings = append(b.warnings, msg)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, msg)
}

// Text returns everything streamed into the message with id.
func (b *BufferIO) Text(id string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sb, ok := b.texts[id]; ok {
		return sb.String()
	}
	return ""
}

// Last returns the most recent snapshot.
func (b *BufferIO) Last() *game.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// SnapshotCount returns how many snapshots were published.
func (b *BufferIO) SnapshotCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshots
}

// Streams returns how many times ThinkingStart was called.
func (b *BufferIO) Streams() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streams
}

// Tools returns the recorded tool events.
func (b *BufferIO) Tools() []ToolEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]ToolEvent(nil), b.tools...)
}

// SuggestionSets returns every Suggestions call in order.
func (b *BufferIO) SuggestionSets() [][]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]string(nil), b.suggestions...)
}

// Notices returns the system messages.
func (b *BufferIO) Notices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.notices...)
}

// Warnings returns the warnings.
func (b *BufferIO) Warnings() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.warnings...)
}

// Errors returns the errors.
func (b *BufferIO) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errs...)
}

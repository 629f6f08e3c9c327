package tui

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

// PlainIO implements IO with line-oriented terminal output. Streamed text
// is printed as it arrives; tool activity is shown only when verbose.
type PlainIO struct {
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer
	verbose bool

	mu         sync.Mutex
	last       *game.State
	personaTag string
	endingSeen bool
}

// NewPlainIO creates a PlainIO reading lines from in.
func NewPlainIO(in io.Reader, out, errOut io.Writer, verbose bool) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	return &PlainIO{scanner: s, out: out, errOut: errOut, verbose: verbose}
}

func (p *PlainIO) ReadInput() (string, error) {
	fmt.Fprint(p.out, "\n> ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// Last returns the most recent snapshot, or nil.
func (p *PlainIO) Last() *game.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *PlainIO) Snapshot(st *game.State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = st
	if st == nil {
		p.endingSeen = false
		return
	}
	if st.Persona != nil {
		p.personaTag = st.Persona.Name
	}
	if st.Ended() && !p.endingSeen {
		p.endingSeen = true
		RenderEnding(p.out, st.Ending)
	}
}

func (p *PlainIO) ThinkingStart() {
	p.mu.Lock()
	defer p.mu.Unlock()
	name := p.personaTag
	if name == "" {
		name = "..."
	}
	fmt.Fprintf(p.out, "\n%s: ", name)
}

func (p *PlainIO) TextDelta(_, delta string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(_, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out)
}

func (p *PlainIO) ToolStart(_, name, _ string) {
	if !p.verbose {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "  [%s]\n", name)
}

func (p *PlainIO) ToolDone(_, name, result string, isErr bool) {
	if !p.verbose && !isErr {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if isErr {
		fmt.Fprintf(p.errOut, "  [%s] error: %s\n", name, truncate(result, 80))
		return
	}
	fmt.Fprintf(p.out, "  [%s] %s\n", name, truncate(result, 60))
}

func (p *PlainIO) Suggestions(replies []string) {
	if len(replies) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, r := range replies {
		fmt.Fprintf(p.out, "  %d. %s\n", i+1, r)
	}
}

func (p *PlainIO) SystemMessage(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, text)
}

func (p *PlainIO) Warning(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "warning: %s\n", msg)
}

func (p *PlainIO) Error(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.errOut, "error: %s\n", msg)
}

// truncate shortens s to maxLen runes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

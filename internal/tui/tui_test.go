package tui

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

func TestParseCommand(t *testing.T) {
	suggestions := []string{"(微笑)", "我们去别的地方吧", "接下来做什么？"}
	tests := []struct {
		line string
		want Command
	}{
		{"hello", Command{Kind: CommandChat, Text: "hello"}},
		{"  hi there  ", Command{Kind: CommandChat, Text: "hi there"}},
		{"2", Command{Kind: CommandChat, Text: "我们去别的地方吧"}},
		{"7", Command{Kind: CommandChat, Text: "7"}},
		{"/move", Command{Kind: CommandAction, Action: game.UIActionMove}},
		{"/leave", Command{Kind: CommandAction, Action: game.UIActionLeave}},
		{"/ff", Command{Kind: CommandAction, Action: game.UIActionFastForward}},
		{"/MENU", Command{Kind: CommandMenu}},
		{"/quit", Command{Kind: CommandQuit}},
		{"/status", Command{Kind: CommandStatus}},
		{"/memories", Command{Kind: CommandMemories}},
		{"/items", Command{Kind: CommandItems}},
		{"/help", Command{Kind: CommandHelp}},
		{"/dance now", Command{Kind: CommandUnknown, Text: "/dance now"}},
	}
	for _, tt := range tests {
		if got := ParseCommand(tt.line, suggestions); got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestPlainIO(t *testing.T) {
	var out, errOut bytes.Buffer
	p := NewPlainIO(strings.NewReader("first line\n"), &out, &errOut, false)

	line, err := p.ReadInput()
	if err != nil || line != "first line" {
		t.Fatalf("ReadInput() = %q, %v", line, err)
	}
	if _, err := p.ReadInput(); !errors.Is(err, io.EOF) {
		t.Errorf("second ReadInput err = %v, want EOF", err)
	}

	st := game.NewState("阿明", &game.Persona{Name: "Luna"})
	p.Snapshot(st)
	p.ThinkingStart()
	p.TextDelta("m1", "你好")
	p.TextDelta("m1", "呀")
	p.TextDone("m1", "你好呀")
	p.ToolStart("c1", "adjust_affection", "{}")
	p.ToolDone("c1", "adjust_affection", "ok", false)
	p.ToolDone("c2", "fly", "Unknown action: fly", true)
	p.Suggestions([]string{"a", "b"})
	p.Warning("save failed")

	got := out.String()
	for _, want := range []string{"Luna: 你好呀", "1. a", "2. b"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "adjust_affection") {
		t.Error("non-verbose PlainIO should hide successful tool calls")
	}
	if e := errOut.String(); !strings.Contains(e, "Unknown action: fly") || !strings.Contains(e, "warning: save failed") {
		t.Errorf("stderr = %q", e)
	}
}

func TestPlainIOEndingBannerOnce(t *testing.T) {
	var out bytes.Buffer
	p := NewPlainIO(strings.NewReader(""), &out, io.Discard, false)
	st := game.NewState("阿明", &game.Persona{Name: "Luna"})
	st.Ending = &game.Ending{Kind: game.EndingUnfavorable, Title: "Farewell", Description: "Rain"}

	p.Snapshot(st)
	p.Snapshot(st)
	if n := strings.Count(out.String(), "BAD END"); n != 1 {
		t.Errorf("banner printed %d times, want 1", n)
	}
}

func TestBufferIO(t *testing.T) {
	b := NewBufferIO("one", "two")
	for _, want := range []string{"one", "two"} {
		if got, err := b.ReadInput(); err != nil || got != want {
			t.Fatalf("ReadInput() = %q, %v", got, err)
		}
	}
	if _, err := b.ReadInput(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}

	b.TextDelta("m1", "a")
	b.TextDelta("m2", "x")
	b.TextDelta("m1", "b")
	if b.Text("m1") != "ab" || b.Text("m2") != "x" {
		t.Errorf("texts = %q / %q", b.Text("m1"), b.Text("m2"))
	}

	b.ToolStart("c1", "grant_contact", "")
	b.ToolDone("c1", "grant_contact", "ok", false)
	tools := b.Tools()
	if len(tools) != 1 || !tools[0].Done || tools[0].Result != "ok" {
		t.Errorf("tools = %+v", tools)
	}
}

func TestRenderHelpers(t *testing.T) {
	st := game.NewState("阿明", &game.Persona{Name: "Luna", Race: "Elf", Job: "Librarian", HiddenSecrets: []string{"a", "b"}})
	st.Affection = 600
	st.History = []game.Message{
		game.PrologueMessage("初遇", "Rainy station"),
		{Sender: game.SenderPersona, Text: "hello", ImageURL: "data:image/png;base64,AAAA"},
	}

	var buf bytes.Buffer
	RenderStatus(&buf, st)
	if !strings.Contains(buf.String(), "600/1000 [Loving]") || !strings.Contains(buf.String(), "0/2 unlocked") {
		t.Errorf("status = %s", buf.String())
	}

	buf.Reset()
	RenderHistory(&buf, st)
	if !strings.Contains(buf.String(), "── 【序章：初遇】") || !strings.Contains(buf.String(), "inline image/png") {
		t.Errorf("history = %s", buf.String())
	}

	buf.Reset()
	RenderMemories(&buf, st)
	if !strings.Contains(buf.String(), "No memories yet.") {
		t.Errorf("memories = %s", buf.String())
	}
}

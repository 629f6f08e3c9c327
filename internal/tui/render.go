package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

// RenderHistory prints the chat log, e.g. after resuming a session.
func RenderHistory(w io.Writer, st *game.State) {
	name := "?"
	if st.Persona != nil {
		name = st.Persona.Name
	}
	for _, m := range st.History {
		switch m.Sender {
		case game.SenderUser:
			fmt.Fprintf(w, "\n%s: %s\n", st.UserName, m.Text)
		case game.SenderPersona:
			fmt.Fprintf(w, "\n%s: %s\n", name, m.Text)
		default:
			fmt.Fprintf(w, "\n%s\n", renderSystem(m.Text))
		}
		if m.ImageURL != "" {
			fmt.Fprintf(w, "  (image: %s)\n", imageLabel(m.ImageURL))
		}
	}
}

// renderSystem frames system entries by their prefix.
func renderSystem(text string) string {
	switch {
	case strings.HasPrefix(text, game.ItemPrefix), strings.HasPrefix(text, game.EventPrefix):
		return "  ★ " + strings.ReplaceAll(text, "\n", "\n    ")
	case strings.HasPrefix(text, game.ProloguePrefix):
		return "── " + text
	default:
		return "  " + text
	}
}

// imageLabel keeps data URIs from flooding the terminal.
func imageLabel(url string) string {
	if strings.HasPrefix(url, "data:") {
		mime, _, _ := strings.Cut(strings.TrimPrefix(url, "data:"), ";")
		return fmt.Sprintf("inline %s, %d bytes", mime, len(url))
	}
	return url
}

// RenderStatus prints affection, scene and flags.
func RenderStatus(w io.Writer, st *game.State) {
	if st == nil || st.Persona == nil {
		fmt.Fprintln(w, "No active session.")
		return
	}
	together := "together"
	if st.Separated {
		together = "apart"
	}
	fmt.Fprintf(w, "%s (%s, %s)\n", st.Persona.Name, st.Persona.Race, st.Persona.Job)
	fmt.Fprintf(w, "  affection: %d/%d [%s]\n", st.Affection, game.MaxAffection, game.LevelFor(st.Affection))
	fmt.Fprintf(w, "  status:    %s, contact %v\n", together, st.HasContact)
	fmt.Fprintf(w, "  scene:     %s\n", truncate(st.Persona.CurrentScenario, 70))
	if !st.Visual.IsZero() {
		fmt.Fprintf(w, "  visual:    %s\n", truncate(st.Visual.Describe(), 70))
	}
	fmt.Fprintf(w, "  secrets:   %d/%d unlocked\n", len(st.UnlockedSecrets), len(st.Persona.HiddenSecrets))
}

// RenderMemories prints the memory gallery.
func RenderMemories(w io.Writer, st *game.State) {
	if st == nil || len(st.Memories) == 0 {
		fmt.Fprintln(w, "No memories yet.")
		return
	}
	for i, m := range st.Memories {
		fmt.Fprintf(w, "%2d. %s  %s\n    %s\n", i+1, m.Timestamp.Format("01-02 15:04"), m.Title, truncate(m.Description, 70))
	}
}

// RenderItems prints the inventory.
func RenderItems(w io.Writer, st *game.State) {
	if st == nil || len(st.Inventory) == 0 {
		fmt.Fprintln(w, "No items yet.")
		return
	}
	for _, it := range st.Inventory {
		fmt.Fprintf(w, "- %s: %s\n", it.Name, truncate(it.Description, 70))
	}
}

// RenderEnding prints the ending banner.
func RenderEnding(w io.Writer, e *game.Ending) {
	label := "HAPPY END"
	if e.Kind == game.EndingUnfavorable {
		label = "BAD END"
	}
	fmt.Fprintf(w, "\n════ %s ════\n%s\n\n%s\n", label, e.Title, e.Description)
	if e.ImageURL != "" {
		fmt.Fprintf(w, "(image: %s)\n", imageLabel(e.ImageURL))
	}
}

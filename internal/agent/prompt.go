package agent

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Dev-Umb/wife-generate-game/internal/config"
	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

//go:embed prompts/*.md
var defaultPromptFS embed.FS

// promptNames lists the templates. Each corresponds to "{name}.md" in the
// embedded prompts/ directory.
var promptNames = []string{"system", "suggestions", "persona"}

var promptFuncs = template.FuncMap{"join": strings.Join}

// Prompts holds the parsed prompt templates.
type Prompts struct {
	templates map[string]*template.Template
}

// PromptOverrideDir returns ~/.config/waifu/prompts, or "" when the home
// directory is unknown.
func PromptOverrideDir() string {
	dir, err := config.Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "prompts")
}

// LoadPrompts parses the embedded templates. A non-empty file with the same
// name in overrideDir replaces the embedded one.
func LoadPrompts(overrideDir string) (*Prompts, error) {
	p := &Prompts{templates: make(map[string]*template.Template, len(promptNames))}
	for _, name := range promptNames {
		text, err := loadPromptText(name, overrideDir)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Funcs(promptFuncs).Option("missingkey=zero").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse prompt %s: %w", name, err)
		}
		p.templates[name] = tmpl
	}
	return p, nil
}

// DefaultPrompts returns the embedded templates with no overrides.
func DefaultPrompts() *Prompts {
	p, err := LoadPrompts("")
	if err != nil {
		panic(err)
	}
	return p
}

func loadPromptText(name, overrideDir string) (string, error) {
	filename := name + ".md"
	if overrideDir != "" {
		if data, err := os.ReadFile(filepath.Join(overrideDir, filename)); err == nil && len(bytes.TrimSpace(data)) > 0 {
			return strings.TrimSpace(string(data)), nil
		}
	}
	data, err := defaultPromptFS.ReadFile("prompts/" + filename)
	if err != nil {
		return "", fmt.Errorf("embedded prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (p *Prompts) render(name string, data any) (string, error) {
	tmpl, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", name, err)
	}
	return buf.String(), nil
}

type systemPromptData struct {
	Persona        *game.Persona
	UserName       string
	Affection      int
	MaxAffection   int
	PlayerPersona  string
	Memories       string
	FragmentUnlock int
	SecretUnlock   int
	FastForward    string
}

// SystemPrompt renders the roleplay instructions for st. memories is the
// compacted backstory in "[title]: description" lines.
func (p *Prompts) SystemPrompt(st *game.State, memories string) (string, error) {
	persona := st.Persona
	if persona == nil {
		persona = &game.Persona{}
	}
	return p.render("system", systemPromptData{
		Persona:        persona,
		UserName:       st.UserName,
		Affection:      st.Affection,
		MaxAffection:   game.MaxAffection,
		PlayerPersona:  st.PlayerPersona,
		Memories:       memories,
		FragmentUnlock: game.FragmentUnlockAffection,
		SecretUnlock:   game.SecretUnlockAffection,
		FastForward:    game.FastForwardCommand,
	})
}

type suggestionPromptData struct {
	UserName     string
	Persona      *game.Persona
	Affection    int
	MaxAffection int
	Separated    bool
	Plot         string
	FastForward  string
	Lines        []string
}

func (p *Prompts) suggestionPrompt(st *game.State, lines []string) (string, error) {
	persona := st.Persona
	if persona == nil {
		persona = &game.Persona{}
	}
	return p.render("suggestions", suggestionPromptData{
		UserName:     st.UserName,
		Persona:      persona,
		Affection:    st.Affection,
		MaxAffection: game.MaxAffection,
		Separated:    st.Separated,
		Plot:         persona.CurrentScenario,
		FastForward:  game.FastForwardCommand,
		Lines:        lines,
	})
}

type personaPromptData struct {
	UserName     string
	Prefs        Preferences
	SecretUnlock int
}

func (p *Prompts) personaPrompt(userName string, prefs Preferences) (string, error) {
	return p.render("persona", personaPromptData{
		UserName:     userName,
		Prefs:        prefs,
		SecretUnlock: game.SecretUnlockAffection,
	})
}

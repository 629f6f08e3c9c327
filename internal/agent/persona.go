package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
)

const personaAttempts = 2

// Preferences steer persona generation. Empty fields mean "Random".
type Preferences struct {
	World       string
	Race        string
	Job         string
	Personality string

	// Optional custom-character fields.
	Name       string
	Appearance string
	Plot       string
}

func (p Preferences) withDefaults() Preferences {
	for _, f := range []*string{&p.World, &p.Race, &p.Job, &p.Personality} {
		if strings.TrimSpace(*f) == "" {
			*f = "Random"
		}
	}
	return p
}

// personaJSON is the generation output. The model names the opening scene
// "initial_scenario"; it becomes the persona's current scenario.
type personaJSON struct {
	Name               string   `json:"name"`
	Race               string   `json:"race"`
	Age                any      `json:"age"`
	Job                string   `json:"job"`
	Personality        string   `json:"personality"`
	Appearance         string   `json:"appearance"`
	Backstory          string   `json:"backstory"`
	Secret             string   `json:"secret"`
	HiddenSecrets      []string `json:"hidden_secrets"`
	InitialScenario    string   `json:"initial_scenario"`
	InitialMemoryTitle string   `json:"initial_memory_title"`
	InitialAffection   float64  `json:"initial_affection"`
	OpeningMessage     string   `json:"opening_message"`
}

func (pj personaJSON) persona() *game.Persona {
	age := ""
	switch v := pj.Age.(type) {
	case string:
		age = v
	case float64:
		age = fmt.Sprintf("%d", int(v))
	}
	return &game.Persona{
		Name:               strings.TrimSpace(pj.Name),
		Race:               pj.Race,
		Age:                age,
		Job:                pj.Job,
		Personality:        pj.Personality,
		Appearance:         pj.Appearance,
		Backstory:          pj.Backstory,
		Secret:             pj.Secret,
		HiddenSecrets:      pj.HiddenSecrets,
		CurrentScenario:    pj.InitialScenario,
		InitialMemoryTitle: pj.InitialMemoryTitle,
		InitialAffection:   game.ClampAffection(int(pj.InitialAffection)),
		OpeningMessage:     pj.OpeningMessage,
	}
}

var errPersonaName = errors.New("persona name is empty or reserved")

// validatePersona rejects reserved names and personas with no opening scene.
func validatePersona(p *game.Persona, userName string) error {
	switch p.Name {
	case "", "你", "玩家", "旅行者", userName:
		return fmt.Errorf("%w: %q", errPersonaName, p.Name)
	}
	if strings.TrimSpace(p.CurrentScenario) == "" {
		return errors.New("persona has no initial scenario")
	}
	return nil
}

// GeneratePersona asks the narrative service to design a character. Custom
// name and appearance in prefs are forced onto the result.
func GeneratePersona(ctx context.Context, p provider.Provider, prompts *Prompts, userName string, prefs Preferences, logger *zap.Logger) (*game.Persona, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prompt, err := prompts.personaPrompt(userName, prefs.withDefaults())
	if err != nil {
		return nil, err
	}

	temp := 1.0
	var lastErr error
	for attempt := range personaAttempts {
		text, err := provider.Complete(ctx, p, &provider.ChatRequest{
			Messages:    []provider.Message{provider.TextMessage(provider.RoleUser, prompt)},
			MaxTokens:   4096,
			Temperature: &temp,
			JSONOutput:  true,
		})
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			logger.Warn("persona generation failed", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}

		var pj personaJSON
		if err := json.Unmarshal([]byte(provider.StripCodeFence(text)), &pj); err != nil {
			lastErr = fmt.Errorf("invalid persona JSON: %w", err)
			logger.Warn("persona output unusable", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		persona := pj.persona()
		applyCustom(persona, prefs)
		if err := validatePersona(persona, userName); err != nil {
			lastErr = err
			logger.Warn("persona rejected", zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		return persona, nil
	}
	return nil, fmt.Errorf("generate persona: %w", lastErr)
}

func applyCustom(p *game.Persona, prefs Preferences) {
	if prefs.Name != "" {
		p.Name = prefs.Name
	}
	if prefs.Appearance != "" {
		p.Appearance = prefs.Appearance
	}
}

// LoadPersonaFile reads a persona from YAML.
func LoadPersonaFile(path string) (*game.Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	var p game.Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("invalid persona file %s: %w", path, err)
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, fmt.Errorf("persona file %s: name is required", path)
	}
	if strings.TrimSpace(p.CurrentScenario) == "" {
		return nil, fmt.Errorf("persona file %s: initial_scenario is required", path)
	}
	p.InitialAffection = game.ClampAffection(p.InitialAffection)
	return &p, nil
}

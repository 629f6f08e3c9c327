package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/imagegen"
)

// Visual states for the opening illustration and the first turn.
var (
	openingSceneVisual = game.VisualState{
		PersonaPose:     "Standing naturally",
		PersonaClothing: "Default outfit",
		UserAction:      "Approaching",
		Atmosphere:      "Initial meeting",
	}
	initialVisual = game.VisualState{
		PersonaPose:     game.DefaultPose,
		PersonaClothing: "Default outfit",
		UserAction:      game.DefaultUserAction,
		Atmosphere:      "Initial meeting",
	}
)

// NewSession describes a session to create.
type NewSession struct {
	UserName      string
	PlayerPersona string
	ArtStyle      string
	Persona       *game.Persona

	// Reference is an optional data URI of a user-supplied character image.
	// When set the persona counts as a custom character.
	Reference string
}

// CreateSession builds the opening of a new story: portrait, opening
// scene and first reply suggestions are produced in parallel, then the
// session is started and saved.
func (o *Orchestrator) CreateSession(ctx context.Context, ns NewSession) (*game.State, error) {
	if ns.Persona == nil {
		return nil, fmt.Errorf("create session: persona is required")
	}
	p := ns.Persona
	st := game.NewState(ns.UserName, p)
	st.PlayerPersona = ns.PlayerPersona
	if ns.ArtStyle != "" {
		st.ArtStyle = string(imagegen.ParseStyle(ns.ArtStyle))
	}
	st.CustomCharacter = ns.Reference != ""
	st.Visual = initialVisual
	st.SceneVisual = openingSceneVisual.Describe()

	now := time.Now()
	st.History = []game.Message{
		game.PrologueMessage(p.InitialMemoryTitle, p.CurrentScenario),
		{ID: game.NewID("msg-persona"), Sender: game.SenderPersona, Text: p.OpeningMessage, Timestamp: now},
	}

	style := imagegen.ParseStyle(st.ArtStyle)
	var portrait, scene string
	var suggestions []string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		portrait = imagegen.SynthesizeOrPlaceholder(gctx, o.synth, imagegen.Request{
			Class:     imagegen.ClassPortrait,
			Subject:   joinNonEmpty(p.Appearance, p.Race, p.Job),
			Style:     style,
			Reference: ns.Reference,
		})
		return nil
	})
	g.Go(func() error {
		scene = imagegen.SynthesizeOrPlaceholder(gctx, o.synth, imagegen.Request{
			Class:     imagegen.ClassScene,
			Subject:   p.Appearance,
			Visual:    openingSceneVisual,
			Event:     p.CurrentScenario + ", high quality detailed background art",
			Style:     style,
			Reference: ns.Reference,
		})
		return nil
	})
	g.Go(func() error {
		suggestions = o.suggestions.Generate(gctx, st.Clone())
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	st.PortraitImage = portrait
	st.SceneImage = scene
	st.History[0].ImageURL = scene
	st.SuggestedReplies = suggestions

	title := p.InitialMemoryTitle
	if strings.TrimSpace(title) == "" {
		title = "初遇"
	}
	st.Memories = []game.StoryMemory{{
		ID:          game.NewID("mem"),
		Title:       title,
		Description: p.CurrentScenario,
		ImageURL:    scene,
		Timestamp:   now,
	}}

	if err := o.Start(st); err != nil {
		return nil, err
	}
	if o.saver != nil {
		// Failures are reported through the saver's error hook.
		_ = o.saver.Flush(ctx)
	}
	o.logger.Info("session created",
		zap.String("session_id", st.SessionID),
		zap.String("persona", p.Name),
		zap.Bool("custom", st.CustomCharacter))
	return o.store.Snapshot(), nil
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, ", ")
}

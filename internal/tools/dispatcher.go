package tools

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/imagegen"
	"github.com/Dev-Umb/wife-generate-game/internal/metrics"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
)

// Turn is the in-flight state one turn's handlers read and mutate.
type Turn struct {
	// Base is the session as it was when the turn started. Read only.
	Base *game.State
	// Result accumulates the turn's effects until commit.
	Result *game.TurnResult
}

// NewTurn seeds a TurnResult from base so unchanged fields carry over.
func NewTurn(base *game.State, placeholderID string) *Turn {
	return &Turn{
		Base: base,
		Result: &game.TurnResult{
			PlaceholderID: placeholderID,
			Affection:     base.Affection,
			Visual:        base.Visual,
		},
	}
}

// Ended reports whether a handler set an ending.
func (t *Turn) Ended() bool { return t.Result.Ending != nil }

func (t *Turn) appearance() string {
	if t.Base.Persona == nil {
		return ""
	}
	return t.Base.Persona.Appearance
}

// sceneRequest builds a scene illustration request from the in-flight
// visual state.
func (t *Turn) sceneRequest(event string) imagegen.Request {
	return imagegen.Request{
		Class:     imagegen.ClassScene,
		Subject:   t.appearance(),
		Visual:    t.Result.Visual,
		Event:     event,
		Style:     imagegen.ParseStyle(t.Base.ArtStyle),
		Reference: t.Base.PortraitImage,
	}
}

// Dispatcher applies tool calls to a Turn. Handlers never return errors:
// every outcome, including failures, becomes a Result for the model.
type Dispatcher struct {
	synth  imagegen.Synthesizer
	logger *zap.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher that illustrates through synth.
func NewDispatcher(synth imagegen.Synthesizer, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{synth: synth, logger: logger, now: time.Now}
}

// Dispatch runs one call against t.
func (d *Dispatcher) Dispatch(ctx context.Context, t *Turn, call provider.ToolCallRequest) Result {
	action, known := ParseAction(call.Name)
	if !known {
		d.logger.Warn("unknown tool call", zap.String("name", call.Name))
		metrics.RecordToolCall(call.Name, "unknown")
		return failed(fmt.Sprintf("Unknown action: %s", call.Name))
	}

	a := parseArgs(call.Input)
	res := d.dispatch(ctx, t, action, a)

	status := "ok"
	switch {
	case res.IsError:
		status = "error"
	case res.Instruction == "":
		status = "degraded"
	}
	metrics.RecordToolCall(action.Name(), status)
	d.logger.Debug("tool call handled",
		zap.String("action", action.Name()),
		zap.String("call_id", call.ID),
		zap.String("status", status))
	return res
}

func (d *Dispatcher) dispatch(ctx context.Context, t *Turn, action Action, a args) Result {
	r := t.Result
	switch action {
	case ActionAdjustAffection:
		r.Affection = game.ClampAffection(r.Affection + a.Int("change"))
		return ok(fmt.Sprintf("Affection updated. Current: %d", r.Affection), baseInstruction)

	case ActionUpdateVisualState:
		r.Visual = r.Visual.Merge(game.VisualState{
			PersonaPose:     a.String("persona_pose"),
			PersonaClothing: a.String("persona_clothing"),
			UserAction:      a.String("user_action"),
			Atmosphere:      a.String("atmosphere"),
		})
		return ok("Visual state tracked.", "State updated. Describe the new view.")

	case ActionGenerateScene:
		return d.generateScene(ctx, t, a.String("description"))

	case ActionGenerateItem:
		return d.generateItem(ctx, t, a.String("name"), a.String("description"), a.String("visual_prompt"))

	case ActionSaveMemory:
		return d.saveMemory(ctx, t, a.String("title"), a.String("description"), a.String("visual_prompt"))

	case ActionSwitchScene:
		return d.switchScene(ctx, t, a.String("location_name"), a.String("description"), a.String("visual_prompt"))

	case ActionUpdateSeparation:
		separated := a.Bool("is_separated")
		r.Separation = &game.SeparationChange{Separated: separated, Summary: a.String("narrative_summary")}
		if separated {
			return ok("Separation updated.", "Separation confirmed.")
		}
		return ok("Separation updated.", "Reunion confirmed.")

	case ActionGrantContact:
		r.ContactGranted = true
		return ok("Contact info granted.", "Contact info given.")

	case ActionTriggerEvent:
		r.Events = append(r.Events, game.StoryEvent{Name: a.String("event_name"), Description: a.String("description")})
		return ok("Event triggered.", "Event started.")

	case ActionTriggerEnding:
		return d.triggerEnding(ctx, t, a)

	case ActionUnlockSecret:
		r.Secrets = append(r.Secrets, a.String("secret_content"))
		return ok("Secret unlocked.", "Secret revealed.")

	default:
		return failed(fmt.Sprintf("Unknown action: %s", action.Name()))
	}
}

func (d *Dispatcher) generateScene(ctx context.Context, t *Turn, description string) Result {
	url, err := d.synth.Synthesize(ctx, t.sceneRequest(description))
	if err != nil {
		d.logger.Warn("scene synthesis failed", zap.Error(err))
		return neutral("Failed to generate scene.")
	}
	t.Result.Reply.ImageURL = url
	t.Result.Memories = append(t.Result.Memories, game.StoryMemory{
		ID:          game.NewID("mem"),
		Title:       "精彩瞬间",
		Description: description,
		ImageURL:    url,
		Timestamp:   d.now(),
	})
	return ok("Scene image generated.", "Scene updated. Describe the new view.")
}

func (d *Dispatcher) generateItem(ctx context.Context, t *Turn, name, description, visualPrompt string) Result {
	url, err := d.synth.Synthesize(ctx, imagegen.Request{
		Class:   imagegen.ClassItem,
		Subject: visualPrompt,
		Style:   imagegen.ParseStyle(t.Base.ArtStyle),
	})
	if err != nil {
		d.logger.Warn("item synthesis failed", zap.String("item", name), zap.Error(err))
		return neutral("Failed to generate item.")
	}
	item := game.InventoryItem{
		ID:          game.NewID("item"),
		Name:        name,
		Description: description,
		ImageURL:    url,
		ObtainedAt:  d.now(),
	}
	t.Result.Items = append(t.Result.Items, item)
	t.Result.Injected = append(t.Result.Injected, game.ItemMessage(item))
	return ok(fmt.Sprintf("Item '%s' generated.", name), fmt.Sprintf("Item %s given.", name))
}

func (d *Dispatcher) saveMemory(ctx context.Context, t *Turn, title, description, visualPrompt string) Result {
	url, err := d.synth.Synthesize(ctx, t.sceneRequest(visualPrompt))
	if err != nil {
		// The memory is kept without an illustration.
		d.logger.Warn("memory synthesis failed", zap.String("title", title), zap.Error(err))
		url = ""
	}
	t.Result.Memories = append(t.Result.Memories, game.StoryMemory{
		ID:          game.NewID("mem"),
		Title:       title,
		Description: description,
		ImageURL:    url,
		Timestamp:   d.now(),
	})
	return ok("Memory saved.", "Memory recorded.")
}

func (d *Dispatcher) switchScene(ctx context.Context, t *Turn, location, description, visualPrompt string) Result {
	r := t.Result
	r.Visual = r.Visual.ForNewLocation(visualPrompt)

	url, err := d.synth.Synthesize(ctx, t.sceneRequest(description))
	if err != nil {
		d.logger.Warn("scene switch synthesis failed", zap.String("location", location), zap.Error(err))
		url = ""
	}
	if url != "" {
		r.Reply.ImageURL = url
	}
	r.Memories = append(r.Memories, game.StoryMemory{
		ID:          game.NewID("mem"),
		Title:       location,
		Description: description,
		ImageURL:    url,
		Timestamp:   d.now(),
	})
	r.Scene = &game.SceneChange{
		Location:    location,
		Description: description,
		Visual:      visualPrompt,
		ImageURL:    url,
	}
	r.ContextReset = true
	return ok(fmt.Sprintf("Scene switched to %s.", location), "Scene switched. Narrate arrival.")
}

func (d *Dispatcher) triggerEnding(ctx context.Context, t *Turn, a args) Result {
	url := imagegen.SynthesizeOrPlaceholder(ctx, d.synth, t.sceneRequest(a.String("visual_prompt")))
	t.Result.Ending = &game.Ending{
		Kind:        game.ParseEndingKind(a.String("kind")),
		Title:       a.String("title"),
		Description: a.String("description"),
		ImageURL:    url,
	}
	return ok("Ending triggered.", "Story ended.")
}

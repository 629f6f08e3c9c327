// Package tools defines the narrative actions the model can call and the
// dispatcher that applies them to an in-flight turn.
package tools

import "github.com/Dev-Umb/wife-generate-game/internal/provider"

// Action is the closed set of narrative actions.
type Action int

const (
	ActionAdjustAffection Action = iota
	ActionUpdateVisualState
	ActionGenerateScene
	ActionGenerateItem
	ActionSaveMemory
	ActionSwitchScene
	ActionUpdateSeparation
	ActionGrantContact
	ActionTriggerEvent
	ActionTriggerEnding
	ActionUnlockSecret

	numActions
)

var actionNames = [numActions]string{
	ActionAdjustAffection:   "adjust_affection",
	ActionUpdateVisualState: "update_visual_state",
	ActionGenerateScene:     "generate_scene",
	ActionGenerateItem:      "generate_item",
	ActionSaveMemory:        "save_memory",
	ActionSwitchScene:       "switch_scene",
	ActionUpdateSeparation:  "update_separation",
	ActionGrantContact:      "grant_contact",
	ActionTriggerEvent:      "trigger_event",
	ActionTriggerEnding:     "trigger_ending",
	ActionUnlockSecret:      "unlock_secret",
}

// Name returns the wire name the model calls the action by.
func (a Action) Name() string {
	if a < 0 || a >= numActions {
		return "unknown"
	}
	return actionNames[a]
}

func (a Action) String() string { return a.Name() }

// ParseAction maps a wire name to an action.
func ParseAction(name string) (Action, bool) {
	for i, n := range actionNames {
		if n == name {
			return Action(i), true
		}
	}
	return 0, false
}

// Actions returns every action in declaration order.
func Actions() []Action {
	all := make([]Action, numActions)
	for i := range all {
		all[i] = Action(i)
	}
	return all
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// Schema describes the action to the model.
func (a Action) Schema() provider.ToolSchema {
	s := provider.ToolSchema{Name: a.Name(), Parameters: map[string]any{}}
	switch a {
	case ActionAdjustAffection:
		s.Description = "Update the affection score. Call this when the user says something nice or mean. Affection grows SLOWLY: +1 to +5 for normal compliments, +10 only for major events. Max is 1000."
		s.Parameters["change"] = map[string]any{"type": "integer", "description": "Amount to change (e.g. +2, -5)"}
		s.Required = []string{"change"}
	case ActionUpdateVisualState:
		s.Description = "Update the tracked visual state of the characters and environment. Call this whenever someone changes posture, clothes, or physical action. This does NOT generate an image; it only updates the state used for future images."
		s.Parameters["persona_pose"] = str("Current pose/expression of the character (e.g. 'Sitting on bed, smiling', 'Standing angrily')")
		s.Parameters["persona_clothing"] = str("Current clothing of the character (e.g. 'Pajamas', 'Uniform')")
		s.Parameters["user_action"] = str("Current action of the USER (e.g. 'Holding her hand', 'Sitting opposite', 'Standing by door')")
		s.Parameters["atmosphere"] = str("Lighting/atmosphere (e.g. 'Dim candlelight', 'Bright morning sun')")
		s.Required = []string{"persona_pose", "user_action"}
	case ActionGenerateScene:
		s.Description = "Generate a new illustration for a MAJOR plot change. The current visual state is used automatically; only describe what changes."
		s.Parameters["description"] = str("Specific new action triggering this image.")
		s.Required = []string{"description"}
	case ActionGenerateItem:
		s.Description = "Create/give a physical item to the user. Triggers a standalone illustration."
		s.Parameters["name"] = str("Name of the item")
		s.Parameters["description"] = str("Description of the item")
		s.Parameters["visual_prompt"] = str("Visual prompt for the item illustration.")
		s.Required = []string{"name", "description", "visual_prompt"}
	case ActionSaveMemory:
		s.Description = "Save a significant moment. Call this after a touching conversation or event."
		s.Parameters["title"] = str("Short title")
		s.Parameters["description"] = str("Summary of moment")
		s.Parameters["visual_prompt"] = str("Visual prompt")
		s.Required = []string{"title", "description", "visual_prompt"}
	case ActionSwitchScene:
		s.Description = "Move to a new location. Use this when moving to a completely different place."
		s.Parameters["location_name"] = str("Name of new location")
		s.Parameters["description"] = str("Narrative description")
		s.Parameters["visual_prompt"] = str("Visual prompt for the new background (full details).")
		s.Required = []string{"location_name", "description", "visual_prompt"}
	case ActionUpdateSeparation:
		s.Description = "Change separation status (true = apart, talking by phone; false = together)."
		s.Parameters["is_separated"] = map[string]any{"type": "boolean", "description": "True if separated, false if together"}
		s.Parameters["narrative_summary"] = str("Summary of time passed if separating.")
		s.Required = []string{"is_separated"}
	case ActionGrantContact:
		s.Description = "Give your phone number to the user."
	case ActionTriggerEvent:
		s.Description = "Trigger a special dynamic event."
		s.Parameters["event_name"] = str("Name of event")
		s.Parameters["description"] = str("Description of event")
		s.Required = []string{"event_name", "description"}
	case ActionTriggerEnding:
		s.Description = "End the story (BE or HE)."
		s.Parameters["kind"] = map[string]any{"type": "string", "enum": []string{"HE", "BE"}}
		s.Parameters["title"] = map[string]any{"type": "string"}
		s.Parameters["description"] = map[string]any{"type": "string"}
		s.Parameters["visual_prompt"] = map[string]any{"type": "string"}
		s.Required = []string{"kind", "title", "description", "visual_prompt"}
	case ActionUnlockSecret:
		s.Description = "Unlock one of the hidden secrets/memories. Call this when you verbally reveal a secret to the user."
		s.Parameters["secret_content"] = str("The content of the secret being unlocked.")
		s.Required = []string{"secret_content"}
	}
	return s
}

// Schemas returns the schema of every action, ready for a ChatRequest.
func Schemas() []provider.ToolSchema {
	out := make([]provider.ToolSchema, 0, numActions)
	for _, a := range Actions() {
		out = append(out, a.Schema())
	}
	return out
}

package game

import "strings"

// Poses a scene switch resets the actors to.
const (
	DefaultPose       = "Standing"
	DefaultUserAction = "Standing nearby"
)

// VisualState is the tracked mise-en-scène used to keep illustrations
// consistent across image calls. Fields are opaque narrative text.
type VisualState struct {
	PersonaPose     string `json:"persona_pose"`
	PersonaClothing string `json:"persona_clothing"`
	UserAction      string `json:"user_action"`
	Atmosphere      string `json:"atmosphere"`
}

// Merge returns v with every non-empty field of partial written over it.
func (v VisualState) Merge(partial VisualState) VisualState {
	if partial.PersonaPose != "" {
		v.PersonaPose = partial.PersonaPose
	}
	if partial.PersonaClothing != "" {
		v.PersonaClothing = partial.PersonaClothing
	}
	if partial.UserAction != "" {
		v.UserAction = partial.UserAction
	}
	if partial.Atmosphere != "" {
		v.Atmosphere = partial.Atmosphere
	}
	return v
}

// ForNewLocation resets the actors for a scene switch. Clothing carries over.
func (v VisualState) ForNewLocation(atmosphere string) VisualState {
	return VisualState{
		PersonaPose:     DefaultPose,
		PersonaClothing: v.PersonaClothing,
		UserAction:      DefaultUserAction,
		Atmosphere:      atmosphere,
	}
}

// IsZero reports whether no field has been set.
func (v VisualState) IsZero() bool {
	return v == VisualState{}
}

// Describe renders the state as a prompt fragment for image synthesis.
func (v VisualState) Describe() string {
	var sb strings.Builder
	sb.WriteString("Persona visual: ")
	sb.WriteString(v.PersonaPose)
	sb.WriteString(", ")
	sb.WriteString(v.PersonaClothing)
	sb.WriteString(". User action: ")
	sb.WriteString(v.UserAction)
	sb.WriteString(". Environment: ")
	sb.WriteString(v.Atmosphere)
	sb.WriteString(".")
	return sb.String()
}

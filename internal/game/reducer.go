package game

import "time"

const (
	MinAffection = 0
	MaxAffection = 1000
)

// ClampAffection bounds v to [MinAffection, MaxAffection].
func ClampAffection(v int) int {
	if v < MinAffection {
		return MinAffection
	}
	if v > MaxAffection {
		return MaxAffection
	}
	return v
}

// SceneChange records a relocation requested by switch_scene.
type SceneChange struct {
	Location    string
	Description string
	Visual      string
	ImageURL    string
}

// SeparationChange records an update_separation call.
type SeparationChange struct {
	Separated bool
	Summary   string
}

// StoryEvent is an informational trigger_event record.
type StoryEvent struct {
	Name        string
	Description string
}

// TurnResult is everything one turn produced. The orchestrator builds it
// while rounds run and hands it to Apply exactly once.
type TurnResult struct {
	// PlaceholderID is the id of the streaming assistant message to replace.
	PlaceholderID string
	Reply         Message
	Injected      []Message

	Affection int
	Visual    VisualState

	Items    []InventoryItem
	Memories []StoryMemory
	Secrets  []string

	Scene          *SceneChange
	Separation     *SeparationChange
	ContactGranted bool
	Events         []StoryEvent

	Ending       *Ending
	ContextReset bool

	// Failed marks a turn cut short by a narrative service error.
	Failed bool
}

// Apply folds r into a copy of st and returns the copy. st is not modified.
func Apply(st *State, r TurnResult) *State {
	if r.Ending != nil {
		return ApplyEnding(st, r)
	}
	next := st.Clone()

	history := removeMessage(next.History, r.PlaceholderID)
	history = append(history, r.Injected...)
	reply := r.Reply
	if reply.ID == "" {
		reply.ID = r.PlaceholderID
	}
	if reply.Sender == "" {
		reply.Sender = SenderPersona
	}
	next.History = append(history, reply)

	next.Affection = ClampAffection(r.Affection)
	next.Visual = r.Visual
	next.Inventory = append(next.Inventory, r.Items...)
	next.Memories = append(next.Memories, r.Memories...)
	next.UnlockedSecrets = append(next.UnlockedSecrets, r.Secrets...)

	if r.Separation != nil {
		next.Separated = r.Separation.Separated
	}
	next.HasContact = next.HasContact || r.ContactGranted

	if r.Scene != nil {
		if next.Persona != nil {
			next.Persona.CurrentScenario = r.Scene.Description
		}
		if r.Scene.ImageURL != "" {
			next.SceneImage = r.Scene.ImageURL
		}
		next.SceneVisual = r.Scene.Visual
	}

	next.SuggestedReplies = nil
	next.UpdatedAt = time.Now()
	return next
}

// ApplyEnding marks the session terminal. The in-progress assistant message
// is dropped and no other effect of the turn is kept.
func ApplyEnding(st *State, r TurnResult) *State {
	next := st.Clone()
	next.History = removeMessage(next.History, r.PlaceholderID)
	e := *r.Ending
	next.Ending = &e
	next.SuggestedReplies = nil
	next.UpdatedAt = time.Now()
	return next
}

func removeMessage(history []Message, id string) []Message {
	if id == "" {
		return history
	}
	out := history[:0:0]
	for _, m := range history {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

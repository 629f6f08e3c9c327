// Package game holds the roleplay session model: the persona, the chat
// history, the narrative state the model mutates through tools, and the
// reducer that folds one turn's effects into a new state.
package game

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser    Sender = "user"
	SenderPersona Sender = "persona"
	SenderSystem  Sender = "system"
)

// Message is a single entry in the user-visible chat log.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	ImageURL  string    `json:"image_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// InventoryItem is an object the persona gave to the user.
type InventoryItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	ObtainedAt  time.Time `json:"obtained_at"`
}

// StoryMemory is an illustrated moment in the memory gallery.
type StoryMemory struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Persona is the character profile. Everything except CurrentScenario is
// fixed once the session starts.
type Persona struct {
	Name               string   `json:"name" yaml:"name"`
	Race               string   `json:"race" yaml:"race"`
	Age                string   `json:"age" yaml:"age"`
	Job                string   `json:"job" yaml:"job"`
	Personality        string   `json:"personality" yaml:"personality"`
	Appearance         string   `json:"appearance" yaml:"appearance"`
	Backstory          string   `json:"backstory" yaml:"backstory"`
	Secret             string   `json:"secret" yaml:"secret"`
	HiddenSecrets      []string `json:"hidden_secrets" yaml:"hidden_secrets"`
	CurrentScenario    string   `json:"current_scenario" yaml:"initial_scenario"`
	InitialMemoryTitle string   `json:"initial_memory_title" yaml:"initial_memory_title"`
	InitialAffection   int      `json:"initial_affection" yaml:"initial_affection"`
	OpeningMessage     string   `json:"opening_message" yaml:"opening_message"`
}

// EndingKind is the flavor of a terminal narrative state.
type EndingKind string

const (
	EndingFavorable   EndingKind = "HE"
	EndingUnfavorable EndingKind = "BE"
)

// ParseEndingKind maps the model's ending label to a kind. Anything that is
// not an explicit bad ending is treated as favorable.
func ParseEndingKind(s string) EndingKind {
	if s == string(EndingUnfavorable) {
		return EndingUnfavorable
	}
	return EndingFavorable
}

// Ending freezes the session once set.
type Ending struct {
	Kind        EndingKind `json:"kind"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ImageURL    string     `json:"image_url"`
}

// State is the complete, persistable session.
type State struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserName        string `json:"user_name"`
	PlayerPersona   string `json:"player_persona,omitempty"`
	ArtStyle        string `json:"art_style"`
	CustomCharacter bool   `json:"custom_character"`

	Persona       *Persona `json:"persona"`
	PortraitImage string   `json:"portrait_image,omitempty"`
	SceneImage    string   `json:"scene_image,omitempty"`
	SceneVisual   string   `json:"scene_visual,omitempty"`

	Visual    VisualState `json:"visual"`
	Affection int         `json:"affection"`

	History          []Message       `json:"history"`
	SuggestedReplies []string        `json:"suggested_replies"`
	Inventory        []InventoryItem `json:"inventory"`
	Memories         []StoryMemory   `json:"memories"`
	UnlockedSecrets  []string        `json:"unlocked_secrets"`

	Separated  bool `json:"separated"`
	HasContact bool `json:"has_contact"`

	Ending *Ending `json:"ending,omitempty"`

	// SummaryIndex is the history offset where the next context summary starts.
	SummaryIndex int `json:"summary_index"`
}

// NewState creates an empty session for persona with a fresh id.
func NewState(userName string, p *Persona) *State {
	now := time.Now()
	st := &State{
		SessionID: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
		UserName:  userName,
		ArtStyle:  "Anime",
		Persona:   p,
	}
	if p != nil {
		st.Affection = ClampAffection(p.InitialAffection)
	}
	return st
}

// Ended reports whether the session reached an ending.
func (s *State) Ended() bool { return s.Ending != nil }

// Clone returns a deep copy safe to hand to another goroutine.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	if s.Persona != nil {
		p := *s.Persona
		p.HiddenSecrets = append([]string(nil), s.Persona.HiddenSecrets...)
		c.Persona = &p
	}
	if s.Ending != nil {
		e := *s.Ending
		c.Ending = &e
	}
	c.History = append([]Message(nil), s.History...)
	c.SuggestedReplies = append([]string(nil), s.SuggestedReplies...)
	c.Inventory = append([]InventoryItem(nil), s.Inventory...)
	c.Memories = append([]StoryMemory(nil), s.Memories...)
	c.UnlockedSecrets = append([]string(nil), s.UnlockedSecrets...)
	return &c
}

// FindMessage returns the index of the message with id, or -1.
func (s *State) FindMessage(id string) int {
	for i := range s.History {
		if s.History[i].ID == id {
			return i
		}
	}
	return -1
}

// NewID returns a unique id with a readable prefix, e.g. "msg-user-<uuid>".
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// MemoriesContext renders memories as "[title]: description" lines, the
// form a rebuilt conversation receives as its backstory.
func MemoriesContext(memories []StoryMemory) string {
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		lines = append(lines, "["+m.Title+"]: "+m.Description)
	}
	return strings.Join(lines, "\n")
}

package game

import (
	"testing"
	"time"
)

func TestClampAffection(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 0},
		{0, 0},
		{500, 500},
		{1000, 1000},
		{1001, 1000},
		{990 + 5000, 1000},
		{10 - 5000, 0},
	}
	for _, tt := range tests {
		if got := ClampAffection(tt.in); got != tt.want {
			t.Errorf("ClampAffection(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampAffectionSequence(t *testing.T) {
	a := 40
	for _, delta := range []int{10, -1000} {
		a = ClampAffection(a + delta)
	}
	if a != 0 {
		t.Errorf("affection = %d, want 0", a)
	}
}

func newTestState() *State {
	st := NewState("阿明", &Persona{Name: "Luna", CurrentScenario: "Rainy station", InitialAffection: 40})
	st.History = []Message{
		{ID: "msg-user-1", Sender: SenderUser, Text: "hi"},
		{ID: "msg-persona-1", Sender: SenderPersona, Text: ""},
	}
	st.SuggestedReplies = []string{"a", "b"}
	return st
}

func TestApplyCommitsTurn(t *testing.T) {
	st := newTestState()
	item := InventoryItem{ID: "i1", Name: "Umbrella", ImageURL: "data:image/png;base64,AA", ObtainedAt: time.Now()}
	r := TurnResult{
		PlaceholderID:  "msg-persona-1",
		Reply:          Message{ID: "msg-persona-1", Sender: SenderPersona, Text: "hello there", ImageURL: "scene.png"},
		Injected:       []Message{ItemMessage(item)},
		Affection:      55,
		Visual:         VisualState{PersonaPose: "Smiling"},
		Items:          []InventoryItem{item},
		Memories:       []StoryMemory{{ID: "m1", Title: "精彩瞬间"}},
		Secrets:        []string{"fragment 1"},
		Separation:     &SeparationChange{Separated: true},
		ContactGranted: true,
		Scene: &SceneChange{
			Location:    "Library",
			Description: "A quiet library",
			Visual:      "bookshelves",
			ImageURL:    "library.png",
		},
	}

	next := Apply(st, r)

	if len(next.History) != 3 {
		t.Fatalf("history len = %d, want 3", len(next.History))
	}
	if next.History[1].Sender != SenderSystem {
		t.Errorf("history[1] sender = %q, want system", next.History[1].Sender)
	}
	last := next.History[2]
	if last.ID != "msg-persona-1" || last.Text != "hello there" || last.ImageURL != "scene.png" {
		t.Errorf("last message = %+v", last)
	}
	if next.Affection != 55 {
		t.Errorf("Affection = %d, want 55", next.Affection)
	}
	if next.Visual.PersonaPose != "Smiling" {
		t.Errorf("Visual = %+v", next.Visual)
	}
	if len(next.Inventory) != 1 || len(next.Memories) != 1 || len(next.UnlockedSecrets) != 1 {
		t.Errorf("collections not appended: inv=%d mem=%d secrets=%d",
			len(next.Inventory), len(next.Memories), len(next.UnlockedSecrets))
	}
	if !next.Separated || !next.HasContact {
		t.Errorf("flags = separated %v contact %v, want both true", next.Separated, next.HasContact)
	}
	if next.Persona.CurrentScenario != "A quiet library" {
		t.Errorf("CurrentScenario = %q", next.Persona.CurrentScenario)
	}
	if next.SceneImage != "library.png" || next.SceneVisual != "bookshelves" {
		t.Errorf("scene = %q / %q", next.SceneImage, next.SceneVisual)
	}
	if next.SuggestedReplies != nil {
		t.Errorf("SuggestedReplies = %v, want cleared", next.SuggestedReplies)
	}

	// The input state must be untouched.
	if len(st.History) != 2 || st.Affection != 40 || st.Persona.CurrentScenario != "Rainy station" {
		t.Error("Apply mutated its input")
	}
}

func TestApplyClampsAffection(t *testing.T) {
	st := newTestState()
	next := Apply(st, TurnResult{PlaceholderID: "msg-persona-1", Affection: 4000})
	if next.Affection != MaxAffection {
		t.Errorf("Affection = %d, want %d", next.Affection, MaxAffection)
	}
}

func TestApplyEndingDropsPlaceholder(t *testing.T) {
	st := newTestState()
	r := TurnResult{
		PlaceholderID: "msg-persona-1",
		Reply:         Message{ID: "msg-persona-1", Text: "goodbye"},
		Affection:     900,
		Items:         []InventoryItem{{ID: "x"}},
		Ending:        &Ending{Kind: EndingFavorable, Title: "Forever", ImageURL: "end.png"},
	}
	next := Apply(st, r)

	if !next.Ended() {
		t.Fatal("expected session to be ended")
	}
	if len(next.History) != 1 || next.History[0].Sender != SenderUser {
		t.Errorf("history = %+v, want only the user message", next.History)
	}
	if next.Affection != 40 || len(next.Inventory) != 0 {
		t.Error("ending turn should not commit other effects")
	}
}

func TestParseEndingKind(t *testing.T) {
	tests := map[string]EndingKind{
		"HE": EndingFavorable,
		"BE": EndingUnfavorable,
		"":   EndingFavorable,
		"??": EndingFavorable,
	}
	for in, want := range tests {
		if got := ParseEndingKind(in); got != want {
			t.Errorf("ParseEndingKind(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		affection int
		want      AffectionLevel
	}{
		{0, LevelHated},
		{50, LevelCold},
		{150, LevelNeutral},
		{300, LevelFriendly},
		{600, LevelLoving},
		{1000, LevelDevoted},
	}
	for _, tt := range tests {
		if got := LevelFor(tt.affection); got != tt.want {
			t.Errorf("LevelFor(%d) = %q, want %q", tt.affection, got, tt.want)
		}
	}
}

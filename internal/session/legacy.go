package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

// The browser version exported saves as a JSON array with camelCase keys,
// millisecond timestamps and the persona called "waifu".

type legacyProfile struct {
	Name               string   `json:"name"`
	Race               string   `json:"race"`
	Age                string   `json:"age"`
	Job                string   `json:"job"`
	Personality        string   `json:"personality"`
	Appearance         string   `json:"appearance"`
	Backstory          string   `json:"backstory"`
	Secret             string   `json:"secret"`
	HiddenSecrets      []string `json:"hiddenSecrets"`
	InitialScenario    string   `json:"initialScenario"`
	InitialMemoryTitle string   `json:"initialMemoryTitle"`
	InitialAffection   int      `json:"initialAffection"`
	OpeningMessage     string   `json:"openingMessage"`
}

type legacyMessage struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
	ImageURL  string `json:"imageUrl"`
}

type legacyItem struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	ObtainedAt  int64  `json:"obtainedAt"`
}

type legacyMemory struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
	Timestamp   int64  `json:"timestamp"`
}

type legacyVisual struct {
	WaifuPose     string `json:"waifuPose"`
	WaifuClothing string `json:"waifuClothing"`
	UserAction    string `json:"userAction"`
	EnvAtmosphere string `json:"envAtmosphere"`
}

type legacyEnding struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ImageURL    string `json:"imageUrl"`
}

type legacyState struct {
	SessionID          string          `json:"sessionId"`
	LastUpdated        int64           `json:"lastUpdated"`
	UserName           string          `json:"userName"`
	Waifu              *legacyProfile  `json:"waifu"`
	WaifuImage         string          `json:"waifuImage"`
	InitialSceneImage  string          `json:"initialSceneImage"`
	CurrentSceneVisual string          `json:"currentSceneVisual"`
	VisualState        legacyVisual    `json:"visualState"`
	AffectionScore     int             `json:"affectionScore"`
	ChatHistory        []legacyMessage `json:"chatHistory"`
	SuggestedReplies   []string        `json:"suggestedReplies"`
	Inventory          []legacyItem    `json:"inventory"`
	Memories           []legacyMemory  `json:"memories"`
	UnlockedSecrets    []string        `json:"unlockedSecrets"`
	IsSeparated        bool            `json:"isSeparated"`
	HasContactInfo     bool            `json:"hasContactInfo"`
	Ending             *legacyEnding   `json:"ending"`
	ArtStyle           string          `json:"artStyle"`
	PlayerPersona      string          `json:"playerPersona"`
	IsCustomCharacter  bool            `json:"isCustomCharacter"`
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (l *legacyState) toState() *game.State {
	updated := fromMillis(l.LastUpdated)
	st := &game.State{
		SessionID:        l.SessionID,
		CreatedAt:        updated,
		UpdatedAt:        updated,
		UserName:         l.UserName,
		PlayerPersona:    l.PlayerPersona,
		ArtStyle:         l.ArtStyle,
		CustomCharacter:  l.IsCustomCharacter,
		PortraitImage:    l.WaifuImage,
		SceneImage:       l.InitialSceneImage,
		SceneVisual:      l.CurrentSceneVisual,
		Affection:        game.ClampAffection(l.AffectionScore),
		SuggestedReplies: l.SuggestedReplies,
		UnlockedSecrets:  l.UnlockedSecrets,
		Separated:        l.IsSeparated,
		HasContact:       l.HasContactInfo,
		Visual: game.VisualState{
			PersonaPose:     l.VisualState.WaifuPose,
			PersonaClothing: l.VisualState.WaifuClothing,
			UserAction:      l.VisualState.UserAction,
			Atmosphere:      l.VisualState.EnvAtmosphere,
		},
	}
	if st.ArtStyle == "" {
		st.ArtStyle = "Anime"
	}
	if p := l.Waifu; p != nil {
		st.Persona = &game.Persona{
			Name:               p.Name,
			Race:               p.Race,
			Age:                p.Age,
			Job:                p.Job,
			Personality:        p.Personality,
			Appearance:         p.Appearance,
			Backstory:          p.Backstory,
			Secret:             p.Secret,
			HiddenSecrets:      p.HiddenSecrets,
			CurrentScenario:    p.InitialScenario,
			InitialMemoryTitle: p.InitialMemoryTitle,
			InitialAffection:   p.InitialAffection,
			OpeningMessage:     p.OpeningMessage,
		}
	}
	for _, m := range l.ChatHistory {
		sender := game.Sender(m.Sender)
		if m.Sender == "waifu" {
			sender = game.SenderPersona
		}
		st.History = append(st.History, game.Message{
			ID:        m.ID,
			Sender:    sender,
			Text:      m.Text,
			ImageURL:  m.ImageURL,
			Timestamp: fromMillis(m.Timestamp),
		})
		if m.Timestamp > 0 && (st.CreatedAt.IsZero() || fromMillis(m.Timestamp).Before(st.CreatedAt)) {
			st.CreatedAt = fromMillis(m.Timestamp)
		}
	}
	for _, it := range l.Inventory {
		st.Inventory = append(st.Inventory, game.InventoryItem{
			ID:          it.ID,
			Name:        it.Name,
			Description: it.Description,
			ImageURL:    it.ImageURL,
			ObtainedAt:  fromMillis(it.ObtainedAt),
		})
	}
	for _, m := range l.Memories {
		st.Memories = append(st.Memories, game.StoryMemory{
			ID:          m.ID,
			Title:       m.Title,
			Description: m.Description,
			ImageURL:    m.ImageURL,
			Timestamp:   fromMillis(m.Timestamp),
		})
	}
	if e := l.Ending; e != nil {
		st.Ending = &game.Ending{
			Kind:        game.ParseEndingKind(e.Type),
			Title:       e.Title,
			Description: e.Description,
			ImageURL:    e.ImageURL,
		}
	}
	// SummaryIndex stays 0: the browser never tracked it, so the whole
	// imported history is live context until the next scene switch.
	return st
}

// LoadLegacyAndMigrate imports a legacy JSON export at path into store and
// renames the file to path+".migrated". A missing file is not an error.
// It returns the number of sessions imported.
func LoadLegacyAndMigrate(ctx context.Context, store Store, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read legacy saves: %w", err)
	}

	var saves []legacyState
	if err := json.Unmarshal(data, &saves); err != nil {
		return 0, fmt.Errorf("parse legacy saves %s: %w", path, err)
	}

	n := 0
	for i := range saves {
		if saves[i].SessionID == "" {
			continue
		}
		if err := store.Save(ctx, saves[i].toState()); err != nil {
			return n, fmt.Errorf("migrate session %s: %w", saves[i].SessionID, err)
		}
		n++
	}

	if err := os.Rename(path, path+".migrated"); err != nil {
		return n, fmt.Errorf("rename migrated file: %w", err)
	}
	return n, nil
}

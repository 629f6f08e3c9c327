package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/imagegen"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
)

func testPersona() *game.Persona {
	return &game.Persona{
		Name:               "Luna",
		Race:               "Elf",
		Job:                "Librarian",
		Appearance:         "silver hair, green eyes",
		CurrentScenario:    "A rainy station at dusk",
		InitialMemoryTitle: "雨中初遇",
		InitialAffection:   40,
		OpeningMessage:     "(抬头) 你也在等车吗？",
	}
}

func TestCreateSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	st, err := h.o.CreateSession(ctx, NewSession{UserName: "阿明", ArtStyle: "manga", Persona: testPersona()})
	require.NoError(t, err)

	assert.Equal(t, 40, st.Affection)
	assert.Equal(t, "Manga", st.ArtStyle)
	assert.False(t, st.CustomCharacter)
	require.Len(t, st.History, 2)

	prologue := st.History[0]
	assert.Equal(t, game.SenderSystem, prologue.Sender)
	assert.True(t, strings.HasPrefix(prologue.Text, game.ProloguePrefix+"：雨中初遇】"))
	assert.Equal(t, st.SceneImage, prologue.ImageURL)
	assert.Equal(t, game.SenderPersona, st.History[1].Sender)
	assert.Equal(t, "(抬头) 你也在等车吗？", st.History[1].Text)

	require.Len(t, st.Memories, 1)
	assert.Equal(t, "雨中初遇", st.Memories[0].Title)
	assert.Equal(t, "A rainy station at dusk", st.Memories[0].Description)
	assert.Equal(t, st.SceneImage, st.Memories[0].ImageURL)

	assert.NotEmpty(t, st.PortraitImage)
	assert.NotEqual(t, st.PortraitImage, st.SceneImage)
	assert.Equal(t, []string{"好啊", "(点头)", "然后呢？"}, st.SuggestedReplies)
	assert.Equal(t, game.DefaultPose, st.Visual.PersonaPose)
	assert.Contains(t, st.SceneVisual, "Approaching")

	var portrait, scene *imagegen.Request
	for _, req := range h.synth.requests() {
		switch req.Class {
		case imagegen.ClassPortrait:
			portrait = &req
		case imagegen.ClassScene:
			scene = &req
		}
	}
	require.NotNil(t, portrait)
	require.NotNil(t, scene)
	assert.Equal(t, "silver hair, green eyes, Elf, Librarian", portrait.Subject)
	assert.Equal(t, "A rainy station at dusk, high quality detailed background art", scene.Event)
	assert.Equal(t, imagegen.Style("Manga"), scene.Style)

	// Saved immediately and the conversation replays the opening.
	saved, err := h.store.Load(ctx, st.SessionID)
	require.NoError(t, err)
	assert.Len(t, saved.History, 2)

	msgs := h.conv().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, provider.RoleUser, msgs[0].Role)
	assert.Equal(t, provider.RoleAssistant, msgs[1].Role)
}

func TestCreateSessionDegradesImages(t *testing.T) {
	h := newHarness(t)
	h.synth.fail[imagegen.ClassPortrait] = true
	h.synth.fail[imagegen.ClassScene] = true

	p := testPersona()
	p.InitialMemoryTitle = ""
	st, err := h.o.CreateSession(context.Background(), NewSession{
		UserName:  "阿明",
		Persona:   p,
		Reference: "data:image/png;base64,AAAA",
	})
	require.NoError(t, err)

	assert.True(t, st.CustomCharacter)
	assert.True(t, imagegen.IsPlaceholder(st.PortraitImage))
	assert.True(t, imagegen.IsPlaceholder(st.SceneImage))
	assert.Equal(t, "初遇", st.Memories[0].Title)
	for _, req := range h.synth.requests() {
		assert.Equal(t, "data:image/png;base64,AAAA", req.Reference)
	}
}

func TestCreateSessionRequiresPersona(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.CreateSession(context.Background(), NewSession{UserName: "阿明"})
	assert.Error(t, err)
	assert.Nil(t, h.o.Snapshot())
}

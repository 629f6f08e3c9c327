package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
)

const legacyExport = `[
  {
    "sessionId": "legacy-1",
    "lastUpdated": 1700000500000,
    "userName": "阿明",
    "waifu": {
      "name": "Luna",
      "race": "Elf",
      "hiddenSecrets": ["first", "second"],
      "initialScenario": "Rainy station",
      "initialAffection": 40
    },
    "waifuImage": "data:image/png;base64,AA",
    "visualState": {"waifuPose": "Sitting", "waifuClothing": "Coat", "userAction": "Waving", "envAtmosphere": "Rain"},
    "affectionScore": 1200,
    "chatHistory": [
      {"id": "m1", "sender": "user", "text": "hi", "timestamp": 1700000100000},
      {"id": "m2", "sender": "waifu", "text": "hello", "timestamp": 1700000200000, "imageUrl": "scene.png"},
      {"id": "m3", "sender": "system", "text": "[获得物品] Key", "timestamp": 1700000300000}
    ],
    "inventory": [{"id": "i1", "name": "Key", "obtainedAt": 1700000300000}],
    "memories": [{"id": "s1", "title": "初遇", "description": "Met", "timestamp": 1700000000000}],
    "isSeparated": true,
    "ending": {"type": "BE", "title": "Goodbye"}
  },
  {"userName": "no id, skipped"}
]`

func writeLegacy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "saves.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadLegacyAndMigrate(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLiteStore(t)
	path := writeLegacy(t, legacyExport)

	n, err := LoadLegacyAndMigrate(ctx, store, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "original file should be renamed")
	_, err = os.Stat(path + ".migrated")
	assert.NoError(t, err)

	st, err := store.Load(ctx, "legacy-1")
	require.NoError(t, err)
	require.NotNil(t, st.Persona)
	assert.Equal(t, "Luna", st.Persona.Name)
	assert.Equal(t, "Rainy station", st.Persona.CurrentScenario)
	assert.Equal(t, []string{"first", "second"}, st.Persona.HiddenSecrets)
	assert.Equal(t, "data:image/png;base64,AA", st.PortraitImage)
	assert.Equal(t, game.MaxAffection, st.Affection)
	assert.Equal(t, game.VisualState{PersonaPose: "Sitting", PersonaClothing: "Coat", UserAction: "Waving", Atmosphere: "Rain"}, st.Visual)
	assert.Equal(t, "Anime", st.ArtStyle)
	assert.True(t, st.Separated)

	require.Len(t, st.History, 3)
	assert.Equal(t, game.SenderUser, st.History[0].Sender)
	assert.Equal(t, game.SenderPersona, st.History[1].Sender)
	assert.Equal(t, game.SenderSystem, st.History[2].Sender)
	assert.Equal(t, "scene.png", st.History[1].ImageURL)
	assert.Zero(t, st.SummaryIndex)

	assert.Equal(t, int64(1700000100000), st.CreatedAt.UnixMilli())
	assert.Equal(t, int64(1700000500000), st.UpdatedAt.UnixMilli())

	require.Len(t, st.Inventory, 1)
	require.Len(t, st.Memories, 1)
	require.NotNil(t, st.Ending)
	assert.Equal(t, game.EndingUnfavorable, st.Ending.Kind)
}

func TestLoadLegacyMissingFile(t *testing.T) {
	store := newTestSQLiteStore(t)
	n, err := LoadLegacyAndMigrate(context.Background(), store, filepath.Join(t.TempDir(), "none.json"))
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadLegacyInvalidJSON(t *testing.T) {
	store := newTestSQLiteStore(t)
	path := writeLegacy(t, "{not json")

	_, err := LoadLegacyAndMigrate(context.Background(), store, path)
	assert.Error(t, err)
	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "a file that failed to parse must stay in place")
}

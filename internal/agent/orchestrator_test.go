package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/imagegen"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
	"github.com/Dev-Umb/wife-generate-game/internal/provider/providertest"
)

func (h *harness) conv() *Conversation {
	h.o.mu.Lock()
	defer h.o.mu.Unlock()
	return h.o.conv
}

func lastMessage(st *game.State) game.Message {
	return st.History[len(st.History)-1]
}

func TestSendMessageWithoutSession(t *testing.T) {
	h := newHarness(t)
	_, err := h.o.SendMessage(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestZeroToolTurnConcatenatesText(t *testing.T) {
	h := newHarness(t, providertest.Reply("雨", "停了", "呢。"))
	h.start(t)

	out, err := h.o.SendMessage(context.Background(), "天气怎么样？")
	require.NoError(t, err)
	h.wait(t)

	assert.Equal(t, "雨停了呢。", out.Reply)
	assert.Equal(t, 1, out.Rounds)
	assert.Equal(t, 1, h.prov.Calls())
	assert.Equal(t, "雨停了呢。", h.ui.Text(out.MessageID))

	st := h.o.Snapshot()
	require.Len(t, st.History, 4)
	assert.Equal(t, game.SenderUser, st.History[2].Sender)
	assert.Equal(t, "天气怎么样？", st.History[2].Text)
	last := lastMessage(st)
	assert.Equal(t, out.MessageID, last.ID)
	assert.Equal(t, game.SenderPersona, last.Sender)
	assert.Equal(t, "雨停了呢。", last.Text)

	assert.Equal(t, []string{"好啊", "(点头)", "然后呢？"}, st.SuggestedReplies)
	assert.Equal(t, 1, h.suggest.Calls())

	req := h.prov.Requests()[0]
	require.NotNil(t, req.Temperature)
	require.NotNil(t, req.TopP)
	assert.InDelta(t, 0.9, *req.Temperature, 1e-9)
	assert.InDelta(t, 0.95, *req.TopP, 1e-9)
	assert.Len(t, req.Tools, 11)
	assert.Contains(t, req.SystemPrompt, "Luna")
}

func TestFailingItemStillCommitsText(t *testing.T) {
	h := newHarness(t,
		toolStep(providertest.Call("c1", "generate_item", map[string]any{
			"name": "发夹", "description": "银色的发夹", "visual_prompt": "silver hairpin",
		})),
		providertest.Reply("这个送给你。"),
	)
	h.synth.fail[imagegen.ClassItem] = true
	h.start(t)

	out, err := h.o.SendMessage(context.Background(), "这是什么？")
	require.NoError(t, err)
	h.wait(t)

	assert.Equal(t, 2, out.Rounds)
	st := h.o.Snapshot()
	assert.Empty(t, st.Inventory)
	assert.Equal(t, "这个送给你。", lastMessage(st).Text)
	for _, m := range st.History {
		assert.False(t, strings.HasPrefix(m.Text, game.ItemPrefix), "unexpected item message %q", m.Text)
	}

	// All acknowledgements of a round go back as one user message.
	reqs := h.prov.Requests()
	require.Len(t, reqs, 2)
	ack := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, provider.RoleUser, ack.Role)
	require.Len(t, ack.Content, 1)
	assert.Equal(t, provider.ContentTypeToolResult, ack.Content[0].Type)
	assert.Equal(t, "c1", ack.Content[0].ToolUseID)
	assert.Contains(t, ack.Content[0].ToolResult, "Failed to generate item.")
}

func TestItemTurnInjectsSystemMessage(t *testing.T) {
	h := newHarness(t,
		toolStep(
			providertest.Call("c1", "adjust_affection", map[string]any{"change": 5}),
			providertest.Call("c2", "generate_item", map[string]any{
				"name": "发夹", "description": "银色的发夹", "visual_prompt": "silver hairpin",
			}),
		),
		providertest.Reply("收下吧。"),
	)
	h.start(t)

	_, err := h.o.SendMessage(context.Background(), "谢谢")
	require.NoError(t, err)
	h.wait(t)

	st := h.o.Snapshot()
	require.Len(t, st.Inventory, 1)
	assert.Equal(t, 45, st.Affection)
	require.Len(t, st.History, 5)
	assert.Equal(t, game.SenderSystem, st.History[3].Sender)
	assert.True(t, strings.HasPrefix(st.History[3].Text, game.ItemPrefix+"发夹"))
	assert.Equal(t, st.Inventory[0].ImageURL, st.History[3].ImageURL)
	assert.Equal(t, "收下吧。", lastMessage(st).Text)

	reqs := h.prov.Requests()
	ack := reqs[1].Messages[len(reqs[1].Messages)-1]
	require.Len(t, ack.Content, 2)
	assert.Equal(t, "c1", ack.Content[0].ToolUseID)
	assert.Equal(t, "c2", ack.Content[1].ToolUseID)
}

func TestEndingDiscardsLaterCalls(t *testing.T) {
	h := newHarness(t, toolStep(
		providertest.Call("c1", "adjust_affection", map[string]any{"change": 10}),
		providertest.Call("c2", "trigger_ending", map[string]any{
			"kind": "BE", "title": "雨中离别", "description": "她消失在雨里", "visual_prompt": "rain",
		}),
		providertest.Call("c3", "adjust_affection", map[string]any{"change": 50}),
		providertest.Call("c4", "grant_contact", nil),
	))
	h.start(t)

	out, err := h.o.SendMessage(context.Background(), "再见")
	require.NoError(t, err)
	h.wait(t)

	assert.True(t, out.Ended)
	assert.Equal(t, 1, h.prov.Calls())

	st := h.o.Snapshot()
	require.True(t, st.Ended())
	assert.Equal(t, game.EndingUnfavorable, st.Ending.Kind)
	assert.Equal(t, "雨中离别", st.Ending.Title)
	assert.NotEmpty(t, st.Ending.ImageURL)
	assert.Equal(t, game.SenderUser, lastMessage(st).Sender, "no trailing assistant message")
	assert.Equal(t, 40, st.Affection)
	assert.False(t, st.HasContact)

	var names []string
	for _, te := range h.ui.Tools() {
		names = append(names, te.Name)
	}
	assert.Equal(t, []string{"adjust_affection", "trigger_ending"}, names)
	assert.Zero(t, h.suggest.Calls(), "no suggestions after an ending")

	_, err = h.o.SendMessage(context.Background(), "还在吗？")
	assert.ErrorIs(t, err, ErrSessionEnded)
}

func TestEndingUsesPlaceholderWhenSynthesisFails(t *testing.T) {
	h := newHarness(t, toolStep(providertest.Call("c1", "trigger_ending", map[string]any{"kind": "HE", "title": "永远"})))
	h.synth.fail[imagegen.ClassScene] = true
	h.start(t)

	_, err := h.o.SendMessage(context.Background(), "我喜欢你")
	require.NoError(t, err)

	st := h.o.Snapshot()
	require.True(t, st.Ended())
	assert.Equal(t, game.EndingFavorable, st.Ending.Kind)
	assert.True(t, imagegen.IsPlaceholder(st.Ending.ImageURL))
}

func TestSwitchSceneSummarizesOnce(t *testing.T) {
	tests := []struct {
		name      string
		sceneFail bool
		wantImage func(st *game.State) string
	}{
		{
			name:      "newest span image",
			wantImage: func(st *game.State) string { return lastMessage(st).ImageURL },
		},
		{
			name:      "falls back to previous scene",
			sceneFail: true,
			wantImage: func(*game.State) string { return "img://old-scene" },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t,
				toolStep(providertest.Call("c1", "switch_scene", map[string]any{
					"location_name": "图书馆", "description": "安静的图书馆", "visual_prompt": "bookshelves, afternoon light",
				})),
				providertest.Reply("我们到了。"),
			)
			h.synth.fail[imagegen.ClassScene] = tt.sceneFail
			h.start(t)
			before := h.conv()

			out, err := h.o.SendMessage(context.Background(), "去图书馆吧")
			require.NoError(t, err)
			h.wait(t)

			spans := h.summ.calls()
			require.Len(t, spans, 1, "exactly one summary per switch")
			span := spans[0]
			assert.Equal(t, game.SenderSystem, span[0].Sender, "span starts at the summary index")
			assert.Equal(t, out.MessageID, span[len(span)-1].ID, "span includes the turn's reply")

			st := h.o.Snapshot()
			assert.Equal(t, "安静的图书馆", st.Persona.CurrentScenario)
			assert.Equal(t, "bookshelves, afternoon light", st.SceneVisual)
			assert.Equal(t, game.DefaultPose, st.Visual.PersonaPose)
			assert.Equal(t, len(st.History), st.SummaryIndex)

			summary := st.Memories[len(st.Memories)-1]
			assert.Equal(t, "雨夜", summary.Title)
			assert.Equal(t, tt.wantImage(st), summary.ImageURL)
			if tt.sceneFail {
				assert.Equal(t, "img://old-scene", st.SceneImage)
			}

			after := h.conv()
			require.NotSame(t, before, after, "conversation handle replaced")
			assert.Zero(t, after.Len())
			assert.Contains(t, after.System(), "[雨夜]: They walked to the library.")
		})
	}
}

func TestResetKeepsTurnsCommittedDuringSummary(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	committed := h.o.Snapshot()

	// A later turn commits before the summary lands.
	h.o.store.Update(func(st *game.State) {
		st.History = append(st.History,
			game.Message{ID: "msg-user-late", Sender: game.SenderUser, Text: "等等我"},
			game.Message{ID: "msg-persona-late", Sender: game.SenderPersona, Text: "(停下脚步)"},
		)
	})

	require.NoError(t, h.o.resetContext(context.Background(), committed, "img://old-scene"))

	st := h.o.Snapshot()
	assert.Equal(t, len(committed.History), st.SummaryIndex)
	require.Len(t, h.summ.calls(), 1)
	assert.Len(t, h.summ.calls()[0], len(committed.History), "later turn is not summarized")

	assert.Contains(t, h.conv().System(), "They walked to the library.")
	msgs := h.conv().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, provider.RoleUser, msgs[0].Role)
	assert.Equal(t, "等等我", msgs[0].Content[0].Text)
	assert.Equal(t, provider.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "(停下脚步)", msgs[1].Content[0].Text)

	// The live conversation matches what a restore would replay.
	restored, err := h.o.restoreConversation(st)
	require.NoError(t, err)
	assert.Equal(t, restored.Messages(), msgs)
}

func TestRoundCeiling(t *testing.T) {
	h := newHarness(t)
	h.prov.Default = &providertest.Step{ToolCalls: []provider.ToolCallRequest{
		providertest.Call("c", "adjust_affection", map[string]any{"change": 1}),
	}}
	h.start(t)

	out, err := h.o.SendMessage(context.Background(), "继续")
	require.NoError(t, err)
	h.wait(t)

	assert.Equal(t, 5, h.prov.Calls(), "exactly max_rounds stream openings")
	assert.Equal(t, 5, out.Rounds)
	assert.True(t, out.Capped)
	assert.Equal(t, 45, h.o.Snapshot().Affection, "round five's calls still apply")

	// The final acknowledgements travel with the next user message.
	msgs := h.conv().Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, provider.RoleUser, last.Role)
	assert.Equal(t, provider.ContentTypeToolResult, last.Content[0].Type)
}

func TestStreamErrorCommitsPartialProgress(t *testing.T) {
	h := newHarness(t,
		toolStep(
			providertest.Call("c1", "adjust_affection", map[string]any{"change": 10}),
			providertest.Call("c2", "grant_contact", nil),
			providertest.Call("c3", "switch_scene", map[string]any{"location_name": "公园", "description": "公园", "visual_prompt": "park"}),
		),
		providertest.Step{Text: []string{"我们"}, StreamErr: providertest.ErrScripted},
	)
	h.start(t)

	out, err := h.o.SendMessage(context.Background(), "走吧")
	require.NoError(t, err)
	h.wait(t)

	assert.True(t, out.Failed)
	assert.ErrorIs(t, out.Err, providertest.ErrScripted)
	assert.Equal(t, 2, h.prov.Calls())

	st := h.o.Snapshot()
	assert.Equal(t, game.ConnectionErrorText, lastMessage(st).Text)
	assert.Equal(t, out.MessageID, lastMessage(st).ID)
	assert.Equal(t, 50, st.Affection)
	assert.True(t, st.HasContact)
	assert.Equal(t, "公园", st.Persona.CurrentScenario)

	assert.Empty(t, h.summ.calls(), "no context reset after a failed turn")
	assert.Zero(t, h.suggest.Calls(), "no suggestions after a failed turn")
}

func TestRetryBeforeContent(t *testing.T) {
	h := newHarness(t,
		providertest.Step{ChatErr: errors.New("429 rate limit")},
		providertest.Step{StreamErr: errors.New("503 service unavailable")},
		providertest.Reply("好的"),
	)
	h.start(t)

	out, err := h.o.SendMessage(context.Background(), "你好")
	require.NoError(t, err)
	h.wait(t)

	assert.False(t, out.Failed)
	assert.Equal(t, "好的", out.Reply)
	assert.Equal(t, 3, h.prov.Calls())
	assert.Len(t, h.ui.Notices(), 2)
}

func TestNoRetryAfterContent(t *testing.T) {
	h := newHarness(t,
		providertest.Step{Text: []string{"嗯"}, StreamErr: errors.New("503 service unavailable")},
	)
	h.start(t)

	out, err := h.o.SendMessage(context.Background(), "你好")
	require.NoError(t, err)
	assert.True(t, out.Failed)
	assert.Equal(t, 1, h.prov.Calls())
}

func TestBusyRejection(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, providertest.Step{Text: []string{"..."}, Block: true, Release: release})
	h.start(t)

	done := make(chan error, 1)
	go func() {
		_, err := h.o.SendMessage(context.Background(), "第一句")
		done <- err
	}()
	require.Eventually(t, func() bool { return h.prov.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := h.o.SendMessage(context.Background(), "第二句")
	assert.ErrorIs(t, err, ErrTurnInProgress)
	assert.ErrorIs(t, h.o.ReturnToMenu(context.Background()), ErrTurnInProgress)

	close(release)
	require.NoError(t, <-done)
	h.wait(t)
	assert.Equal(t, 1, h.prov.Calls())
}

func TestStreamedTextVisibleInStoreMidTurn(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t,
		providertest.Step{
			Text:      []string{"(低头)"},
			ToolCalls: []provider.ToolCallRequest{providertest.Call("a", "adjust_affection", map[string]any{"change": 1})},
		},
		providertest.Step{Text: []string{"你", "来了"}, Block: true, Release: release},
	)
	h.start(t)

	done := make(chan *TurnOutcome, 1)
	go func() {
		out, _ := h.o.SendMessage(context.Background(), "早")
		done <- out
	}()

	require.Eventually(t, func() bool {
		return lastMessage(h.o.Snapshot()).Text == "(低头)你来了"
	}, 2*time.Second, 5*time.Millisecond, "placeholder should carry text from every round so far")
	mid := h.o.Snapshot()
	assert.Equal(t, game.SenderPersona, lastMessage(mid).Sender)
	assert.Equal(t, 40, mid.Affection, "effects wait for the commit")

	close(release)
	out := <-done
	require.NotNil(t, out)
	h.wait(t)
	st := h.o.Snapshot()
	assert.Equal(t, out.MessageID, lastMessage(st).ID)
	assert.Equal(t, "(低头)你来了", lastMessage(st).Text)
	assert.Equal(t, 41, st.Affection)
}

func TestCancelledTurnFails(t *testing.T) {
	h := newHarness(t, providertest.Step{Block: true})
	h.start(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *TurnOutcome, 1)
	go func() {
		out, _ := h.o.SendMessage(ctx, "hi")
		done <- out
	}()
	require.Eventually(t, func() bool { return h.prov.Calls() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	out := <-done
	require.NotNil(t, out)
	assert.True(t, out.Failed)
	assert.ErrorIs(t, out.Err, context.Canceled)
	assert.Equal(t, game.ConnectionErrorText, lastMessage(h.o.Snapshot()).Text)
}

func TestAffectionSequence(t *testing.T) {
	h := newHarness(t,
		toolStep(providertest.Call("a", "adjust_affection", map[string]any{"change": 10})),
		providertest.Reply("(开心)"),
		toolStep(providertest.Call("b", "adjust_affection", map[string]any{"change": -1000})),
		providertest.Reply("(生气)"),
	)
	h.start(t)
	require.Equal(t, 40, h.o.Snapshot().Affection)

	_, err := h.o.SendMessage(context.Background(), "送你花")
	require.NoError(t, err)
	assert.Equal(t, 50, h.o.Snapshot().Affection)

	_, err = h.o.SendMessage(context.Background(), "骗你的")
	require.NoError(t, err)
	assert.Equal(t, 0, h.o.Snapshot().Affection)
	h.wait(t)
}

func TestStaleSuggestionsDropped(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.o.mu.Lock()
	stale := h.o.seq
	h.o.seq++
	current := h.o.seq
	h.o.mu.Unlock()

	h.o.applySuggestions(stale, []string{"old"})
	assert.Empty(t, h.o.Snapshot().SuggestedReplies)

	h.o.applySuggestions(current, []string{"new"})
	assert.Equal(t, []string{"new"}, h.o.Snapshot().SuggestedReplies)
	assert.Equal(t, [][]string{{"new"}}, h.ui.SuggestionSets())
}

func TestSendActionEncodesMessage(t *testing.T) {
	h := newHarness(t, providertest.Reply("好吧"))
	h.start(t)

	_, err := h.o.SendAction(context.Background(), game.UIActionFastForward)
	require.NoError(t, err)
	h.wait(t)

	st := h.o.Snapshot()
	assert.Equal(t, game.FastForwardCommand, st.History[2].Text)

	_, err = h.o.SendAction(context.Background(), game.UIAction("dance"))
	assert.Error(t, err)
}

func TestReturnToMenuFlushesSave(t *testing.T) {
	h := newHarness(t, providertest.Reply("晚安"))
	st := h.start(t)

	_, err := h.o.SendMessage(context.Background(), "晚安")
	require.NoError(t, err)
	h.wait(t)

	require.NoError(t, h.o.ReturnToMenu(context.Background()))
	assert.Nil(t, h.o.Snapshot())

	saved, err := h.store.Load(context.Background(), st.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "晚安", lastMessage(saved).Text)

	_, err = h.o.SendMessage(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestStartRestoresFromSummaryIndex(t *testing.T) {
	h := newHarness(t)
	st := game.NewState("阿明", &game.Persona{Name: "Luna", CurrentScenario: "Library"})
	st.History = []game.Message{
		{ID: "1", Sender: game.SenderUser, Text: "old"},
		{ID: "2", Sender: game.SenderPersona, Text: "old reply"},
		{ID: "3", Sender: game.SenderUser, Text: "new"},
		{ID: "4", Sender: game.SenderPersona, Text: ""},
	}
	st.Memories = []game.StoryMemory{{Title: "初遇", Description: "Met at the station"}}
	st.SummaryIndex = 2
	require.NoError(t, h.o.Start(st))

	c := h.conv()
	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, provider.RoleUser, msgs[0].Role)
	assert.Equal(t, "new", msgs[0].Content[0].Text)
	assert.Equal(t, provider.RoleAssistant, msgs[1].Role)
	assert.Equal(t, " ", msgs[1].Content[0].Text)
	assert.Contains(t, c.System(), "[初遇]: Met at the station")
}

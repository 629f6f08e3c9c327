package session

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/provider/providertest"
)

var span = []game.Message{
	{Sender: game.SenderUser, Text: "你好"},
	{Sender: game.SenderPersona, Text: "你好呀", ImageURL: "first.png"},
	{Sender: game.SenderSystem, Text: "[获得物品] 雨伞"},
	{Sender: game.SenderPersona, Text: "送你", ImageURL: "second.png"},
	{Sender: game.SenderUser, Text: "谢谢"},
}

func TestTranscript(t *testing.T) {
	got := Transcript(span[:3], "Luna", "阿明")
	want := "阿明: 你好\nLuna: 你好呀\nSystem: [获得物品] 雨伞"
	assert.Equal(t, want, got)
}

func TestLLMSummarizer(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   Summary
	}{
		{"plain json", `{"title":"雨中","content":"两人在雨中相遇。"}`, Summary{Title: "雨中", Content: "两人在雨中相遇。"}},
		{"fenced json", "```json\n{\"title\":\"雨中\",\"content\":\"相遇\"}\n```", Summary{Title: "雨中", Content: "相遇"}},
		{"garbage", "I cannot do that", FallbackSummary},
		{"empty object", "{}", FallbackSummary},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := providertest.New(providertest.Reply(tt.output))
			s := &LLMSummarizer{Provider: p}

			got := s.Summarize(context.Background(), "Luna", "阿明", span)
			assert.Equal(t, tt.want, got)

			reqs := p.Requests()
			require.Len(t, reqs, 1)
			assert.True(t, reqs[0].JSONOutput)
			assert.Empty(t, reqs[0].Tools)
			prompt := reqs[0].Messages[0].Content[0].Text
			assert.True(t, strings.Contains(prompt, "Luna: 你好呀"), "prompt should carry the transcript")
		})
	}
}

func TestLLMSummarizerStreamError(t *testing.T) {
	p := providertest.New(providertest.Step{StreamErr: providertest.ErrScripted})
	s := &LLMSummarizer{Provider: p}
	assert.Equal(t, FallbackSummary, s.Summarize(context.Background(), "Luna", "阿明", span))
}

func TestLLMSummarizerUsesModelOverride(t *testing.T) {
	p := providertest.New(providertest.Reply(`{"title":"t","content":"c"}`))
	s := &LLMSummarizer{Provider: p, Model: "cheap-model"}
	s.Summarize(context.Background(), "Luna", "阿明", span)
	assert.Equal(t, "cheap-model", p.Requests()[0].Model)
}

func TestSpanImage(t *testing.T) {
	assert.Equal(t, "second.png", SpanImage(span, "fallback.png"))
	assert.Equal(t, "fallback.png", SpanImage(span[:1], "fallback.png"))
	assert.Equal(t, "fallback.png", SpanImage(nil, "fallback.png"))
}

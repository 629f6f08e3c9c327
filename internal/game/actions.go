package game

import (
	"fmt"
	"strings"
	"time"
)

// UIAction is a discrete control from the presentation layer. Each one is
// sent to the narrative service as a specially worded user message.
type UIAction string

const (
	UIActionMove        UIAction = "move"
	UIActionLeave       UIAction = "leave"
	UIActionFastForward UIAction = "fast_forward"
)

// FastForwardCommand is the system instruction that skips to the next meeting.
const FastForwardCommand = "【系统指令：快进到下次见面】"

// Message prefixes the chat log uses for special system entries.
const (
	ProloguePrefix = "【序章"
	ItemPrefix     = "【获得道具】"
	EventPrefix    = "【触发事件】"
)

// ConnectionErrorText replaces the streaming reply when the narrative
// service fails mid-turn.
const ConnectionErrorText = "(Connection Error...)"

// Text returns the user message that encodes the action.
func (a UIAction) Text() (string, error) {
	switch a {
	case UIActionMove:
		return "我想去别的地方逛逛。（切换场景）", nil
	case UIActionLeave:
		return "我还有点事，先走了。晚点联系。（暂时分开）", nil
	case UIActionFastForward:
		return FastForwardCommand, nil
	default:
		return "", fmt.Errorf("unknown ui action %q", string(a))
	}
}

// PrologueMessage builds the opening narration entry for a new session.
func PrologueMessage(title, scenario string) Message {
	if strings.TrimSpace(title) == "" {
		title = "初遇"
	}
	return Message{
		ID:        NewID("msg-prologue"),
		Sender:    SenderSystem,
		Text:      fmt.Sprintf("%s：%s】\n%s", ProloguePrefix, title, scenario),
		Timestamp: time.Now(),
	}
}

// ItemMessage builds the injected "item received" system entry.
func ItemMessage(item InventoryItem) Message {
	return Message{
		ID:        NewID("item"),
		Sender:    SenderSystem,
		Text:      fmt.Sprintf("%s%s\n%s", ItemPrefix, item.Name, item.Description),
		ImageURL:  item.ImageURL,
		Timestamp: time.Now(),
	}
}

package agent

import (
	"sync"

	"github.com/Dev-Umb/wife-generate-game/internal/game"
	"github.com/Dev-Umb/wife-generate-game/internal/provider"
)

// Conversation is the narrative service's view of a session: the system
// prompt plus role-tagged history. Providers are stateless, so this handle
// is what makes a chat a chat. A context reset replaces the handle instead
// of mutating it, so a turn that captured the old one finishes on it.
type Conversation struct {
	mu       sync.Mutex
	system   string
	messages []provider.Message
}

// NewConversation builds a conversation from chat history. Persona
// messages become assistant turns; everything else, including system
// entries, is sent as user text. Empty text is replaced with a single
// space because some providers reject empty parts.
func NewConversation(system string, history []game.Message) *Conversation {
	c := &Conversation{system: system}
	for _, m := range history {
		role := provider.RoleUser
		if m.Sender == game.SenderPersona {
			role = provider.RoleAssistant
		}
		text := m.Text
		if text == "" {
			text = " "
		}
		c.Append(provider.TextMessage(role, text))
	}
	return c
}

// System returns the system prompt.
func (c *Conversation) System() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.system
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []provider.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]provider.Message(nil), c.messages...)
}

// Append adds messages to the history. A message with the same role as the
// last one is merged into it, so tool results left over from a capped or
// failed turn travel with the next user message.
func (c *Conversation) Append(msgs ...provider.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		if n := len(c.messages); n > 0 && c.messages[n-1].Role == m.Role {
			last := &c.messages[n-1]
			last.Content = append(append([]provider.Content(nil), last.Content...), m.Content...)
			continue
		}
		c.messages = append(c.messages, m)
	}
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

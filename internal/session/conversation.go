package session

import (
	"github.com/google/uuid"

	"github.com/iishyfishyy/calais/internal/llm"
)

// Conversation is the ordered list of turns sent with every request. It
// only grows and lives for one process run.
type Conversation struct {
	ID       string
	messages []llm.Message
}

// NewConversation starts a conversation with the given system prompt.
func NewConversation(system string) *Conversation {
	c := &Conversation{ID: uuid.NewString()}
	if system != "" {
		c.Add(llm.RoleSystem, system)
	}
	return c
}

// Add appends a turn.
func (c *Conversation) Add(role, content string) {
	c.messages = append(c.messages, llm.Message{Role: role, Content: content})
}

// Messages returns a copy of all turns.
func (c *Conversation) Messages() []llm.Message {
	return append([]llm.Message(nil), c.messages...)
}

// Len returns the number of turns.
func (c *Conversation) Len() int { return len(c.messages) }

// Last returns the most recent turn.
func (c *Conversation) Last() (llm.Message, bool) {
	if len(c.messages) == 0 {
		return llm.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

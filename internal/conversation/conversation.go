// Package conversation defines the normalized conversation model shared by
// the extractors and the renderer. A Conversation is the single source of
// truth for both rendered artifacts and the metadata attached to a finished
// conversion, so counts computed here always match what was rendered.
package conversation

import (
	"strings"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	Role      Role
	Text      string
	Timestamp time.Time // zero when the source carries no timestamp
}

// Conversation is an ordered message sequence extracted from a chat export.
// Skipped counts how many malformed source messages were dropped during
// extraction.
type Conversation struct {
	Title    string
	Messages []Message
	Skipped  int
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// WordCount returns the whitespace-delimited token count across all message
// texts.
func (c *Conversation) WordCount() int {
	n := 0
	for _, m := range c.Messages {
		n += len(strings.Fields(m.Text))
	}
	return n
}

// Empty reports whether no messages were recovered.
func (c *Conversation) Empty() bool {
	return len(c.Messages) == 0
}

// NormalizeRole maps the role spellings found in export files onto the three
// canonical roles. Unrecognized values become RoleAssistant when they look
// like a bot sender and RoleUser otherwise.
func NormalizeRole(raw string) Role {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "user", "human", "me":
		return RoleUser
	case "assistant", "ai", "bot", "model", "chatgpt", "claude", "grok":
		return RoleAssistant
	case "system", "tool":
		return RoleSystem
	default:
		return RoleUser
	}
}

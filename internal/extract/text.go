package extract

import (
	"bytes"
	"strings"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

// FromText parses a plain-text upload. JSON content pasted into a .txt file
// is handed to the JSON extractor; otherwise the content is treated as a
// "Role: text" transcript, with unprefixed lines continuing the current
// message. Text without any role markers becomes a single user message.
func FromText(data []byte) (*conversation.Conversation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNoMessages
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if conv, err := FromJSON(trimmed); err == nil {
			return conv, nil
		}
	}

	conv := &conversation.Conversation{}
	var cur *conversation.Message
	for _, line := range strings.Split(string(trimmed), "\n") {
		if role, rest, ok := splitRolePrefix(line); ok {
			conv.Messages = append(conv.Messages, conversation.Message{Role: role, Text: rest})
			cur = &conv.Messages[len(conv.Messages)-1]
			continue
		}
		if cur != nil {
			if cur.Text != "" {
				cur.Text += "\n"
			}
			cur.Text += strings.TrimRight(line, " \t")
		}
	}

	if conv.Empty() {
		conv.Messages = append(conv.Messages, conversation.Message{
			Role: conversation.RoleUser,
			Text: string(trimmed),
		})
	}
	return conv, nil
}

var rolePrefixes = []string{"user", "human", "assistant", "ai", "chatgpt", "claude", "grok", "system"}

func splitRolePrefix(line string) (conversation.Role, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	head := strings.ToLower(strings.TrimSpace(line[:idx]))
	for _, p := range rolePrefixes {
		if head == p {
			return conversation.NormalizeRole(head), strings.TrimSpace(line[idx+1:]), true
		}
	}
	return "", "", false
}

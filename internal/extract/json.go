package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

// FromJSON parses a JSON chat export. It understands the ChatGPT mapping-tree
// schema, the Claude chat_messages schema (and flat arrays of turn objects),
// and a generic {role, content} message list as a fallback.
func FromJSON(data []byte) (*conversation.Conversation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, ErrNoMessages
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("parsing export array: %w", err)
		}
		if len(items) == 0 {
			return nil, ErrNoMessages
		}
		// An array of conversation objects: take the first one. An array of
		// bare turn objects: parse the whole array as turns.
		if conv, err := fromJSONObject(items[0]); err == nil {
			return conv, nil
		}
		return finish(parseTurnList(items))
	}

	return fromJSONObject(trimmed)
}

func fromJSONObject(data []byte) (*conversation.Conversation, error) {
	var obj struct {
		Title        string                     `json:"title"`
		Name         string                     `json:"name"`
		Mapping      map[string]json.RawMessage `json:"mapping"`
		ChatMessages []json.RawMessage          `json:"chat_messages"`
		Messages     []json.RawMessage          `json:"messages"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, fmt.Errorf("parsing export object: %w", err)
	}

	title := obj.Title
	if title == "" {
		title = obj.Name
	}

	switch {
	case obj.Mapping != nil:
		conv := parseMapping(obj.Mapping)
		conv.Title = title
		return finish(conv)
	case obj.ChatMessages != nil:
		conv := parseTurnList(obj.ChatMessages)
		conv.Title = title
		return finish(conv)
	case obj.Messages != nil:
		conv := parseTurnList(obj.Messages)
		conv.Title = title
		return finish(conv)
	default:
		return nil, ErrNoMessages
	}
}

// mappingNode is one node of the ChatGPT export tree. Messages hang off nodes;
// Parent/Children carry the traversal order.
type mappingNode struct {
	Message *struct {
		Author struct {
			Role string `json:"role"`
		} `json:"author"`
		Content struct {
			ContentType string            `json:"content_type"`
			Parts       []json.RawMessage `json:"parts"`
		} `json:"content"`
		CreateTime float64 `json:"create_time"`
	} `json:"message"`
	Parent   *string  `json:"parent"`
	Children []string `json:"children"`
}

// parseMapping walks the ChatGPT node tree from the root, following first
// children, which reproduces the visible conversation order. When no root is
// identifiable the nodes are ordered by create_time instead.
func parseMapping(raw map[string]json.RawMessage) *conversation.Conversation {
	nodes := make(map[string]*mappingNode, len(raw))
	skipped := 0
	for id, r := range raw {
		var n mappingNode
		if err := json.Unmarshal(r, &n); err != nil {
			skipped++
			continue
		}
		nodes[id] = &n
	}

	rootID := ""
	for id, n := range nodes {
		if n.Parent == nil || *n.Parent == "" {
			rootID = id
			break
		}
	}

	conv := &conversation.Conversation{Skipped: skipped}
	if rootID != "" {
		seen := make(map[string]bool, len(nodes))
		for id := rootID; id != "" && !seen[id]; {
			seen[id] = true
			n := nodes[id]
			if n == nil {
				break
			}
			appendMappingMessage(conv, n)
			if len(n.Children) == 0 {
				break
			}
			id = n.Children[0]
		}
		if !conv.Empty() {
			return conv
		}
	}

	// No walkable root: fall back to timestamp order.
	ordered := make([]*mappingNode, 0, len(nodes))
	for _, n := range nodes {
		if n.Message != nil {
			ordered = append(ordered, n)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Message.CreateTime < ordered[j].Message.CreateTime
	})
	conv = &conversation.Conversation{Skipped: skipped}
	for _, n := range ordered {
		appendMappingMessage(conv, n)
	}
	return conv
}

func appendMappingMessage(conv *conversation.Conversation, n *mappingNode) {
	if n.Message == nil {
		return
	}
	text := joinParts(n.Message.Content.Parts)
	if text == "" {
		// Root placeholders and tool payloads carry no renderable text.
		return
	}
	var ts time.Time
	if n.Message.CreateTime > 0 {
		sec := int64(n.Message.CreateTime)
		nsec := int64((n.Message.CreateTime - float64(sec)) * 1e9)
		ts = time.Unix(sec, nsec).UTC()
	}
	conv.Messages = append(conv.Messages, conversation.Message{
		Role:      conversation.NormalizeRole(n.Message.Author.Role),
		Text:      text,
		Timestamp: ts,
	})
}

// joinParts concatenates string parts, ignoring non-string (multimodal)
// entries.
func joinParts(parts []json.RawMessage) string {
	var buf bytes.Buffer
	for _, p := range parts {
		var s string
		if json.Unmarshal(p, &s) != nil {
			continue
		}
		if s == "" {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(s)
	}
	return buf.String()
}

// turn is a single message in the Claude export schema and in generic message
// lists. Either sender or role names the author; text or content carries the
// body.
type turn struct {
	Sender    string `json:"sender"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	Timestamp string `json:"timestamp"`
}

func parseTurnList(items []json.RawMessage) *conversation.Conversation {
	conv := &conversation.Conversation{}
	for _, item := range items {
		var t turn
		if err := json.Unmarshal(item, &t); err != nil {
			conv.Skipped++
			continue
		}
		text := t.Text
		if text == "" {
			text = t.Content
		}
		role := t.Sender
		if role == "" {
			role = t.Role
		}
		if text == "" || role == "" {
			conv.Skipped++
			continue
		}
		conv.Messages = append(conv.Messages, conversation.Message{
			Role:      conversation.NormalizeRole(role),
			Text:      text,
			Timestamp: parseTimestamp(t.CreatedAt, t.Timestamp),
		})
	}
	return conv
}

func parseTimestamp(candidates ...string) time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, c); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Time{}
}

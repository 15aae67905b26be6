package extract

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

// FromHTML parses an HTML export or a scraped share page without a browser
// DOM. Message turns are located by the data-message-author-role attribute
// (ChatGPT exports) or by turn-ish class names as a fallback.
func FromHTML(data []byte) (*conversation.Conversation, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	conv := &conversation.Conversation{Title: findTitle(doc)}

	collectByAttr(doc, conv)
	if conv.Empty() {
		collectByClass(doc, conv)
	}
	return finish(conv)
}

func findTitle(doc *html.Node) string {
	var title string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Title {
			title = strings.TrimSpace(nodeText(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title
}

// collectByAttr gathers turns marked with data-message-author-role, in
// document order.
func collectByAttr(doc *html.Node, conv *conversation.Conversation) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if role, ok := attrValue(n, "data-message-author-role"); ok {
				text := strings.TrimSpace(nodeText(n))
				if text == "" {
					conv.Skipped++
				} else {
					conv.Messages = append(conv.Messages, conversation.Message{
						Role: conversation.NormalizeRole(role),
						Text: text,
					})
				}
				return // do not descend into a turn already consumed
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}

// collectByClass is the fallback for exports without role attributes: any
// element whose class mentions a human/user or assistant turn becomes a
// message.
func collectByClass(doc *html.Node, conv *conversation.Conversation) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if class, ok := attrValue(n, "class"); ok {
				if role, matched := roleFromClass(class); matched {
					text := strings.TrimSpace(nodeText(n))
					if text == "" {
						conv.Skipped++
					} else {
						conv.Messages = append(conv.Messages, conversation.Message{Role: role, Text: text})
					}
					return
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
}

func roleFromClass(class string) (conversation.Role, bool) {
	c := strings.ToLower(class)
	switch {
	case strings.Contains(c, "human-turn"), strings.Contains(c, "user-message"), strings.Contains(c, "user-turn"):
		return conversation.RoleUser, true
	case strings.Contains(c, "assistant-turn"), strings.Contains(c, "assistant-message"), strings.Contains(c, "ai-message"):
		return conversation.RoleAssistant, true
	default:
		return "", false
	}
}

func attrValue(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// nodeText concatenates the text content of a subtree, skipping script and
// style bodies, with block boundaries collapsed to single newlines.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Br, atom.P, atom.Div, atom.Li:
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	lines := strings.Split(sb.String(), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if t := strings.TrimSpace(l); t != "" {
			out = append(out, t)
		}
	}
	return strings.Join(out, "\n")
}

// Package detect classifies raw conversion input into a source platform and a
// container kind before any extraction work happens.
//
// The container kind describes the physical packaging of the bytes (json,
// html, zip, remote link) and decides which extractor runs. The platform is
// the originating chat product and is advisory: an unrecognized platform is
// not an error, it only changes how the export structure is interpreted.
package detect

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when the container kind cannot be
// determined from the filename or URL. It is the only detection failure and
// is surfaced to callers before a conversion record is created.
var ErrUnsupportedFormat = errors.New("unsupported input format")

// Platform is the originating chat-assistant product.
type Platform string

const (
	PlatformChatGPT Platform = "chatgpt"
	PlatformClaude  Platform = "claude"
	PlatformGrok    Platform = "grok"
	PlatformUnknown Platform = "unknown"
)

// Kind is the physical container of the input bytes.
type Kind string

const (
	KindJSON   Kind = "json"
	KindText   Kind = "text"
	KindHTML   Kind = "html"
	KindZip    Kind = "zip"
	KindRemote Kind = "remote"
)

// Result is the outcome of classification.
type Result struct {
	Platform Platform
	Kind     Kind
}

// URL classifies a share link. The kind is always KindRemote; the platform is
// inferred from the host.
func URL(raw string) (Result, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Result{}, ErrUnsupportedFormat
	}
	return Result{Platform: platformFromHost(u.Host), Kind: KindRemote}, nil
}

// File classifies uploaded bytes by filename extension, then refines the
// platform from structural markers inside the content where possible.
func File(filename string, data []byte) (Result, error) {
	var kind Kind
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		kind = KindJSON
	case ".txt", ".text":
		kind = KindText
	case ".html", ".htm":
		kind = KindHTML
	case ".zip":
		kind = KindZip
	default:
		return Result{}, ErrUnsupportedFormat
	}

	platform := PlatformUnknown
	switch kind {
	case KindJSON:
		platform = PlatformFromJSON(data)
	case KindHTML:
		platform = platformFromHTML(data)
	case KindZip:
		// Refined later by the zip extractor once the primary entry is known.
	}
	return Result{Platform: platform, Kind: kind}, nil
}

func platformFromHost(host string) Platform {
	h := strings.ToLower(host)
	switch {
	case strings.Contains(h, "chatgpt.com"), strings.Contains(h, "chat.openai.com"):
		return PlatformChatGPT
	case strings.Contains(h, "claude.ai"):
		return PlatformClaude
	case strings.Contains(h, "grok.com"), strings.Contains(h, "x.com"):
		return PlatformGrok
	default:
		return PlatformUnknown
	}
}

// PlatformFromJSON inspects a parsed JSON export for platform markers:
// a "mapping" node tree is the ChatGPT export schema, a "chat_messages" array
// (or a flat array of turn objects with a "sender" field) is the Claude one.
// Zip extraction reuses this on the archive's primary entry.
func PlatformFromJSON(data []byte) Platform {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return PlatformUnknown
	}

	if trimmed[0] == '[' {
		var turns []map[string]json.RawMessage
		if json.Unmarshal(trimmed, &turns) != nil || len(turns) == 0 {
			return PlatformUnknown
		}
		if _, ok := turns[0]["mapping"]; ok {
			return PlatformChatGPT
		}
		if _, ok := turns[0]["chat_messages"]; ok {
			return PlatformClaude
		}
		if sender, ok := turns[0]["sender"]; ok {
			if bytes.Contains(sender, []byte("grok")) {
				return PlatformGrok
			}
			return PlatformClaude
		}
		return PlatformUnknown
	}

	var obj map[string]json.RawMessage
	if json.Unmarshal(trimmed, &obj) != nil {
		return PlatformUnknown
	}
	if _, ok := obj["mapping"]; ok {
		return PlatformChatGPT
	}
	if _, ok := obj["chat_messages"]; ok {
		return PlatformClaude
	}
	if msgs, ok := obj["messages"]; ok && bytes.Contains(msgs, []byte(`"sender":"grok"`)) {
		return PlatformGrok
	}
	return PlatformUnknown
}

func platformFromHTML(data []byte) Platform {
	lower := bytes.ToLower(data)
	switch {
	case bytes.Contains(lower, []byte("data-message-author-role")), bytes.Contains(lower, []byte("chatgpt")):
		return PlatformChatGPT
	case bytes.Contains(lower, []byte("claude")):
		return PlatformClaude
	case bytes.Contains(lower, []byte("grok")):
		return PlatformGrok
	default:
		return PlatformUnknown
	}
}

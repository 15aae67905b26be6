// Package extract converts raw export bytes of a given container kind into a
// normalized conversation.
//
// One strategy exists per container kind: JSON exports, HTML exports, ZIP
// archives (which locate the primary export entry and delegate), plain-text
// transcripts, and remote share links (fetched by Fetcher, then parsed as
// HTML). Extraction preserves message order exactly as encountered in the
// source and skips malformed individual messages instead of aborting,
// recording the skip count on the conversation.
package extract

import (
	"errors"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

// ErrNoMessages is returned when a structurally valid export yields zero
// recoverable messages.
var ErrNoMessages = errors.New("no messages recovered from export")

// ErrFetch is returned when a remote share link cannot be retrieved after the
// retry budget is exhausted.
var ErrFetch = errors.New("remote fetch failed")

// maxEntrySize bounds how much of a single archive entry or response body is
// read.
const maxEntrySize = 32 << 20 // 32MB

func finish(c *conversation.Conversation) (*conversation.Conversation, error) {
	if c.Empty() {
		return nil, ErrNoMessages
	}
	return c, nil
}

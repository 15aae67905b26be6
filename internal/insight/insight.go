// Package insight produces short natural-language summaries of extracted
// conversations using a local Ollama-compatible model server. The feature is
// optional: when no server is reachable, callers get ErrUnavailable and the
// conversion pipeline is unaffected.
package insight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

// ErrUnavailable indicates the model server is not reachable.
var ErrUnavailable = errors.New("insight model server unavailable")

// Transcripts longer than this are truncated before prompting; summaries of
// the opening exchange are still useful and keep latency bounded.
const maxTranscriptChars = 24000

const systemPrompt = "You summarize chat conversations. Reply with a 2-3 sentence " +
	"summary of what was discussed and what was concluded. Do not quote messages verbatim."

// Message is one chat turn in the model API format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Summarizer talks to an Ollama-compatible chat endpoint.
type Summarizer struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a Summarizer for the given base URL and model name.
func New(baseURL, model string) *Summarizer {
	return &Summarizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// Available reports whether the model server responds to GET /api/tags.
func (s *Summarizer) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Summarize returns a short summary of the conversation.
func (s *Summarizer) Summarize(ctx context.Context, conv *conversation.Conversation) (string, error) {
	if conv == nil || conv.Empty() {
		return "", errors.New("nothing to summarize")
	}
	if !s.Available(ctx) {
		return "", ErrUnavailable
	}

	out, err := s.chat(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: transcript(conv)},
	})
	if err != nil {
		return "", fmt.Errorf("summarizing conversation: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// transcript flattens the conversation into a role-prefixed plain-text block.
func transcript(conv *conversation.Conversation) string {
	var b strings.Builder
	if conv.Title != "" {
		b.WriteString("Title: " + conv.Title + "\n\n")
	}
	for _, m := range conv.Messages {
		b.WriteString(string(m.Role))
		b.WriteString(": ")
		b.WriteString(m.Text)
		b.WriteString("\n\n")
		if b.Len() > maxTranscriptChars {
			break
		}
	}
	t := b.String()
	if len(t) > maxTranscriptChars {
		t = t[:maxTranscriptChars] + "\n[transcript truncated]"
	}
	return t
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// chatResponse is the JSON returned by POST /api/chat (non-streaming).
type chatResponse struct {
	Message Message `json:"message"`
}

func (s *Summarizer) chat(ctx context.Context, messages []Message) (string, error) {
	body, err := json.Marshal(chatRequest{Model: s.model, Messages: messages, Stream: false})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat: unexpected status %d", resp.StatusCode)
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	return result.Message.Content, nil
}

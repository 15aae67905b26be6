package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

func sampleConversation() *conversation.Conversation {
	return &conversation.Conversation{
		Title: "Trip planning",
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Text: "Plan a trip to Lisbon"},
			{Role: conversation.RoleAssistant, Text: "Sure, here is a plan."},
		},
	}
}

func TestSummarize(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/chat":
			if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
				t.Errorf("decoding request: %v", err)
			}
			json.NewEncoder(w).Encode(chatResponse{
				Message: Message{Role: "assistant", Content: " A Lisbon trip was planned. "},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	s := New(srv.URL, "phi3.5")
	summary, err := s.Summarize(context.Background(), sampleConversation())
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != "A Lisbon trip was planned." {
		t.Errorf("summary = %q", summary)
	}

	if gotBody.Model != "phi3.5" || gotBody.Stream {
		t.Errorf("request = %+v", gotBody)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", gotBody.Messages)
	}
	if !strings.Contains(gotBody.Messages[1].Content, "Plan a trip to Lisbon") {
		t.Errorf("transcript missing user turn: %q", gotBody.Messages[1].Content)
	}
}

func TestSummarize_ServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	s := New(srv.URL, "phi3.5")
	if _, err := s.Summarize(context.Background(), sampleConversation()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestSummarize_EmptyConversation(t *testing.T) {
	s := New("http://localhost:0", "phi3.5")
	if _, err := s.Summarize(context.Background(), &conversation.Conversation{}); err == nil {
		t.Error("no error for empty conversation")
	}
}

func TestTranscript_Truncation(t *testing.T) {
	conv := &conversation.Conversation{}
	long := strings.Repeat("word ", 2000)
	for i := 0; i < 10; i++ {
		conv.Messages = append(conv.Messages, conversation.Message{Role: conversation.RoleUser, Text: long})
	}

	tr := transcript(conv)
	if len(tr) > maxTranscriptChars+len("\n[transcript truncated]") {
		t.Errorf("transcript length = %d", len(tr))
	}
	if !strings.HasSuffix(tr, "[transcript truncated]") {
		t.Error("truncation marker missing")
	}
}

package render

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

func sampleConversation() *conversation.Conversation {
	return &conversation.Conversation{
		Title: "Render test",
		Messages: []conversation.Message{
			{Role: conversation.RoleUser, Text: "first question", Timestamp: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
			{Role: conversation.RoleAssistant, Text: "an answer\nwith two lines"},
			{Role: conversation.RoleUser, Text: "thanks"},
		},
	}
}

func TestRender_ProducesBothArtifacts(t *testing.T) {
	out, err := New().Render(context.Background(), sampleConversation())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(out.PDF) == 0 {
		t.Error("PDF artifact is empty")
	}
	if len(out.DOCX) == 0 {
		t.Error("DOCX artifact is empty")
	}
	if !bytes.HasPrefix(out.PDF, []byte("%PDF-")) {
		t.Error("PDF artifact missing %PDF header")
	}
}

func TestRender_PDFParses(t *testing.T) {
	out, err := New().Render(context.Background(), sampleConversation())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(out.PDF), int64(len(out.PDF)))
	if err != nil {
		t.Fatalf("reading produced PDF: %v", err)
	}
	if r.NumPage() < 1 {
		t.Errorf("NumPage = %d, want >= 1", r.NumPage())
	}
}

func TestRender_DOCXContainsMessages(t *testing.T) {
	conv := sampleConversation()
	out, err := New().Render(context.Background(), conv)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(out.DOCX), int64(len(out.DOCX)))
	if err != nil {
		t.Fatalf("DOCX is not a zip archive: %v", err)
	}

	var document string
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("opening document.xml: %v", err)
			}
			b, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				t.Fatalf("reading document.xml: %v", err)
			}
			document = string(b)
		}
	}
	if document == "" {
		t.Fatal("DOCX archive has no word/document.xml")
	}

	for _, want := range []string{"Render test", "first question", "an answer", "with two lines", "User", "Assistant"} {
		if !strings.Contains(document, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
}

func TestRender_DOCXEscapesMarkup(t *testing.T) {
	conv := &conversation.Conversation{Messages: []conversation.Message{
		{Role: conversation.RoleUser, Text: `use <w:p> & "quotes"`},
	}}
	out, err := New().Render(context.Background(), conv)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(out.DOCX), int64(len(out.DOCX)))
	if err != nil {
		t.Fatalf("DOCX is not a zip archive: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, _ := f.Open()
		b, _ := io.ReadAll(rc)
		rc.Close()
		if !strings.Contains(string(b), "&lt;w:p&gt;") {
			t.Error("angle brackets in message text were not escaped")
		}
	}
}

func TestRender_EmptyConversation(t *testing.T) {
	_, err := New().Render(context.Background(), &conversation.Conversation{})
	if !errors.Is(err, ErrRender) {
		t.Errorf("err = %v, want ErrRender", err)
	}
}

func TestRender_Deterministic(t *testing.T) {
	conv := sampleConversation()
	r := New()
	a, err := r.Render(context.Background(), conv)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	b, err := r.Render(context.Background(), conv)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	// DOCX bytes are fully reproducible; the PDF header embeds a creation
	// date, so compare sizes only.
	if !bytes.Equal(a.DOCX, b.DOCX) {
		t.Error("DOCX output differs between runs")
	}
	if len(a.PDF) != len(b.PDF) {
		t.Errorf("PDF sizes differ between runs: %d vs %d", len(a.PDF), len(b.PDF))
	}
}

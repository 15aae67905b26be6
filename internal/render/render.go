// Package render turns a normalized conversation into PDF and DOCX byte
// artifacts. Both artifacts represent the same logical content: ordered
// messages with role labels and timestamps where present. Rendering is
// deterministic for any non-empty conversation; failures come only from the
// artifact generation itself.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

// ErrRender wraps artifact generation failures.
var ErrRender = errors.New("artifact generation failed")

// Artifacts holds the two rendered documents.
type Artifacts struct {
	PDF  []byte
	DOCX []byte
}

// Renderer produces artifacts from conversations.
type Renderer struct {
	logger *slog.Logger
}

// New creates a Renderer.
func New() *Renderer {
	return &Renderer{logger: slog.Default()}
}

// Render produces both artifacts, generating them concurrently.
func (r *Renderer) Render(ctx context.Context, conv *conversation.Conversation) (*Artifacts, error) {
	if conv == nil || conv.Empty() {
		return nil, fmt.Errorf("%w: empty conversation", ErrRender)
	}

	var out Artifacts
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := renderPDF(conv)
		if err != nil {
			return fmt.Errorf("%w: pdf: %v", ErrRender, err)
		}
		out.PDF = b
		return nil
	})
	g.Go(func() error {
		b, err := renderDOCX(conv)
		if err != nil {
			return fmt.Errorf("%w: docx: %v", ErrRender, err)
		}
		out.DOCX = b
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.logger.Debug("rendered artifacts",
		"messages", conv.MessageCount(),
		"pdf_bytes", len(out.PDF),
		"docx_bytes", len(out.DOCX),
	)
	return &out, nil
}

// roleLabel is the heading shown above each message in both artifacts.
func roleLabel(role conversation.Role) string {
	switch role {
	case conversation.RoleUser:
		return "User"
	case conversation.RoleAssistant:
		return "Assistant"
	case conversation.RoleSystem:
		return "System"
	default:
		return string(role)
	}
}

func timestampLabel(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

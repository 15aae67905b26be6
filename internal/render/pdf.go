package render

import (
	"bytes"
	"strings"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

func renderPDF(conv *conversation.Conversation) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(documentTitle(conv), true)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, tr(documentTitle(conv)), "", "L", false)
	pdf.Ln(4)

	for _, m := range conv.Messages {
		heading := roleLabel(m.Role)
		if ts := timestampLabel(m.Timestamp); ts != "" {
			heading += "  ·  " + ts
		}
		pdf.SetFont("Helvetica", "B", 12)
		pdf.MultiCell(0, 6, tr(heading), "", "L", false)

		pdf.SetFont("Helvetica", "", 11)
		for _, line := range strings.Split(m.Text, "\n") {
			if line == "" {
				pdf.Ln(3)
				continue
			}
			pdf.MultiCell(0, 5, tr(line), "", "L", false)
		}
		pdf.Ln(5)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func documentTitle(conv *conversation.Conversation) string {
	if strings.TrimSpace(conv.Title) != "" {
		return conv.Title
	}
	return "Conversation"
}

package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/chat2doc/chat2doc/internal/conversation"
)

// A DOCX file is a zip archive of OOXML parts; the conversation becomes
// paragraphs in word/document.xml with a bold role heading per message.

const docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func renderDOCX(conv *conversation.Conversation) ([]byte, error) {
	var body strings.Builder
	body.WriteString(headingParagraph(documentTitle(conv), 32))

	for _, m := range conv.Messages {
		heading := roleLabel(m.Role)
		if ts := timestampLabel(m.Timestamp); ts != "" {
			heading += "  -  " + ts
		}
		body.WriteString(headingParagraph(heading, 24))
		body.WriteString(textParagraph(m.Text))
	}

	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">` +
		`<w:body>` + body.String() + `</w:body></w:document>`

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	parts := []struct{ name, content string }{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", document},
	}
	for _, p := range parts {
		f, err := w.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", p.name, err)
		}
		if _, err := f.Write([]byte(p.content)); err != nil {
			return nil, fmt.Errorf("writing %s: %w", p.name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing archive: %w", err)
	}
	return buf.Bytes(), nil
}

// headingParagraph emits a bold paragraph; size is in half-points.
func headingParagraph(text string, size int) string {
	return fmt.Sprintf(
		`<w:p><w:r><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
		size, escapeXML(text),
	)
}

// textParagraph emits one paragraph per source line so message line structure
// survives.
func textParagraph(text string) string {
	var sb strings.Builder
	for _, line := range strings.Split(text, "\n") {
		sb.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		sb.WriteString(escapeXML(line))
		sb.WriteString(`</w:t></w:r></w:p>`)
	}
	return sb.String()
}

func escapeXML(s string) string {
	var buf bytes.Buffer
	xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

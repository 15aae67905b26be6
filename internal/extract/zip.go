package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/chat2doc/chat2doc/internal/conversation"
	"github.com/chat2doc/chat2doc/internal/detect"
)

// FromZip opens an export archive, locates the primary export entry, and
// delegates to the JSON or HTML extractor. The refined platform (detected
// from the entry's content) is returned alongside the conversation so zip
// submissions still get a platform classification.
func FromZip(data []byte) (*conversation.Conversation, detect.Platform, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, detect.PlatformUnknown, fmt.Errorf("opening archive: %w", err)
	}

	entry := primaryEntry(r)
	if entry == nil {
		return nil, detect.PlatformUnknown, fmt.Errorf("%w: archive contains no export file", ErrNoMessages)
	}

	f, err := entry.Open()
	if err != nil {
		return nil, detect.PlatformUnknown, fmt.Errorf("opening archive entry %s: %w", entry.Name, err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxEntrySize))
	if err != nil {
		return nil, detect.PlatformUnknown, fmt.Errorf("reading archive entry %s: %w", entry.Name, err)
	}

	switch strings.ToLower(path.Ext(entry.Name)) {
	case ".json":
		conv, err := FromJSON(content)
		return conv, detect.PlatformFromJSON(content), err
	default:
		conv, err := FromHTML(content)
		return conv, detect.PlatformUnknown, err
	}
}

// primaryEntry picks the export file inside the archive: conversations.json
// (the name both ChatGPT and Claude use) wins, then any .json, then any
// .html.
func primaryEntry(r *zip.Reader) *zip.File {
	var firstJSON, firstHTML *zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := strings.ToLower(path.Base(f.Name))
		if name == "conversations.json" {
			return f
		}
		switch path.Ext(name) {
		case ".json":
			if firstJSON == nil {
				firstJSON = f
			}
		case ".html", ".htm":
			if firstHTML == nil {
				firstHTML = f
			}
		}
	}
	if firstJSON != nil {
		return firstJSON
	}
	return firstHTML
}

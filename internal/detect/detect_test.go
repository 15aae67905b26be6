package detect

import (
	"errors"
	"testing"
)

func TestURL(t *testing.T) {
	cases := []struct {
		raw      string
		platform Platform
		wantErr  bool
	}{
		{"https://chatgpt.com/share/abc123", PlatformChatGPT, false},
		{"https://chat.openai.com/share/abc", PlatformChatGPT, false},
		{"https://claude.ai/share/xyz", PlatformClaude, false},
		{"https://grok.com/share/1", PlatformGrok, false},
		{"https://example.com/whatever", PlatformUnknown, false},
		{"ftp://example.com/file", PlatformUnknown, true},
		{"not a url", PlatformUnknown, true},
	}
	for _, tc := range cases {
		res, err := URL(tc.raw)
		if tc.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("URL(%q) err = %v, want ErrUnsupportedFormat", tc.raw, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("URL(%q) unexpected error: %v", tc.raw, err)
			continue
		}
		if res.Kind != KindRemote {
			t.Errorf("URL(%q) kind = %q, want remote", tc.raw, res.Kind)
		}
		if res.Platform != tc.platform {
			t.Errorf("URL(%q) platform = %q, want %q", tc.raw, res.Platform, tc.platform)
		}
	}
}

func TestFileKinds(t *testing.T) {
	cases := []struct {
		filename string
		kind     Kind
		wantErr  bool
	}{
		{"export.json", KindJSON, false},
		{"export.JSON", KindJSON, false},
		{"chat.txt", KindText, false},
		{"chat.html", KindHTML, false},
		{"chat.htm", KindHTML, false},
		{"bundle.zip", KindZip, false},
		{"notes.docx", "", true},
		{"noextension", "", true},
	}
	for _, tc := range cases {
		res, err := File(tc.filename, nil)
		if tc.wantErr {
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("File(%q) err = %v, want ErrUnsupportedFormat", tc.filename, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("File(%q) unexpected error: %v", tc.filename, err)
			continue
		}
		if res.Kind != tc.kind {
			t.Errorf("File(%q) kind = %q, want %q", tc.filename, res.Kind, tc.kind)
		}
	}
}

func TestPlatformFromJSON(t *testing.T) {
	cases := []struct {
		name string
		data string
		want Platform
	}{
		{"chatgpt mapping object", `{"title":"t","mapping":{"a":{}}}`, PlatformChatGPT},
		{"chatgpt mapping array", `[{"title":"t","mapping":{"a":{}}}]`, PlatformChatGPT},
		{"claude chat_messages", `{"name":"n","chat_messages":[]}`, PlatformClaude},
		{"claude flat turns", `[{"sender":"human","text":"hi"}]`, PlatformClaude},
		{"grok turns", `[{"sender":"grok","text":"hi"}]`, PlatformGrok},
		{"unrecognized", `{"foo":"bar"}`, PlatformUnknown},
		{"not json", `hello`, PlatformUnknown},
		{"empty", ``, PlatformUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := PlatformFromJSON([]byte(tc.data)); got != tc.want {
				t.Errorf("PlatformFromJSON = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnknownPlatformIsNotAnError(t *testing.T) {
	res, err := File("export.json", []byte(`{"foo":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Platform != PlatformUnknown {
		t.Errorf("platform = %q, want unknown", res.Platform)
	}
}

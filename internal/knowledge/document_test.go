package knowledge

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDocument_JSON(t *testing.T) {
	path := writeTemp(t, "kb.json", `{"wifi":{"network":"CONF-GUEST","password":"welcome2026"}}`)

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if !strings.Contains(doc, "CONF-GUEST") {
		t.Errorf("document missing content: %q", doc)
	}
	// Pretty-printed, so nested keys land on their own lines.
	if !strings.Contains(doc, "\n") {
		t.Error("JSON document should be re-indented")
	}
}

func TestLoadDocument_InvalidJSON(t *testing.T) {
	path := writeTemp(t, "kb.json", `{"wifi": `)
	if _, err := LoadDocument(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestLoadDocument_Markdown(t *testing.T) {
	path := writeTemp(t, "kb.md", `# Venue Guide

Welcome to the venue.

## Wifi

Network **CONF-GUEST**, password [here](https://example.org/wifi).

- badge required
- open 8am to 6pm
`)

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if !strings.Contains(doc, "# Venue Guide") {
		t.Errorf("missing h1 marker: %q", doc)
	}
	if !strings.Contains(doc, "## Wifi") {
		t.Errorf("missing h2 marker: %q", doc)
	}
	if !strings.Contains(doc, "CONF-GUEST") {
		t.Errorf("missing body text: %q", doc)
	}
	if !strings.Contains(doc, "- badge required") {
		t.Errorf("missing list item: %q", doc)
	}
	// Markdown syntax should not survive normalization.
	if strings.Contains(doc, "**") || strings.Contains(doc, "](") {
		t.Errorf("markdown syntax leaked through: %q", doc)
	}
}

func TestLoadDocument_HTML(t *testing.T) {
	path := writeTemp(t, "kb.html", `<html><head><title>FAQ</title>
<script>alert("hi")</script></head>
<body><nav>skip me</nav><p>Lunch is served at noon.</p></body></html>`)

	doc, err := LoadDocument(path)
	if err != nil {
		t.Fatalf("LoadDocument: %v", err)
	}
	if !strings.Contains(doc, "# FAQ") {
		t.Errorf("missing title heading: %q", doc)
	}
	if !strings.Contains(doc, "Lunch is served at noon.") {
		t.Errorf("missing body text: %q", doc)
	}
	if strings.Contains(doc, "alert") || strings.Contains(doc, "skip me") {
		t.Errorf("skipped elements leaked through: %q", doc)
	}
}

func TestLoadDocument_UnsupportedExtension(t *testing.T) {
	path := writeTemp(t, "kb.pdf", "binary")
	if _, err := LoadDocument(path); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestCleanWhitespace(t *testing.T) {
	in := "a    b\n\n\n\nc\t\td\n"
	got := cleanWhitespace(in)
	want := "a b\n\nc d"
	if got != want {
		t.Errorf("cleanWhitespace = %q, want %q", got, want)
	}
}

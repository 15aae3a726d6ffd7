package knowledge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDocument reads a knowledge file and normalizes it into the plain-text
// form embedded in grounded lookups. The format is chosen by extension:
// .json is validated and pretty-printed, .md is chunked by heading, and
// .html/.htm is reduced to readable text.
func LoadDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read knowledge file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return normalizeJSON(data)
	case ".md", ".markdown":
		return normalizeMarkdown(data)
	case ".html", ".htm":
		title, text := extractHTML(string(data))
		if title != "" {
			return "# " + title + "\n\n" + text, nil
		}
		return text, nil
	default:
		return "", fmt.Errorf("unsupported knowledge format %q (want .json, .md, or .html)", filepath.Ext(path))
	}
}

// normalizeJSON validates the document and re-indents it so the model sees
// a consistent layout regardless of how the file was authored.
func normalizeJSON(data []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parse knowledge JSON: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("encode knowledge JSON: %w", err)
	}
	return buf.String(), nil
}

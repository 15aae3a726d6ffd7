package knowledge

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// normalizeMarkdown parses markdown through the goldmark AST and re-emits
// it as plain text with heading markers. Rendering through the parser
// (rather than passing raw bytes through) strips link targets, emphasis
// syntax, and HTML fragments the model has no use for, while keeping the
// heading structure that lets it locate the right section.
func normalizeMarkdown(src []byte) (string, error) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(src))

	var b strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			switch n.(type) {
			case *ast.Heading, *ast.Paragraph, *ast.ListItem:
				b.WriteString("\n")
			}
			return ast.WalkContinue, nil
		}

		switch v := n.(type) {
		case *ast.Heading:
			b.WriteString("\n" + strings.Repeat("#", v.Level) + " ")
		case *ast.ListItem:
			b.WriteString("- ")
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.SoftLineBreak() || v.HardLineBreak() {
				b.WriteString("\n")
			}
		case *ast.FencedCodeBlock:
			b.WriteString("\n")
			for i := 0; i < v.Lines().Len(); i++ {
				line := v.Lines().At(i)
				b.Write(line.Value(src))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", fmt.Errorf("walk markdown: %w", err)
	}

	return cleanWhitespace(b.String()), nil
}

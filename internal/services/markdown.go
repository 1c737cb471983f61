package services

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// Markdown renders message text as HTML with GitHub flavored extensions and highlighted code blocks. Raw
// HTML in the source is escaped rather than passed through.
type Markdown struct {
	md goldmark.Markdown
}

// NewMarkdown creates a renderer using the given chroma style for code blocks.
func NewMarkdown(style string) Markdown {
	if style == "" {
		style = "monokai"
	}
	return Markdown{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				highlighting.NewHighlighting(
					highlighting.WithStyle(style),
				),
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
			),
		),
	}
}

// Render converts source to HTML.
func (m Markdown) Render(source string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := m.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("error rendering markdown: %w", err)
	}
	// goldmark omits raw HTML unless html.WithUnsafe is set, so the output is safe to embed.
	return template.HTML(buf.String()), nil //nolint:gosec
}

package description

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	markdown     goldmark.Markdown
	markdownOnce sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdown = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps()),
		)
	})
	return markdown
}

// RenderHTML renders a raw description as HTML. The detail view uses it
// when a description has no structured content. Raw HTML in the source
// is not passed through.
func RenderHTML(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render description: %w", err)
	}
	return buf.String(), nil
}

// View is what the detail view receives for one issue.
type View struct {
	Parsed
	HTML string `json:"html,omitempty"`
}

// NewView parses text and, for unstructured descriptions, renders the
// raw-text fallback.
func NewView(text string) (View, error) {
	v := View{Parsed: Parse(text)}
	if v.HasStructuredContent {
		return v, nil
	}
	rendered, err := RenderHTML(text)
	if err != nil {
		return v, err
	}
	v.HTML = rendered
	return v, nil
}

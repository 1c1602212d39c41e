// Package markdown converts post bodies to HTML via Goldmark.
package markdown

import (
	"bytes"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Options controls the Markdown conversion.
type Options struct {
	// HighlightStyle is a chroma style name for fenced code blocks.
	HighlightStyle string
	// Unsafe passes raw HTML in the source through to the output.
	Unsafe bool
}

// DefaultHighlightStyle is used when no style is configured.
const DefaultHighlightStyle = "monokai"

// Renderer converts Markdown bodies to HTML. Safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer builds a Renderer with GFM, footnotes, typographer, and chroma
// syntax highlighting.
func NewRenderer(opts Options) *Renderer {
	style := opts.HighlightStyle
	if style == "" {
		style = DefaultHighlightStyle
	}

	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(
					chromahtml.TabWidth(2),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	}
	if opts.Unsafe {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(html.WithUnsafe()))
	}

	return &Renderer{md: goldmark.New(rendererOpts...)}
}

// Render converts a Markdown body (front-matter already removed) to HTML.
func (r *Renderer) Render(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

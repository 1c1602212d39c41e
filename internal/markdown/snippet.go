package markdown

import (
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ExtractSnippet derives a plain-text teaser from the first paragraph of a
// Markdown body, truncated at a word boundary to at most maxLen runes.
// Posts without a leading paragraph (e.g. starting with a code block) yield "".
func ExtractSnippet(body []byte, maxLen int) string {
	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(body))

	var para *gmast.Paragraph
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering || para != nil {
			return gmast.WalkContinue, nil
		}
		if p, ok := n.(*gmast.Paragraph); ok {
			para = p
			return gmast.WalkStop, nil
		}
		return gmast.WalkContinue, nil
	})
	if para == nil {
		return ""
	}

	var sb strings.Builder
	collectText(para, body, &sb)
	return truncate(strings.TrimSpace(sb.String()), maxLen)
}

// collectText gathers the literal text under a node, flattening inline markup.
func collectText(n gmast.Node, source []byte, sb *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *gmast.Text:
			sb.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				sb.WriteByte(' ')
			}
		case *gmast.String:
			sb.Write(node.Value)
		default:
			collectText(c, source, sb)
		}
	}
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}

	cut := maxLen
	for cut > 0 && !unicode.IsSpace(runes[cut]) {
		cut--
	}
	if cut == 0 {
		cut = maxLen
	}
	return strings.TrimRight(string(runes[:cut]), " ") + "…"
}

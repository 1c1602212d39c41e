// Package frontmatter splits and parses the YAML front-matter block that
// prefixes every Markdown post.
package frontmatter

import (
	"bytes"
	"errors"
	"sort"

	"gopkg.in/yaml.v3"
)

// Style captures newline shape so documents can be reassembled faithfully.
type Style struct {
	Newline            string
	HasTrailingNewline bool
}

// ErrMissingClosingDelimiter indicates the document started with a YAML
// front-matter delimiter but did not contain a closing delimiter.
var ErrMissingClosingDelimiter = errors.New("yaml front-matter start delimiter found but closing delimiter is missing")

// Split separates YAML front-matter (`---` delimited) from the Markdown body.
//
// If the document does not start with a front-matter delimiter, had is false
// and body is the full input.
func Split(content []byte) (frontmatter []byte, body []byte, had bool, style Style, err error) {
	style = detectStyle(content)

	nl := style.Newline
	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, false, style, nil
	}

	frontmatterStart := len(open)
	closeLine := []byte("---" + nl)
	if bytes.HasPrefix(content[frontmatterStart:], closeLine) {
		bodyStart := frontmatterStart + len(closeLine)
		return []byte{}, content[bodyStart:], true, style, nil
	}

	closeSeq := []byte(nl + "---" + nl)
	idx := bytes.Index(content[frontmatterStart:], closeSeq)
	if idx < 0 {
		return nil, nil, false, style, ErrMissingClosingDelimiter
	}

	frontmatterEnd := frontmatterStart + idx + len(nl)
	bodyStart := frontmatterStart + idx + len(closeSeq)
	return content[frontmatterStart:frontmatterEnd], content[bodyStart:], true, style, nil
}

// Join reassembles a document from raw front-matter and body.
func Join(frontmatter []byte, body []byte, had bool, style Style) []byte {
	if !had {
		return body
	}

	nl := style.Newline
	if nl == "" {
		nl = "\n"
	}

	open := []byte("---" + nl)
	closing := []byte("---" + nl)

	out := make([]byte, 0, len(open)+len(frontmatter)+len(closing)+len(body))
	out = append(out, open...)
	out = append(out, frontmatter...)
	out = append(out, closing...)
	out = append(out, body...)
	return out
}

// ParseYAML parses raw YAML front-matter (without --- delimiters) into a map.
func ParseYAML(frontmatter []byte) (map[string]any, error) {
	if len(frontmatter) == 0 {
		return map[string]any{}, nil
	}

	var fields map[string]any
	if err := yaml.Unmarshal(frontmatter, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}

// UnknownKeys lists front-matter keys that no Meta field consumes, sorted,
// so callers can flag likely typos ("titel", "tag"). Documents without
// front-matter report none.
func UnknownKeys(content []byte) ([]string, error) {
	fm, _, had, _, err := Split(content)
	if err != nil || !had {
		return nil, err
	}

	fields, err := ParseYAML(fm)
	if err != nil {
		return nil, err
	}

	var unknown []string
	for key := range fields {
		if !metaKeys[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

// Parse splits a document and decodes its front-matter into typed Meta.
func Parse(content []byte) (Meta, []byte, error) {
	fm, body, had, _, err := Split(content)
	if err != nil {
		return Meta{}, nil, err
	}
	if !had {
		return Meta{}, body, nil
	}

	var meta Meta
	if err := yaml.Unmarshal(fm, &meta); err != nil {
		return Meta{}, nil, err
	}
	return meta, body, nil
}

func detectStyle(content []byte) Style {
	newline := "\n"
	for i := 0; i+1 < len(content); i++ {
		if content[i] == '\r' && content[i+1] == '\n' {
			newline = "\r\n"
			break
		}
		if content[i] == '\n' {
			newline = "\n"
			break
		}
	}

	hasTrailingNewline := len(content) > 0 && (content[len(content)-1] == '\n')

	return Style{
		Newline:            newline,
		HasTrailingNewline: hasTrailingNewline,
	}
}

// Package minify wraps tdewolff/minify for the HTML and CSS transforms
// applied to build output.
package minify

import (
	"bytes"

	tdminify "github.com/tdewolff/minify/v2"
	mcss "github.com/tdewolff/minify/v2/css"
	mhtml "github.com/tdewolff/minify/v2/html"
)

// Minifier applies the output transforms. Safe for concurrent use.
type Minifier struct {
	m *tdminify.M
}

// New builds a Minifier with the HTML and CSS handlers registered.
func New() *Minifier {
	m := tdminify.New()
	m.Add("text/html", &mhtml.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
		KeepQuotes:       true,
	})
	m.AddFunc("text/css", mcss.Minify)
	return &Minifier{m: m}
}

// HTML collapses whitespace and strips comments from an HTML document.
func (mn *Minifier) HTML(in []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := mn.m.Minify("text/html", &out, bytes.NewReader(in)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// CSS minifies a stylesheet.
func (mn *Minifier) CSS(in []byte) ([]byte, error) {
	var out bytes.Buffer
	if err := mn.m.Minify("text/css", &out, bytes.NewReader(in)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

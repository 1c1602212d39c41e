package minify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func TestHTML_CollapsesWhitespaceAndStaysParseable(t *testing.T) {
	in := []byte("<!DOCTYPE html>\n<html>\n  <head>\n    <title>T</title>\n  </head>\n  <body>\n    <p>hello   world</p>\n    <!-- comment -->\n  </body>\n</html>\n")

	out, err := New().HTML(in)
	require.NoError(t, err)

	got := string(out)
	assert.NotContains(t, got, "\n  ")
	assert.NotContains(t, got, "comment")
	assert.Contains(t, got, "<p>hello world</p>")
	assert.Less(t, len(out), len(in))

	_, err = html.Parse(strings.NewReader(got))
	require.NoError(t, err, "minified output must remain valid HTML")
}

func TestHTML_PreservesPreformattedText(t *testing.T) {
	in := []byte("<html><body><pre>line one\n  indented</pre></body></html>")

	out, err := New().HTML(in)
	require.NoError(t, err)
	assert.Contains(t, string(out), "line one\n  indented")
}

func TestCSS_Minifies(t *testing.T) {
	in := []byte("body {\n  color: #ffffff;\n  margin: 0px;\n}\n")

	out, err := New().CSS(in)
	require.NoError(t, err)
	assert.Equal(t, "body{color:#fff;margin:0}", string(out))
}

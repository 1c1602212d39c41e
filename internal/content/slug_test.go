package content

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello World", "hello-world"},
		{"useReducer Middleware Patterns", "usereducer-middleware-patterns"},
		{"Café au lait", "cafe-au-lait"},
		{"  spaced  out  ", "spaced-out"},
		{"C'est la vie!", "c-est-la-vie"},
		{"100% Coverage?", "100-coverage"},
		{"---", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Slugify(tc.in), tc.in)
	}
}

func TestCollection_TagIndex(t *testing.T) {
	posts := []*Post{
		{Title: "A", Slug: "a", Tags: []string{"go", "web"}},
		{Title: "B", Slug: "b", Tags: []string{"go"}},
		{Title: "C", Slug: "c"},
	}
	c := NewCollection(posts)

	assert.Equal(t, []string{"go", "web"}, c.Tags())
	assert.Len(t, c.ByTag("go"), 2)
	assert.Len(t, c.ByTag("web"), 1)
	assert.Empty(t, c.ByTag("missing"))
}

func TestCollection_Recent(t *testing.T) {
	posts := []*Post{{Slug: "a"}, {Slug: "b"}, {Slug: "c"}}
	c := NewCollection(posts)

	assert.Len(t, c.Recent(2), 2)
	assert.Len(t, c.Recent(10), 3)
}

// Package content loads Markdown posts and maintains the sorted collection
// the site is generated from.
package content

import (
	"html/template"
	"path"
	"sort"
	"time"
)

// DefaultLayout is the template used when front-matter names none.
const DefaultLayout = "post"

// Post is a single blog entry, immutable once parsed from its source file.
type Post struct {
	Title   string
	Slug    string
	Layout  string
	Date    time.Time
	Tags    []string
	Snippet string
	Author  string
	Draft   bool

	// Body is the raw Markdown body with front-matter removed.
	Body []byte
	// HTML is the rendered body, populated by the render stage.
	HTML template.HTML

	// SourcePath is the path of the Markdown file relative to the content dir.
	SourcePath string
	// LastMod is the most recent modification, from git history when
	// available, otherwise the file mtime.
	LastMod time.Time
}

// URL returns the site-relative URL of the post's generated page.
func (p *Post) URL() string {
	return path.Join("/posts", p.Slug) + "/"
}

// OutputPath returns the output file path relative to the site root.
func (p *Post) OutputPath() string {
	return path.Join("posts", p.Slug, "index.html")
}

// Collection is all posts of the site, sorted by date descending.
type Collection struct {
	Posts []*Post

	byTag map[string][]*Post
}

// NewCollection sorts posts by date descending (slug ascending on ties, so
// listings are deterministic) and indexes them by tag.
func NewCollection(posts []*Post) *Collection {
	sorted := make([]*Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Date.Equal(sorted[j].Date) {
			return sorted[i].Date.After(sorted[j].Date)
		}
		return sorted[i].Slug < sorted[j].Slug
	})

	byTag := make(map[string][]*Post)
	for _, p := range sorted {
		for _, tag := range p.Tags {
			byTag[tag] = append(byTag[tag], p)
		}
	}

	return &Collection{Posts: sorted, byTag: byTag}
}

// Tags returns all tags in use, sorted alphabetically.
func (c *Collection) Tags() []string {
	tags := make([]string, 0, len(c.byTag))
	for tag := range c.byTag {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ByTag returns the posts carrying a tag, newest first.
func (c *Collection) ByTag(tag string) []*Post {
	return c.byTag[tag]
}

// Recent returns up to n newest posts.
func (c *Collection) Recent(n int) []*Post {
	if n >= len(c.Posts) {
		return c.Posts
	}
	return c.Posts[:n]
}

// Len returns the number of posts.
func (c *Collection) Len() int { return len(c.Posts) }

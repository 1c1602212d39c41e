// Package templates renders pages by composing the base HTML shell with
// header, navbar, footer, and per-layout content blocks. Built-in layouts are
// embedded; a site can override any of them from its layouts directory.
package templates

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/blogsmith/blogsmith/internal/content"
	bserrors "github.com/blogsmith/blogsmith/internal/errors"
)

//go:embed layouts/*.html
var builtinLayouts embed.FS

// pageKinds are the layouts every engine provides.
var pageKinds = []string{"post", "index", "tag", "tags"}

// Site is the site-wide props handed to every template.
type Site struct {
	Title       string
	Author      string
	Description string
	BaseURL     string
}

// PostPage is the props object for a single post page.
type PostPage struct {
	Site Site
	Post *content.Post
}

// IndexPage is the props object for the front page.
type IndexPage struct {
	Site  Site
	Posts []*content.Post
}

// TagPage is the props object for one tag's listing page.
type TagPage struct {
	Site  Site
	Tag   string
	Posts []*content.Post
}

// TagSummary is one entry on the tag index page.
type TagSummary struct {
	Name  string
	Count int
}

// TagsPage is the props object for the tag index page.
type TagsPage struct {
	Site Site
	Tags []TagSummary
}

// Engine holds the parsed layout set.
type Engine struct {
	pages map[string]*template.Template
}

// Funcs returns the helper functions available inside layouts. tagpath maps
// a tag name to the slug used as its page's directory, keeping rendered
// links and written paths in agreement.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string { return t.Format("January 2, 2006") },
		"year":       func() int { return time.Now().Year() },
		"tagpath":    content.Slugify,
	}
}

// New parses the embedded layouts, then applies overrides found in
// layoutsDir (same-named files redefine the built-in blocks). layoutsDir may
// be empty or nonexistent.
func New(layoutsDir string) (*Engine, error) {
	base := template.New("base").Funcs(Funcs())
	base, err := base.ParseFS(builtinLayouts, "layouts/base.html")
	if err != nil {
		return nil, bserrors.Wrap(err, bserrors.CategoryTemplate, bserrors.SeverityFatal, "parsing base layout")
	}
	if path := overridePath(layoutsDir, "base.html"); path != "" {
		if base, err = base.ParseFiles(path); err != nil {
			return nil, bserrors.Wrap(err, bserrors.CategoryTemplate, bserrors.SeverityFatal, "parsing base layout override")
		}
	}

	pages := make(map[string]*template.Template, len(pageKinds))
	for _, kind := range pageKinds {
		t, err := base.Clone()
		if err != nil {
			return nil, bserrors.Wrap(err, bserrors.CategoryTemplate, bserrors.SeverityFatal, "cloning base layout")
		}
		if t, err = t.ParseFS(builtinLayouts, "layouts/"+kind+".html"); err != nil {
			return nil, bserrors.Wrap(err, bserrors.CategoryTemplate, bserrors.SeverityFatal, fmt.Sprintf("parsing %s layout", kind))
		}
		if path := overridePath(layoutsDir, kind+".html"); path != "" {
			if t, err = t.ParseFiles(path); err != nil {
				return nil, bserrors.Wrap(err, bserrors.CategoryTemplate, bserrors.SeverityFatal, fmt.Sprintf("parsing %s layout override", kind))
			}
		}
		pages[kind] = t
	}

	return &Engine{pages: pages}, nil
}

// Render executes the named layout with the given props object.
func (e *Engine) Render(w io.Writer, layout string, data any) error {
	t, ok := e.pages[layout]
	if !ok {
		return bserrors.New(bserrors.CategoryTemplate, bserrors.SeverityFatal, fmt.Sprintf("unknown layout %q", layout))
	}
	if err := t.ExecuteTemplate(w, "base", data); err != nil {
		return bserrors.Wrap(err, bserrors.CategoryTemplate, bserrors.SeverityFatal, fmt.Sprintf("rendering %s layout", layout))
	}
	return nil
}

// Has reports whether a layout is available.
func (e *Engine) Has(layout string) bool {
	_, ok := e.pages[layout]
	return ok
}

func overridePath(dir, name string) string {
	if dir == "" {
		return ""
	}
	path := filepath.Join(dir, name)
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return path
	}
	return ""
}

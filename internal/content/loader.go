package content

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	bserrors "github.com/blogsmith/blogsmith/internal/errors"
	"github.com/blogsmith/blogsmith/internal/frontmatter"
	"github.com/blogsmith/blogsmith/internal/markdown"
)

// snippetMaxLen bounds snippets derived from the body when front-matter
// provides none.
const snippetMaxLen = 280

// LoadOptions controls which posts enter the collection.
type LoadOptions struct {
	// IncludeDrafts keeps posts marked draft: true.
	IncludeDrafts bool
	// IncludeFuture keeps posts dated after Now.
	IncludeFuture bool
	// Now anchors the future-post cutoff; zero means time.Now().
	Now time.Time
}

// Load walks dir for Markdown files and builds the sorted Collection.
//
// Malformed front-matter or a post missing title or date is a fatal error;
// generation halts rather than emitting a partial site.
func Load(dir string, opts LoadOptions) (*Collection, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	var posts []*Post
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Underscore-prefixed directories hold includes, not posts.
			if strings.HasPrefix(d.Name(), "_") && p != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".md") {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		post, err := loadPost(p, rel)
		if err != nil {
			return err
		}

		if post.Draft && !opts.IncludeDrafts {
			slog.Debug("Skipping draft post", "source", rel)
			return nil
		}
		if post.Date.After(now) && !opts.IncludeFuture {
			slog.Debug("Skipping future-dated post", "source", rel, "date", post.Date)
			return nil
		}

		posts = append(posts, post)
		return nil
	})
	if err != nil {
		if _, ok := err.(*bserrors.BlogsmithError); ok {
			return nil, err
		}
		return nil, bserrors.Wrap(err, bserrors.CategoryFileSystem, bserrors.SeverityFatal, "walking content directory")
	}

	collection := NewCollection(posts)
	if err := validate(collection); err != nil {
		return nil, err
	}
	return collection, nil
}

func loadPost(absPath, relPath string) (*Post, error) {
	raw, err := os.ReadFile(absPath)
	if err != nil {
		return nil, bserrors.Wrap(err, bserrors.CategoryFileSystem, bserrors.SeverityFatal, "reading post").WithContext("file", relPath)
	}

	meta, body, err := frontmatter.Parse(raw)
	if err != nil {
		return nil, bserrors.ContentError(err, "parsing front-matter").WithContext("file", relPath)
	}

	if unknown, err := frontmatter.UnknownKeys(raw); err == nil {
		for _, key := range unknown {
			slog.Warn("Unknown front-matter key, likely a typo", "file", relPath, "key", key)
		}
	}

	if meta.Title == "" {
		return nil, bserrors.ContentError(nil, "post is missing required front-matter field: title").WithContext("file", relPath)
	}
	if meta.Date.IsZero() {
		return nil, bserrors.ContentError(nil, "post is missing required front-matter field: date").WithContext("file", relPath)
	}

	slug := meta.Slug
	if slug == "" {
		slug = Slugify(strings.TrimSuffix(filepath.Base(relPath), filepath.Ext(relPath)))
	}
	if slug == "" {
		return nil, bserrors.ContentError(nil, fmt.Sprintf("cannot derive a slug for %q", meta.Title)).WithContext("file", relPath)
	}
	// Slugs and tags become output path components; anything Slugify would
	// not produce (separators, dots, uppercase) is rejected rather than
	// written into the site tree.
	if slug != Slugify(slug) {
		return nil, bserrors.ContentError(nil, fmt.Sprintf("slug %q is not in slug form (want %q)", slug, Slugify(slug))).WithContext("file", relPath)
	}
	for _, tag := range meta.Tags {
		if Slugify(tag) == "" {
			return nil, bserrors.ContentError(nil, fmt.Sprintf("tag %q does not produce a usable URL path", tag)).WithContext("file", relPath)
		}
	}

	layout := meta.Layout
	if layout == "" {
		layout = DefaultLayout
	}

	snippet := meta.Snippet
	if snippet == "" {
		snippet = markdown.ExtractSnippet(body, snippetMaxLen)
	}

	lastMod := meta.Date.Time
	if fi, err := os.Stat(absPath); err == nil {
		lastMod = fi.ModTime()
	}

	return &Post{
		Title:      meta.Title,
		Slug:       slug,
		Layout:     layout,
		Date:       meta.Date.Time,
		Tags:       meta.Tags,
		Snippet:    snippet,
		Author:     meta.Author,
		Draft:      meta.Draft,
		Body:       body,
		SourcePath: filepath.ToSlash(relPath),
		LastMod:    lastMod,
	}, nil
}

// validate rejects collections that would produce colliding or unlinkable pages.
func validate(c *Collection) error {
	seen := make(map[string]string, c.Len())
	for _, p := range c.Posts {
		if prev, ok := seen[p.Slug]; ok {
			return bserrors.ContentError(nil, fmt.Sprintf("slug %q used by both %s and %s", p.Slug, prev, p.SourcePath))
		}
		seen[p.Slug] = p.SourcePath
	}

	tagPaths := make(map[string]string)
	for _, tag := range c.Tags() {
		path := Slugify(tag)
		if prev, ok := tagPaths[path]; ok {
			return bserrors.ContentError(nil, fmt.Sprintf("tags %q and %q map to the same page path %q", prev, tag, path))
		}
		tagPaths[path] = tag
	}
	return nil
}

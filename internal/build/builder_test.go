package build

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogsmith/blogsmith/internal/cache"
	"github.com/blogsmith/blogsmith/internal/config"
)

// newSite lays out a minimal site fixture and returns its config.
func newSite(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()

	cfg := config.Default()
	cfg.Site.Title = "Fixture Blog"
	cfg.Site.Author = "Fixture Author"
	cfg.Site.BaseURL = "https://fixture.example"
	cfg.Content.Dir = filepath.Join(root, "content", "posts")
	cfg.Content.StaticDir = filepath.Join(root, "static")
	cfg.Output.Directory = filepath.Join(root, "public")

	writeFixture(t, cfg.Content.Dir, "first-post.md", `---
title: First Post
date: 2021-01-10
tags:
  - go
snippet: The first teaser.
---
Opening paragraph of the first post.

`+"```go\nfunc main() {}\n```"+`
`)
	writeFixture(t, cfg.Content.Dir, "second-post.md", `---
title: Second Post
date: 2021-02-20
tags:
  - go
  - web
---
Opening paragraph of the second post.
`)
	writeFixture(t, cfg.Content.StaticDir, "css/site.css", "body {  margin: 0px; }\n")
	return cfg
}

func writeFixture(t *testing.T, dir, name, body string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func readOutput(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Output.Directory, rel))
	require.NoError(t, err)
	return string(data)
}

func TestRun_GeneratesCompleteSite(t *testing.T) {
	cfg := newSite(t)

	report, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Equal(t, 2, report.Posts)
	// two posts + index + two tag pages + tag index
	assert.Equal(t, 6, report.Pages)
	assert.Equal(t, 1, report.Assets)
	assert.Empty(t, report.Warnings)
	assert.NotEmpty(t, report.BuildID)

	for _, rel := range []string{
		"index.html",
		"posts/first-post/index.html",
		"posts/second-post/index.html",
		"tags/index.html",
		"tags/go/index.html",
		"tags/web/index.html",
		"feed.xml",
		"sitemap.xml",
		"css/site.css",
		"build-report.json",
	} {
		assert.FileExists(t, filepath.Join(cfg.Output.Directory, rel), rel)
	}
}

func TestRun_PostPageContainsTitleAndDateExactlyOnce(t *testing.T) {
	cfg := newSite(t)

	_, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)

	page := readOutput(t, cfg, "posts/first-post/index.html")
	assert.Equal(t, 1, strings.Count(page, "First Post"))
	assert.Equal(t, 1, strings.Count(page, "January 10, 2021"))
	assert.Contains(t, page, "Opening paragraph of the first post.")
}

func TestRun_IndexListsPostsNewestFirst(t *testing.T) {
	cfg := newSite(t)

	_, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)

	index := readOutput(t, cfg, "index.html")
	assert.Less(t, strings.Index(index, "Second Post"), strings.Index(index, "First Post"))
	assert.Contains(t, index, "The first teaser.")
	assert.Contains(t, index, "Opening paragraph of the second post.")
}

func TestRun_MinifiesOutput(t *testing.T) {
	cfg := newSite(t)

	_, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)

	index := readOutput(t, cfg, "index.html")
	assert.NotContains(t, index, "\n  <", "indentation should be collapsed")

	css := readOutput(t, cfg, "css/site.css")
	assert.Equal(t, "body{margin:0}", css)
}

func TestRun_MinifyDisabled(t *testing.T) {
	cfg := newSite(t)
	cfg.Minify.HTML = false
	cfg.Minify.CSS = false

	_, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)

	css := readOutput(t, cfg, "css/site.css")
	assert.Equal(t, "body {  margin: 0px; }\n", css)
	index := readOutput(t, cfg, "index.html")
	assert.Contains(t, index, "\n")
}

func TestRun_SkipsWhenInputsUnchanged(t *testing.T) {
	cfg := newSite(t)
	store, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	b := NewBuilder(cfg).SetStore(store)

	first, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, first.Outcome)

	second, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, second.Outcome)
	assert.True(t, second.Skipped)

	// editing a post invalidates the signature
	writeFixture(t, cfg.Content.Dir, "first-post.md", `---
title: First Post
date: 2021-01-10
---
Edited body.
`)
	third, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, third.Outcome)
}

func TestRun_ForceBypassesCache(t *testing.T) {
	cfg := newSite(t)
	store, err := cache.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	b := NewBuilder(cfg).SetStore(store).SetForce(true)

	_, err = b.Run(context.Background())
	require.NoError(t, err)
	report, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
}

func TestRun_MalformedPostFailsAndPreservesPreviousOutput(t *testing.T) {
	cfg := newSite(t)

	_, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)
	before := readOutput(t, cfg, "index.html")

	writeFixture(t, cfg.Content.Dir, "broken.md", "---\ntitle: Broken\nno closing delimiter\n")

	report, err := NewBuilder(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)

	// the previously published site is untouched
	assert.Equal(t, before, readOutput(t, cfg, "index.html"))

	// no staging directory leaks
	entries, err := os.ReadDir(filepath.Dir(cfg.Output.Directory))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".blogsmith-staging-"), e.Name())
	}
}

func TestRun_BrokenInternalLinkIsWarning(t *testing.T) {
	cfg := newSite(t)
	writeFixture(t, cfg.Content.Dir, "linky.md", `---
title: Linky
date: 2021-03-01
---
See [the missing page](/posts/does-not-exist/).
`)

	report, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "does-not-exist")
}

func TestRun_CanceledContext(t *testing.T) {
	cfg := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewBuilder(cfg).Run(ctx)
	require.Error(t, err)
	assert.Equal(t, OutcomeCanceled, report.Outcome)
}

func TestRun_TagNamesAreSluggedIntoSafePaths(t *testing.T) {
	cfg := newSite(t)
	writeFixture(t, cfg.Content.Dir, "tagged.md", `---
title: Tagged
date: 2021-03-05
tags:
  - Web Dev
  - ../../escaped
---
Tags must stay inside the site tree.
`)

	report, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)
	assert.Empty(t, report.Warnings, "rendered tag links must match written paths")

	assert.FileExists(t, filepath.Join(cfg.Output.Directory, "tags", "web-dev", "index.html"))
	assert.FileExists(t, filepath.Join(cfg.Output.Directory, "tags", "escaped", "index.html"))

	// nothing escaped the output directory, and the front page is still the index
	assert.NoDirExists(t, filepath.Join(filepath.Dir(cfg.Output.Directory), "escaped"))
	assert.Contains(t, readOutput(t, cfg, "index.html"), "Fixture Blog")

	page := readOutput(t, cfg, "tags/web-dev/index.html")
	assert.Contains(t, page, "Web Dev", "tag pages keep the raw tag name for display")
}

func TestRun_TagWithoutUsablePathFailsBuild(t *testing.T) {
	cfg := newSite(t)
	writeFixture(t, cfg.Content.Dir, "dotted.md", `---
title: Dotted
date: 2021-03-06
tags:
  - ..
---
This tag has no slug form.
`)

	report, err := NewBuilder(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.Contains(t, err.Error(), "usable URL path")
}

func TestRun_ExplicitSlugMustBeSlugForm(t *testing.T) {
	cfg := newSite(t)
	writeFixture(t, cfg.Content.Dir, "sneaky.md", `---
title: Sneaky
date: 2021-03-07
slug: ../../evil
---
Slugs are path components.
`)

	report, err := NewBuilder(cfg).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, report.Outcome)
	assert.NoDirExists(t, filepath.Join(filepath.Dir(cfg.Output.Directory), "evil"))
}

func TestRun_RepublishLeavesNoPreviousOutputBehind(t *testing.T) {
	cfg := newSite(t)

	_, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)

	writeFixture(t, cfg.Content.Dir, "third-post.md", `---
title: Third Post
date: 2021-04-01
---
Another one.
`)
	report, err := NewBuilder(cfg).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, report.Outcome)

	assert.FileExists(t, filepath.Join(cfg.Output.Directory, "posts", "third-post", "index.html"))
	assert.NoDirExists(t, cfg.Output.Directory+".prev")
}

func TestRun_FutureDatedPostExcluded(t *testing.T) {
	cfg := newSite(t)
	writeFixture(t, cfg.Content.Dir, "future.md", `---
title: From The Future
date: 2030-01-01
---
Not yet.
`)
	b := NewBuilder(cfg).SetNow(func() time.Time {
		return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	})

	report, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Posts)
	assert.NoFileExists(t, filepath.Join(cfg.Output.Directory, "posts", "from-the-future", "index.html"))
}

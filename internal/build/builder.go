// Package build runs the staged pipeline that turns Markdown content into
// the minified static site.
package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blogsmith/blogsmith/internal/assets"
	"github.com/blogsmith/blogsmith/internal/cache"
	"github.com/blogsmith/blogsmith/internal/config"
	"github.com/blogsmith/blogsmith/internal/content"
	"github.com/blogsmith/blogsmith/internal/feed"
	"github.com/blogsmith/blogsmith/internal/gitinfo"
	"github.com/blogsmith/blogsmith/internal/linkcheck"
	"github.com/blogsmith/blogsmith/internal/markdown"
	"github.com/blogsmith/blogsmith/internal/metrics"
	"github.com/blogsmith/blogsmith/internal/minify"
	"github.com/blogsmith/blogsmith/internal/templates"
)

// Builder runs builds for one site configuration.
type Builder struct {
	cfg      *config.Config
	output   string
	recorder metrics.Recorder
	store    *cache.Store
	force    bool
	now      func() time.Time
}

// NewBuilder creates a Builder writing to the configured output directory.
func NewBuilder(cfg *config.Config) *Builder {
	return &Builder{
		cfg:      cfg,
		output:   filepath.Clean(cfg.Output.Directory),
		recorder: metrics.NoopRecorder{},
		now:      time.Now,
	}
}

// SetOutputDir overrides the output directory. Returns the builder for chaining.
func (b *Builder) SetOutputDir(dir string) *Builder {
	if dir != "" {
		b.output = filepath.Clean(dir)
	}
	return b
}

// SetRecorder injects a metrics recorder (optional).
func (b *Builder) SetRecorder(r metrics.Recorder) *Builder {
	if r == nil {
		b.recorder = metrics.NoopRecorder{}
		return b
	}
	b.recorder = r
	return b
}

// SetStore injects the build cache (optional; nil disables skip-if-unchanged).
func (b *Builder) SetStore(s *cache.Store) *Builder {
	b.store = s
	return b
}

// SetForce bypasses the build cache for the next runs.
func (b *Builder) SetForce(force bool) *Builder {
	b.force = force
	return b
}

// SetNow overrides the clock, which anchors the future-post cutoff.
func (b *Builder) SetNow(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// OutputDir returns the directory builds publish into.
func (b *Builder) OutputDir() string { return b.output }

// Run executes a full build. The returned Report is non-nil even on failure.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	started := b.now()
	report := newReport(uuid.NewString(), started)
	bs := &BuildState{Cfg: b.cfg, OutputDir: b.output, Report: report}

	slog.Info("Starting site build", "build_id", report.BuildID, "output", b.output)

	err := runStages(ctx, bs, b.recorder, []namedStage{
		{"prepare", b.stagePrepare},
		{"signature", b.stageSignature},
		{"load", b.stageLoad},
		{"render", b.stageRender},
		{"pages", b.stagePages},
		{"assets", b.stageAssets},
		{"feeds", b.stageFeeds},
		{"minify", b.stageMinify},
		{"publish", b.stagePublish},
		{"linkcheck", b.stageLinkCheck},
	})

	// Staging survives only until publish renames it away.
	if bs.StagingDir != "" {
		if rmErr := os.RemoveAll(bs.StagingDir); rmErr != nil {
			slog.Warn("Failed to clean staging directory", "dir", bs.StagingDir, "error", rmErr)
		}
	}

	report.Duration = time.Since(started)
	b.recorder.ObserveBuildDuration(report.Duration)

	switch {
	case err == nil && bs.Skip:
		report.Outcome = OutcomeSkipped
		report.Skipped = true
	case err == nil:
		report.Outcome = OutcomeSuccess
	default:
		if se, ok := err.(*StageError); ok && se.Kind == StageErrorCanceled {
			report.Outcome = OutcomeCanceled
		} else {
			report.Outcome = OutcomeFailed
		}
	}
	b.recorder.IncBuildOutcome(report.Outcome)

	if report.Outcome == OutcomeSuccess {
		b.recordBuild(ctx, report)
		b.writeReport(report)
		slog.Info("Site build completed",
			"build_id", report.BuildID,
			"posts", report.Posts,
			"pages", report.Pages,
			"assets", report.Assets,
			"warnings", len(report.Warnings),
			"duration", report.Duration)
	} else if report.Outcome == OutcomeSkipped {
		slog.Info("Site build skipped, inputs unchanged",
			"build_id", report.BuildID,
			"signature", cache.ShortHash(report.Signature))
	}

	return report, err
}

func (b *Builder) recordBuild(ctx context.Context, report *Report) {
	if b.store == nil {
		return
	}
	rec := cache.BuildRecord{
		BuildID:   report.BuildID,
		Signature: report.Signature,
		Outcome:   report.Outcome,
		Pages:     report.Pages,
	}
	if err := b.store.Record(ctx, rec); err != nil {
		slog.Warn("Failed to record build in cache", "error", err)
	}
}

func (b *Builder) writeReport(report *Report) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return
	}
	path := filepath.Join(b.output, "build-report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Warn("Failed to write build report", "path", path, "error", err)
	}
}

func (b *Builder) stagePrepare(_ context.Context, bs *BuildState) error {
	parent := filepath.Dir(bs.OutputDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return err
	}
	staging, err := os.MkdirTemp(parent, ".blogsmith-staging-")
	if err != nil {
		return err
	}
	bs.StagingDir = staging

	engine, err := templates.New(bs.Cfg.Content.LayoutsDir)
	if err != nil {
		return err
	}
	bs.Engine = engine

	bs.Renderer = markdown.NewRenderer(markdown.Options{
		HighlightStyle: bs.Cfg.Markdown.HighlightStyle,
		Unsafe:         bs.Cfg.Markdown.Unsafe,
	})
	bs.Minifier = minify.New()

	ix, err := gitinfo.Open(bs.Cfg.Content.Dir)
	if err != nil {
		return newWarnStageError("prepare", fmt.Errorf("git metadata unavailable: %w", err))
	}
	bs.GitIndex = ix
	return nil
}

func (b *Builder) stageSignature(ctx context.Context, bs *BuildState) error {
	sig, err := cache.ComputeSignature(bs.Cfg,
		bs.Cfg.Content.Dir, bs.Cfg.Content.StaticDir, bs.Cfg.Content.LayoutsDir)
	if err != nil {
		return newWarnStageError("signature", err)
	}
	bs.Signature = sig
	bs.Report.Signature = sig.BuildHash

	if b.force || b.store == nil {
		return nil
	}
	last, err := b.store.LastSuccessfulSignature(ctx)
	if err != nil {
		return newWarnStageError("signature", err)
	}
	if last != "" && last == sig.BuildHash && outputLooksBuilt(bs.OutputDir) {
		bs.Skip = true
	}
	return nil
}

// outputLooksBuilt guards the skip path: never skip onto a missing or
// obviously gutted output directory.
func outputLooksBuilt(dir string) bool {
	if fi, err := os.Stat(filepath.Join(dir, "index.html")); err != nil || fi.IsDir() {
		return false
	}
	return true
}

func (b *Builder) stageLoad(_ context.Context, bs *BuildState) error {
	col, err := content.Load(bs.Cfg.Content.Dir, content.LoadOptions{
		IncludeDrafts: bs.Cfg.Content.IncludeDrafts,
		IncludeFuture: bs.Cfg.Content.IncludeFuture,
		Now:           b.now(),
	})
	if err != nil {
		return err
	}
	bs.Collection = col
	bs.Report.Posts = col.Len()

	for _, p := range col.Posts {
		info, ok := bs.GitIndex.Lookup(filepath.Join(bs.Cfg.Content.Dir, filepath.FromSlash(p.SourcePath)))
		if !ok {
			continue
		}
		p.LastMod = info.LastMod
		if p.Author == "" {
			p.Author = info.Author
		}
	}
	return nil
}

func (b *Builder) stageRender(ctx context.Context, bs *BuildState) error {
	for _, p := range bs.Collection.Posts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		html, err := bs.Renderer.Render(p.Body)
		if err != nil {
			return fmt.Errorf("rendering %s: %w", p.SourcePath, err)
		}
		p.HTML = template.HTML(html)
	}
	return nil
}

func (b *Builder) stagePages(ctx context.Context, bs *BuildState) error {
	site := bs.site()
	col := bs.Collection

	for _, p := range col.Posts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !bs.Engine.Has(p.Layout) {
			return fmt.Errorf("post %s names unknown layout %q", p.SourcePath, p.Layout)
		}
		if err := b.writePage(bs, p.OutputPath(), p.Layout, templates.PostPage{Site: site, Post: p}); err != nil {
			return err
		}
	}

	if err := b.writePage(bs, "index.html", "index", templates.IndexPage{Site: site, Posts: col.Posts}); err != nil {
		return err
	}

	tags := col.Tags()
	summaries := make([]templates.TagSummary, 0, len(tags))
	for _, tag := range tags {
		posts := col.ByTag(tag)
		summaries = append(summaries, templates.TagSummary{Name: tag, Count: len(posts)})
		// Tag names come from front-matter; only their slug form may touch
		// the filesystem.
		out := filepath.Join("tags", content.Slugify(tag), "index.html")
		if err := b.writePage(bs, out, "tag", templates.TagPage{Site: site, Tag: tag, Posts: posts}); err != nil {
			return err
		}
	}
	if err := b.writePage(bs, filepath.Join("tags", "index.html"), "tags", templates.TagsPage{Site: site, Tags: summaries}); err != nil {
		return err
	}
	return nil
}

func (b *Builder) writePage(bs *BuildState, relPath, layout string, data any) error {
	var buf bytes.Buffer
	if err := bs.Engine.Render(&buf, layout, data); err != nil {
		return err
	}
	dst := filepath.Join(bs.StagingDir, relPath)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return err
	}
	bs.Report.Pages++
	b.recorder.AddPagesRendered(1)
	return nil
}

func (b *Builder) stageAssets(_ context.Context, bs *BuildState) error {
	var mn *minify.Minifier
	if bs.Cfg.Minify.CSS {
		mn = bs.Minifier
	}
	stats, err := assets.Copy(bs.Cfg.Content.StaticDir, bs.StagingDir, mn)
	if err != nil {
		return err
	}
	bs.Report.Assets = stats.Copied
	return nil
}

func (b *Builder) stageFeeds(_ context.Context, bs *BuildState) error {
	rss, err := feed.RSS(bs.Cfg.Site, bs.Collection.Recent(feed.DefaultLimit), feed.DefaultLimit)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(bs.StagingDir, "feed.xml"), []byte(rss), 0o644); err != nil {
		return err
	}

	entries := []feed.Entry{{URL: "/", LastMod: bs.Report.Started}}
	for _, p := range bs.Collection.Posts {
		entries = append(entries, feed.Entry{URL: p.URL(), LastMod: p.LastMod})
	}
	entries = append(entries, feed.Entry{URL: "/tags/"})
	for _, tag := range bs.Collection.Tags() {
		entries = append(entries, feed.Entry{URL: "/tags/" + content.Slugify(tag) + "/"})
	}
	sitemap := feed.Sitemap(bs.Cfg.Site, entries)
	return os.WriteFile(filepath.Join(bs.StagingDir, "sitemap.xml"), []byte(sitemap), 0o644)
}

func (b *Builder) stageMinify(ctx context.Context, bs *BuildState) error {
	if !bs.Cfg.Minify.HTML {
		return nil
	}
	return filepath.WalkDir(bs.StagingDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(p), ".html") {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		raw, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		minified, err := bs.Minifier.HTML(raw)
		if err != nil {
			return fmt.Errorf("minifying %s: %w", p, err)
		}
		return os.WriteFile(p, minified, 0o644)
	})
}

// stagePublish swaps staging into place. The previous output is renamed
// aside before staging replaces it, so serving never sees a missing
// directory, and it is restored if the final rename fails.
func (b *Builder) stagePublish(_ context.Context, bs *BuildState) error {
	prev := ""
	if _, err := os.Stat(bs.OutputDir); err == nil {
		prev = bs.OutputDir + ".prev"
		// A stale .prev can survive a crash between the renames below.
		if err := os.RemoveAll(prev); err != nil {
			return fmt.Errorf("clearing stale previous output: %w", err)
		}
		if err := os.Rename(bs.OutputDir, prev); err != nil {
			return fmt.Errorf("setting aside previous output: %w", err)
		}
	}
	if err := os.Rename(bs.StagingDir, bs.OutputDir); err != nil {
		if prev != "" {
			if restoreErr := os.Rename(prev, bs.OutputDir); restoreErr != nil {
				slog.Error("Failed to restore previous output", "dir", prev, "error", restoreErr)
			}
		}
		return fmt.Errorf("publishing staging directory: %w", err)
	}
	bs.StagingDir = ""
	if prev != "" {
		if err := os.RemoveAll(prev); err != nil {
			slog.Warn("Failed to remove previous output", "dir", prev, "error", err)
		}
	}
	return nil
}

func (b *Builder) stageLinkCheck(_ context.Context, bs *BuildState) error {
	issues, err := linkcheck.CheckDir(bs.OutputDir)
	if err != nil {
		return newWarnStageError("linkcheck", err)
	}
	for _, issue := range issues {
		bs.Report.AddWarning("broken link: " + issue.String())
	}
	if len(issues) > 0 {
		slog.Warn("Internal link check found issues", "count", len(issues))
	}
	return nil
}

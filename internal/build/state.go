package build

import (
	"github.com/blogsmith/blogsmith/internal/cache"
	"github.com/blogsmith/blogsmith/internal/config"
	"github.com/blogsmith/blogsmith/internal/content"
	"github.com/blogsmith/blogsmith/internal/gitinfo"
	"github.com/blogsmith/blogsmith/internal/markdown"
	"github.com/blogsmith/blogsmith/internal/minify"
	"github.com/blogsmith/blogsmith/internal/templates"
)

// BuildState carries mutable state across stages of a single build.
type BuildState struct {
	Cfg       *config.Config
	OutputDir string

	// StagingDir receives all output; it replaces OutputDir only on success.
	StagingDir string

	Collection *content.Collection
	Renderer   *markdown.Renderer
	Engine     *templates.Engine
	Minifier   *minify.Minifier
	GitIndex   *gitinfo.Index
	Signature  *cache.Signature

	Report *Report

	// Skip aborts the remaining stages without error (unchanged inputs).
	Skip bool
}

// site maps the config onto the template props shared by all pages.
func (bs *BuildState) site() templates.Site {
	return templates.Site{
		Title:       bs.Cfg.Site.Title,
		Author:      bs.Cfg.Site.Author,
		Description: bs.Cfg.Site.Description,
		BaseURL:     bs.Cfg.Site.BaseURL,
	}
}

// Package feed emits the RSS feed and sitemap for the post collection.
package feed

import (
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/blogsmith/blogsmith/internal/config"
	"github.com/blogsmith/blogsmith/internal/content"
)

// DefaultLimit caps feed length; readers rarely page past this.
const DefaultLimit = 20

// RSS renders the RSS 2.0 feed for the newest posts, newest first.
func RSS(site config.SiteConfig, posts []*content.Post, limit int) (string, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(posts) > limit {
		posts = posts[:limit]
	}

	f := &feeds.Feed{
		Title:       site.Title,
		Link:        &feeds.Link{Href: site.BaseURL},
		Description: site.Description,
		Author:      &feeds.Author{Name: site.Author},
	}
	if len(posts) > 0 {
		f.Updated = posts[0].LastMod
	}

	for _, p := range posts {
		item := &feeds.Item{
			Title:       p.Title,
			Link:        &feeds.Link{Href: absoluteURL(site.BaseURL, p.URL())},
			Description: p.Snippet,
			Created:     p.Date,
			Updated:     p.LastMod,
			Id:          absoluteURL(site.BaseURL, p.URL()),
		}
		if p.Author != "" {
			item.Author = &feeds.Author{Name: p.Author}
		}
		f.Items = append(f.Items, item)
	}

	return f.ToRss()
}

func absoluteURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// Entry is one page in the sitemap.
type Entry struct {
	URL     string
	LastMod time.Time
}

// Sitemap renders a sitemap.org urlset for the given pages.
func Sitemap(site config.SiteConfig, entries []Entry) string {
	var sb strings.Builder
	sb.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	sb.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">` + "\n")
	for _, e := range entries {
		sb.WriteString("  <url>\n")
		sb.WriteString("    <loc>" + xmlEscape(absoluteURL(site.BaseURL, e.URL)) + "</loc>\n")
		if !e.LastMod.IsZero() {
			sb.WriteString("    <lastmod>" + e.LastMod.Format("2006-01-02") + "</lastmod>\n")
		}
		sb.WriteString("  </url>\n")
	}
	sb.WriteString("</urlset>\n")
	return sb.String()
}

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "'", "&apos;")

func xmlEscape(s string) string { return xmlEscaper.Replace(s) }

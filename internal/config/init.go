package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const starterConfig = `site:
  title: "A Blog"
  author: "Your Name"
  description: "Notes on things I build."
  base_url: "https://example.com"

content:
  dir: content/posts
  static_dir: static

output:
  directory: public

markdown:
  highlight_style: monokai

minify:
  html: true
  css: true

server:
  port: 8080
  live_reload: true
`

const starterPost = `---
layout: post
title: Hello, World
date: %s
tags:
  - meta
snippet: The obligatory first post.
---
Welcome to the new blog. Posts live in ` + "`content/posts`" + ` as Markdown
files with YAML front-matter.

` + "```go" + `
func main() {
	fmt.Println("hello")
}
` + "```" + `
`

const starterCSS = `/* Site styles. Minified into the output directory at build time. */
body {
  max-width: 46rem;
  margin: 0 auto;
  padding: 0 1rem;
  font-family: Georgia, serif;
  line-height: 1.6;
}
`

// Init writes a starter configuration file, content skeleton, and sample post.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	if err := os.WriteFile(configPath, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	root := filepath.Dir(configPath)
	post := fmt.Sprintf(starterPost, time.Now().Format("2006-01-02"))
	files := map[string]string{
		filepath.Join(root, "content", "posts", "hello-world.md"): post,
		filepath.Join(root, "static", "css", "site.css"):          starterCSS,
	}
	for path, body := range files {
		if _, err := os.Stat(path); err == nil && !force {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	return nil
}

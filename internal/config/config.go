// Package config loads and validates the blogsmith.yaml site configuration.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	bserrors "github.com/blogsmith/blogsmith/internal/errors"
)

// DefaultPath is the configuration file looked up when -c is not given.
const DefaultPath = "blogsmith.yaml"

// Config represents the application configuration
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Content  ContentConfig  `yaml:"content"`
	Output   OutputConfig   `yaml:"output"`
	Markdown MarkdownConfig `yaml:"markdown"`
	Minify   MinifyConfig   `yaml:"minify"`
	Server   ServerConfig   `yaml:"server"`
}

// SiteConfig describes the site as rendered into templates and feeds.
type SiteConfig struct {
	Title       string `yaml:"title"`
	Author      string `yaml:"author,omitempty"`
	Description string `yaml:"description,omitempty"`
	BaseURL     string `yaml:"base_url,omitempty"`
}

// ContentConfig locates the input directories.
type ContentConfig struct {
	Dir        string `yaml:"dir"`
	StaticDir  string `yaml:"static_dir"`
	LayoutsDir string `yaml:"layouts_dir,omitempty"`

	// IncludeDrafts keeps draft posts in the build.
	IncludeDrafts bool `yaml:"include_drafts,omitempty"`
	// IncludeFuture keeps future-dated posts in the build.
	IncludeFuture bool `yaml:"include_future,omitempty"`
}

// OutputConfig represents output configuration
type OutputConfig struct {
	Directory string `yaml:"directory"`
	// CacheFile is the SQLite build cache; empty disables skip-if-unchanged.
	CacheFile string `yaml:"cache_file,omitempty"`
}

// MarkdownConfig controls the Markdown conversion.
type MarkdownConfig struct {
	HighlightStyle string `yaml:"highlight_style,omitempty"`
	Unsafe         bool   `yaml:"unsafe,omitempty"`
}

// MinifyConfig toggles output minification.
type MinifyConfig struct {
	HTML bool `yaml:"html"`
	CSS  bool `yaml:"css"`
}

// ServerConfig configures the development preview server.
type ServerConfig struct {
	Port       int  `yaml:"port"`
	LiveReload bool `yaml:"live_reload"`
	// RebuildInterval triggers periodic rebuilds while serving; zero disables.
	RebuildInterval Duration `yaml:"rebuild_interval,omitempty"`
}

// Default returns the configuration used when keys are absent from the file.
func Default() *Config {
	return &Config{
		Site: SiteConfig{
			Title: "A Blog",
		},
		Content: ContentConfig{
			Dir:       "content/posts",
			StaticDir: "static",
		},
		Output: OutputConfig{
			Directory: "public",
			CacheFile: ".blogsmith-cache.db",
		},
		Markdown: MarkdownConfig{
			HighlightStyle: "monokai",
		},
		Minify: MinifyConfig{
			HTML: true,
			CSS:  true,
		},
		Server: ServerConfig{
			Port:       8080,
			LiveReload: true,
		},
	}
}

// Load loads configuration from the specified file.
//
// An optional .env is loaded first (existing environment wins) and `${VAR}`
// references in the YAML are expanded before unmarshaling. Absent keys keep
// their defaults.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		fmt.Fprintln(os.Stderr, "Loaded environment variables from .env")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bserrors.ConfigError(fmt.Sprintf("configuration file not found: %s", configPath))
		}
		return nil, bserrors.Wrap(err, bserrors.CategoryConfig, bserrors.SeverityFatal, "reading config file")
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, bserrors.Wrap(err, bserrors.CategoryConfig, bserrors.SeverityFatal, "unmarshaling config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the build cannot honor.
func (c *Config) Validate() error {
	if c.Site.Title == "" {
		return bserrors.ConfigError("site.title must not be empty")
	}
	if c.Content.Dir == "" {
		return bserrors.ConfigError("content.dir must not be empty")
	}
	if c.Output.Directory == "" {
		return bserrors.ConfigError("output.directory must not be empty")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return bserrors.ConfigError(fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Server.RebuildInterval < 0 {
		return bserrors.ConfigError("server.rebuild_interval must not be negative")
	}
	return nil
}

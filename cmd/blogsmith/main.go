package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"github.com/blogsmith/blogsmith/internal/build"
	"github.com/blogsmith/blogsmith/internal/cache"
	"github.com/blogsmith/blogsmith/internal/config"
	"github.com/blogsmith/blogsmith/internal/content"
	"github.com/blogsmith/blogsmith/internal/frontmatter"
	"github.com/blogsmith/blogsmith/internal/server"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"blogsmith.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Output string `short:"o" help:"Output directory, overriding the configuration"`
		Force  bool   `short:"f" help:"Rebuild even when inputs are unchanged"`
	} `cmd:"" help:"Generate the site into the output directory"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new blog with a starter configuration and sample post"`

	New struct {
		Title string `arg:"" help:"Title of the new post"`
	} `cmd:"" help:"Create a new post with front-matter scaffolding"`

	Serve struct {
		Port int `short:"p" help:"Port override for the preview server"`
	} `cmd:"" help:"Build the site and serve it with live reload"`

	History struct {
		Limit int `short:"n" help:"Number of builds to show" default:"10"`
	} `cmd:"" help:"Show recent builds from the build cache"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	switch ctx.Command() {
	case "build":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runBuild(cfg, CLI.Build.Output, CLI.Build.Force); err != nil {
			slog.Error("Build failed", "error", err)
			os.Exit(1)
		}
	case "init":
		if err := runInit(CLI.Config, CLI.Init.Force); err != nil {
			slog.Error("Init failed", "error", err)
			os.Exit(1)
		}
	case "new <title>":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runNew(cfg, CLI.New.Title); err != nil {
			slog.Error("Creating post failed", "error", err)
			os.Exit(1)
		}
	case "serve":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runServe(cfg, CLI.Serve.Port); err != nil {
			slog.Error("Preview server failed", "error", err)
			os.Exit(1)
		}
	case "history":
		cfg, err := config.Load(CLI.Config)
		if err != nil {
			slog.Error("Failed to load configuration", "error", err)
			os.Exit(1)
		}
		if err := runHistory(cfg, CLI.History.Limit); err != nil {
			slog.Error("History failed", "error", err)
			os.Exit(1)
		}
	}
}

func runBuild(cfg *config.Config, outputDir string, force bool) error {
	builder := build.NewBuilder(cfg).
		SetOutputDir(outputDir).
		SetForce(force)

	store := openStore(cfg)
	defer store.Close()
	builder.SetStore(store)

	report, err := builder.Run(signalContext())
	if err != nil {
		return err
	}
	if report.Skipped {
		fmt.Printf("Site unchanged, skipped (signature %s)\n", cache.ShortHash(report.Signature))
		return nil
	}
	fmt.Printf("Site generated: %d posts, %d pages, %d assets in %s\n",
		report.Posts, report.Pages, report.Assets, report.Duration.Round(time.Millisecond))
	for _, w := range report.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}

func runInit(configPath string, force bool) error {
	slog.Info("Initializing blog", "path", configPath, "force", force)
	if err := config.Init(configPath, force); err != nil {
		return err
	}
	fmt.Printf("Blog initialized. Edit %s, then run: blogsmith build\n", configPath)
	return nil
}

func runNew(cfg *config.Config, title string) error {
	slug := content.Slugify(title)
	if slug == "" {
		return fmt.Errorf("title %q produces an empty slug", title)
	}
	path := filepath.Join(cfg.Content.Dir, slug+".md")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("post already exists: %s", path)
	}

	meta := frontmatter.Meta{
		Layout: "post",
		Title:  title,
		Date:   frontmatter.Date{Time: time.Now()},
		Draft:  true,
	}
	fm, err := yaml.Marshal(&meta)
	if err != nil {
		return fmt.Errorf("marshal front-matter: %w", err)
	}
	doc := frontmatter.Join(fm, []byte("Write here.\n"), true, frontmatter.Style{Newline: "\n"})

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		return err
	}
	fmt.Printf("Created %s\n", path)
	return nil
}

func runHistory(cfg *config.Config, limit int) error {
	store := openStore(cfg)
	if store == nil {
		return fmt.Errorf("no build cache configured (output.cache_file)")
	}
	defer store.Close()

	recs, err := store.History(context.Background(), limit)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No builds recorded yet.")
		return nil
	}
	fmt.Printf("%-36s  %-8s  %5s  %-12s  %s\n", "BUILD", "OUTCOME", "PAGES", "SIGNATURE", "WHEN")
	for _, rec := range recs {
		fmt.Printf("%-36s  %-8s  %5d  %-12s  %s\n",
			rec.BuildID, rec.Outcome, rec.Pages,
			cache.ShortHash(rec.Signature),
			rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runServe(cfg *config.Config, port int) error {
	if port > 0 {
		cfg.Server.Port = port
	}

	builder := build.NewBuilder(cfg)
	store := openStore(cfg)
	defer store.Close()
	builder.SetStore(store)

	return server.New(cfg, builder).Run(signalContext())
}

// openStore opens the build cache, or returns nil (disabling skip-if-unchanged)
// when it is not configured or cannot be opened.
func openStore(cfg *config.Config) *cache.Store {
	if cfg.Output.CacheFile == "" {
		return nil
	}
	store, err := cache.Open(cfg.Output.CacheFile)
	if err != nil {
		slog.Warn("Build cache unavailable, every build will be full", "file", cfg.Output.CacheFile, "error", err)
		return nil
	}
	return store
}

func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		slog.Info("Shutting down")
		cancel()
	}()
	return ctx
}

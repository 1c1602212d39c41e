// Package server implements the development preview server: it serves the
// generated site, watches sources, rebuilds on change, and pushes live-reload
// events to connected browsers.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/blogsmith/blogsmith/internal/build"
	"github.com/blogsmith/blogsmith/internal/config"
	"github.com/blogsmith/blogsmith/internal/content"
	"github.com/blogsmith/blogsmith/internal/metrics"
)

const shutdownGrace = 5 * time.Second

// livereloadScript polls the SSE endpoint and reloads the page when the
// build token changes.
const livereloadScript = `(function () {
  var token = null;
  var src = new EventSource("/livereload");
  src.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (token === null) {
      token = msg.token;
      return;
    }
    if (msg.token !== token) {
      location.reload();
    }
  };
})();
`

const livereloadTag = `<script src="/livereload.js" defer></script>`

// Server is the development preview server.
type Server struct {
	cfg      *config.Config
	builder  *build.Builder
	recorder *metrics.PrometheusRecorder
	hub      *Hub

	// buildMu serializes rebuilds; reportMu guards lastReport alone, so
	// health checks respond while a build is running.
	buildMu    sync.Mutex
	reportMu   sync.Mutex
	lastReport *build.Report
}

// New wires a preview server around the given builder. The builder's metrics
// recorder is replaced so the /metrics endpoint sees the build activity.
func New(cfg *config.Config, builder *build.Builder) *Server {
	recorder := metrics.NewPrometheusRecorder(prom.NewRegistry())
	builder.SetRecorder(recorder)
	s := &Server{
		cfg:      cfg,
		builder:  builder,
		recorder: recorder,
	}
	if cfg.Server.LiveReload {
		s.hub = NewHub(recorder)
	}
	return s
}

// Run builds the site, then serves it until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	s.rebuild(ctx, "startup")

	watcher, err := NewWatcher(s.watchDirs(), func() {
		s.rebuild(context.Background(), "source change")
	})
	if err != nil {
		return err
	}
	defer watcher.Close()
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("File watcher stopped", "error", err)
		}
	}()

	scheduler, err := NewScheduler()
	if err != nil {
		return err
	}
	s.scheduleFuturePosts(ctx, scheduler)
	if interval := s.cfg.Server.RebuildInterval.Std(); interval > 0 {
		if err := scheduler.ScheduleEvery(interval, "periodic-rebuild", func() {
			s.rebuild(context.Background(), "rebuild interval")
		}); err != nil {
			slog.Warn("Failed to schedule periodic rebuild", "error", err)
		}
	}
	scheduler.Start()
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := scheduler.Stop(stopCtx); err != nil {
			slog.Warn("Scheduler shutdown incomplete", "error", err)
		}
	}()

	addr := fmt.Sprintf(":%d", s.cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	slog.Info("Preview server listening",
		"url", fmt.Sprintf("http://localhost:%d/", s.cfg.Server.Port),
		"livereload", s.cfg.Server.LiveReload)

	serveErr := make(chan error, 1)
	go func() { serveErr <- httpServer.Serve(listener) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	if s.hub != nil {
		s.hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("Preview server stopped")
	return nil
}

// routes assembles the HTTP mux: site files plus the preview endpoints.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", s.recorder.Handler())
	if s.hub != nil {
		mux.Handle("/livereload", s.hub)
		mux.HandleFunc("/livereload.js", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/javascript")
			fmt.Fprint(w, livereloadScript)
		})
	}
	mux.Handle("/", s.siteHandler())
	return mux
}

// siteHandler serves the output directory, injecting the live-reload script
// into HTML pages when live reload is enabled.
func (s *Server) siteHandler() http.Handler {
	root := s.builder.OutputDir()
	fileServer := http.FileServer(http.Dir(root))
	if s.hub == nil {
		return fileServer
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if page := htmlPagePath(root, r.URL.Path); page != "" {
			data, err := os.ReadFile(page)
			if err == nil {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Write(injectLivereload(data))
				return
			}
		}
		fileServer.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.reportMu.Lock()
	report := s.lastReport
	s.reportMu.Unlock()

	payload := map[string]any{"status": "ok"}
	status := http.StatusOK
	if report != nil {
		payload["build_id"] = report.BuildID
		payload["build_outcome"] = report.Outcome
		payload["pages"] = report.Pages
		if report.Outcome == build.OutcomeFailed {
			payload["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// rebuild runs one build, serialized so overlapping triggers queue up.
func (s *Server) rebuild(ctx context.Context, reason string) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	slog.Info("Rebuilding site", "reason", reason)
	report, err := s.builder.Run(ctx)
	s.reportMu.Lock()
	s.lastReport = report
	s.reportMu.Unlock()
	if err != nil {
		slog.Error("Rebuild failed, previous output stays published", "reason", reason, "error", err)
		return
	}
	if report.Skipped {
		return
	}
	if s.hub != nil {
		s.hub.Broadcast(report.Signature)
	}
}

func (s *Server) watchDirs() []string {
	dirs := []string{s.cfg.Content.Dir}
	if s.cfg.Content.StaticDir != "" {
		dirs = append(dirs, s.cfg.Content.StaticDir)
	}
	if s.cfg.Content.LayoutsDir != "" {
		dirs = append(dirs, s.cfg.Content.LayoutsDir)
	}
	return dirs
}

// scheduleFuturePosts registers a one-shot rebuild at each future-dated
// post's publish time, so the post goes live without a manual rebuild.
func (s *Server) scheduleFuturePosts(ctx context.Context, scheduler *Scheduler) {
	if s.cfg.Content.IncludeFuture {
		return
	}
	coll, err := content.Load(s.cfg.Content.Dir, content.LoadOptions{
		IncludeDrafts: true,
		IncludeFuture: true,
	})
	if err != nil {
		slog.Warn("Skipping future-post scheduling", "error", err)
		return
	}
	now := time.Now()
	for _, post := range coll.Posts {
		if !post.Date.After(now) {
			continue
		}
		post := post
		err := scheduler.ScheduleAt(post.Date.Add(time.Second), "publish-"+post.Slug, func() {
			slog.Info("Scheduled publish time reached", "post", post.Slug)
			s.rebuild(ctx, "scheduled publish")
		})
		if err != nil {
			slog.Warn("Failed to schedule future post", "post", post.Slug, "error", err)
		}
	}
}

// htmlPagePath resolves a request path to an HTML file under root, or ""
// when the request is not for an HTML page.
func htmlPagePath(root, urlPath string) string {
	rel := strings.TrimPrefix(urlPath, "/")
	if strings.Contains(rel, "..") {
		return ""
	}
	candidate := filepath.Join(root, filepath.FromSlash(rel))
	if rel == "" || strings.HasSuffix(urlPath, "/") {
		candidate = filepath.Join(candidate, "index.html")
	} else if info, err := os.Stat(candidate); err == nil && info.IsDir() {
		candidate = filepath.Join(candidate, "index.html")
	} else if !strings.HasSuffix(candidate, ".html") {
		return ""
	}
	if info, err := os.Stat(candidate); err != nil || info.IsDir() {
		return ""
	}
	return candidate
}

// injectLivereload inserts the live-reload script tag before </body>, or
// appends it when the page has no closing body tag.
func injectLivereload(page []byte) []byte {
	idx := bytes.LastIndex(page, []byte("</body>"))
	if idx < 0 {
		return append(page, []byte(livereloadTag)...)
	}
	out := make([]byte, 0, len(page)+len(livereloadTag))
	out = append(out, page[:idx]...)
	out = append(out, []byte(livereloadTag)...)
	out = append(out, page[idx:]...)
	return out
}

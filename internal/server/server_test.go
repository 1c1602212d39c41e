package server

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogsmith/blogsmith/internal/build"
	"github.com/blogsmith/blogsmith/internal/config"
	"github.com/blogsmith/blogsmith/internal/metrics"
)

func TestInjectLivereload_InsertsBeforeClosingBody(t *testing.T) {
	page := []byte("<html><body><p>hi</p></body></html>")
	out := string(injectLivereload(page))

	assert.Contains(t, out, livereloadTag)
	assert.Less(t, strings.Index(out, livereloadTag), strings.Index(out, "</body>"))
	assert.Equal(t, 1, strings.Count(out, livereloadTag))
}

func TestInjectLivereload_AppendsWhenNoBodyTag(t *testing.T) {
	out := string(injectLivereload([]byte("<p>fragment</p>")))

	assert.True(t, strings.HasSuffix(out, livereloadTag))
}

func TestHtmlPagePath_ResolvesDirectoryRequestsToIndex(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "posts", "hello"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "posts", "hello", "index.html"), []byte("<html></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.css"), []byte("body{}"), 0o644))

	assert.Equal(t, filepath.Join(root, "index.html"), htmlPagePath(root, "/"))
	assert.Equal(t, filepath.Join(root, "posts", "hello", "index.html"), htmlPagePath(root, "/posts/hello/"))
	assert.Equal(t, filepath.Join(root, "posts", "hello", "index.html"), htmlPagePath(root, "/posts/hello"))
	assert.Empty(t, htmlPagePath(root, "/site.css"))
	assert.Empty(t, htmlPagePath(root, "/missing/"))
	assert.Empty(t, htmlPagePath(root, "/../etc/passwd"))
}

func TestSiteHandler_InjectsLivereloadScriptIntoPages(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"),
		[]byte("<html><body><h1>home</h1></body></html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "site.css"), []byte("body{margin:0}"), 0o644))

	cfg := config.Default()
	cfg.Output.Directory = root
	srv := New(cfg, build.NewBuilder(cfg))

	ts := httptest.NewServer(srv.siteHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	body := readAll(t, resp)
	assert.Contains(t, body, livereloadTag)
	assert.Contains(t, body, "<h1>home</h1>")

	resp, err = http.Get(ts.URL + "/site.css")
	require.NoError(t, err)
	body = readAll(t, resp)
	assert.NotContains(t, body, livereloadTag)
}

func TestSiteHandler_NoInjectionWhenLivereloadDisabled(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"),
		[]byte("<html><body>plain</body></html>"), 0o644))

	cfg := config.Default()
	cfg.Output.Directory = root
	cfg.Server.LiveReload = false
	srv := New(cfg, build.NewBuilder(cfg))

	ts := httptest.NewServer(srv.siteHandler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	assert.NotContains(t, readAll(t, resp), livereloadTag)
}

func TestHandleHealth_ReportsLastBuild(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	srv := New(cfg, build.NewBuilder(cfg))

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	srv.lastReport = &build.Report{BuildID: "b1", Outcome: build.OutcomeFailed}
	rec = httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
	assert.Contains(t, rec.Body.String(), `"build_id":"b1"`)
}

func TestHandleHealth_RespondsWhileBuildInProgress(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	srv := New(cfg, build.NewBuilder(cfg))

	// Hold the rebuild lock the way a long-running build would.
	srv.buildMu.Lock()
	defer srv.buildMu.Unlock()

	done := make(chan struct{})
	go func() {
		rec := httptest.NewRecorder()
		srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("health check blocked behind a running build")
	}
}

func TestRoutes_ExposesMetricsEndpoint(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	srv := New(cfg, build.NewBuilder(cfg))

	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestHub_BroadcastReachesConnectedClient(t *testing.T) {
	hub := NewHub(metrics.NoopRecorder{})
	defer hub.Close()

	ts := httptest.NewServer(hub)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := streamLines(resp)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast("sig-abc")
	requireLine(t, lines, `data: {"token":"sig-abc"}`)
}

func TestHub_BroadcastDeduplicatesRepeatedTokens(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()

	ts := httptest.NewServer(hub)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := streamLines(resp)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	hub.Broadcast("same")
	hub.Broadcast("same")
	hub.Broadcast("other")

	requireLine(t, lines, `data: {"token":"same"}`)
	// The duplicate was dropped, so the very next data line is the new token.
	requireLine(t, lines, `data: {"token":"other"}`)
}

// TestHub_LateClientReceivesCurrentToken covers a browser connecting after a
// build already published: it is told the current token immediately so the
// next build triggers a reload.
func TestHub_LateClientReceivesCurrentToken(t *testing.T) {
	hub := NewHub(nil)
	defer hub.Close()
	hub.Broadcast("existing")

	ts := httptest.NewServer(hub)
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	requireLine(t, streamLines(resp), `data: {"token":"existing"}`)
}

func TestHub_CloseRejectsNewClients(t *testing.T) {
	hub := NewHub(nil)
	hub.Close()

	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livereload", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWatcher_CoalescesChangeBurstIntoSingleCallback(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 16)
	w, err := NewWatcher([]string{dir}, func() { fired <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "post.md"), []byte("change"), 0o644))
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher never fired for file changes")
	}
	select {
	case <-fired:
		t.Fatal("burst of writes produced more than one callback")
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_IgnoresHiddenAndTemporaryFiles(t *testing.T) {
	dir := t.TempDir()
	fired := make(chan struct{}, 16)
	w, err := NewWatcher([]string{dir}, func() { fired <- struct{}{} })
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "draft.md~"), []byte("x"), 0o644))

	select {
	case <-fired:
		t.Fatal("hidden or temporary file triggered a rebuild")
	case <-time.After(700 * time.Millisecond):
	}
}

func TestNewWatcher_MissingDirectoryIsNotAnError(t *testing.T) {
	w, err := NewWatcher([]string{filepath.Join(t.TempDir(), "absent")}, func() {})
	require.NoError(t, err)
	w.Close()
}

func TestScheduler_SkipsPastTimes(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)
	defer s.Stop(context.Background())

	fired := make(chan struct{}, 1)
	require.NoError(t, s.ScheduleAt(time.Now().Add(-time.Hour), "past", func() { fired <- struct{}{} }))
	s.Start()

	select {
	case <-fired:
		t.Fatal("job in the past should not run")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestScheduler_RunsRecurringJob(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)
	defer s.Stop(context.Background())

	fired := make(chan struct{}, 16)
	require.NoError(t, s.ScheduleEvery(20*time.Millisecond, "tick", func() { fired <- struct{}{} }))
	s.Start()

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("recurring job never ran")
	}
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

// streamLines reads SSE data lines off the response body in the background.
func streamLines(resp *http.Response) <-chan string {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()
	return lines
}

func requireLine(t *testing.T, lines <-chan string, want string) {
	t.Helper()
	select {
	case got, ok := <-lines:
		require.True(t, ok, "stream closed before %q arrived", want)
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

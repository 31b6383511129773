package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postcurator/internal/ledger"
	"github.com/ppiankov/postcurator/internal/store"
)

func TestParseRunEvery(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{
			name:    "empty",
			input:   "",
			want:    0,
			wantErr: false,
		},
		{
			name:    "valid duration",
			input:   "30m",
			want:    30 * time.Minute,
			wantErr: false,
		},
		{
			name:    "parse error",
			input:   "abc",
			want:    0,
			wantErr: true,
		},
		{
			name:    "zero duration",
			input:   "0s",
			want:    0,
			wantErr: true,
		},
		{
			name:    "negative duration",
			input:   "-1m",
			want:    0,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		got, err := parseRunEvery(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if got != tt.want {
			t.Fatalf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func stubRunOnce(t *testing.T, fn func(ctx context.Context) error) {
	t.Helper()
	oldEvery := runEvery
	oldRunOnce := runOnce
	t.Cleanup(func() {
		runEvery = oldEvery
		runOnce = oldRunOnce
	})
	runOnce = fn
}

func TestRunActionRunsOnceWithoutEvery(t *testing.T) {
	calls := 0
	stubRunOnce(t, func(_ context.Context) error {
		calls++
		return nil
	})
	runEvery = ""

	if err := runAction(&cobra.Command{}, nil); err != nil {
		t.Fatalf("runAction failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("run called %d times, want 1", calls)
	}
}

func TestRunActionPropagatesSetupError(t *testing.T) {
	setupErr := errors.New("credentials: generate: env GEMINI_API_KEY is not set")
	stubRunOnce(t, func(_ context.Context) error { return setupErr })
	runEvery = ""

	if err := runAction(&cobra.Command{}, nil); !errors.Is(err, setupErr) {
		t.Fatalf("runAction error = %v, want %v", err, setupErr)
	}
}

func TestRunActionRejectsBadEvery(t *testing.T) {
	stubRunOnce(t, func(_ context.Context) error {
		t.Fatal("run should not start with an invalid --every")
		return nil
	})
	runEvery = "soon"

	if err := runAction(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected error for invalid --every")
	}
}

func TestRunActionWatchModeImmediateThenInterval(t *testing.T) {
	interval := 80 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	runTimes := make([]time.Time, 0, 2)

	stubRunOnce(t, func(_ context.Context) error {
		mu.Lock()
		runTimes = append(runTimes, time.Now())
		count := len(runTimes)
		mu.Unlock()

		if count >= 2 {
			cancel()
		}
		return nil
	})
	runEvery = interval.String()

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	start := time.Now()

	if err := runAction(cmd, nil); err != nil {
		t.Fatalf("runAction failed: %v", err)
	}

	mu.Lock()
	gotTimes := append([]time.Time(nil), runTimes...)
	mu.Unlock()

	if len(gotTimes) < 2 {
		t.Fatalf("run called %d times, want at least 2", len(gotTimes))
	}
	if firstDelay := gotTimes[0].Sub(start); firstDelay >= interval {
		t.Fatalf("first run delayed by %v, want less than %v", firstDelay, interval)
	}
	minGap := interval - 10*time.Millisecond
	if secondGap := gotTimes[1].Sub(gotTimes[0]); secondGap < minGap {
		t.Fatalf("interval gap too short: got %v, want at least %v", secondGap, minGap)
	}
}

func TestRunWatchStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	calls := 0
	start := time.Now()
	err := runWatch(ctx, 10*time.Second, func() error {
		calls++
		cancel()
		return nil
	})
	if err != nil {
		t.Fatalf("runWatch failed: %v", err)
	}
	if calls != 1 {
		t.Fatalf("runOnce called %d times, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("watch shutdown took too long: %v", elapsed)
	}
}

func TestRunWatchCancelledRunIsCleanStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	err := runWatch(ctx, 10*time.Second, func() error {
		cancel()
		return context.Canceled
	})
	if err != nil {
		t.Fatalf("runWatch = %v, want nil after cancel", err)
	}
}

func TestRunWatchStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := runWatch(context.Background(), time.Millisecond, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("runWatch = %v, want %v", err, boom)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

const testFeed = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Test Wire</title>
    <item><title>Chip shortage ends</title><link>https://example.com/chips</link></item>
    <item><title>New compiler release</title><link>https://example.com/compiler</link></item>
    <item><title>Browser adds feature</title><link>https://example.com/browser</link></item>
  </channel>
</rss>`

const testGeminiReply = `{"candidates":[{"content":{"parts":[{"text":"\"Big news for builders 🚀 #tech\""}]}}],"modelVersion":"gemini-test"}`

type testServers struct {
	feedURL   string
	geminiURL string
	xURL      string
	feedHits  atomic.Int32
	genHits   atomic.Int32
	postHits  atomic.Int32
}

func startTestServers(t *testing.T) *testServers {
	t.Helper()
	ts := &testServers{}

	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ts.feedHits.Add(1)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = io.WriteString(w, testFeed)
	}))
	t.Cleanup(feed.Close)

	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.genHits.Add(1)
		if r.Header.Get("x-goog-api-key") != "test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, testGeminiReply)
	}))
	t.Cleanup(gemini.Close)

	x := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.postHits.Add(1)
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"data": {"id": "17900000000000000%02d", "text": "ok"}}`, n)
	}))
	t.Cleanup(x.Close)

	ts.feedURL = feed.URL + "/rss"
	ts.geminiURL = gemini.URL
	ts.xURL = x.URL + "/2/tweets"
	return ts
}

func writeRunConfig(t *testing.T, dir string, ts *testServers) {
	t.Helper()
	writeRunConfigMode(t, dir, ts, "dry-run")
}

// writeRunConfigMode writes a config whose publish mode is x or dry-run. The X
// endpoint points at the test server and reads POSTCURATOR_TEST_X_TOKEN.
func writeRunConfigMode(t *testing.T, dir string, ts *testServers, mode string) {
	t.Helper()
	cfg := fmt.Sprintf(`sources:
  rss:
    feeds: [%q]
cache:
  path: %q
ledger:
  path: %q
journal:
  path: %q
generate:
  provider: gemini
  endpoint: %q
  api_key_env: POSTCURATOR_TEST_GEMINI_KEY
  requests_per_minute: 60000
publish:
  mode: %s
  endpoint: %q
  access_token_env: POSTCURATOR_TEST_X_TOKEN
run:
  batch_size: 2
  publish_delay: 1ms
log:
  level: error
`, ts.feedURL,
		filepath.Join(dir, "state", "articles_cache.json"),
		filepath.Join(dir, "state", "processed_articles.json"),
		filepath.Join(dir, "state", "journal.db"),
		ts.geminiURL,
		mode, ts.xURL)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// useConfigDir points the command flags at dir for the duration of the test.
func useConfigDir(t *testing.T, dir string) {
	t.Helper()
	oldConfigDir := configDir
	oldNoColor := noColor
	oldLogLevel := logLevel
	oldFormat := runFormat
	oldDryRun := runDryRun
	oldBatch := runBatch
	t.Cleanup(func() {
		configDir = oldConfigDir
		noColor = oldNoColor
		logLevel = oldLogLevel
		runFormat = oldFormat
		runDryRun = oldDryRun
		runBatch = oldBatch
	})
	configDir = dir
	noColor = true
	logLevel = ""
	runFormat = "terminal"
	runDryRun = false
	runBatch = 0
}

func TestRunPipeline_DryRunPublishesBatch(t *testing.T) {
	dir := t.TempDir()
	ts := startTestServers(t)
	writeRunConfig(t, dir, ts)
	useConfigDir(t, dir)
	t.Setenv("POSTCURATOR_TEST_GEMINI_KEY", "test-key")

	out, err := captureStdout(t, func() error {
		return runPipeline(context.Background())
	})
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}
	if !strings.Contains(out, "2 posted, 0 failed, 3 candidates") {
		t.Errorf("missing run summary, got:\n%s", out)
	}
	if strings.Count(out, "--- dry-") != 2 {
		t.Errorf("expected 2 dry-run posts, got:\n%s", out)
	}
	if !strings.Contains(out, "Big news for builders 🚀 #tech\nhttps://example.com/chips") {
		t.Errorf("post text not cleaned and joined with url, got:\n%s", out)
	}
	if ts.postHits.Load() != 0 {
		t.Error("dry run must not call the X API")
	}

	l, err := ledger.Open(filepath.Join(dir, "state", "processed_articles.json"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("dry run recorded %d articles in the ledger, want 0", l.Len())
	}
	if _, err := os.Stat(filepath.Join(dir, "state", "articles_cache.json")); err != nil {
		t.Errorf("cache not persisted: %v", err)
	}

	db, err := store.Open(filepath.Join(dir, "state", "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer func() { _ = db.Close() }()
	pubs, err := db.RecentPublications(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentPublications: %v", err)
	}
	if len(pubs) != 2 {
		t.Fatalf("journal publications = %d, want 2", len(pubs))
	}
	if pubs[0].Publisher != "dry-run" {
		t.Errorf("publisher = %q, want dry-run", pubs[0].Publisher)
	}
}

func TestRunPipeline_DryRunFlagKeepsArticlesForRealRun(t *testing.T) {
	dir := t.TempDir()
	ts := startTestServers(t)
	writeRunConfigMode(t, dir, ts, "x")
	useConfigDir(t, dir)
	t.Setenv("POSTCURATOR_TEST_GEMINI_KEY", "test-key")
	t.Setenv("POSTCURATOR_TEST_X_TOKEN", "test-token")
	runDryRun = true

	for i := 0; i < 2; i++ {
		out, err := captureStdout(t, func() error {
			return runPipeline(context.Background())
		})
		if err != nil {
			t.Fatalf("dry run %d: %v", i+1, err)
		}
		if !strings.Contains(out, "2 posted, 0 failed, 3 candidates") {
			t.Errorf("dry run %d should see all candidates, got:\n%s", i+1, out)
		}
	}
	if ts.postHits.Load() != 0 {
		t.Fatal("--dry-run must not call the X API")
	}

	runDryRun = false
	out, err := captureStdout(t, func() error {
		return runPipeline(context.Background())
	})
	if err != nil {
		t.Fatalf("real run: %v", err)
	}
	if !strings.Contains(out, "2 posted, 0 failed, 3 candidates") {
		t.Errorf("real run should publish the articles the dry runs printed, got:\n%s", out)
	}
	if got := ts.postHits.Load(); got != 2 {
		t.Errorf("X API called %d times, want 2", got)
	}

	l, err := ledger.Open(filepath.Join(dir, "state", "processed_articles.json"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if !l.Contains("https://example.com/chips") || !l.Contains("https://example.com/compiler") {
		t.Error("ledger missing the published articles")
	}
	if l.Contains("https://example.com/browser") {
		t.Error("third article should wait for the next run")
	}
}

func TestRunPipeline_SecondRunUsesCacheThenRefetches(t *testing.T) {
	dir := t.TempDir()
	ts := startTestServers(t)
	writeRunConfigMode(t, dir, ts, "x")
	useConfigDir(t, dir)
	t.Setenv("POSTCURATOR_TEST_GEMINI_KEY", "test-key")
	t.Setenv("POSTCURATOR_TEST_X_TOKEN", "test-token")

	run := func() string {
		t.Helper()
		out, err := captureStdout(t, func() error {
			return runPipeline(context.Background())
		})
		if err != nil {
			t.Fatalf("runPipeline: %v", err)
		}
		return out
	}

	run()
	second := run()
	if !strings.Contains(second, "1 posted, 0 failed, 1 candidates") {
		t.Errorf("second run should post the remaining article, got:\n%s", second)
	}
	if got := ts.feedHits.Load(); got != 1 {
		t.Errorf("feed fetched %d times, want 1 (cache hit)", got)
	}

	third := run()
	if !strings.Contains(third, "No unprocessed articles.") {
		t.Errorf("third run should find nothing, got:\n%s", third)
	}
	if got := ts.feedHits.Load(); got != 2 {
		t.Errorf("feed fetched %d times, want 2 (one refetch when exhausted)", got)
	}
	if got := ts.genHits.Load(); got != 3 {
		t.Errorf("generator called %d times, want 3", got)
	}
	if got := ts.postHits.Load(); got != 3 {
		t.Errorf("X API called %d times, want 3", got)
	}
}

func TestRunPipeline_MissingCredentialsStopsBeforeFetch(t *testing.T) {
	dir := t.TempDir()
	ts := startTestServers(t)
	writeRunConfig(t, dir, ts)
	useConfigDir(t, dir)
	t.Setenv("POSTCURATOR_TEST_GEMINI_KEY", "")

	_, err := captureStdout(t, func() error {
		return runPipeline(context.Background())
	})
	if err == nil || !strings.Contains(err.Error(), "POSTCURATOR_TEST_GEMINI_KEY") {
		t.Fatalf("expected credentials error naming the env var, got %v", err)
	}
	if ts.feedHits.Load() != 0 {
		t.Error("feed should not be fetched when setup fails")
	}
}

func TestRunPipeline_GenerationFailureStillExitsZero(t *testing.T) {
	dir := t.TempDir()
	ts := startTestServers(t)
	writeRunConfig(t, dir, ts)
	useConfigDir(t, dir)
	t.Setenv("POSTCURATOR_TEST_GEMINI_KEY", "wrong-key")

	out, err := captureStdout(t, func() error {
		return runPipeline(context.Background())
	})
	if err != nil {
		t.Fatalf("runPipeline should not fail on per-article errors: %v", err)
	}
	if !strings.Contains(out, "0 posted, 2 failed") {
		t.Errorf("expected two failures, got:\n%s", out)
	}
	if !strings.Contains(out, "[generation]") {
		t.Errorf("expected generation failure kind, got:\n%s", out)
	}
}

func TestRunPipeline_BatchFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	ts := startTestServers(t)
	writeRunConfig(t, dir, ts)
	useConfigDir(t, dir)
	t.Setenv("POSTCURATOR_TEST_GEMINI_KEY", "test-key")
	runBatch = 1

	out, err := captureStdout(t, func() error {
		return runPipeline(context.Background())
	})
	if err != nil {
		t.Fatalf("runPipeline: %v", err)
	}
	if !strings.Contains(out, "1 posted, 0 failed, 3 candidates") {
		t.Errorf("--batch 1 should post one article, got:\n%s", out)
	}
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

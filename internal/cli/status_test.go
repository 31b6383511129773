package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/postcurator/internal/cache"
	"github.com/ppiankov/postcurator/internal/config"
	"github.com/ppiankov/postcurator/internal/ledger"
	"github.com/ppiankov/postcurator/internal/logging"
	"github.com/ppiankov/postcurator/internal/source"
	"github.com/ppiankov/postcurator/internal/statefile"
	"github.com/ppiankov/postcurator/internal/store"
)

func writeStatusConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := fmt.Sprintf(`sources:
  rss:
    feeds: ["https://example.com/feed"]
cache:
  path: %q
  ttl: 24h
ledger:
  path: %q
journal:
  path: %q
`, filepath.Join(dir, "cache.json"), filepath.Join(dir, "ledger.json"), filepath.Join(dir, "journal.db"))
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return loaded
}

func seedState(t *testing.T, cfg *config.Config, capturedAt time.Time) {
	t.Helper()
	articles := []source.Article{
		{Title: "Done", URL: "https://example.com/done", Source: source.Publisher{Name: "Wire"}},
		{Title: "Next", URL: "https://example.com/next", Source: source.Publisher{Name: "Wire"}},
	}
	snap := cache.Snapshot{CapturedAt: statefile.Time{Time: capturedAt}, Articles: articles}
	if err := statefile.Write(cfg.Cache.Path, snap); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	if err := l.Record(articles[0]); err != nil {
		t.Fatalf("record: %v", err)
	}
}

func TestCollectStatus_ReadsStateWithoutJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := writeStatusConfig(t, dir)
	seedState(t, cfg, time.Now().Add(-time.Hour))

	s, err := collectStatus(context.Background(), cfg, logging.Discard(), 7*24*time.Hour, "")
	if err != nil {
		t.Fatalf("collectStatus: %v", err)
	}
	if !s.CacheValid {
		t.Error("1h old snapshot should be valid")
	}
	if s.Articles != 2 {
		t.Errorf("articles = %d, want 2", s.Articles)
	}
	if len(s.Candidates) != 1 || s.Candidates[0].URL != "https://example.com/next" {
		t.Errorf("candidates = %+v", s.Candidates)
	}
	if s.Processed != 1 || s.LastProcessed.IsZero() {
		t.Errorf("ledger processed = %d, last = %v", s.Processed, s.LastProcessed)
	}
	if s.Journal == nil || s.Journal.Publications != 0 {
		t.Errorf("missing journal should report zero counters, got %+v", s.Journal)
	}
	if _, err := os.Stat(cfg.Journal.Path); !os.IsNotExist(err) {
		t.Error("status should not create the journal")
	}
}

func TestCollectStatus_StaleCacheAndJournal(t *testing.T) {
	dir := t.TempDir()
	cfg := writeStatusConfig(t, dir)
	seedState(t, cfg, time.Now().Add(-48*time.Hour))

	db, err := store.Open(cfg.Journal.Path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	_, err = db.RecordPublication(context.Background(), store.Publication{
		RunID:        "run-1",
		ArticleURL:   "https://example.com/done",
		ArticleTitle: "Done",
		Publisher:    "x",
		PostID:       "1900000000000000000",
		Text:         "Done deal\nhttps://example.com/done",
	})
	if err != nil {
		t.Fatalf("record publication: %v", err)
	}
	_ = db.Close()

	s, err := collectStatus(context.Background(), cfg, logging.Discard(), 7*24*time.Hour, "")
	if err != nil {
		t.Fatalf("collectStatus: %v", err)
	}
	if s.CacheValid {
		t.Error("48h old snapshot should be stale")
	}
	if s.Journal == nil || s.Journal.Publications != 1 {
		t.Fatalf("journal = %+v, want 1 publication", s.Journal)
	}
	if len(s.Recent) != 1 || s.Recent[0].PostID != "1900000000000000000" {
		t.Errorf("recent = %+v", s.Recent)
	}
}

func TestCollectStatus_GenerationHistory(t *testing.T) {
	dir := t.TempDir()
	cfg := writeStatusConfig(t, dir)
	seedState(t, cfg, time.Now().Add(-time.Hour))

	db, err := store.Open(cfg.Journal.Path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	ctx := context.Background()
	for _, g := range []store.Generation{
		{RunID: "run-1", ArticleURL: "https://example.com/done", ArticleTitle: "Done", Attempt: 1, ResponseLength: 310, Error: "content too long"},
		{RunID: "run-1", ArticleURL: "https://example.com/done", ArticleTitle: "Done", Attempt: 2, ResponseLength: 120},
		{RunID: "run-1", ArticleURL: "https://example.com/next", ArticleTitle: "Next", Attempt: 1, ResponseLength: 90},
	} {
		if _, err := db.RecordGeneration(ctx, g); err != nil {
			t.Fatalf("record generation: %v", err)
		}
	}
	_ = db.Close()

	s, err := collectStatus(ctx, cfg, logging.Discard(), 7*24*time.Hour, "https://example.com/done")
	if err != nil {
		t.Fatalf("collectStatus: %v", err)
	}
	if s.HistoryURL != "https://example.com/done" {
		t.Errorf("history url = %q", s.HistoryURL)
	}
	if len(s.History) != 2 {
		t.Fatalf("history = %+v, want 2 attempts", s.History)
	}
	if s.History[0].Attempt != 1 || s.History[0].Error == "" || s.History[1].Attempt != 2 {
		t.Errorf("history out of order: %+v", s.History)
	}

	without, err := collectStatus(ctx, cfg, logging.Discard(), 7*24*time.Hour, "")
	if err != nil {
		t.Fatalf("collectStatus: %v", err)
	}
	if len(without.History) != 0 {
		t.Errorf("history should be empty without a url, got %+v", without.History)
	}
}

func TestCollectStatus_NoCacheYet(t *testing.T) {
	dir := t.TempDir()
	cfg := writeStatusConfig(t, dir)

	s, err := collectStatus(context.Background(), cfg, logging.Discard(), time.Hour, "")
	if err != nil {
		t.Fatalf("collectStatus: %v", err)
	}
	if !s.CapturedAt.IsZero() || s.CacheValid || len(s.Candidates) != 0 {
		t.Errorf("empty state reported as %+v", s)
	}
}

func TestStatusAction_JSON(t *testing.T) {
	dir := t.TempDir()
	cfg := writeStatusConfig(t, dir)
	seedState(t, cfg, time.Now().Add(-time.Hour))
	useConfigDir(t, dir)

	oldSince, oldFormat := statusSince, statusFormat
	t.Cleanup(func() { statusSince, statusFormat = oldSince, oldFormat })
	statusSince, statusFormat = "7d", "json"

	out, err := captureStdout(t, func() error {
		return statusAction(statusCmd, nil)
	})
	if err != nil {
		t.Fatalf("statusAction: %v", err)
	}

	var got struct {
		Cache struct {
			Valid      bool `json:"valid"`
			Candidates []struct {
				URL string `json:"url"`
			} `json:"candidates"`
		} `json:"cache"`
		Ledger struct {
			Processed int `json:"processed"`
		} `json:"ledger"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if !got.Cache.Valid || len(got.Cache.Candidates) != 1 || got.Ledger.Processed != 1 {
		t.Errorf("unexpected status: %+v", got)
	}
}

func TestStatusAction_BadSince(t *testing.T) {
	useConfigDir(t, t.TempDir())
	oldSince, oldFormat := statusSince, statusFormat
	t.Cleanup(func() { statusSince, statusFormat = oldSince, oldFormat })
	statusSince, statusFormat = "soon", "terminal"

	if err := statusAction(statusCmd, nil); err == nil {
		t.Fatal("expected error for invalid --since")
	}
}

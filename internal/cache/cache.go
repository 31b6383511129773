// Package cache keeps a TTL-bounded snapshot of fetched articles and persists
// it between runs.
package cache

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/postcurator/internal/source"
	"github.com/ppiankov/postcurator/internal/statefile"
)

// Snapshot is one fetched batch of articles and the time it was captured.
type Snapshot struct {
	CapturedAt statefile.Time   `json:"timestamp"`
	Articles   []source.Article `json:"articles"`
}

// Ledger reports whether an article URL has already been processed.
type Ledger interface {
	Contains(url string) bool
}

// Cache serves articles from a persisted snapshot until it goes stale, then
// refetches. It is owned by a single run and is not safe for concurrent use.
type Cache struct {
	path    string
	ttl     time.Duration
	fetcher source.Fetcher
	logger  *log.Logger

	snap    Snapshot
	loaded  bool
	fetched bool
	lastErr error

	// now is the wall clock used for freshness checks. Tests replace it.
	now func() time.Time
}

// New creates a cache backed by the JSON file at path.
func New(path string, ttl time.Duration, fetcher source.Fetcher, logger *log.Logger) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache: path is required")
	}
	if ttl <= 0 {
		return nil, errors.New("cache: ttl must be positive")
	}
	if fetcher == nil {
		return nil, errors.New("cache: fetcher is required")
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Cache{
		path:    path,
		ttl:     ttl,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Valid reports whether s may still be served.
func (c *Cache) Valid(s Snapshot) bool {
	if s.CapturedAt.IsZero() {
		return false
	}
	return c.now().Sub(s.CapturedAt.Time) < c.ttl
}

// Age returns how old the current snapshot is, or zero when none is loaded.
func (c *Cache) Age() time.Duration {
	if !c.loaded || c.snap.CapturedAt.IsZero() {
		return 0
	}
	return c.now().Sub(c.snap.CapturedAt.Time)
}

// Snapshot returns the in-memory snapshot.
func (c *Cache) Snapshot() Snapshot {
	return c.snap
}

// Fetched reports whether the latest Load or Refresh went to the fetcher
// rather than serving a cached snapshot.
func (c *Cache) Fetched() bool {
	return c.fetched
}

// LastFetchErr returns the error from the most recent failed fetch, if the
// latest fetch failed.
func (c *Cache) LastFetchErr() error {
	return c.lastErr
}

// Load returns the articles of a valid snapshot. In order it tries the
// in-memory snapshot, the persisted file, and finally the fetcher. A fetch
// failure yields no articles; nothing is persisted in that case so the next
// call tries again.
func (c *Cache) Load(ctx context.Context) []source.Article {
	if c.loaded && c.Valid(c.snap) {
		c.fetched = false
		return c.snap.Articles
	}

	var disk Snapshot
	found, err := statefile.Read(c.path, &disk)
	switch {
	case err != nil:
		c.logger.Warn("article cache unreadable, refetching", "path", c.path, "err", err)
	case found && c.Valid(disk):
		c.snap = disk
		c.loaded = true
		c.fetched = false
		c.logger.Info("loaded articles from cache", "count", len(disk.Articles), "age", c.Age().Round(time.Second))
		return c.snap.Articles
	case found:
		c.logger.Info("article cache is stale, refetching", "captured_at", disk.CapturedAt.Format(time.RFC3339))
	}

	return c.Refresh(ctx)
}

// Refresh fetches a new batch unconditionally and, on success, replaces and
// persists the snapshot.
func (c *Cache) Refresh(ctx context.Context) []source.Article {
	c.logger.Info("fetching fresh articles", "fetcher", c.fetcher.Name())
	c.fetched = true

	articles, err := c.fetcher.Fetch(ctx)
	if err != nil {
		c.lastErr = err
		c.logger.Error("fetch failed", "kind", "fetch", "fetcher", c.fetcher.Name(), "err", err)
		c.snap = Snapshot{}
		c.loaded = false
		return nil
	}
	c.lastErr = nil

	c.snap = Snapshot{
		CapturedAt: statefile.Time{Time: c.now()},
		Articles:   articles,
	}
	c.loaded = true
	c.logger.Info("fetched fresh articles", "count", len(articles))

	if err := c.Persist(); err != nil {
		c.logger.Error("persist article cache", "kind", "persistence", "err", err)
	}
	return c.snap.Articles
}

// Unprocessed returns snapshot articles whose URL the ledger does not
// contain, in fetch order.
func (c *Cache) Unprocessed(ledger Ledger) []source.Article {
	var out []source.Article
	for _, a := range c.snap.Articles {
		if ledger.Contains(a.URL) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Persist writes the current snapshot atomically. Its capture time is kept,
// so persisting never extends freshness.
func (c *Cache) Persist() error {
	if !c.loaded {
		return nil
	}
	snap := c.snap
	if snap.Articles == nil {
		snap.Articles = []source.Article{}
	}
	return statefile.Write(c.path, snap)
}

// Peek reads the persisted snapshot without fetching. found is false when no
// cache file exists yet.
func (c *Cache) Peek() (snap Snapshot, found bool, err error) {
	found, err = statefile.Read(c.path, &snap)
	if err != nil || !found {
		return Snapshot{}, found, err
	}
	c.snap = snap
	c.loaded = true
	return snap, true, nil
}

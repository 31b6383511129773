package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postcurator/internal/cache"
	"github.com/ppiankov/postcurator/internal/config"
	"github.com/ppiankov/postcurator/internal/ledger"
	"github.com/ppiankov/postcurator/internal/report"
	"github.com/ppiankov/postcurator/internal/store"
)

var (
	statusSince  string
	statusFormat string
	statusURL    string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show cache, ledger and journal state",
	RunE:  statusAction,
}

func init() {
	statusCmd.Flags().StringVar(&statusSince, "since", "7d", "journal window (e.g. 7d, 48h)")
	statusCmd.Flags().StringVar(&statusFormat, "format", "terminal", "output format: terminal, json")
	statusCmd.Flags().StringVar(&statusURL, "url", "", "also list journaled generation attempts for this article URL")
}

const recentPublications = 5

func statusAction(cmd *cobra.Command, _ []string) error {
	formatter, err := report.New(statusFormat, !noColor)
	if err != nil {
		return err
	}
	sinceDur, err := parseDuration(statusSince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := collectStatus(ctx, cfg, logger, sinceDur, strings.TrimSpace(statusURL))
	if err != nil {
		return err
	}
	return formatter.Status(os.Stdout, s)
}

// collectStatus reads persisted state without fetching or publishing. A
// non-empty historyURL adds that article's generation attempts.
func collectStatus(ctx context.Context, cfg *config.Config, logger *log.Logger, since time.Duration, historyURL string) (report.Status, error) {
	s := report.Status{
		CachePath:  cfg.Cache.Path,
		TTL:        cfg.Cache.TTL.Duration,
		LedgerPath: cfg.Ledger.Path,
		Since:      since,
		HistoryURL: historyURL,
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return s, err
	}
	s.Processed = l.Len()
	if last, ok := l.Last(); ok {
		s.LastProcessed = last.ProcessedAt.Time
	}

	c, err := cache.New(cfg.Cache.Path, cfg.Cache.TTL.Duration, offlineFetcher{}, logger)
	if err != nil {
		return s, err
	}
	snap, found, err := c.Peek()
	if err != nil {
		logger.Warn("article cache unreadable", "path", cfg.Cache.Path, "err", err)
	}
	if found {
		s.CapturedAt = snap.CapturedAt.Time
		s.CacheAge = c.Age()
		s.CacheValid = c.Valid(snap)
		s.Articles = len(snap.Articles)
		s.Candidates = c.Unprocessed(l)
	}

	if _, err := os.Stat(cfg.Journal.Path); err != nil {
		s.Journal = &store.Stats{}
		return s, nil
	}
	db, err := store.Open(cfg.Journal.Path)
	if err != nil {
		logger.Warn("journal unavailable", "path", cfg.Journal.Path, "err", err)
		return s, nil
	}
	defer func() { _ = db.Close() }()

	stats, err := db.GetStats(ctx, time.Now().Add(-since))
	if err != nil {
		logger.Warn("read journal stats", "err", err)
		return s, nil
	}
	s.Journal = &stats
	s.Recent, err = db.RecentPublications(ctx, recentPublications)
	if err != nil {
		logger.Warn("read recent publications", "err", err)
	}
	if historyURL != "" {
		if s.History, err = db.Generations(ctx, historyURL); err != nil {
			logger.Warn("read generation history", "url", historyURL, "err", err)
		}
	}
	return s, nil
}

// parseDuration handles both Go durations and "Nd" day notation.
func parseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

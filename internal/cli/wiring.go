package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/postcurator/internal/cache"
	"github.com/ppiankov/postcurator/internal/compose"
	"github.com/ppiankov/postcurator/internal/config"
	"github.com/ppiankov/postcurator/internal/curate"
	"github.com/ppiankov/postcurator/internal/generate"
	"github.com/ppiankov/postcurator/internal/ledger"
	"github.com/ppiankov/postcurator/internal/publish"
	"github.com/ppiankov/postcurator/internal/source"
	"github.com/ppiankov/postcurator/internal/store"
)

// newFetcher builds the configured news sources. Several sources are chained
// in the order News API, RSS, Hacker News.
func newFetcher(cfg *config.Config) (source.Fetcher, error) {
	var fetchers []source.Fetcher

	if cfg.Sources.NewsAPI.Enabled() {
		n, err := source.NewNewsAPI(source.NewsAPIOptions{
			Token:      cfg.Sources.NewsAPI.APIToken,
			Categories: cfg.Sources.NewsAPI.Categories,
			Language:   cfg.Sources.NewsAPI.Language,
			Limit:      cfg.Sources.NewsAPI.Limit,
		})
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, n)
	}

	if len(cfg.Sources.RSS.Feeds) > 0 {
		rs, err := source.NewRSS(cfg.Sources.RSS.Feeds, cfg.Sources.RSS.PerFeed)
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, rs)
	}

	if cfg.Sources.HN.Enabled() {
		h, err := source.NewHN(source.HNOptions{
			MinPoints: cfg.Sources.HN.MinPoints,
			Limit:     cfg.Sources.HN.Limit,
			MaxAge:    cfg.Sources.HN.MaxAge.Duration,
		})
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, h)
	}

	switch len(fetchers) {
	case 0:
		return nil, errors.New("no sources configured")
	case 1:
		return fetchers[0], nil
	default:
		return source.NewMulti(fetchers...)
	}
}

// offlineFetcher backs caches that must never hit the network.
type offlineFetcher struct{}

func (offlineFetcher) Name() string { return "offline" }

func (offlineFetcher) Fetch(context.Context) ([]source.Article, error) {
	return nil, errors.New("fetching is disabled for this command")
}

func newGenerator(cfg *config.Config) (generate.Generator, error) {
	g, err := generate.New(cfg.Generate.Provider, generate.Options{
		APIKey:     cfg.Generate.APIKey,
		Model:      cfg.Generate.Model,
		MaxTokens:  cfg.Generate.MaxTokens,
		Endpoint:   cfg.Generate.Endpoint,
		PostLength: cfg.Compose.MaxPostLength,
	})
	if err != nil {
		return nil, err
	}
	return generate.WithRateLimit(g, cfg.Generate.RequestsPerMinute), nil
}

// newPublisher returns the X publisher, or a printer on w for dry runs.
func newPublisher(cfg *config.Config, dryRun bool, w io.Writer) (publish.Publisher, error) {
	if dryRun {
		return publish.NewDryRun(w), nil
	}
	return publish.NewX(cfg.Publish.AccessToken, cfg.Publish.Endpoint)
}

// openJournal opens the sqlite journal and prunes rows past retention.
func openJournal(ctx context.Context, cfg *config.Config, logger *log.Logger) (*store.Store, error) {
	db, err := store.Open(cfg.Journal.Path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	pruned, err := db.PruneOld(ctx, cfg.Journal.RetainDays)
	if err != nil {
		logger.Warn("prune journal", "err", err)
	} else if pruned > 0 {
		logger.Debug("pruned journal", "rows", pruned)
	}
	return db, nil
}

// runDeps holds everything one pipeline run needs. close releases the journal.
type runDeps struct {
	cache    *cache.Cache
	ledger   *ledger.Ledger
	journal  *store.Store
	pipeline *curate.Pipeline
}

func (d *runDeps) close() {
	if d.journal != nil {
		_ = d.journal.Close()
	}
}

// buildRun wires the pipeline from cfg. The journal is optional: when it
// cannot be opened the run proceeds without it. Dry runs record processed
// articles in a scratch ledger, leaving the file untouched.
func buildRun(ctx context.Context, cfg *config.Config, logger *log.Logger, dryRun bool, out io.Writer) (*runDeps, error) {
	fetcher, err := newFetcher(cfg)
	if err != nil {
		return nil, fmt.Errorf("sources: %w", err)
	}
	c, err := cache.New(cfg.Cache.Path, cfg.Cache.TTL.Duration, fetcher, logger)
	if err != nil {
		return nil, err
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg)
	if err != nil {
		return nil, err
	}
	pub, err := newPublisher(cfg, dryRun, out)
	if err != nil {
		return nil, err
	}

	var processed curate.Ledger = l
	if dryRun {
		processed = ledger.NewScratch(l)
	}

	deps := &runDeps{cache: c, ledger: l}
	pipelineDeps := curate.Deps{
		Cache:     c,
		Ledger:    processed,
		Composer:  compose.New(cfg.Compose.MaxPostLength),
		Generator: gen,
		Publisher: pub,
		Logger:    logger,
	}
	if db, err := openJournal(ctx, cfg, logger); err != nil {
		logger.Warn("journal unavailable, continuing without it", "err", err)
	} else {
		deps.journal = db
		pipelineDeps.Journal = db
	}

	p, err := curate.New(curate.Config{
		BatchSize:            cfg.Run.BatchSize,
		MaxAttempts:          cfg.Compose.MaxAttempts,
		PublishDelay:         cfg.Run.Delay(),
		RefetchWhenExhausted: cfg.Run.Refetch(),
		LogResponses:         cfg.Generate.LogResponses,
	}, pipelineDeps)
	if err != nil {
		deps.close()
		return nil, err
	}
	deps.pipeline = p
	return deps, nil
}

package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postcurator/internal/cache"
	"github.com/ppiankov/postcurator/internal/ledger"
)

var fetchForce bool

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Load or refresh the article cache and list candidates",
	RunE:  fetchAction,
}

func init() {
	fetchCmd.Flags().BoolVar(&fetchForce, "force", false, "refetch even when the cache is still valid")
}

func fetchAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Sources.NewsAPI.Enabled() && cfg.Sources.NewsAPI.APIToken == "" {
		return fmt.Errorf("sources.newsapi: env %s is not set", cfg.Sources.NewsAPI.APITokenEnv)
	}

	logger, closer, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return fmt.Errorf("sources: %w", err)
	}
	c, err := cache.New(cfg.Cache.Path, cfg.Cache.TTL.Duration, fetcher, logger)
	if err != nil {
		return err
	}
	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	articles := c.Load(ctx)
	if fetchForce && !c.Fetched() {
		articles = c.Refresh(ctx)
	}
	if err := c.LastFetchErr(); err != nil {
		return fmt.Errorf("fetch: %w", err)
	}

	candidates := c.Unprocessed(l)
	origin := "cache"
	if c.Fetched() {
		origin = fetcher.Name()
	}
	fmt.Printf("%d articles from %s, %d not yet processed\n", len(articles), origin, len(candidates))
	for i, a := range candidates {
		fmt.Printf("%3d. %s (%s)\n     %s\n", i+1, a.Title, a.SourceName(), a.URL)
	}
	return nil
}

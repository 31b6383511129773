package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postcurator/internal/cache"
	"github.com/ppiankov/postcurator/internal/config"
	"github.com/ppiankov/postcurator/internal/ledger"
	"github.com/ppiankov/postcurator/internal/logging"
	"github.com/ppiankov/postcurator/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, credentials and state files",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// .env files
	loaded, err := config.LoadEnvFiles(configDir)
	switch {
	case err != nil:
		printCheck(false, ".env: %v", err)
		ok = false
	case len(loaded) > 0:
		printInfo("loaded env from %v", loaded)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return errors.New("some checks failed")
	}
	printCheck(true, "config.yaml (newsapi: %t, %d rss feeds, hn: %t, provider %s, publish %s)",
		cfg.Sources.NewsAPI.Enabled(), len(cfg.Sources.RSS.Feeds), cfg.Sources.HN.Enabled(), cfg.Generate.Provider, cfg.Publish.Mode)

	// Credentials
	if err := cfg.CheckCredentials(cfg.DryRun()); err != nil {
		for _, line := range splitJoined(err) {
			printCheck(false, "credentials: %s", line)
		}
		ok = false
	} else {
		printCheck(true, "credentials")
	}

	// State paths
	for _, p := range []struct{ label, path string }{
		{"cache", cfg.Cache.Path},
		{"ledger", cfg.Ledger.Path},
		{"journal", cfg.Journal.Path},
	} {
		if err := checkWritableDir(filepath.Dir(p.path)); err != nil {
			printCheck(false, "%s directory: %v", p.label, err)
			ok = false
		} else {
			printCheck(true, "%s %s", p.label, p.path)
		}
	}

	// Ledger
	if l, err := ledger.Open(cfg.Ledger.Path); err != nil {
		printCheck(false, "ledger: %v", err)
		ok = false
	} else {
		printInfo("ledger holds %d processed articles", l.Len())
	}

	// Cache
	c, err := cache.New(cfg.Cache.Path, cfg.Cache.TTL.Duration, offlineFetcher{}, logging.Discard())
	if err == nil {
		snap, found, err := c.Peek()
		switch {
		case err != nil:
			printCheck(false, "article cache: %v (it will be refetched)", err)
		case !found:
			printInfo("article cache empty, next run fetches")
		case c.Valid(snap):
			printInfo("article cache valid, %d articles, captured %s ago", len(snap.Articles), c.Age().Round(time.Minute))
		default:
			printInfo("article cache stale, next run refetches")
		}
	}

	// Journal
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if db, err := store.Open(cfg.Journal.Path); err != nil {
		printCheck(false, "journal: %v", err)
		ok = false
	} else {
		stats, err := db.GetStats(ctx, time.Now().AddDate(0, 0, -cfg.Journal.RetainDays))
		if err != nil {
			printCheck(false, "journal: %v", err)
			ok = false
		} else {
			printCheck(true, "journal (%d publications in %d days)", stats.Publications, cfg.Journal.RetainDays)
		}
		_ = db.Close()
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkWritableDir creates dir if needed and checks it accepts a temp file.
func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// splitJoined unpacks an errors.Join result into its parts.
func splitJoined(err error) []string {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}

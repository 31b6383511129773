package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/postcurator/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig), 0o644)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	envPath := filepath.Join(configDir, ".env.example")
	wrote, err = writeIfNotExists(envPath, []byte(exampleEnv), 0o600)
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# postcurator configuration

sources:
  newsapi:
    api_token_env: NEWS_API_TOKEN
    categories: ["tech"]
    language: en
    # limit: 3
  rss:
    feeds: []
    # - "https://example.com/feed.xml"
    per_feed: 10
  hn:
    min_points: 0    # e.g. 150 to add Hacker News top stories
    limit: 30
    max_age: 48h

cache:
  path: .postcurator/articles_cache.json
  ttl: 24h

ledger:
  path: .postcurator/processed_articles.json

journal:
  path: .postcurator/journal.db
  retain_days: 90

compose:
  max_post_length: 220
  max_attempts: 3

generate:
  provider: gemini
  # model: gemini-2.0-flash
  api_key_env: GEMINI_API_KEY
  max_tokens: 256
  requests_per_minute: 15
  log_responses: true

publish:
  mode: x            # x or dry-run
  access_token_env: X_ACCESS_TOKEN

run:
  batch_size: 3
  publish_delay: 5s
  refetch_when_exhausted: true

log:
  level: info
  # file: .postcurator/postcurator.log
`

const exampleEnv = `# Copy to .env and fill in. Existing environment variables take precedence.
NEWS_API_TOKEN=
GEMINI_API_KEY=
X_ACCESS_TOKEN=
`

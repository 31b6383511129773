package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir         = ".postcurator"
	DefaultConfigFile        = "config.yaml"
	DefaultCachePath         = ".postcurator/articles_cache.json"
	DefaultLedgerPath        = ".postcurator/processed_articles.json"
	DefaultJournalPath       = ".postcurator/journal.db"
	DefaultCacheTTL          = 24 * time.Hour
	DefaultRetainDays        = 90
	DefaultMaxPostLength     = 220
	DefaultMaxAttempts       = 3
	DefaultProvider          = "gemini"
	DefaultMaxTokens         = 256
	DefaultRequestsPerMinute = 15
	DefaultPublishMode       = "x"
	DefaultBatchSize         = 3
	DefaultPublishDelay      = 5 * time.Second
	DefaultLogLevel          = "info"
	DefaultNewsAPILanguage   = "en"
	DefaultNewsAPICategory   = "tech"
)

// Duration wraps time.Duration for YAML unmarshaling from strings like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Sources  SourcesConfig  `yaml:"sources"`
	Cache    CacheConfig    `yaml:"cache"`
	Ledger   LedgerConfig   `yaml:"ledger"`
	Journal  JournalConfig  `yaml:"journal"`
	Compose  ComposeConfig  `yaml:"compose"`
	Generate GenerateConfig `yaml:"generate"`
	Publish  PublishConfig  `yaml:"publish"`
	Run      RunConfig      `yaml:"run"`
	Log      LogConfig      `yaml:"log"`
}

type SourcesConfig struct {
	NewsAPI NewsAPIConfig `yaml:"newsapi"`
	RSS     RSSConfig     `yaml:"rss"`
	HN      HNConfig      `yaml:"hn"`
}

type NewsAPIConfig struct {
	APITokenEnv string   `yaml:"api_token_env"`
	Categories  []string `yaml:"categories"`
	Language    string   `yaml:"language"`
	Limit       int      `yaml:"limit"`

	// Resolved from env var at load time.
	APIToken string `yaml:"-"`
}

// Enabled reports whether the News API source is configured.
func (n NewsAPIConfig) Enabled() bool {
	return n.APITokenEnv != ""
}

type RSSConfig struct {
	Feeds   []string `yaml:"feeds"`
	PerFeed int      `yaml:"per_feed"`
}

// HNConfig selects Hacker News top stories. A zero MinPoints disables it.
type HNConfig struct {
	MinPoints int      `yaml:"min_points"`
	Limit     int      `yaml:"limit"`
	MaxAge    Duration `yaml:"max_age"`
}

// Enabled reports whether the Hacker News source is configured.
func (h HNConfig) Enabled() bool {
	return h.MinPoints > 0
}

type CacheConfig struct {
	Path string   `yaml:"path"`
	TTL  Duration `yaml:"ttl"`
}

type LedgerConfig struct {
	Path string `yaml:"path"`
}

type JournalConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type ComposeConfig struct {
	MaxPostLength int `yaml:"max_post_length"`
	MaxAttempts   int `yaml:"max_attempts"`
}

type GenerateConfig struct {
	Provider          string `yaml:"provider"`
	Model             string `yaml:"model"`
	Endpoint          string `yaml:"endpoint"`
	APIKeyEnv         string `yaml:"api_key_env"`
	MaxTokens         int    `yaml:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	LogResponses      bool   `yaml:"log_responses"`

	// Resolved from env var at load time.
	APIKey string `yaml:"-"`
}

type PublishConfig struct {
	Mode           string `yaml:"mode"`
	AccessTokenEnv string `yaml:"access_token_env"`
	Endpoint       string `yaml:"endpoint"`

	// Resolved from env var at load time.
	AccessToken string `yaml:"-"`
}

type RunConfig struct {
	BatchSize            int      `yaml:"batch_size"`
	PublishDelay         *Duration `yaml:"publish_delay"`
	RefetchWhenExhausted *bool     `yaml:"refetch_when_exhausted"`
}

// Delay returns the pause between posts. An explicit 0s disables it.
func (r RunConfig) Delay() time.Duration {
	if r.PublishDelay == nil {
		return DefaultPublishDelay
	}
	return r.PublishDelay.Duration
}

// Refetch reports whether an exhausted snapshot forces one refresh.
func (r RunConfig) Refetch() bool {
	return r.RefetchWhenExhausted == nil || *r.RefetchWhenExhausted
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads config.yaml from dir, applies defaults, resolves env vars, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	resolveEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadEnvFiles loads .env from the working directory and from each of dirs.
// Variables already set in the process environment are not overridden.
// Returns the files that were loaded.
func LoadEnvFiles(dirs ...string) ([]string, error) {
	candidates := []string{".env"}
	for _, d := range dirs {
		if strings.TrimSpace(d) != "" {
			candidates = append(candidates, filepath.Join(d, ".env"))
		}
	}

	seen := make(map[string]bool)
	var loaded []string
	for _, file := range candidates {
		abs, err := filepath.Abs(file)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return loaded, fmt.Errorf("load %s: %w", file, err)
		}
		loaded = append(loaded, file)
	}
	return loaded, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sources.NewsAPI.Enabled() && cfg.Sources.NewsAPI.Language == "" {
		cfg.Sources.NewsAPI.Language = DefaultNewsAPILanguage
	}
	if cfg.Sources.NewsAPI.Enabled() && len(cfg.Sources.NewsAPI.Categories) == 0 {
		cfg.Sources.NewsAPI.Categories = []string{DefaultNewsAPICategory}
	}
	if cfg.Cache.Path == "" {
		cfg.Cache.Path = DefaultCachePath
	}
	if cfg.Cache.TTL.Duration == 0 {
		cfg.Cache.TTL.Duration = DefaultCacheTTL
	}
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = DefaultLedgerPath
	}
	if cfg.Journal.Path == "" {
		cfg.Journal.Path = DefaultJournalPath
	}
	if cfg.Journal.RetainDays == 0 {
		cfg.Journal.RetainDays = DefaultRetainDays
	}
	if cfg.Compose.MaxPostLength == 0 {
		cfg.Compose.MaxPostLength = DefaultMaxPostLength
	}
	if cfg.Compose.MaxAttempts == 0 {
		cfg.Compose.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Generate.Provider == "" {
		cfg.Generate.Provider = DefaultProvider
	}
	if cfg.Generate.MaxTokens == 0 {
		cfg.Generate.MaxTokens = DefaultMaxTokens
	}
	if cfg.Generate.RequestsPerMinute == 0 {
		cfg.Generate.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if cfg.Publish.Mode == "" {
		cfg.Publish.Mode = DefaultPublishMode
	}
	if cfg.Run.BatchSize == 0 {
		cfg.Run.BatchSize = DefaultBatchSize
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
}

func resolveEnv(cfg *Config) {
	if cfg.Sources.NewsAPI.APITokenEnv != "" {
		cfg.Sources.NewsAPI.APIToken = os.Getenv(cfg.Sources.NewsAPI.APITokenEnv)
	}
	if cfg.Generate.APIKeyEnv != "" {
		cfg.Generate.APIKey = os.Getenv(cfg.Generate.APIKeyEnv)
	}
	if cfg.Publish.AccessTokenEnv != "" {
		cfg.Publish.AccessToken = os.Getenv(cfg.Publish.AccessTokenEnv)
	}
}

func validate(cfg *Config) error {
	if !cfg.Sources.NewsAPI.Enabled() && len(cfg.Sources.RSS.Feeds) == 0 && !cfg.Sources.HN.Enabled() {
		return errors.New("sources: at least one source must be configured")
	}
	if cfg.Sources.NewsAPI.Limit < 0 {
		return fmt.Errorf("sources.newsapi.limit: must not be negative, got %d", cfg.Sources.NewsAPI.Limit)
	}
	if cfg.Sources.RSS.PerFeed < 0 {
		return fmt.Errorf("sources.rss.per_feed: must not be negative, got %d", cfg.Sources.RSS.PerFeed)
	}
	if cfg.Sources.HN.MinPoints < 0 {
		return fmt.Errorf("sources.hn.min_points: must not be negative, got %d", cfg.Sources.HN.MinPoints)
	}
	if cfg.Sources.HN.Limit < 0 {
		return fmt.Errorf("sources.hn.limit: must not be negative, got %d", cfg.Sources.HN.Limit)
	}
	if cfg.Cache.TTL.Duration < 0 {
		return fmt.Errorf("cache.ttl: must be positive, got %s", cfg.Cache.TTL.Duration)
	}
	if cfg.Compose.MaxPostLength < 0 {
		return fmt.Errorf("compose.max_post_length: must be positive, got %d", cfg.Compose.MaxPostLength)
	}
	if cfg.Compose.MaxAttempts < 0 {
		return fmt.Errorf("compose.max_attempts: must be positive, got %d", cfg.Compose.MaxAttempts)
	}
	if cfg.Run.BatchSize < 0 {
		return fmt.Errorf("run.batch_size: must be positive, got %d", cfg.Run.BatchSize)
	}
	if cfg.Run.Delay() < 0 {
		return fmt.Errorf("run.publish_delay: must not be negative, got %s", cfg.Run.Delay())
	}

	switch cfg.Generate.Provider {
	case "gemini", "openai":
		// valid
	default:
		return fmt.Errorf("generate.provider: unknown provider %q (want gemini or openai)", cfg.Generate.Provider)
	}

	switch cfg.Publish.Mode {
	case "x", "dry-run":
		// valid
	default:
		return fmt.Errorf("publish.mode: unknown mode %q (want x or dry-run)", cfg.Publish.Mode)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level: unknown level %q (want debug, info, warn or error)", cfg.Log.Level)
	}

	return nil
}

// CheckCredentials reports every secret the run needs that did not resolve.
// Publishing credentials are skipped for dry runs.
func (c *Config) CheckCredentials(dryRun bool) error {
	var errs []error
	if c.Sources.NewsAPI.Enabled() && c.Sources.NewsAPI.APIToken == "" {
		errs = append(errs, fmt.Errorf("sources.newsapi: env %s is not set", c.Sources.NewsAPI.APITokenEnv))
	}
	if c.Generate.APIKeyEnv == "" {
		errs = append(errs, errors.New("generate.api_key_env is required"))
	} else if c.Generate.APIKey == "" {
		errs = append(errs, fmt.Errorf("generate: env %s is not set", c.Generate.APIKeyEnv))
	}
	if !dryRun && c.Publish.Mode == "x" {
		if c.Publish.AccessTokenEnv == "" {
			errs = append(errs, errors.New("publish.access_token_env is required"))
		} else if c.Publish.AccessToken == "" {
			errs = append(errs, fmt.Errorf("publish: env %s is not set", c.Publish.AccessTokenEnv))
		}
	}
	return errors.Join(errs...)
}

// DryRun reports whether posts are printed instead of published.
func (c *Config) DryRun() bool {
	return c.Publish.Mode == "dry-run"
}

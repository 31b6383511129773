// Package curate runs one pass of the curation pipeline: pick unprocessed
// articles, draft and compose posts, publish them and record the result.
package curate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"

	"github.com/ppiankov/postcurator/internal/cache"
	"github.com/ppiankov/postcurator/internal/compose"
	"github.com/ppiankov/postcurator/internal/generate"
	"github.com/ppiankov/postcurator/internal/publish"
	"github.com/ppiankov/postcurator/internal/source"
	"github.com/ppiankov/postcurator/internal/store"
)

const (
	DefaultBatchSize    = 3
	DefaultMaxAttempts  = 3
	DefaultPublishDelay = 5 * time.Second
)

// ArticleCache serves the current article snapshot.
type ArticleCache interface {
	Load(ctx context.Context) []source.Article
	Refresh(ctx context.Context) []source.Article
	Unprocessed(ledger cache.Ledger) []source.Article
	Persist() error
	Fetched() bool
	LastFetchErr() error
}

// Ledger is the processed-article set.
type Ledger interface {
	Contains(url string) bool
	Record(a source.Article) error
}

// Journal stores generation attempts and publications.
type Journal interface {
	RecordGeneration(ctx context.Context, g store.Generation) (int64, error)
	RecordPublication(ctx context.Context, p store.Publication) (int64, error)
}

// Config holds per-run limits.
type Config struct {
	BatchSize            int
	MaxAttempts          int
	PublishDelay         time.Duration
	RefetchWhenExhausted bool
	// LogResponses keeps prompt and response text in the journal.
	LogResponses bool
}

// Deps are the pipeline's collaborators. Journal and Logger are optional.
type Deps struct {
	Cache     ArticleCache
	Ledger    Ledger
	Composer  *compose.Composer
	Generator generate.Generator
	Publisher publish.Publisher
	Journal   Journal
	Logger    *log.Logger
}

// Posted is one article that was published during a run.
type Posted struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Text     string `json:"text"`
	PostID   string `json:"post_id"`
	Attempts int    `json:"attempts"`
}

// Result summarizes a run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    bool
	Candidates int
	Attempted  int
	Posted     []Posted
	Failures   []*Failure
}

// FailureCount returns how many failures of kind k the run saw.
func (r Result) FailureCount(k Kind) int {
	n := 0
	for _, f := range r.Failures {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// Pipeline processes a bounded batch of candidates per run.
type Pipeline struct {
	cfg  Config
	deps Deps

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// New validates deps and fills config defaults.
func New(cfg Config, deps Deps) (*Pipeline, error) {
	switch {
	case deps.Cache == nil:
		return nil, errors.New("curate: cache is required")
	case deps.Ledger == nil:
		return nil, errors.New("curate: ledger is required")
	case deps.Composer == nil:
		return nil, errors.New("curate: composer is required")
	case deps.Generator == nil:
		return nil, errors.New("curate: generator is required")
	case deps.Publisher == nil:
		return nil, errors.New("curate: publisher is required")
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PublishDelay < 0 {
		cfg.PublishDelay = 0
	}
	return &Pipeline{cfg: cfg, deps: deps, sleep: sleepContext, now: time.Now}, nil
}

// Run executes one pass. Per-article failures are collected in the result and
// never stop the batch. The returned error is non-nil only when ctx ended the
// run early; the cache is persisted either way once candidates were found.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	res := Result{RunID: uuid.NewString(), StartedAt: p.now()}
	logger := p.deps.Logger.With("run", res.RunID[:8])
	logger.Info("starting article processing")

	p.deps.Cache.Load(ctx)
	res.Fetched = p.deps.Cache.Fetched()
	p.noteFetch(&res, logger)

	candidates := p.deps.Cache.Unprocessed(p.deps.Ledger)
	if len(candidates) == 0 && p.cfg.RefetchWhenExhausted && !res.Fetched {
		logger.Info("no unprocessed articles in cache, fetching fresh articles")
		p.deps.Cache.Refresh(ctx)
		res.Fetched = true
		p.noteFetch(&res, logger)
		candidates = p.deps.Cache.Unprocessed(p.deps.Ledger)
	}
	res.Candidates = len(candidates)

	if len(candidates) == 0 {
		logger.Warn("no unprocessed articles")
		res.FinishedAt = p.now()
		return res, nil
	}

	batch := candidates[:min(p.cfg.BatchSize, len(candidates))]
	var runErr error
	for i, a := range batch {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		logger.Info("processing article", "n", fmt.Sprintf("%d/%d", i+1, len(batch)), "title", truncateForLog(a.Title))
		res.Attempted++

		posted, ok := p.process(ctx, logger, res.RunID, a, &res)
		if !ok {
			continue
		}
		res.Posted = append(res.Posted, posted)

		if i < len(batch)-1 && p.cfg.PublishDelay > 0 {
			if err := p.sleep(ctx, p.cfg.PublishDelay); err != nil {
				runErr = err
				break
			}
		}
	}

	if err := p.deps.Cache.Persist(); err != nil {
		p.fail(&res, logger, KindPersistence, "", fmt.Errorf("persist cache: %w", err))
	}

	res.FinishedAt = p.now()
	logger.Info("completed processing", "posted", len(res.Posted), "failed", len(res.Failures), "candidates", res.Candidates)
	return res, runErr
}

// process composes and publishes one article. It reports false when the
// article must stay a candidate.
func (p *Pipeline) process(ctx context.Context, logger *log.Logger, runID string, a source.Article, res *Result) (Posted, bool) {
	post, attempts, err := p.compose(ctx, logger, runID, a)
	if err != nil {
		p.fail(res, logger, composeKind(err), a.URL, err)
		return Posted{}, false
	}

	text := post.Text()
	receipt, err := p.deps.Publisher.Publish(ctx, text)
	if err != nil {
		p.fail(res, logger, KindPublish, a.URL, err)
		return Posted{}, false
	}
	logger.Info("published post", "publisher", p.deps.Publisher.Name(), "id", receipt.ID, "chars", len(text))

	if err := p.deps.Ledger.Record(a); err != nil {
		p.fail(res, logger, KindPersistence, a.URL, fmt.Errorf("record processed: %w", err))
	}
	if p.deps.Journal != nil {
		if _, err := p.deps.Journal.RecordPublication(ctx, store.Publication{
			RunID:        runID,
			ArticleURL:   a.URL,
			ArticleTitle: a.Title,
			Publisher:    p.deps.Publisher.Name(),
			PostID:       receipt.ID,
			Text:         text,
			PublishedAt:  p.now(),
		}); err != nil {
			logger.Warn("journal publication", "kind", KindPersistence, "url", a.URL, "err", err)
		}
	}

	return Posted{
		Title:    a.Title,
		URL:      a.URL,
		Text:     text,
		PostID:   receipt.ID,
		Attempts: attempts,
	}, true
}

// compose drafts and composes a post, generating a fresh draft while the
// composer reports the content too long, up to MaxAttempts calls.
func (p *Pipeline) compose(ctx context.Context, logger *log.Logger, runID string, a source.Article) (compose.Post, int, error) {
	policy := retrypolicy.NewBuilder[compose.Post]().
		WithMaxAttempts(p.cfg.MaxAttempts).
		HandleIf(func(_ compose.Post, err error) bool {
			return errors.Is(err, compose.ErrContentTooLong)
		}).
		ReturnLastFailure().
		Build()

	attempt := 0
	post, err := failsafe.With(policy).WithContext(ctx).Get(func() (compose.Post, error) {
		attempt++
		draft, err := p.deps.Generator.Generate(ctx, a)
		if err != nil {
			p.journalGeneration(ctx, logger, runID, a, attempt, draft, err)
			return compose.Post{}, fmt.Errorf("generate: %w", err)
		}

		post, err := p.deps.Composer.Compose(compose.CleanDraft(draft.Text), a.URL)
		p.journalGeneration(ctx, logger, runID, a, attempt, draft, err)
		if err != nil {
			logger.Warn("draft does not fit, regenerating", "url", a.URL, "attempt", attempt, "chars", len(draft.Text))
			return compose.Post{}, err
		}
		return post, nil
	})
	return post, attempt, err
}

func (p *Pipeline) journalGeneration(ctx context.Context, logger *log.Logger, runID string, a source.Article, attempt int, d generate.Draft, genErr error) {
	if p.deps.Journal == nil {
		return
	}
	g := store.Generation{
		RunID:          runID,
		ArticleURL:     a.URL,
		ArticleTitle:   a.Title,
		Attempt:        attempt,
		Model:          d.Model,
		ResponseLength: len(d.Text),
		CreatedAt:      p.now(),
	}
	if p.cfg.LogResponses {
		g.Prompt = d.Prompt
		g.Response = d.Text
	}
	if genErr != nil {
		g.Error = genErr.Error()
	}
	if _, err := p.deps.Journal.RecordGeneration(ctx, g); err != nil {
		logger.Warn("journal generation", "kind", KindPersistence, "url", a.URL, "err", err)
	}
}

func (p *Pipeline) noteFetch(res *Result, logger *log.Logger) {
	if err := p.deps.Cache.LastFetchErr(); err != nil && p.deps.Cache.Fetched() {
		res.Failures = append(res.Failures, &Failure{Kind: KindFetch, Err: err})
		logger.Warn("continuing without fresh articles", "kind", KindFetch)
	}
}

func (p *Pipeline) fail(res *Result, logger *log.Logger, kind Kind, url string, err error) {
	res.Failures = append(res.Failures, &Failure{Kind: kind, URL: url, Err: err})
	logger.Error("article failed", "kind", kind, "url", url, "err", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncateForLog(s string) string {
	const n = 50
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	hnSourceName     = "hn"
	hnPublisherName  = "Hacker News"
	hnAPIBase        = "https://hacker-news.firebaseio.com/v0"
	hnFetchTimeout   = 30 * time.Second
	hnMaxScanned     = 100
	hnMaxWorkers     = 5
	hnDefaultLimit   = 30
	hnMinPointsFloor = 1
)

// HNOptions filters Hacker News top stories.
type HNOptions struct {
	// MinPoints drops stories scored below it. Must be at least 1.
	MinPoints int
	// Limit caps the number of returned articles (0 means 30).
	Limit int
	// MaxAge drops stories posted longer ago (0 keeps all).
	MaxAge time.Duration
}

// HNSource fetches top stories from Hacker News via the Firebase API.
type HNSource struct {
	opts   HNOptions
	client *http.Client
	now    func() time.Time
}

// NewHN creates a Hacker News fetcher.
func NewHN(opts HNOptions) (*HNSource, error) {
	if opts.MinPoints < hnMinPointsFloor {
		return nil, errors.New("hn: min_points must be at least 1")
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("hn: limit must not be negative, got %d", opts.Limit)
	}
	if opts.Limit == 0 {
		opts.Limit = hnDefaultLimit
	}
	return &HNSource{
		opts:   opts,
		client: &http.Client{Timeout: hnFetchTimeout},
		now:    time.Now,
	}, nil
}

func (h *HNSource) Name() string {
	return hnSourceName
}

// hnItem represents a Hacker News story from the API.
type hnItem struct {
	ID    int    `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Score int    `json:"score"`
	Time  int64  `json:"time"`
	Dead  bool   `json:"dead"`
}

// hnAPIBaseURL allows tests to override the API endpoint.
var hnAPIBaseURL = hnAPIBase

// Fetch returns qualifying stories in front-page rank order. Items that fail
// to load are skipped; the fetch fails only when the story list itself or
// every item fails.
func (h *HNSource) Fetch(ctx context.Context) ([]Article, error) {
	ids, err := h.fetchTopStories(ctx)
	if err != nil {
		return nil, fmt.Errorf("hn: fetch top stories: %w", err)
	}
	if len(ids) > hnMaxScanned {
		ids = ids[:hnMaxScanned]
	}
	if len(ids) == 0 {
		return nil, nil
	}

	type result struct {
		item *hnItem
		err  error
	}
	results := make([]result, len(ids))

	jobs := make(chan int, len(ids))
	workers := min(hnMaxWorkers, len(ids))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				item, err := h.fetchItem(ctx, ids[i])
				results[i] = result{item: item, err: err}
			}
		}()
	}
	for i := range ids {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var (
		articles []Article
		errs     []error
	)
	cutoff := time.Time{}
	if h.opts.MaxAge > 0 {
		cutoff = h.now().Add(-h.opts.MaxAge)
	}
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		if len(articles) >= h.opts.Limit {
			continue
		}
		a, ok := h.article(r.item, cutoff)
		if !ok {
			continue
		}
		articles = append(articles, a)
	}
	if len(errs) == len(ids) {
		return nil, fmt.Errorf("hn: all items failed: %w", errors.Join(errs...))
	}
	return articles, nil
}

// article converts a story, dropping jobs, polls, dead items, low scores,
// text-only posts and stories older than cutoff.
func (h *HNSource) article(item *hnItem, cutoff time.Time) (Article, bool) {
	if item == nil || item.Type != "story" || item.Dead || item.Score < h.opts.MinPoints {
		return Article{}, false
	}
	posted := time.Unix(item.Time, 0).UTC()
	if !cutoff.IsZero() && posted.Before(cutoff) {
		return Article{}, false
	}
	return Normalize(Article{
		Title:       item.Title,
		URL:         item.URL,
		Source:      Publisher{Name: hnPublisherName},
		PublishedAt: &posted,
	})
}

func (h *HNSource) fetchTopStories(ctx context.Context) ([]int, error) {
	body, err := getWithRetry(ctx, h.client, hnAPIBaseURL+"/topstories.json")
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("decode top stories: %w", err)
	}
	return ids, nil
}

func (h *HNSource) fetchItem(ctx context.Context, id int) (*hnItem, error) {
	body, err := getWithRetry(ctx, h.client, fmt.Sprintf("%s/item/%d.json", hnAPIBaseURL, id))
	if err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}
	// A deleted item decodes from "null".
	var item *hnItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("item %d: %w", id, err)
	}
	return item, nil
}

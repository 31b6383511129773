package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

const (
	rssSourceName   = "rss"
	rssFetchTimeout = 30 * time.Second
	rssMaxWorkers   = 10
	rssDomainDelay  = 3 * time.Second
)

// RSSSource fetches articles from RSS/Atom feeds.
type RSSSource struct {
	feeds   []string
	perFeed int
	client  *http.Client
}

// NewRSS creates an RSS/Atom fetcher. perFeed caps items taken from each feed
// (0 means no cap).
func NewRSS(feeds []string, perFeed int) (*RSSSource, error) {
	if len(feeds) == 0 {
		return nil, errors.New("rss: at least one feed URL is required")
	}
	return &RSSSource{
		feeds:   feeds,
		perFeed: perFeed,
		client:  &http.Client{Timeout: rssFetchTimeout},
	}, nil
}

func (rs *RSSSource) Name() string {
	return rssSourceName
}

// rssSleepFunc spaces out requests to the same host. Tests override it.
var rssSleepFunc = time.Sleep

// Fetch reads every feed and returns items in feed configuration order.
// Individual feed failures are skipped; an error is returned only when
// every feed failed.
func (rs *RSSSource) Fetch(ctx context.Context) ([]Article, error) {
	type result struct {
		articles []Article
		err      error
	}
	results := make([]result, len(rs.feeds))

	// Same-domain feeds are serialized so one host is not hammered.
	domainFeeds := make(map[string][]int)
	var domains []string
	for i, feedURL := range rs.feeds {
		d := feedDomain(feedURL)
		if _, ok := domainFeeds[d]; !ok {
			domains = append(domains, d)
		}
		domainFeeds[d] = append(domainFeeds[d], i)
	}

	jobs := make(chan []int, len(domains))
	workers := min(rssMaxWorkers, len(domains))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idxs := range jobs {
				for n, i := range idxs {
					if n > 0 {
						rssSleepFunc(rssDomainDelay)
					}
					articles, err := rs.fetchFeed(ctx, rs.feeds[i])
					results[i] = result{articles: articles, err: err}
				}
			}
		}()
	}
	for _, d := range domains {
		jobs <- domainFeeds[d]
	}
	close(jobs)
	wg.Wait()

	var (
		articles []Article
		errs     []error
	)
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		articles = append(articles, r.articles...)
	}
	if len(errs) == len(rs.feeds) {
		return nil, fmt.Errorf("rss: all feeds failed: %w", errors.Join(errs...))
	}
	return articles, nil
}

// feedDomain extracts the host from a feed URL for request grouping.
func feedDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil || u.Host == "" {
		return feedURL
	}
	return u.Host
}

func (rs *RSSSource) fetchFeed(ctx context.Context, feedURL string) ([]Article, error) {
	body, err := getWithRetry(ctx, rs.client, feedURL)
	if err != nil {
		return nil, fmt.Errorf("rss: %w", err)
	}
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rss: parse %s: %w", feedURL, err)
	}
	return articlesFromFeed(feed, feedURL, rs.perFeed), nil
}

func articlesFromFeed(feed *gofeed.Feed, feedURL string, limit int) []Article {
	var articles []Article
	for _, item := range feed.Items {
		if limit > 0 && len(articles) >= limit {
			break
		}
		a, ok := Normalize(Article{
			Title:       htmlText(item.Title),
			Description: htmlText(item.Description),
			URL:         item.Link,
			Source:      Publisher{Name: feedLabel(feed, feedURL)},
			PublishedAt: itemPublishedTime(item),
		})
		if !ok {
			continue
		}
		articles = append(articles, a)
	}
	return articles
}

func itemPublishedTime(item *gofeed.Item) *time.Time {
	var ts *time.Time
	switch {
	case item.PublishedParsed != nil:
		ts = item.PublishedParsed
	case item.UpdatedParsed != nil:
		ts = item.UpdatedParsed
	default:
		return nil
	}
	utc := ts.UTC()
	return &utc
}

func feedLabel(feed *gofeed.Feed, feedURL string) string {
	if feed.Title != "" {
		return feed.Title
	}
	return feedDomain(feedURL)
}

// htmlText flattens an HTML fragment to single-spaced plain text.
func htmlText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

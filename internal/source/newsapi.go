package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	newsAPISourceName   = "newsapi"
	newsAPIEndpoint     = "https://api.thenewsapi.com/v1/news/all"
	newsAPIFetchTimeout = 30 * time.Second
)

// NewsAPIOptions selects which articles The News API returns.
type NewsAPIOptions struct {
	Token      string
	Categories []string
	Language   string
	Limit      int
}

// NewsAPISource fetches the latest articles from The News API (thenewsapi.com).
type NewsAPISource struct {
	opts     NewsAPIOptions
	endpoint string
	client   *http.Client
}

// NewNewsAPI creates a News API fetcher. A token is required.
func NewNewsAPI(opts NewsAPIOptions) (*NewsAPISource, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("newsapi: api token is required")
	}
	if opts.Limit < 0 {
		return nil, fmt.Errorf("newsapi: limit must not be negative, got %d", opts.Limit)
	}
	return &NewsAPISource{
		opts:     opts,
		endpoint: newsAPIEndpoint,
		client:   &http.Client{Timeout: newsAPIFetchTimeout},
	}, nil
}

func (n *NewsAPISource) Name() string {
	return newsAPISourceName
}

type newsAPIResponse struct {
	Data []newsAPIArticle `json:"data"`
}

type newsAPIArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
}

func (n *NewsAPISource) Fetch(ctx context.Context) ([]Article, error) {
	body, err := getWithRetry(ctx, n.client, n.requestURL())
	if err != nil {
		return nil, fmt.Errorf("newsapi: %w", err)
	}

	var resp newsAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("newsapi: decode response: %w", err)
	}

	articles := make([]Article, 0, len(resp.Data))
	for _, raw := range resp.Data {
		a, ok := Normalize(Article{
			Title:       raw.Title,
			Description: raw.Description,
			URL:         raw.URL,
			Source:      Publisher{Name: raw.Source},
			PublishedAt: parsePublished(raw.PublishedAt),
		})
		if !ok {
			continue
		}
		articles = append(articles, a)
	}
	return articles, nil
}

func (n *NewsAPISource) requestURL() string {
	q := url.Values{}
	q.Set("api_token", n.opts.Token)
	if len(n.opts.Categories) > 0 {
		q.Set("categories", strings.Join(n.opts.Categories, ","))
	}
	if n.opts.Language != "" {
		q.Set("language", n.opts.Language)
	}
	if n.opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(n.opts.Limit))
	}
	return n.endpoint + "?" + q.Encode()
}

// parsePublished accepts RFC 3339 timestamps with or without fractional
// seconds. Unparseable values are dropped since the field is optional.
func parsePublished(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}

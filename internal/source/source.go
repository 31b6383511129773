package source

import (
	"context"
	"strings"
	"time"
)

// DefaultSourceName is used when a fetcher cannot tell who published an article.
const DefaultSourceName = "News Source"

// Article is a normalized news article. Identity is the URL.
type Article struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	Source      Publisher  `json:"source"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Publisher names the outlet an article came from.
type Publisher struct {
	Name string `json:"name"`
}

// SourceName returns the outlet name, or DefaultSourceName when it is blank.
func (a Article) SourceName() string {
	if name := strings.TrimSpace(a.Source.Name); name != "" {
		return name
	}
	return DefaultSourceName
}

// Fetcher retrieves a batch of candidate articles.
type Fetcher interface {
	// Name returns the fetcher identifier (e.g. "newsapi").
	Name() string

	// Fetch returns the current batch of articles in source order.
	Fetch(ctx context.Context) ([]Article, error)
}

// Normalize trims text fields and fills in a default source name. It reports
// false when the record lacks a title or URL and must be dropped.
func Normalize(a Article) (Article, bool) {
	a.Title = strings.TrimSpace(a.Title)
	a.URL = strings.TrimSpace(a.URL)
	a.Description = strings.TrimSpace(a.Description)
	a.Source.Name = strings.TrimSpace(a.Source.Name)

	if a.Title == "" || a.URL == "" {
		return Article{}, false
	}
	if a.Source.Name == "" {
		a.Source.Name = DefaultSourceName
	}
	return a, true
}

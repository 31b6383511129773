// Package generate drafts post text for an article with a hosted language
// model.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/postcurator/internal/source"
)

const (
	httpTimeout      = 60 * time.Second
	defaultMaxTokens = 256
	maxErrorBody     = 512
)

var (
	// ErrNotConfigured is returned when a provider has no API key.
	ErrNotConfigured = errors.New("generator not configured")
	// ErrEmptyResponse is returned when the model answered with no text.
	ErrEmptyResponse = errors.New("empty response from model")
)

// Draft is one raw model answer together with the prompt that produced it.
type Draft struct {
	Text   string
	Prompt string
	Model  string
}

// Generator produces a draft post for an article. Implementations return the
// prompt in the Draft even when err is non-nil so callers can log it.
type Generator interface {
	Name() string
	Generate(ctx context.Context, a source.Article) (Draft, error)
}

// Options configures a provider.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int
	// Endpoint overrides the provider's API base URL.
	Endpoint string
	// PostLength is the length limit stated in the prompt.
	PostLength int
}

// New returns the generator for provider ("gemini" or "openai").
func New(provider string, opts Options) (Generator, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	switch strings.ToLower(provider) {
	case "gemini", "":
		return NewGemini(opts), nil
	case "openai":
		return NewOpenAI(opts), nil
	default:
		return nil, fmt.Errorf("unknown generate provider %q (supported: gemini, openai)", provider)
	}
}

// APIError is a non-200 answer from a model endpoint.
type APIError struct {
	Provider string
	Code     int
	Body     string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: api returned status %d", e.Provider, e.Code)
	}
	return fmt.Sprintf("%s: api returned status %d: %s", e.Provider, e.Code, e.Body)
}

func errorBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}

// BuildPrompt asks for a single post about a that stays under maxLen
// characters.
func BuildPrompt(a source.Article, maxLen int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a tweet about this tech news (max %d chars):\n", maxLen)
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	fmt.Fprintf(&b, "Source: %s\n", a.SourceName())
	if a.Description != "" {
		fmt.Fprintf(&b, "Summary: %s\n", a.Description)
	}
	b.WriteString("\nMust include:\n")
	b.WriteString("- 1 emoji\n")
	b.WriteString("- Key insight\n")
	b.WriteString("- Source attribution\n")
	b.WriteString("- 1 hashtag\n")
	fmt.Fprintf(&b, "- Under %d chars\n", maxLen)
	b.WriteString("\nReturn only the tweet text, without the article link.")
	return b.String()
}

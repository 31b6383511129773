package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ppiankov/postcurator/internal/compose"
	"github.com/ppiankov/postcurator/internal/source"
)

const (
	geminiEndpoint     = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-2.0-flash"
)

// Gemini calls the Gemini generateContent API.
type Gemini struct {
	apiKey     string
	model      string
	maxTokens  int
	postLength int
	endpoint   string
	client     *http.Client
}

// NewGemini creates a Gemini generator. An empty model selects the default.
func NewGemini(opts Options) *Gemini {
	g := &Gemini{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		postLength: opts.PostLength,
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		client:     &http.Client{Timeout: httpTimeout},
	}
	if g.model == "" {
		g.model = geminiDefaultModel
	}
	if g.endpoint == "" {
		g.endpoint = geminiEndpoint
	}
	if g.maxTokens <= 0 {
		g.maxTokens = defaultMaxTokens
	}
	if g.postLength <= 0 {
		g.postLength = compose.DefaultMaxPostLength
	}
	return g
}

func (g *Gemini) Name() string {
	return "gemini"
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		MaxOutputTokens int `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	ModelVersion string `json:"modelVersion"`
}

func (g *Gemini) Generate(ctx context.Context, a source.Article) (Draft, error) {
	prompt := BuildPrompt(a, g.postLength)
	draft := Draft{Prompt: prompt, Model: g.model}
	if g.apiKey == "" {
		return draft, fmt.Errorf("gemini: %w", ErrNotConfigured)
	}

	var reqBody geminiRequest
	reqBody.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	reqBody.GenerationConfig.MaxOutputTokens = g.maxTokens

	body, err := json.Marshal(reqBody)
	if err != nil {
		return draft, fmt.Errorf("gemini: marshal request: %w", err)
	}

	target := g.endpoint + "/models/" + url.PathEscape(g.model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return draft, fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return draft, fmt.Errorf("gemini: http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return draft, fmt.Errorf("gemini: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return draft, &APIError{Provider: "gemini", Code: resp.StatusCode, Body: errorBody(respBody)}
	}

	var result geminiResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return draft, fmt.Errorf("gemini: decode response: %w", err)
	}
	if result.ModelVersion != "" {
		draft.Model = result.ModelVersion
	}

	var text strings.Builder
	if len(result.Candidates) > 0 {
		for _, p := range result.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	draft.Text = strings.TrimSpace(text.String())
	if draft.Text == "" {
		return draft, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return draft, nil
}

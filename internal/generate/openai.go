package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ppiankov/postcurator/internal/compose"
	"github.com/ppiankov/postcurator/internal/source"
)

const (
	openAIEndpoint     = "https://api.openai.com/v1/chat/completions"
	openAIDefaultModel = "gpt-4o-mini"
	systemPrompt       = "You write short, factual social media posts about technology news. Reply with the post text only."
)

// OpenAI sends prompts to an OpenAI-compatible chat completions API.
type OpenAI struct {
	apiKey     string
	model      string
	maxTokens  int
	postLength int
	endpoint   string
	client     *http.Client
}

// NewOpenAI creates an OpenAI-compatible generator.
func NewOpenAI(opts Options) *OpenAI {
	o := &OpenAI{
		apiKey:     opts.APIKey,
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		postLength: opts.PostLength,
		endpoint:   opts.Endpoint,
		client:     &http.Client{Timeout: httpTimeout},
	}
	if o.model == "" {
		o.model = openAIDefaultModel
	}
	if o.endpoint == "" {
		o.endpoint = openAIEndpoint
	}
	if o.maxTokens <= 0 {
		o.maxTokens = defaultMaxTokens
	}
	if o.postLength <= 0 {
		o.postLength = compose.DefaultMaxPostLength
	}
	return o
}

func (o *OpenAI) Name() string {
	return "openai"
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

func (o *OpenAI) Generate(ctx context.Context, a source.Article) (Draft, error) {
	prompt := BuildPrompt(a, o.postLength)
	draft := Draft{Prompt: prompt, Model: o.model}
	if o.apiKey == "" {
		return draft, fmt.Errorf("openai: %w", ErrNotConfigured)
	}

	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return draft, fmt.Errorf("openai: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(body))
	if err != nil {
		return draft, fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return draft, fmt.Errorf("openai: http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return draft, &APIError{Provider: "openai", Code: resp.StatusCode, Body: errorBody(b)}
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return draft, fmt.Errorf("openai: decode response: %w", err)
	}
	if chatResp.Model != "" {
		draft.Model = chatResp.Model
	}
	if len(chatResp.Choices) == 0 {
		return draft, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}

	draft.Text = strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if draft.Text == "" {
		return draft, fmt.Errorf("openai: %w", ErrEmptyResponse)
	}
	return draft, nil
}

// Package publish sends composed posts to a social platform.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	xEndpoint    = "https://api.x.com/2/tweets"
	httpTimeout  = 30 * time.Second
	maxErrorBody = 512
)

// ErrRejected marks a 4xx answer: the platform refused this post, so sending
// the same text again will not help.
var ErrRejected = errors.New("post rejected")

// Receipt identifies a published post.
type Receipt struct {
	ID string
}

// Publisher publishes one post.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, text string) (Receipt, error)
}

// StatusError is a non-2xx answer from the platform.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Body)
}

// Unwrap maps client errors to ErrRejected.
func (e *StatusError) Unwrap() error {
	if e.Code >= 400 && e.Code < 500 && e.Code != http.StatusTooManyRequests {
		return ErrRejected
	}
	return nil
}

// X posts through the X API v2 create-post endpoint with an OAuth 2.0 user
// access token.
type X struct {
	token    string
	endpoint string
	client   *http.Client
}

// NewX creates an X publisher. An empty endpoint selects the public API.
func NewX(token, endpoint string) (*X, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("x: access token is required")
	}
	if endpoint == "" {
		endpoint = xEndpoint
	}
	return &X{
		token:    token,
		endpoint: endpoint,
		client:   &http.Client{Timeout: httpTimeout},
	}, nil
}

func (x *X) Name() string {
	return "x"
}

type createRequest struct {
	Text string `json:"text"`
}

type createResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (x *X) Publish(ctx context.Context, text string) (Receipt, error) {
	body, err := json.Marshal(createRequest{Text: text})
	if err != nil {
		return Receipt{}, fmt.Errorf("x: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.endpoint, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("x: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+x.token)

	resp, err := x.client.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("x: http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Receipt{}, fmt.Errorf("x: %w", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}

	var created createResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Receipt{}, fmt.Errorf("x: decode response: %w", err)
	}
	if created.Data.ID == "" {
		return Receipt{}, errors.New("x: response has no post id")
	}
	return Receipt{ID: created.Data.ID}, nil
}

// DryRun prints posts instead of publishing them.
type DryRun struct {
	w io.Writer
}

// NewDryRun writes every post to w.
func NewDryRun(w io.Writer) *DryRun {
	return &DryRun{w: w}
}

func (d *DryRun) Name() string {
	return "dry-run"
}

func (d *DryRun) Publish(_ context.Context, text string) (Receipt, error) {
	id := "dry-" + uuid.NewString()[:8]
	if _, err := fmt.Fprintf(d.w, "--- %s (%d chars)\n%s\n\n", id, len(text), text); err != nil {
		return Receipt{}, fmt.Errorf("dry-run: %w", err)
	}
	return Receipt{ID: id}, nil
}

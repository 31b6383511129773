package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	userAgent       = "Mozilla/5.0 (compatible; postcurator/1.0; +https://github.com/ppiankov/postcurator)"
	fetchMaxRetries = 2
	maxBodyBytes    = 8 << 20
)

// retryBackoff is the first retry delay; it doubles up to 4x. Tests shrink it.
var retryBackoff = time.Second

// StatusError reports a non-200 HTTP response from a news endpoint.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Code)
}

// isRetryable retries network errors, 5xx responses and 429s.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	return true
}

// getWithRetry fetches url and returns the response body, retrying transient
// failures with exponential backoff.
func getWithRetry(ctx context.Context, client *http.Client, target string) ([]byte, error) {
	policy := retrypolicy.NewBuilder[[]byte]().
		WithBackoff(retryBackoff, 4*retryBackoff).
		WithMaxRetries(fetchMaxRetries).
		HandleIf(func(_ []byte, err error) bool {
			return isRetryable(err)
		}).
		ReturnLastFailure().
		Build()

	return failsafe.With(policy).WithContext(ctx).Get(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := client.Do(req)
		if err != nil {
			// url.Error embeds the full URL, which may carry an API token.
			var ue *url.Error
			if errors.As(err, &ue) {
				err = ue.Err
			}
			return nil, fmt.Errorf("get %s: %w", redactQuery(target), err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{URL: redactQuery(target), Code: resp.StatusCode}
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	})
}

// redactQuery strips the query string so credentials never reach logs.
func redactQuery(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "<invalid url>"
	}
	u.RawQuery = ""
	return u.String()
}

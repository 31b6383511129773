package generate

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/postcurator/internal/source"
)

// Limited spaces calls to a wrapped generator.
type Limited struct {
	next    Generator
	limiter *rate.Limiter
}

// WithRateLimit allows at most perMinute calls to g per minute. A
// non-positive perMinute disables the limit.
func WithRateLimit(g Generator, perMinute int) *Limited {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &Limited{next: g, limiter: rate.NewLimiter(limit, 1)}
}

func (l *Limited) Name() string {
	return l.next.Name()
}

func (l *Limited) Generate(ctx context.Context, a source.Article) (Draft, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Draft{}, fmt.Errorf("%s: rate limit: %w", l.next.Name(), err)
	}
	return l.next.Generate(ctx, a)
}

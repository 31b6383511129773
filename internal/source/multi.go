package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Multi chains fetchers. Results keep fetcher order and the first occurrence
// of each URL wins.
type Multi struct {
	fetchers []Fetcher
}

// NewMulti combines one or more fetchers.
func NewMulti(fetchers ...Fetcher) (*Multi, error) {
	if len(fetchers) == 0 {
		return nil, errors.New("multi: at least one fetcher is required")
	}
	return &Multi{fetchers: fetchers}, nil
}

func (m *Multi) Name() string {
	names := make([]string, len(m.fetchers))
	for i, f := range m.fetchers {
		names[i] = f.Name()
	}
	return strings.Join(names, "+")
}

// Fetch succeeds when at least one fetcher succeeds.
func (m *Multi) Fetch(ctx context.Context) ([]Article, error) {
	var (
		articles []Article
		errs     []error
	)
	seen := make(map[string]struct{})

	for _, f := range m.fetchers {
		batch, err := f.Fetch(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.Name(), err))
			continue
		}
		for _, a := range batch {
			if _, dup := seen[a.URL]; dup {
				continue
			}
			seen[a.URL] = struct{}{}
			articles = append(articles, a)
		}
	}

	if len(errs) == len(m.fetchers) {
		return nil, errors.Join(errs...)
	}
	return articles, nil
}

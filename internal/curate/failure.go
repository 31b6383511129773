package curate

import (
	"errors"
	"fmt"

	"github.com/ppiankov/postcurator/internal/compose"
)

// Kind classifies a failure within a run.
type Kind string

const (
	KindFetch          Kind = "fetch"
	KindGeneration     Kind = "generation"
	KindContentTooLong Kind = "content_too_long"
	KindPublish        Kind = "publish"
	KindPersistence    Kind = "persistence"
)

// Failure is one isolated failure. URL is empty for failures that are not
// tied to a single article.
type Failure struct {
	Kind Kind
	URL  string
	Err  error
}

func (f *Failure) Error() string {
	if f.URL == "" {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return fmt.Sprintf("%s %s: %v", f.Kind, f.URL, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// composeKind maps a compose stage error to its failure kind.
func composeKind(err error) Kind {
	if errors.Is(err, compose.ErrContentTooLong) {
		return KindContentTooLong
	}
	return KindGeneration
}

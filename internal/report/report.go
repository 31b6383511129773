// Package report renders run results and state summaries for the terminal or
// as JSON.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/postcurator/internal/curate"
	"github.com/ppiankov/postcurator/internal/source"
	"github.com/ppiankov/postcurator/internal/store"
)

// Status is a snapshot of the persisted state.
type Status struct {
	CachePath  string
	CapturedAt time.Time
	CacheAge   time.Duration
	CacheValid bool
	TTL        time.Duration
	Articles   int
	Candidates []source.Article

	LedgerPath    string
	Processed     int
	LastProcessed time.Time

	// Journal is nil when the journal could not be opened.
	Journal *store.Stats
	Since   time.Duration
	Recent  []store.Publication

	// History lists the journaled attempts for HistoryURL, when one was asked for.
	HistoryURL string
	History    []store.Generation
}

// Formatter writes run results and status summaries to w.
type Formatter interface {
	Run(w io.Writer, r curate.Result) error
	Status(w io.Writer, s Status) error
}

// New returns the formatter for format ("terminal" or "json").
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "terminal", "":
		return NewTerminal(color), nil
	case "json":
		return NewJSON(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal or json)", format)
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%dd", hours/24)
	}
	if m := int(d.Minutes()) % 60; m != 0 && hours < 24 {
		return fmt.Sprintf("%dh%dm", hours, m)
	}
	return fmt.Sprintf("%dh", hours)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

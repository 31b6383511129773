package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ppiankov/postcurator/internal/curate"
)

const maxListedCandidates = 10

// TerminalFormatter formats output for a terminal.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// Run writes a run summary: posted articles, then failures.
func (f *TerminalFormatter) Run(w io.Writer, r curate.Result) error {
	header := fmt.Sprintf("postcurator — run %s: %d posted, %d failed, %d candidates",
		shortID(r.RunID), len(r.Posted), len(r.Failures), r.Candidates)
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if r.Candidates == 0 && len(r.Failures) == 0 {
		fmt.Fprintln(w, "No unprocessed articles.")
		return nil
	}

	if len(r.Posted) > 0 {
		fmt.Fprintln(w, f.green(f.bold(fmt.Sprintf("--- Posted (%d) ---", len(r.Posted)))))
		fmt.Fprintln(w)
		for _, p := range r.Posted {
			fmt.Fprintf(w, "  %s %s\n", f.bold("["+p.PostID+"]"), p.Title)
			for _, line := range strings.Split(p.Text, "\n") {
				fmt.Fprintf(w, "      %s\n", f.dim(line))
			}
			if p.Attempts > 1 {
				fmt.Fprintf(w, "      %s\n", f.dim(fmt.Sprintf("%d attempts", p.Attempts)))
			}
			fmt.Fprintln(w)
		}
	}

	if len(r.Failures) > 0 {
		fmt.Fprintln(w, f.yellow(f.bold(fmt.Sprintf("--- Failed (%d) ---", len(r.Failures)))))
		fmt.Fprintln(w)
		for _, fail := range r.Failures {
			target := fail.URL
			if target == "" {
				target = "-"
			}
			fmt.Fprintf(w, "  [%s] %s\n", fail.Kind, target)
			fmt.Fprintf(w, "      %s\n", f.dim(fail.Err.Error()))
		}
		fmt.Fprintln(w)
	}

	if remaining := r.Candidates - r.Attempted; remaining > 0 {
		fmt.Fprintln(w, f.dim(fmt.Sprintf("Remaining: %d candidates for later runs", remaining)))
	}
	return nil
}

// Status writes cache, ledger and journal summaries.
func (f *TerminalFormatter) Status(w io.Writer, s Status) error {
	fmt.Fprintln(w, f.bold("postcurator status"))
	fmt.Fprintln(w)

	fmt.Fprintln(w, f.bold("Cache"))
	fmt.Fprintf(w, "  path:       %s\n", s.CachePath)
	if s.CapturedAt.IsZero() {
		fmt.Fprintln(w, "  snapshot:   none")
	} else {
		state := f.green("valid")
		if !s.CacheValid {
			state = f.yellow("stale")
		}
		fmt.Fprintf(w, "  snapshot:   %s, captured %s (%s ago, ttl %s)\n",
			state, s.CapturedAt.Local().Format(time.DateTime), formatDuration(s.CacheAge), formatDuration(s.TTL))
		fmt.Fprintf(w, "  articles:   %d\n", s.Articles)
		fmt.Fprintf(w, "  candidates: %d\n", len(s.Candidates))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, f.bold("Ledger"))
	fmt.Fprintf(w, "  path:       %s\n", s.LedgerPath)
	fmt.Fprintf(w, "  processed:  %d\n", s.Processed)
	if !s.LastProcessed.IsZero() {
		fmt.Fprintf(w, "  last:       %s\n", s.LastProcessed.Local().Format(time.DateTime))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, f.bold(fmt.Sprintf("Journal (last %s)", formatDuration(s.Since))))
	if s.Journal == nil {
		fmt.Fprintln(w, f.dim("  unavailable"))
	} else {
		fmt.Fprintf(w, "  runs:         %d\n", s.Journal.Runs)
		fmt.Fprintf(w, "  generations:  %d (%d failed)\n", s.Journal.Generations, s.Journal.GenerationErrors)
		fmt.Fprintf(w, "  publications: %d\n", s.Journal.Publications)
		if !s.Journal.LastPublishedAt.IsZero() {
			fmt.Fprintf(w, "  last post:    %s\n", s.Journal.LastPublishedAt.Local().Format(time.DateTime))
		}
	}

	if len(s.Candidates) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, f.bold(fmt.Sprintf("--- Next candidates (%d) ---", len(s.Candidates))))
		for i, a := range s.Candidates {
			if i == maxListedCandidates {
				fmt.Fprintln(w, f.dim(fmt.Sprintf("  ... and %d more", len(s.Candidates)-maxListedCandidates)))
				break
			}
			fmt.Fprintf(w, "  %s — %s\n", a.Title, f.dim(a.SourceName()))
			fmt.Fprintf(w, "      %s\n", f.dim(a.URL))
		}
	}

	if len(s.Recent) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, f.bold("--- Recent posts ---"))
		for _, p := range s.Recent {
			fmt.Fprintf(w, "  %s %s %s\n", p.PublishedAt.Local().Format(time.DateTime), f.dim("["+p.PostID+"]"), p.ArticleTitle)
		}
	}

	if s.HistoryURL != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, f.bold(fmt.Sprintf("--- Attempts for %s ---", s.HistoryURL)))
		if len(s.History) == 0 {
			fmt.Fprintln(w, f.dim("  none recorded"))
		}
		for _, g := range s.History {
			outcome := f.green(fmt.Sprintf("%d chars", g.ResponseLength))
			if g.Error != "" {
				outcome = f.yellow(g.Error)
			}
			fmt.Fprintf(w, "  %s run %s attempt %d: %s\n", g.CreatedAt.Local().Format(time.DateTime), g.RunID, g.Attempt, outcome)
		}
	}
	return nil
}

// ANSI helpers. No-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) yellow(s string) string {
	if !f.color {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}

package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ppiankov/postcurator/internal/curate"
)

type jsonRun struct {
	RunID      string        `json:"run_id"`
	StartedAt  string        `json:"started_at"`
	FinishedAt string        `json:"finished_at"`
	Fetched    bool          `json:"fetched"`
	Candidates int           `json:"candidates"`
	Attempted  int           `json:"attempted"`
	Posted     []jsonPosted  `json:"posted"`
	Failures   []jsonFailure `json:"failures"`
}

type jsonPosted struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Text     string `json:"text"`
	PostID   string `json:"post_id"`
	Attempts int    `json:"attempts"`
}

type jsonFailure struct {
	Kind  string `json:"kind"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error"`
}

type jsonStatus struct {
	Cache   jsonCache     `json:"cache"`
	Ledger  jsonLedger    `json:"ledger"`
	Journal *jsonJournal  `json:"journal,omitempty"`
	History []jsonAttempt `json:"history,omitempty"`
}

type jsonAttempt struct {
	RunID          string `json:"run_id"`
	Attempt        int    `json:"attempt"`
	Model          string `json:"model,omitempty"`
	ResponseLength int    `json:"response_length"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type jsonCache struct {
	Path       string        `json:"path"`
	CapturedAt string        `json:"captured_at,omitempty"`
	AgeSeconds int64         `json:"age_seconds"`
	TTL        string        `json:"ttl"`
	Valid      bool          `json:"valid"`
	Articles   int           `json:"articles"`
	Candidates []jsonArticle `json:"candidates"`
}

type jsonArticle struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Source string `json:"source"`
}

type jsonLedger struct {
	Path          string `json:"path"`
	Processed     int    `json:"processed"`
	LastProcessed string `json:"last_processed,omitempty"`
}

type jsonJournal struct {
	Since            string            `json:"since"`
	Runs             int               `json:"runs"`
	Generations      int               `json:"generations"`
	GenerationErrors int               `json:"generation_errors"`
	Publications     int               `json:"publications"`
	LastPublishedAt  string            `json:"last_published_at,omitempty"`
	Recent           []jsonPublication `json:"recent,omitempty"`
}

type jsonPublication struct {
	PostID      string `json:"post_id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	PublishedAt string `json:"published_at"`
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Run writes the run result as JSON to w.
func (f *JSONFormatter) Run(w io.Writer, r curate.Result) error {
	out := jsonRun{
		RunID:      r.RunID,
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
		Fetched:    r.Fetched,
		Candidates: r.Candidates,
		Attempted:  r.Attempted,
		Posted:     make([]jsonPosted, 0, len(r.Posted)),
		Failures:   make([]jsonFailure, 0, len(r.Failures)),
	}
	for _, p := range r.Posted {
		out.Posted = append(out.Posted, jsonPosted(p))
	}
	for _, fail := range r.Failures {
		out.Failures = append(out.Failures, jsonFailure{Kind: string(fail.Kind), URL: fail.URL, Error: fail.Err.Error()})
	}
	return encode(w, out)
}

// Status writes the state summary as JSON to w.
func (f *JSONFormatter) Status(w io.Writer, s Status) error {
	out := jsonStatus{
		Cache: jsonCache{
			Path:       s.CachePath,
			CapturedAt: formatTime(s.CapturedAt),
			AgeSeconds: int64(s.CacheAge.Seconds()),
			TTL:        s.TTL.String(),
			Valid:      s.CacheValid,
			Articles:   s.Articles,
			Candidates: make([]jsonArticle, 0, len(s.Candidates)),
		},
		Ledger: jsonLedger{
			Path:          s.LedgerPath,
			Processed:     s.Processed,
			LastProcessed: formatTime(s.LastProcessed),
		},
	}
	for _, a := range s.Candidates {
		out.Cache.Candidates = append(out.Cache.Candidates, jsonArticle{Title: a.Title, URL: a.URL, Source: a.SourceName()})
	}
	if s.Journal != nil {
		j := &jsonJournal{
			Since:            formatDuration(s.Since),
			Runs:             s.Journal.Runs,
			Generations:      s.Journal.Generations,
			GenerationErrors: s.Journal.GenerationErrors,
			Publications:     s.Journal.Publications,
			LastPublishedAt:  formatTime(s.Journal.LastPublishedAt),
		}
		for _, p := range s.Recent {
			j.Recent = append(j.Recent, jsonPublication{
				PostID:      p.PostID,
				Title:       p.ArticleTitle,
				URL:         p.ArticleURL,
				PublishedAt: formatTime(p.PublishedAt),
			})
		}
		out.Journal = j
	}
	for _, g := range s.History {
		out.History = append(out.History, jsonAttempt{
			RunID:          g.RunID,
			Attempt:        g.Attempt,
			Model:          g.Model,
			ResponseLength: g.ResponseLength,
			Error:          g.Error,
			CreatedAt:      formatTime(g.CreatedAt),
		})
	}
	return encode(w, out)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// Package ledger records which articles have already been turned into posts.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/postcurator/internal/source"
	"github.com/ppiankov/postcurator/internal/statefile"
)

// Entry is one processed article. The file keeps every appended entry; a URL
// seen more than once still counts as a single processed article.
type Entry struct {
	Title       string         `json:"title"`
	URL         string         `json:"url"`
	ProcessedAt statefile.Time `json:"processed_at"`
}

// Ledger is the permanent set of processed article URLs, backed by a JSON
// array that is rewritten atomically on every Record.
type Ledger struct {
	path    string
	entries []Entry
	urls    map[string]struct{}

	now func() time.Time
}

// Open reads the ledger at path. A missing file is an empty ledger.
func Open(path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("ledger: path is required")
	}
	l := &Ledger{
		path: path,
		urls: make(map[string]struct{}),
		now:  time.Now,
	}
	if _, err := statefile.Read(path, &l.entries); err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}
	for _, e := range l.entries {
		l.urls[e.URL] = struct{}{}
	}
	return l, nil
}

// Path returns the backing file.
func (l *Ledger) Path() string {
	return l.path
}

// Contains reports whether url was ever recorded.
func (l *Ledger) Contains(url string) bool {
	_, ok := l.urls[url]
	return ok
}

// Record appends an entry for a and rewrites the file before returning. On a
// write error the entry is still held in memory so the current run does not
// reprocess the article.
func (l *Ledger) Record(a source.Article) error {
	l.entries = append(l.entries, Entry{
		Title:       a.Title,
		URL:         a.URL,
		ProcessedAt: statefile.Time{Time: l.now()},
	})
	l.urls[a.URL] = struct{}{}

	if err := statefile.Write(l.path, l.entries); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	return nil
}

// Entries returns a copy of the stored entries, duplicates included.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of distinct URLs.
func (l *Ledger) Len() int {
	return len(l.urls)
}

// Last returns the most recently recorded entry.
func (l *Ledger) Last() (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

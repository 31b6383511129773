package ledger

import "github.com/ppiankov/postcurator/internal/source"

// Scratch layers in-memory records over a Ledger without touching its file.
// Dry runs use it so printed posts never enter the permanent ledger.
type Scratch struct {
	base *Ledger
	urls map[string]struct{}
}

// NewScratch returns a scratch view of base.
func NewScratch(base *Ledger) *Scratch {
	return &Scratch{base: base, urls: make(map[string]struct{})}
}

// Contains reports whether url is in the base ledger or was recorded here.
func (s *Scratch) Contains(url string) bool {
	if _, ok := s.urls[url]; ok {
		return true
	}
	return s.base.Contains(url)
}

// Record remembers a for the rest of the run only.
func (s *Scratch) Record(a source.Article) error {
	s.urls[a.URL] = struct{}{}
	return nil
}

// Len returns the number of URLs recorded in this scratch view.
func (s *Scratch) Len() int {
	return len(s.urls)
}

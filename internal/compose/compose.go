// Package compose turns generated drafts into posts that fit a hard length
// budget.
package compose

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultMaxPostLength is the budget for body, separator and URL together.
const DefaultMaxPostLength = 220

// separator joins body and URL and counts against the budget.
const separator = "\n"

// ErrContentTooLong means no post within the budget could be built from the
// draft. Callers regenerate rather than re-truncate.
var ErrContentTooLong = errors.New("content too long")

// Post is a publish-ready body and the article URL it links to.
type Post struct {
	Body string
	URL  string
}

// Text returns the body and URL joined by the separator.
func (p Post) Text() string {
	return p.Body + separator + p.URL
}

// Len returns the length of Text in bytes.
func (p Post) Len() int {
	return len(p.Body) + len(separator) + len(p.URL)
}

// Composer fits drafts into MaxLength bytes. Lengths are counted in bytes so
// multi-byte text can only make the result shorter on the wire.
type Composer struct {
	MaxLength int
}

// New returns a composer with the given budget, or the default when max is
// not positive.
func New(max int) *Composer {
	if max <= 0 {
		max = DefaultMaxPostLength
	}
	return &Composer{MaxLength: max}
}

// Available returns the body budget left after url and the separator.
func (c *Composer) Available(url string) int {
	return c.MaxLength - len(url) - len(separator)
}

// Compose builds a post from draft and url. A draft that fits is kept as is.
// A longer draft is cut at the last word boundary inside the budget, and a
// hashtag left dangling at the end of the cut text is dropped.
func (c *Composer) Compose(draft, url string) (Post, error) {
	available := c.Available(url)
	if available <= 0 {
		return Post{}, fmt.Errorf("%w: url alone needs %d of %d bytes", ErrContentTooLong, len(url)+len(separator), c.MaxLength)
	}

	body := strings.TrimSpace(draft)
	if len(body) > available {
		body = truncate(body, available)
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return Post{}, fmt.Errorf("%w: nothing left of the draft within %d bytes", ErrContentTooLong, available)
	}

	post := Post{Body: body, URL: url}
	if post.Len() > c.MaxLength {
		return Post{}, fmt.Errorf("%w: %d > %d bytes", ErrContentTooLong, post.Len(), c.MaxLength)
	}
	return post, nil
}

// truncate cuts s to at most n bytes. It never splits a UTF-8 sequence and
// backs off to the previous whitespace unless the cut already lands on one.
func truncate(s string, n int) string {
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	head := s[:cut]
	if !isSpace(s[cut]) {
		if i := strings.LastIndexAny(head, " \t\n"); i > 0 {
			head = head[:i]
		}
	}
	head = strings.TrimRight(head, " \t\n")

	// Drop a trailing hashtag: after the cut it is either clipped or
	// stranded ahead of text that no longer follows it.
	if i := strings.LastIndexAny(head, " \t\n"); strings.HasPrefix(head[i+1:], "#") {
		head = head[:i+1]
	}
	return head
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n'
}

// CleanDraft removes code fences and backticks from model output and strips
// one pair of wrapping quotes.
func CleanDraft(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```", "")
	s = strings.ReplaceAll(s, "`", "")
	s = strings.TrimSpace(s)

	for _, q := range [][2]string{{`"`, `"`}, {"“", "”"}, {"'", "'"}} {
		if len(s) >= len(q[0])+len(q[1]) && strings.HasPrefix(s, q[0]) && strings.HasSuffix(s, q[1]) {
			s = strings.TrimSpace(s[len(q[0]) : len(s)-len(q[1])])
			break
		}
	}
	return s
}

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewHN(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		h, err := NewHN(HNOptions{MinPoints: 100})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if h.opts.Limit != hnDefaultLimit {
			t.Errorf("limit = %d, want default %d", h.opts.Limit, hnDefaultLimit)
		}
	})

	t.Run("zero points", func(t *testing.T) {
		if _, err := NewHN(HNOptions{}); err == nil {
			t.Fatal("expected error for zero min_points")
		}
	})

	t.Run("negative limit", func(t *testing.T) {
		if _, err := NewHN(HNOptions{MinPoints: 1, Limit: -1}); err == nil {
			t.Fatal("expected error for negative limit")
		}
	})
}

func TestHNSource_Name(t *testing.T) {
	h, _ := NewHN(HNOptions{MinPoints: 100})
	if h.Name() != "hn" {
		t.Errorf("name = %q, want hn", h.Name())
	}
}

func hnServer(t *testing.T, ids []int, items map[int]any) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/topstories.json" {
			_ = json.NewEncoder(w).Encode(ids)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/item/") {
			var id int
			if _, err := fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/item/"), "%d.json", &id); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			item, ok := items[id]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(item)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(ts.Close)

	oldBase := hnAPIBaseURL
	hnAPIBaseURL = ts.URL
	t.Cleanup(func() { hnAPIBaseURL = oldBase })
}

func TestHNFetch_FiltersAndKeepsRank(t *testing.T) {
	fastRetry(t)
	now := time.Now()
	recent := now.Add(-time.Hour).Unix()
	old := now.Add(-48 * time.Hour).Unix()

	hnServer(t, []int{5, 1, 2, 3, 4, 6, 7}, map[int]any{
		1: hnItem{ID: 1, Type: "story", Title: "Denmark ditching Microsoft", URL: "https://example.com/1", Score: 769, Time: recent},
		2: hnItem{ID: 2, Type: "story", Title: "Low score post", URL: "https://example.com/2", Score: 5, Time: recent},
		3: hnItem{ID: 3, Type: "story", Title: "Old post", URL: "https://example.com/3", Score: 500, Time: old},
		4: hnItem{ID: 4, Type: "job", Title: "Hiring at BigCo", URL: "https://example.com/4", Score: 200, Time: recent},
		5: hnItem{ID: 5, Type: "story", Title: "New kernel scheduler lands", URL: "https://example.com/5", Score: 620, Time: recent},
		6: hnItem{ID: 6, Type: "story", Title: "Ask HN: text only", Score: 300, Time: recent},
		7: nil,
	})

	h, err := NewHN(HNOptions{MinPoints: 100, MaxAge: 24 * time.Hour})
	if err != nil {
		t.Fatalf("NewHN: %v", err)
	}
	articles, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2: %+v", len(articles), articles)
	}
	if articles[0].Title != "New kernel scheduler lands" || articles[1].Title != "Denmark ditching Microsoft" {
		t.Errorf("rank order lost: %q, %q", articles[0].Title, articles[1].Title)
	}
	for _, a := range articles {
		if a.SourceName() != "Hacker News" {
			t.Errorf("source = %q, want Hacker News", a.SourceName())
		}
		if a.PublishedAt == nil {
			t.Error("published_at not set")
		}
	}
}

func TestHNFetch_Limit(t *testing.T) {
	fastRetry(t)
	recent := time.Now().Unix()
	items := map[int]any{}
	var ids []int
	for i := 1; i <= 6; i++ {
		ids = append(ids, i)
		items[i] = hnItem{ID: i, Type: "story", Title: fmt.Sprintf("Story %d", i), URL: fmt.Sprintf("https://example.com/%d", i), Score: 150, Time: recent}
	}
	hnServer(t, ids, items)

	h, _ := NewHN(HNOptions{MinPoints: 100, Limit: 3})
	articles, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 3 || articles[2].Title != "Story 3" {
		t.Fatalf("got %+v, want the top 3", articles)
	}
}

func TestHNFetch_Empty(t *testing.T) {
	fastRetry(t)
	hnServer(t, []int{}, nil)

	h, _ := NewHN(HNOptions{MinPoints: 100})
	articles, err := h.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(articles) != 0 {
		t.Errorf("got %d articles, want 0", len(articles))
	}
}

func TestHNFetch_AllItemsFail(t *testing.T) {
	fastRetry(t)
	hnServer(t, []int{1, 2}, map[int]any{})

	h, _ := NewHN(HNOptions{MinPoints: 1})
	if _, err := h.Fetch(context.Background()); err == nil {
		t.Fatal("expected error when every item fails")
	}
}

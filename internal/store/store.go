// Package store is the sqlite journal of generation attempts and publications.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

// Generation is one call to the text generator for an article.
type Generation struct {
	ID             int64
	RunID          string
	ArticleURL     string
	ArticleTitle   string
	Attempt        int
	Model          string
	Prompt         string
	Response       string
	ResponseLength int
	Error          string
	CreatedAt      time.Time
}

// Publication is one post accepted by a publisher.
type Publication struct {
	ID           int64
	RunID        string
	ArticleURL   string
	ArticleTitle string
	Publisher    string
	PostID       string
	Text         string
	PublishedAt  time.Time
}

// Stats aggregates the journal since a point in time.
type Stats struct {
	Runs             int
	Generations      int
	GenerationErrors int
	Publications     int
	LastPublishedAt  time.Time
}

func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	ctx := context.Background()
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordGeneration stores a generation attempt. ResponseLength is derived
// from Response when unset; CreatedAt defaults to now.
func (s *Store) RecordGeneration(ctx context.Context, g Generation) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if strings.TrimSpace(g.RunID) == "" {
		return 0, errors.New("run_id is required")
	}
	if strings.TrimSpace(g.ArticleURL) == "" {
		return 0, errors.New("article_url is required")
	}
	if g.Attempt <= 0 {
		return 0, errors.New("attempt must be positive")
	}
	if g.ResponseLength == 0 {
		g.ResponseLength = len(g.Response)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO generations (run_id, article_url, article_title, attempt, model, prompt, response, response_length, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		g.RunID,
		g.ArticleURL,
		g.ArticleTitle,
		g.Attempt,
		nullIfEmpty(g.Model),
		nullIfEmpty(g.Prompt),
		nullIfEmpty(g.Response),
		g.ResponseLength,
		nullIfEmpty(g.Error),
		formatTime(g.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert generation: %w", err)
	}
	return res.LastInsertId()
}

// RecordPublication stores a published post. PublishedAt defaults to now.
func (s *Store) RecordPublication(ctx context.Context, p Publication) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if strings.TrimSpace(p.RunID) == "" {
		return 0, errors.New("run_id is required")
	}
	if strings.TrimSpace(p.ArticleURL) == "" {
		return 0, errors.New("article_url is required")
	}
	if strings.TrimSpace(p.PostID) == "" {
		return 0, errors.New("post_id is required")
	}
	if p.PublishedAt.IsZero() {
		p.PublishedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO publications (run_id, article_url, article_title, publisher, post_id, text, published_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		p.RunID,
		p.ArticleURL,
		p.ArticleTitle,
		p.Publisher,
		p.PostID,
		p.Text,
		formatTime(p.PublishedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("insert publication: %w", err)
	}
	return res.LastInsertId()
}

// Generations returns the attempts recorded for an article, oldest first.
func (s *Store) Generations(ctx context.Context, articleURL string) ([]Generation, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, article_url, article_title, attempt, model, prompt, response, response_length, error, created_at
		FROM generations
		WHERE article_url = ?
		ORDER BY created_at ASC, id ASC
	`, articleURL)
	if err != nil {
		return nil, fmt.Errorf("query generations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Generation
	for rows.Next() {
		var (
			g                                 Generation
			model, prompt, response, errorVal sql.NullString
			createdAt                         string
		)
		if err := rows.Scan(&g.ID, &g.RunID, &g.ArticleURL, &g.ArticleTitle, &g.Attempt,
			&model, &prompt, &response, &g.ResponseLength, &errorVal, &createdAt); err != nil {
			return nil, fmt.Errorf("scan generation: %w", err)
		}
		g.Model = model.String
		g.Prompt = prompt.String
		g.Response = response.String
		g.Error = errorVal.String
		if g.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generations: %w", err)
	}
	return out, nil
}

// RecentPublications returns up to limit publications, newest first.
func (s *Store) RecentPublications(ctx context.Context, limit int) ([]Publication, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, article_url, article_title, publisher, post_id, text, published_at
		FROM publications
		ORDER BY published_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query publications: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Publication
	for rows.Next() {
		var (
			p           Publication
			publishedAt string
		)
		if err := rows.Scan(&p.ID, &p.RunID, &p.ArticleURL, &p.ArticleTitle, &p.Publisher,
			&p.PostID, &p.Text, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan publication: %w", err)
		}
		if p.PublishedAt, err = parseTime(publishedAt); err != nil {
			return nil, fmt.Errorf("parse published_at: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate publications: %w", err)
	}
	return out, nil
}

// GetStats aggregates generations and publications recorded at or after since.
func (s *Store) GetStats(ctx context.Context, since time.Time) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, errors.New("store is not initialized")
	}
	cutoff := formatTime(since)

	var st Stats
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN error IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM generations
		WHERE created_at >= ?
	`, cutoff).Scan(&st.Generations, &st.GenerationErrors); err != nil {
		return Stats{}, fmt.Errorf("count generations: %w", err)
	}

	var lastPublished sql.NullString
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MAX(published_at)
		FROM publications
		WHERE published_at >= ?
	`, cutoff).Scan(&st.Publications, &lastPublished); err != nil {
		return Stats{}, fmt.Errorf("count publications: %w", err)
	}
	if lastPublished.Valid {
		ts, err := parseTime(lastPublished.String)
		if err != nil {
			return Stats{}, fmt.Errorf("parse last published_at: %w", err)
		}
		st.LastPublishedAt = ts
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT run_id) FROM (
			SELECT run_id FROM generations WHERE created_at >= ?
			UNION
			SELECT run_id FROM publications WHERE published_at >= ?
		)
	`, cutoff, cutoff).Scan(&st.Runs); err != nil {
		return Stats{}, fmt.Errorf("count runs: %w", err)
	}

	return st, nil
}

// PruneOld deletes journal rows older than retainDays. Returns the number of
// rows removed.
func (s *Store) PruneOld(ctx context.Context, retainDays int) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	if retainDays <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().AddDate(0, 0, -retainDays))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune transaction: %w", err)
	}

	genRes, err := tx.ExecContext(ctx, "DELETE FROM generations WHERE created_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old generations: %w", err)
	}
	pubRes, err := tx.ExecContext(ctx, "DELETE FROM publications WHERE published_at < ?", cutoff)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prune old publications: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}

	g, _ := genRes.RowsAffected()
	p, _ := pubRes.RowsAffected()
	return g + p, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts, nil
	}
	return time.Parse(time.RFC3339, value)
}

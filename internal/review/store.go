package review

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrEmptyReview is returned when author or content is blank
var ErrEmptyReview = errors.New("review author and content are required")

const schema = `
CREATE TABLE IF NOT EXISTS reviews (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    author TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// TimestampLayout is how review timestamps are stored and rendered
const TimestampLayout = "2006-01-02 15:04:05"

// Review is one visitor comment
type Review struct {
	ID        int64     `json:"id"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Store keeps reviews in a SQLite database
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the review database at path
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open review database %s: %w", path, err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create reviews table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Add stores a new review and returns it with its id and timestamp
func (s *Store) Add(ctx context.Context, author, content string) (Review, error) {
	author = strings.TrimSpace(author)
	content = strings.TrimSpace(content)
	if author == "" || content == "" {
		return Review{}, ErrEmptyReview
	}

	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO reviews (author, content, timestamp) VALUES (?, ?, ?)`,
		author, content, now.Format(TimestampLayout))
	if err != nil {
		return Review{}, fmt.Errorf("failed to insert review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Review{}, fmt.Errorf("failed to read review id: %w", err)
	}

	return Review{ID: id, Author: author, Content: content, Timestamp: now}, nil
}

// List returns all reviews, oldest first
func (s *Store) List(ctx context.Context) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, author, content, CAST(timestamp AS TEXT) FROM reviews ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reviews: %w", err)
	}
	defer rows.Close()

	reviews := []Review{}
	for rows.Next() {
		var r Review
		var ts sql.NullString
		if err := rows.Scan(&r.ID, &r.Author, &r.Content, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		if ts.Valid {
			r.Timestamp = parseTimestamp(ts.String)
		}
		reviews = append(reviews, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	return reviews, nil
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

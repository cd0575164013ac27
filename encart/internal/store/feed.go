package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InsertFeed adds a feed. ID is generated when empty.
func (s *Store) InsertFeed(ctx context.Context, f *Feed) error {
	now := time.Now().UnixMilli()
	if f.ID == "" {
		f.ID = s.newID()
	}
	if f.CreatedAt == 0 {
		f.CreatedAt = now
	}
	if f.UpdatedAt == 0 {
		f.UpdatedAt = now
	}
	if f.LastStatus == "" {
		f.LastStatus = "pending"
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO feeds (id, name, url, active, last_fetched_at, last_status, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.Name, f.URL, f.Active, f.LastFetchedAt, f.LastStatus, f.LastError, f.CreatedAt, f.UpdatedAt)
	return err
}

// GetFeed retrieves a feed by ID, or nil when absent.
func (s *Store) GetFeed(ctx context.Context, id string) (*Feed, error) {
	var f Feed
	var lastFetched sql.NullInt64
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, url, active, last_fetched_at, last_status, last_error, created_at, updated_at
		FROM feeds WHERE id = ?`, id).
		Scan(&f.ID, &f.Name, &f.URL, &f.Active, &lastFetched, &f.LastStatus, &f.LastError, &f.CreatedAt, &f.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	f.LastFetchedAt = lastFetched.Int64
	return &f, nil
}

// ListFeeds returns all feeds ordered by name.
func (s *Store) ListFeeds(ctx context.Context) ([]*Feed, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, url, active, last_fetched_at, last_status, last_error, created_at, updated_at
		FROM feeds ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Feed
	for rows.Next() {
		var f Feed
		var lastFetched sql.NullInt64
		if err := rows.Scan(&f.ID, &f.Name, &f.URL, &f.Active, &lastFetched,
			&f.LastStatus, &f.LastError, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		f.LastFetchedAt = lastFetched.Int64
		out = append(out, &f)
	}
	return out, rows.Err()
}

// DeleteFeed removes a feed (cascades to items).
func (s *Store) DeleteFeed(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM feeds WHERE id = ?`, id)
	return err
}

// RecordFetch updates a feed's fetch status after a refresh attempt.
func (s *Store) RecordFetch(ctx context.Context, feedID, status, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE feeds SET last_fetched_at = ?, last_status = ?, last_error = ?, updated_at = ?
		WHERE id = ?`, now, status, errMsg, now, feedID)
	return err
}

// UpsertItems inserts feed items, skipping GUIDs already present.
// Returns the number of new items.
func (s *Store) UpsertItems(ctx context.Context, feedID string, items []*FeedItem) (int, error) {
	now := time.Now().UnixMilli()
	var inserted int
	for _, it := range items {
		if it.ID == "" {
			it.ID = s.newID()
		}
		res, err := s.DB.ExecContext(ctx,
			`INSERT OR IGNORE INTO feed_items (id, feed_id, guid, title, link, summary, published, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			it.ID, feedID, it.GUID, it.Title, it.Link, it.Summary, it.Published, now)
		if err != nil {
			return inserted, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}
	return inserted, nil
}

// ListItems returns the most recent items for a feed.
func (s *Store) ListItems(ctx context.Context, feedID string, limit int) ([]*FeedItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, feed_id, guid, title, link, summary, published, fetched_at
		FROM feed_items WHERE feed_id = ?
		ORDER BY fetched_at DESC, guid LIMIT ?`, feedID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FeedItem
	for rows.Next() {
		var it FeedItem
		if err := rows.Scan(&it.ID, &it.FeedID, &it.GUID, &it.Title, &it.Link,
			&it.Summary, &it.Published, &it.FetchedAt); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

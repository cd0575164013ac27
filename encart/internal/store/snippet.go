// CLAUDE:SUMMARY Snippet CRUD and the priority-ordered active-by-location query behind Serve.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// InsertSnippet adds a snippet. ID is generated when empty.
func (s *Store) InsertSnippet(ctx context.Context, sn *Snippet) error {
	now := time.Now().UnixMilli()
	if sn.ID == "" {
		sn.ID = s.newID()
	}
	if sn.CreatedAt == 0 {
		sn.CreatedAt = now
	}
	if sn.UpdatedAt == 0 {
		sn.UpdatedAt = now
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snippets (id, name, location, code, active, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sn.ID, sn.Name, sn.Location, sn.Code, sn.Active, sn.Priority, sn.CreatedAt, sn.UpdatedAt,
	)
	return err
}

// GetSnippet retrieves a snippet by ID, or nil when absent.
func (s *Store) GetSnippet(ctx context.Context, id string) (*Snippet, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, location, code, active, priority, created_at, updated_at
		FROM snippets WHERE id = ?`, id)
	sn, err := scanSnippet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sn, err
}

// ListSnippets returns all snippets, most recently created first.
func (s *Store) ListSnippets(ctx context.Context) ([]*Snippet, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, location, code, active, priority, created_at, updated_at
		FROM snippets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Snippet
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// ListActiveByLocation returns active snippets for one location, higher
// priority first. created_at ASC breaks priority ties so the serving
// order is deterministic.
func (s *Store) ListActiveByLocation(ctx context.Context, location string) ([]*Snippet, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, name, location, code, active, priority, created_at, updated_at
		FROM snippets
		WHERE location = ? AND active = 1
		ORDER BY priority DESC, created_at ASC`, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Snippet
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

// UpdateSnippet updates a snippet's mutable fields.
func (s *Store) UpdateSnippet(ctx context.Context, sn *Snippet) error {
	sn.UpdatedAt = time.Now().UnixMilli()
	_, err := s.DB.ExecContext(ctx,
		`UPDATE snippets SET name=?, location=?, code=?, active=?, priority=?, updated_at=?
		WHERE id=?`,
		sn.Name, sn.Location, sn.Code, sn.Active, sn.Priority, sn.UpdatedAt, sn.ID,
	)
	return err
}

// DeleteSnippet removes a snippet.
func (s *Store) DeleteSnippet(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row scanner) (*Snippet, error) {
	var sn Snippet
	err := row.Scan(&sn.ID, &sn.Name, &sn.Location, &sn.Code, &sn.Active,
		&sn.Priority, &sn.CreatedAt, &sn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sn, nil
}

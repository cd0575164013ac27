// CLAUDE:SUMMARY shield.WindowStore implementation: single-statement atomic upsert increment via RETURNING.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Hit opens or increments the fixed window starting at start for
// (ip, fn), but only while the counter is below max. The whole
// open-or-increment is one upsert, so concurrent requests serialize on
// the row and no increment is ever lost. ok=false reports a full
// window together with its stored count and end.
func (s *Store) Hit(ctx context.Context, ip, fn string, max int, start, end time.Time) (int, time.Time, bool, error) {
	now := time.Now().UnixMilli()
	var count int
	var endMs int64
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO rate_limit_windows
			(id, client_ip, function_name, request_count, blocked_count,
			 window_start, window_end, created_at, updated_at)
		VALUES (?, ?, ?, 1, 0, ?, ?, ?, ?)
		ON CONFLICT(client_ip, function_name, window_start) DO UPDATE SET
			request_count = request_count + 1,
			updated_at = excluded.updated_at
		WHERE rate_limit_windows.request_count < ?
		RETURNING request_count, window_end`,
		s.newID(), ip, fn, start.UnixMilli(), end.UnixMilli(), now, now, max,
	).Scan(&count, &endMs)
	if errors.Is(err, sql.ErrNoRows) {
		// Conditional update matched nothing: the window is full.
		w, gerr := s.window(ctx, ip, fn, start)
		if gerr != nil {
			return 0, time.Time{}, false, gerr
		}
		return w.RequestCount, time.UnixMilli(w.WindowEnd), false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, err
	}
	return count, time.UnixMilli(endMs), true, nil
}

// Block increments the blocked-attempt counter of the window starting
// at start, leaving the main counter untouched.
func (s *Store) Block(ctx context.Context, ip, fn string, start time.Time) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE rate_limit_windows
		SET blocked_count = blocked_count + 1, updated_at = ?
		WHERE client_ip = ? AND function_name = ? AND window_start = ?`,
		time.Now().UnixMilli(), ip, fn, start.UnixMilli())
	return err
}

// PurgeExpired removes fully-expired window rows and reports how many
// were deleted.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM rate_limit_windows WHERE window_end < ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Window returns the stored window for (ip, fn, start), for tests and
// the admin overview. nil when absent.
func (s *Store) Window(ctx context.Context, ip, fn string, start time.Time) (*RateWindow, error) {
	w, err := s.window(ctx, ip, fn, start)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return w, err
}

func (s *Store) window(ctx context.Context, ip, fn string, start time.Time) (*RateWindow, error) {
	var w RateWindow
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, client_ip, function_name, request_count, blocked_count,
			window_start, window_end, created_at, updated_at
		FROM rate_limit_windows
		WHERE client_ip = ? AND function_name = ? AND window_start = ?`,
		ip, fn, start.UnixMilli()).
		Scan(&w.ID, &w.ClientIP, &w.FunctionName, &w.RequestCount, &w.BlockedCount,
			&w.WindowStart, &w.WindowEnd, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

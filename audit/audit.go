// CLAUDE:SUMMARY Async admin-action audit trail: who changed which snippet, setting, feed, or user.
// Package audit records admin mutations in a dedicated table. Writes
// are asynchronous with a synchronous fallback, so the audit trail can
// never block the operation it describes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/encart/idgen"
)

// Entry is one recorded admin action.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Actor      string    `json:"actor"`       // user ID, or "system"
	Action     string    `json:"action"`      // "create", "update", "delete", "refresh"
	EntityType string    `json:"entity_type"` // "snippet", "setting", "feed", "user"
	EntityID   string    `json:"entity_id"`
	Details    string    `json:"details,omitempty"` // JSON
}

const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id          TEXT PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    actor       TEXT NOT NULL,
    action      TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_log_entity ON audit_log(entity_type, entity_id);
`

// Logger persists audit entries.
type Logger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Logger.
type Option func(*Logger)

// WithIDGenerator sets a custom ID generator for entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(l *Logger) { l.newID = gen }
}

// New creates an audit Logger, applies its schema, and starts the
// async writer.
func New(db *sql.DB, opts ...Option) (*Logger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("audit: schema: %w", err)
	}
	l := &Logger{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *Entry, 256),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(l)
	}
	go l.flushLoop()
	return l, nil
}

// Record queues an entry for async persistence. Falls back to a
// synchronous insert when the buffer is full. details is marshalled to
// JSON; a nil details records nothing extra.
func (l *Logger) Record(actor, action, entityType, entityID string, details any) {
	e := &Entry{
		ID:         l.newID(),
		Timestamp:  time.Now(),
		Actor:      actor,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
	if e.Actor == "" {
		e.Actor = "system"
	}
	if details != nil {
		if b, err := json.Marshal(details); err == nil {
			e.Details = string(b)
		}
	}
	select {
	case l.ch <- e:
	default:
		slog.Warn("audit: buffer full, sync fallback", "entity", entityType, "action", action)
		if err := l.insert(context.Background(), e); err != nil {
			slog.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// List returns the newest entries, optionally filtered by entity type.
func (l *Logger) List(ctx context.Context, entityType string, limit int) ([]*Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, timestamp, actor, action, entity_type, entity_id, details
	      FROM audit_log`
	args := []any{}
	if entityType != "" {
		q += ` WHERE entity_type = ?`
		args = append(args, entityType)
	}
	q += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var e Entry
		var ts int64
		if err := rows.Scan(&e.ID, &ts, &e.Actor, &e.Action, &e.EntityType, &e.EntityID, &e.Details); err != nil {
			return nil, err
		}
		e.Timestamp = time.UnixMilli(ts)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close drains queued entries and stops the writer.
func (l *Logger) Close() {
	close(l.stop)
	<-l.done
}

func (l *Logger) flushLoop() {
	defer close(l.done)
	for {
		select {
		case e := <-l.ch:
			if err := l.insert(context.Background(), e); err != nil {
				slog.Error("audit: insert failed", "error", err)
			}
		case <-l.stop:
			// Drain what's queued before exiting.
			for {
				select {
				case e := <-l.ch:
					if err := l.insert(context.Background(), e); err != nil {
						slog.Error("audit: insert failed", "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (l *Logger) insert(ctx context.Context, e *Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, timestamp, actor, action, entity_type, entity_id, details)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UnixMilli(), e.Actor, e.Action, e.EntityType, e.EntityID, e.Details)
	return err
}

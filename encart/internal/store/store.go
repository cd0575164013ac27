// Package store is the data access layer for the encart database:
// snippets, site settings, rate-limit windows, and feeds.
//
// The store receives an already-opened *sql.DB (see dbopen) and owns
// the schema. All timestamps are unix milliseconds.
package store

import (
	"database/sql"

	"github.com/hazyhaar/encart/idgen"
)

// Store wraps the encart database.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets a custom ID generator (tests use deterministic ones).
func WithIDGenerator(gen idgen.Generator) Option {
	return func(s *Store) { s.newID = gen }
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{DB: db, newID: idgen.Default}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Package store provides the SQLite run ledger: one row per pipeline run,
// its two branch runs with their captures, and the resulting changeset.
package store

import (
	"database/sql"

	"github.com/hazyhaar/shotdiff/dbopen"
)

// Store is the ledger database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the ledger at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

package store

import "database/sql"

// Store wraps the directory database for sync-pipeline operations.
type Store struct {
	DB *sql.DB
}

// New creates a Store from an already-opened database connection.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

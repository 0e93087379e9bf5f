// Package store persists the vector index and the conversation log in
// SQLite files.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

var (
	// ErrIndexNotFound is returned when no index has been built at a path.
	ErrIndexNotFound = errors.New("no document index found: process documents first")
	// ErrSchemaMismatch is returned for an index written by another schema version.
	ErrSchemaMismatch = errors.New("document index schema version mismatch")
	// ErrInvalidRole is returned for a message role outside the known set.
	ErrInvalidRole = errors.New("invalid message role")
)

// openDB opens a SQLite database, creating its directory first.
func openDB(dsnPath string, params string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dsnPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := dsnPath
	if params != "" {
		dsn += "?" + params
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

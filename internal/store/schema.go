package store

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is written into every index; an index with another version
// cannot be opened.
const SchemaVersion = "1"

const indexDDL = `
PRAGMA journal_mode=DELETE;

CREATE TABLE IF NOT EXISTS chunks (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    source_offset INTEGER NOT NULL DEFAULT 0,
    content TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const vecDDL = `
CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
    chunk_id INTEGER PRIMARY KEY,
    embedding float[%d]
);
`

const conversationDDL = `
CREATE TABLE IF NOT EXISTS messages (
    id        INTEGER PRIMARY KEY AUTOINCREMENT,
    role      TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
    content   TEXT NOT NULL,
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// initIndex creates the index tables for vectors of the given dimension.
func initIndex(db *sql.DB, dimension int) error {
	if _, err := db.Exec(indexDDL); err != nil {
		return err
	}
	_, err := db.Exec(fmt.Sprintf(vecDDL, dimension))
	return err
}

// initConversations creates the messages table if it doesn't exist.
func initConversations(db *sql.DB) error {
	_, err := db.Exec(conversationDDL)
	return err
}

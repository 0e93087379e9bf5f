package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Conversations is the durable, append-only message log. Each call opens
// the database, runs one operation and closes it again.
type Conversations struct {
	path string
}

// NewConversations returns a log stored in the SQLite file at path. The
// file and its table are created on first use.
func NewConversations(path string) *Conversations {
	return &Conversations{path: path}
}

// Path returns the database file location.
func (c *Conversations) Path() string { return c.path }

func (c *Conversations) withDB(ctx context.Context, fn func(db *sql.DB) error) (err error) {
	db, err := openDB(c.path, "_busy_timeout=5000")
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close conversation db: %w", cerr)
		}
	}()
	if err := initConversations(db); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return fn(db)
}

// Append stores one message and returns it with its assigned ID and timestamp.
func (c *Conversations) Append(ctx context.Context, role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	var msg Message
	err := c.withDB(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		msg, err = insertMessage(ctx, tx, role, content)
		if err != nil {
			return err
		}
		return tx.Commit()
	})
	return msg, err
}

// AppendExchange stores a question and its answer in one transaction,
// user message first.
func (c *Conversations) AppendExchange(ctx context.Context, question, answer string) error {
	return c.withDB(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := insertMessage(ctx, tx, RoleUser, question); err != nil {
			return err
		}
		if _, err := insertMessage(ctx, tx, RoleAssistant, answer); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func insertMessage(ctx context.Context, tx *sql.Tx, role Role, content string) (Message, error) {
	res, err := tx.ExecContext(ctx, "INSERT INTO messages (role, content) VALUES (?, ?)", string(role), content)
	if err != nil {
		return Message{}, fmt.Errorf("insert %s message: %w", role, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, err
	}
	msg := Message{ID: id, Role: role, Content: content}
	if err := tx.QueryRowContext(ctx, "SELECT timestamp FROM messages WHERE id = ?", id).Scan(&msg.Timestamp); err != nil {
		return Message{}, fmt.Errorf("read timestamp: %w", err)
	}
	return msg, nil
}

// Read returns the most recent limit messages, oldest first. A limit of zero
// or less returns the whole log.
func (c *Conversations) Read(ctx context.Context, limit int) ([]Message, error) {
	var msgs []Message
	err := c.withDB(ctx, func(db *sql.DB) error {
		query := "SELECT id, role, content, timestamp FROM messages ORDER BY id DESC"
		var args []any
		if limit > 0 {
			query += " LIMIT ?"
			args = append(args, limit)
		}
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var m Message
			var role string
			if err := rows.Scan(&m.ID, &role, &m.Content, &m.Timestamp); err != nil {
				return err
			}
			if m.Role, err = ParseRole(role); err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Count returns the number of stored messages.
func (c *Conversations) Count(ctx context.Context) (int, error) {
	var n int
	err := c.withDB(ctx, func(db *sql.DB) error {
		return db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n)
	})
	return n, err
}

// Clear deletes every message. It cannot be undone.
func (c *Conversations) Clear(ctx context.Context) error {
	return c.withDB(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, "DELETE FROM messages")
		return err
	})
}

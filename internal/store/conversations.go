package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/accum"
)

// Conversation is one ingested transcript: a title plus the path it was
// read from, grouping the messages that belong to it.
type Conversation struct {
	ID         int64
	Title      string
	SourcePath string
}

// Conversations provides CRUD for the conversations table. It backs no
// extern interface directly — the query engine never looks a conversation
// up by ID, only by the messages that belong to it — but the ingest
// pipeline needs somewhere to mint the conversation_id every message
// carries.
type Conversations struct {
	db *DB
}

// NewConversations wraps db for conversation bookkeeping.
func NewConversations(db *DB) *Conversations {
	return &Conversations{db: db}
}

// AddConversation inserts a new conversation and returns its id.
func (c *Conversations) AddConversation(ctx context.Context, title, sourcePath string) (int64, error) {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	res, err := c.db.conn.ExecContext(ctx,
		`INSERT INTO conversations (title, source_path) VALUES (?, ?)`,
		title, sourcePath,
	)
	if err != nil {
		return 0, fmt.Errorf("add conversation %q: %w", title, err)
	}
	return res.LastInsertId()
}

// GetConversation resolves id to its title and source path.
func (c *Conversations) GetConversation(ctx context.Context, id int64) (Conversation, error) {
	var conv Conversation
	conv.ID = id
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT title, source_path FROM conversations WHERE id = ?`, id,
	).Scan(&conv.Title, &conv.SourcePath)
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return conv, nil
}

// FindBySourcePath returns the conversation previously ingested from
// sourcePath, if any. Used by the ingest pipeline to detect re-ingestion of
// an already-seen transcript file.
func (c *Conversations) FindBySourcePath(ctx context.Context, sourcePath string) (Conversation, bool, error) {
	var conv Conversation
	conv.SourcePath = sourcePath
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT id, title FROM conversations WHERE source_path = ?`, sourcePath,
	).Scan(&conv.ID, &conv.Title)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, false, nil
		}
		return Conversation{}, false, fmt.Errorf("find conversation by path %q: %w", sourcePath, err)
	}
	return conv, true, nil
}

// ConversationForMessage resolves the conversation a message ordinal
// belongs to, for display purposes (e.g. labeling a search result with its
// source conversation's title).
func (c *Conversations) ConversationForMessage(ctx context.Context, ordinal accum.MessageOrdinal) (Conversation, error) {
	var conv Conversation
	err := c.db.conn.QueryRowContext(ctx,
		`SELECT conversations.id, conversations.title, conversations.source_path
		 FROM conversations
		 JOIN messages ON messages.conversation_id = conversations.id
		 WHERE messages.ordinal = ?`, ordinal,
	).Scan(&conv.ID, &conv.Title, &conv.SourcePath)
	if err != nil {
		return Conversation{}, fmt.Errorf("find conversation for message %d: %w", ordinal, err)
	}
	return conv, nil
}

// Count returns the total number of ingested conversations.
func (c *Conversations) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// DeleteConversation removes a conversation and every message, semantic
// ref, and index entry anchored to it, for re-ingestion of a changed
// transcript file.
func (c *Conversations) DeleteConversation(ctx context.Context, id int64) error {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()

	rows, err := c.db.conn.QueryContext(ctx, `SELECT ordinal FROM messages WHERE conversation_id = ?`, id)
	if err != nil {
		return fmt.Errorf("list messages for conversation %d: %w", id, err)
	}
	var msgOrdinals []int64
	for rows.Next() {
		var ord int64
		if err := rows.Scan(&ord); err != nil {
			rows.Close()
			return fmt.Errorf("scan message ordinal: %w", err)
		}
		msgOrdinals = append(msgOrdinals, ord)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, ord := range msgOrdinals {
		refRows, err := c.db.conn.QueryContext(ctx, `SELECT ordinal FROM semantic_refs WHERE message_ordinal = ?`, ord)
		if err != nil {
			return fmt.Errorf("list semantic refs for message %d: %w", ord, err)
		}
		var refOrdinals []int64
		for refRows.Next() {
			var ref int64
			if err := refRows.Scan(&ref); err != nil {
				refRows.Close()
				return fmt.Errorf("scan semantic ref ordinal: %w", err)
			}
			refOrdinals = append(refOrdinals, ref)
		}
		refRows.Close()
		if err := refRows.Err(); err != nil {
			return err
		}
		for _, ref := range refOrdinals {
			if _, err := c.db.conn.ExecContext(ctx, `DELETE FROM semantic_ref_terms WHERE semantic_ref_ordinal = ?`, ref); err != nil {
				return fmt.Errorf("delete terms for semantic ref %d: %w", ref, err)
			}
			if _, err := c.db.conn.ExecContext(ctx, `DELETE FROM semantic_ref_properties WHERE semantic_ref_ordinal = ?`, ref); err != nil {
				return fmt.Errorf("delete properties for semantic ref %d: %w", ref, err)
			}
		}
		if _, err := c.db.conn.ExecContext(ctx, `DELETE FROM semantic_refs WHERE message_ordinal = ?`, ord); err != nil {
			return fmt.Errorf("delete semantic refs for message %d: %w", ord, err)
		}
		if _, err := c.db.conn.ExecContext(ctx, `DELETE FROM message_vec WHERE message_ordinal = ?`, ord); err != nil {
			return fmt.Errorf("delete embedding for message %d: %w", ord, err)
		}
	}

	if _, err := c.db.conn.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("delete messages for conversation %d: %w", id, err)
	}
	if _, err := c.db.conn.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete conversation %d: %w", id, err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
)

// Messages implements extern.MessageCollection over the messages table.
type Messages struct {
	db *DB
}

// NewMessages wraps db as an extern.MessageCollection.
func NewMessages(db *DB) *Messages {
	return &Messages{db: db}
}

// GetMessage resolves ordinal to its text and timestamp.
func (m *Messages) GetMessage(ctx context.Context, ordinal accum.MessageOrdinal) (extern.Message, error) {
	var text string
	var ts int64
	err := m.db.conn.QueryRowContext(ctx,
		`SELECT text, timestamp FROM messages WHERE ordinal = ?`, ordinal,
	).Scan(&text, &ts)
	if err != nil {
		return extern.Message{}, fmt.Errorf("get message %d: %w", ordinal, err)
	}
	return extern.Message{Ordinal: ordinal, Text: text, Timestamp: time.Unix(ts, 0).UTC()}, nil
}

// Count returns the total number of messages stored.
func (m *Messages) Count(ctx context.Context) (int, error) {
	var n int
	if err := m.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// GetCountInCharBudget returns the largest prefix of ordinals (taken in
// order) whose summed text length fits within charBudget characters. A
// single round trip fetches every candidate's length so the running sum
// can be computed without refetching full message bodies.
func (m *Messages) GetCountInCharBudget(ctx context.Context, ordinals []accum.MessageOrdinal, charBudget int) (int, error) {
	if len(ordinals) == 0 {
		return 0, nil
	}

	lengths := make(map[accum.MessageOrdinal]int, len(ordinals))
	placeholders := make([]interface{}, len(ordinals))
	query := `SELECT ordinal, LENGTH(text) FROM messages WHERE ordinal IN (`
	for i, ord := range ordinals {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = ord
	}
	query += ")"

	rows, err := m.db.conn.QueryContext(ctx, query, placeholders...)
	if err != nil {
		return 0, fmt.Errorf("fetch message lengths: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ord accum.MessageOrdinal
		var length int
		if err := rows.Scan(&ord, &length); err != nil {
			return 0, fmt.Errorf("scan message length: %w", err)
		}
		lengths[ord] = length
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	total := 0
	for i, ord := range ordinals {
		total += lengths[ord]
		if total > charBudget {
			return i, nil
		}
	}
	return len(ordinals), nil
}

// AddMessage inserts a message belonging to conversationID at the next
// ordinal and returns it, for use by the ingest pipeline.
func (m *Messages) AddMessage(ctx context.Context, conversationID int64, text string, timestamp time.Time) (accum.MessageOrdinal, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var nextOrdinal int64
	err := m.db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(ordinal), -1) + 1 FROM messages`).Scan(&nextOrdinal)
	if err != nil {
		return 0, fmt.Errorf("compute next message ordinal: %w", err)
	}

	_, err = m.db.conn.ExecContext(ctx,
		`INSERT INTO messages (ordinal, conversation_id, text, timestamp) VALUES (?, ?, ?, ?)`,
		nextOrdinal, conversationID, text, timestamp.UTC().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	return accum.MessageOrdinal(nextOrdinal), nil
}

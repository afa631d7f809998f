package store

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/rank"
	"github.com/sgx-labs/convsearch/internal/scope"
)

// SemanticRefs implements extern.SemanticRefCollection over the
// semantic_refs table.
type SemanticRefs struct {
	db *DB
}

// NewSemanticRefs wraps db as an extern.SemanticRefCollection.
func NewSemanticRefs(db *DB) *SemanticRefs {
	return &SemanticRefs{db: db}
}

// GetSemanticRef resolves ordinal to its knowledge type, text, and anchor
// location.
func (s *SemanticRefs) GetSemanticRef(ctx context.Context, ordinal accum.SemanticRefOrdinal) (extern.SemanticRef, error) {
	var knowledgeType, text string
	var messageOrdinal uint64
	var chunkOrdinal int
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT message_ordinal, chunk_ordinal, knowledge_type, text FROM semantic_refs WHERE ordinal = ?`,
		ordinal,
	).Scan(&messageOrdinal, &chunkOrdinal, &knowledgeType, &text)
	if err != nil {
		return extern.SemanticRef{}, fmt.Errorf("get semantic ref %d: %w", ordinal, err)
	}
	return extern.SemanticRef{
		Ordinal:       ordinal,
		KnowledgeType: rank.KnowledgeType(knowledgeType),
		Text:          text,
		Location:      scope.TextLocation{MessageOrdinal: messageOrdinal, ChunkOrdinal: chunkOrdinal},
	}, nil
}

// Count returns the total number of semantic refs stored.
func (s *SemanticRefs) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM semantic_refs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count semantic refs: %w", err)
	}
	return n, nil
}

// AddSemanticRef inserts a new semantic ref at the next ordinal and returns
// it, for use by the ingest pipeline.
func (s *SemanticRefs) AddSemanticRef(ctx context.Context, messageOrdinal accum.MessageOrdinal, chunkOrdinal int, knowledgeType rank.KnowledgeType, text string) (accum.SemanticRefOrdinal, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var nextOrdinal int64
	err := s.db.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(ordinal), -1) + 1 FROM semantic_refs`).Scan(&nextOrdinal)
	if err != nil {
		return 0, fmt.Errorf("compute next semantic ref ordinal: %w", err)
	}

	_, err = s.db.conn.ExecContext(ctx,
		`INSERT INTO semantic_refs (ordinal, message_ordinal, chunk_ordinal, knowledge_type, text) VALUES (?, ?, ?, ?, ?)`,
		nextOrdinal, messageOrdinal, chunkOrdinal, string(knowledgeType), text,
	)
	if err != nil {
		return 0, fmt.Errorf("insert semantic ref: %w", err)
	}
	return accum.SemanticRefOrdinal(nextOrdinal), nil
}

package store

import (
	"context"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/embedding"
	"github.com/sgx-labs/convsearch/internal/extern"
)

// MessageTextIndex implements extern.MessageTextIndex over the message_vec
// sqlite-vec virtual table, embedding the query text on the fly.
type MessageTextIndex struct {
	db       *DB
	embedder embedding.Provider
}

// NewMessageTextIndex wraps db as an extern.MessageTextIndex, embedding
// queries through embedder.
func NewMessageTextIndex(db *DB, embedder embedding.Provider) *MessageTextIndex {
	return &MessageTextIndex{db: db, embedder: embedder}
}

// FindSimilar embeds queryText and returns the maxResults nearest messages
// by vector distance, converted to a [0, 1] similarity score.
func (m *MessageTextIndex) FindSimilar(ctx context.Context, queryText string, maxResults int) ([]extern.ScoredMessage, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	vec, err := m.embedder.GetQueryEmbedding(queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vecData, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize query vector: %w", err)
	}

	rows, err := m.db.conn.QueryContext(ctx,
		`SELECT message_ordinal, distance FROM message_vec WHERE embedding MATCH ? AND k = ? ORDER BY distance`,
		vecData, maxResults,
	)
	if err != nil {
		return nil, fmt.Errorf("message vector search: %w", err)
	}
	defer rows.Close()

	type raw struct {
		ordinal  accum.MessageOrdinal
		distance float64
	}
	var results []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.ordinal, &r.distance); err != nil {
			return nil, fmt.Errorf("scan message vector match: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	minDist, maxDist := results[0].distance, results[0].distance
	for _, r := range results {
		if r.distance < minDist {
			minDist = r.distance
		}
		if r.distance > maxDist {
			maxDist = r.distance
		}
	}
	distRange := maxDist - minDist
	if distRange <= 0 {
		distRange = 1.0
	}

	out := make([]extern.ScoredMessage, 0, len(results))
	for _, r := range results {
		score := 1.0 - ((r.distance - minDist) / distRange)
		out = append(out, extern.ScoredMessage{Ordinal: r.ordinal, Score: score})
	}
	return out, nil
}

// FindSimilarInSubset embeds queryText and ranks it against only the given
// ordinals, for narrowing an already-matched candidate set down to its most
// semantically relevant members. Since sqlite-vec's KNN query can't take an
// arbitrary ordinal filter, it overfetches (5x the subset size) and
// discards anything outside ordinals in Go, preserving distance order.
func (m *MessageTextIndex) FindSimilarInSubset(ctx context.Context, queryText string, ordinals []accum.MessageOrdinal, maxResults int) ([]extern.ScoredMessage, error) {
	if len(ordinals) == 0 {
		return nil, nil
	}
	if maxResults <= 0 || maxResults > len(ordinals) {
		maxResults = len(ordinals)
	}
	allowed := make(map[accum.MessageOrdinal]bool, len(ordinals))
	for _, o := range ordinals {
		allowed[o] = true
	}

	fetchK := len(ordinals) * 5
	all, err := m.FindSimilar(ctx, queryText, fetchK)
	if err != nil {
		return nil, err
	}

	out := make([]extern.ScoredMessage, 0, maxResults)
	for _, sm := range all {
		if !allowed[sm.Ordinal] {
			continue
		}
		out = append(out, sm)
		if len(out) == maxResults {
			break
		}
	}
	return out, nil
}

// AddEmbedding stores the embedding for a message, used by the ingest
// pipeline after a message is inserted.
func (m *MessageTextIndex) AddEmbedding(ctx context.Context, ordinal accum.MessageOrdinal, vec []float32) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	vecData, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("serialize embedding: %w", err)
	}
	_, err = m.db.conn.ExecContext(ctx,
		`INSERT INTO message_vec (message_ordinal, embedding) VALUES (?, ?)`,
		ordinal, vecData,
	)
	if err != nil {
		return fmt.Errorf("insert message embedding: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/term"
)

// TermIndex implements extern.TermToSemanticRefIndex over the
// semantic_ref_terms table.
type TermIndex struct {
	db *DB
}

// NewTermIndex wraps db as an extern.TermToSemanticRefIndex.
func NewTermIndex(db *DB) *TermIndex {
	return &TermIndex{db: db}
}

// LookupTerm returns every semantic ref indexed under termText's prepared
// form, or nil if the term was never seen during ingest.
func (t *TermIndex) LookupTerm(ctx context.Context, termText string) ([]extern.ScoredSemanticRefOrdinal, error) {
	rows, err := t.db.conn.QueryContext(ctx,
		`SELECT semantic_ref_ordinal, weight FROM semantic_ref_terms WHERE term_text = ?`,
		term.Prepare(termText),
	)
	if err != nil {
		return nil, fmt.Errorf("lookup term %q: %w", termText, err)
	}
	defer rows.Close()

	var out []extern.ScoredSemanticRefOrdinal
	for rows.Next() {
		var ordinal accum.SemanticRefOrdinal
		var weight float64
		if err := rows.Scan(&ordinal, &weight); err != nil {
			return nil, fmt.Errorf("scan term match: %w", err)
		}
		out = append(out, extern.ScoredSemanticRefOrdinal{Ordinal: ordinal, Weight: weight})
	}
	return out, rows.Err()
}

// AddTerm indexes termText against ordinal with the given weight, used by
// the ingest pipeline when a semantic ref is extracted.
func (t *TermIndex) AddTerm(ctx context.Context, termText string, ordinal accum.SemanticRefOrdinal, weight float64) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	_, err := t.db.conn.ExecContext(ctx,
		`INSERT INTO semantic_ref_terms (term_text, semantic_ref_ordinal, weight) VALUES (?, ?, ?)`,
		term.Prepare(termText), ordinal, weight,
	)
	if err != nil {
		return fmt.Errorf("add term %q: %w", termText, err)
	}
	return nil
}

package kgraph

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/term"
)

// LookupRelatedTerms implements extern.TermsToRelatedTerms over the
// graph's related_to edges: every node co-mentioned with termText's node
// in some message, regardless of which knowledge type anchors either node
// (an alias can connect an entity to a topic, for instance).
func (db *DB) LookupRelatedTerms(ctx context.Context, termText string) ([]term.Term, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("lookup related terms: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT other.name, e.weight
		FROM graph_nodes self
		JOIN graph_edges e ON e.relationship = ?
			AND (e.source_id = self.id OR e.target_id = self.id)
		JOIN graph_nodes other ON other.id = CASE
			WHEN e.source_id = self.id THEN e.target_id ELSE e.source_id END
		WHERE self.name = ? AND other.id != self.id`,
		RelRelatedTo, term.Prepare(termText),
	)
	if err != nil {
		return nil, fmt.Errorf("lookup related terms for %q: %w", termText, err)
	}
	defer rows.Close()

	var terms []term.Term
	for rows.Next() {
		var name string
		var weight float64
		if err := rows.Scan(&name, &weight); err != nil {
			return nil, fmt.Errorf("scan related term: %w", err)
		}
		terms = append(terms, term.NewWeightedTerm(name, weight))
	}
	return terms, rows.Err()
}

// Package relatedfuzzy implements extern.TermToRelatedTermsFuzzy over a
// sqlite-vec KNN index of term embeddings: terms that never co-occur in an
// alias table but sit close together in embedding space (paraphrases,
// misspellings, domain synonyms) are still resolved as related.
package relatedfuzzy

import (
	"context"
	"database/sql"
	"fmt"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/sgx-labs/convsearch/internal/embedding"
	"github.com/sgx-labs/convsearch/internal/term"
)

// Index implements extern.TermToRelatedTermsFuzzy over the term_vec /
// term_vec_text tables created by internal/store's migration.
type Index struct {
	conn     *sql.DB
	embedder embedding.Provider
}

// New wraps conn (internal/store.DB.Conn()) and embedder as a fuzzy
// related-term resolver.
func New(conn *sql.DB, embedder embedding.Provider) *Index {
	return &Index{conn: conn, embedder: embedder}
}

// LookupFuzzy embeds termText and returns the maxMatches nearest indexed
// terms whose similarity score is at least minScore, most similar first.
func (idx *Index) LookupFuzzy(ctx context.Context, termText string, maxMatches int, minScore float64) ([]term.Term, error) {
	if maxMatches <= 0 {
		maxMatches = 5
	}
	vec, err := idx.embedder.GetQueryEmbedding(termText)
	if err != nil {
		return nil, fmt.Errorf("embed term %q: %w", termText, err)
	}
	vecData, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return nil, fmt.Errorf("serialize term vector: %w", err)
	}

	rows, err := idx.conn.QueryContext(ctx, `
		SELECT t.term_text, v.distance
		FROM term_vec v
		JOIN term_vec_text t ON t.rowid = v.term_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance`,
		vecData, maxMatches+1, // +1: the term itself is usually its own nearest neighbor
	)
	if err != nil {
		return nil, fmt.Errorf("term vector search: %w", err)
	}
	defer rows.Close()

	type raw struct {
		text     string
		distance float64
	}
	var results []raw
	prepared := term.Prepare(termText)
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.text, &r.distance); err != nil {
			return nil, fmt.Errorf("scan term vector match: %w", err)
		}
		if r.text == prepared {
			continue // drop the term matching itself
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	var out []term.Term
	for i, r := range results {
		if i >= maxMatches {
			break
		}
		// Similarity in (0, 1]: 1 for an identical vector, falling as the
		// distance grows, independent of the other candidates returned.
		score := 1.0 / (1.0 + r.distance)
		if score < minScore {
			continue
		}
		out = append(out, term.NewWeightedTerm(r.text, score))
	}
	return out, nil
}

// IndexTerm stores (or updates) the embedding for termText, used by the
// ingest pipeline as new terms are extracted.
func (idx *Index) IndexTerm(ctx context.Context, termText string) error {
	prepared := term.Prepare(termText)
	vec, err := idx.embedder.GetDocumentEmbedding(prepared)
	if err != nil {
		return fmt.Errorf("embed term %q: %w", termText, err)
	}
	vecData, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("serialize term vector: %w", err)
	}

	_, err = idx.conn.ExecContext(ctx,
		`INSERT INTO term_vec_text (term_text) VALUES (?)
		 ON CONFLICT(term_text) DO NOTHING`,
		prepared,
	)
	if err != nil {
		return fmt.Errorf("upsert term_vec_text: %w", err)
	}

	var rowid int64
	if err := idx.conn.QueryRowContext(ctx, `SELECT rowid FROM term_vec_text WHERE term_text = ?`, prepared).Scan(&rowid); err != nil {
		return fmt.Errorf("fetch term_vec_text rowid: %w", err)
	}

	// vec0 virtual tables don't support upsert; clear any prior embedding
	// for this term before inserting the current one.
	if _, err := idx.conn.ExecContext(ctx, `DELETE FROM term_vec WHERE term_rowid = ?`, rowid); err != nil {
		return fmt.Errorf("clear previous term_vec row: %w", err)
	}
	_, err = idx.conn.ExecContext(ctx, `INSERT INTO term_vec (term_rowid, embedding) VALUES (?, ?)`, rowid, vecData)
	if err != nil {
		return fmt.Errorf("insert term_vec: %w", err)
	}
	return nil
}

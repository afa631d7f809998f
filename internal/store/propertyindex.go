package store

import (
	"context"
	"fmt"

	"github.com/sgx-labs/convsearch/internal/accum"
	"github.com/sgx-labs/convsearch/internal/extern"
	"github.com/sgx-labs/convsearch/internal/term"
)

// PropertyIndex implements extern.PropertyToSemanticRefIndex over the
// semantic_ref_properties table: well-known properties (name, type, tag)
// and free-form facet names share the same table, keyed by property_name.
type PropertyIndex struct {
	db *DB
}

// NewPropertyIndex wraps db as an extern.PropertyToSemanticRefIndex.
func NewPropertyIndex(db *DB) *PropertyIndex {
	return &PropertyIndex{db: db}
}

// LookupProperty returns every semantic ref carrying propertyName=valueText.
func (p *PropertyIndex) LookupProperty(ctx context.Context, propertyName string, valueText string) ([]extern.ScoredSemanticRefOrdinal, error) {
	rows, err := p.db.conn.QueryContext(ctx,
		`SELECT semantic_ref_ordinal, weight FROM semantic_ref_properties WHERE property_name = ? AND value_text = ?`,
		propertyName, term.Prepare(valueText),
	)
	if err != nil {
		return nil, fmt.Errorf("lookup property %s=%q: %w", propertyName, valueText, err)
	}
	defer rows.Close()

	var out []extern.ScoredSemanticRefOrdinal
	for rows.Next() {
		var ordinal accum.SemanticRefOrdinal
		var weight float64
		if err := rows.Scan(&ordinal, &weight); err != nil {
			return nil, fmt.Errorf("scan property match: %w", err)
		}
		out = append(out, extern.ScoredSemanticRefOrdinal{Ordinal: ordinal, Weight: weight})
	}
	return out, rows.Err()
}

// AddProperty indexes propertyName=valueText against ordinal, used by the
// ingest pipeline when a semantic ref carries facets or well-known
// properties.
func (p *PropertyIndex) AddProperty(ctx context.Context, propertyName, valueText string, ordinal accum.SemanticRefOrdinal, weight float64) error {
	p.db.mu.Lock()
	defer p.db.mu.Unlock()
	_, err := p.db.conn.ExecContext(ctx,
		`INSERT INTO semantic_ref_properties (property_name, value_text, semantic_ref_ordinal, weight) VALUES (?, ?, ?, ?)`,
		propertyName, term.Prepare(valueText), ordinal, weight,
	)
	if err != nil {
		return fmt.Errorf("add property %s=%q: %w", propertyName, valueText, err)
	}
	return nil
}

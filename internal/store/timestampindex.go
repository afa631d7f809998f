package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sgx-labs/convsearch/internal/scope"
)

// TimestampIndex implements extern.TimestampToTextRangeIndex over the
// messages table's timestamp column.
type TimestampIndex struct {
	db *DB
}

// NewTimestampIndex wraps db as an extern.TimestampToTextRangeIndex.
func NewTimestampIndex(db *DB) *TimestampIndex {
	return &TimestampIndex{db: db}
}

// LookupRange returns one text range per message timestamped within
// [start, end), each spanning the message's full chunk span so a date
// filter doesn't accidentally exclude a later chunk of an in-range message.
func (t *TimestampIndex) LookupRange(ctx context.Context, start, end time.Time) ([]scope.TextRange, error) {
	rows, err := t.db.conn.QueryContext(ctx,
		`SELECT ordinal FROM messages WHERE timestamp >= ? AND timestamp < ? ORDER BY ordinal`,
		start.UTC().Unix(), end.UTC().Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("lookup date range: %w", err)
	}
	defer rows.Close()

	var out []scope.TextRange
	for rows.Next() {
		var ordinal uint64
		if err := rows.Scan(&ordinal); err != nil {
			return nil, fmt.Errorf("scan message ordinal: %w", err)
		}
		rangeEnd := scope.TextLocation{MessageOrdinal: ordinal + 1}
		out = append(out, scope.TextRange{
			Start: scope.TextLocation{MessageOrdinal: ordinal},
			End:   &rangeEnd,
		})
	}
	return out, rows.Err()
}

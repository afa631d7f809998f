package kgraph

import "fmt"

// PopulateFromStore bootstraps the graph from the conversation/message/
// semantic-ref tables internal/store maintains: one node per conversation
// and message, one node per distinct (knowledge_type, text) semantic ref,
// "about" edges from message to conversation, "mentions" edges from
// message to each semantic ref it contains, and "precedes" edges between
// consecutive messages within the same conversation.
func (db *DB) PopulateFromStore() error {
	if _, err := db.conn.Exec(`
		INSERT INTO graph_nodes (type, name, source_ordinal)
		SELECT 'conversation', CAST(id AS TEXT), id FROM conversations
		ON CONFLICT(type, name) DO UPDATE SET source_ordinal = excluded.source_ordinal`,
	); err != nil {
		return fmt.Errorf("populate conversation nodes: %w", err)
	}

	if _, err := db.conn.Exec(`
		INSERT INTO graph_nodes (type, name, source_ordinal)
		SELECT 'message', CAST(ordinal AS TEXT), ordinal FROM messages
		ON CONFLICT(type, name) DO UPDATE SET source_ordinal = excluded.source_ordinal`,
	); err != nil {
		return fmt.Errorf("populate message nodes: %w", err)
	}

	for _, knowledgeType := range []string{NodeEntity, NodeTopic, NodeAction, NodeTag} {
		if _, err := db.conn.Exec(`
			INSERT OR IGNORE INTO graph_nodes (type, name)
			SELECT DISTINCT ?, text FROM semantic_refs WHERE knowledge_type = ?`,
			knowledgeType, knowledgeType,
		); err != nil {
			return fmt.Errorf("populate %s nodes: %w", knowledgeType, err)
		}
	}

	if _, err := db.conn.Exec(`
		INSERT OR IGNORE INTO graph_edges (source_id, target_id, relationship)
		SELECT m.id, c.id, 'about'
		FROM messages msg
		JOIN graph_nodes m ON m.type = 'message' AND m.source_ordinal = msg.ordinal
		JOIN graph_nodes c ON c.type = 'conversation' AND c.source_ordinal = msg.conversation_id`,
	); err != nil {
		return fmt.Errorf("populate about edges: %w", err)
	}

	if _, err := db.conn.Exec(`
		INSERT OR IGNORE INTO graph_edges (source_id, target_id, relationship)
		SELECT m.id, k.id, 'mentions'
		FROM semantic_refs sr
		JOIN graph_nodes m ON m.type = 'message' AND m.source_ordinal = sr.message_ordinal
		JOIN graph_nodes k ON k.type = sr.knowledge_type AND k.name = sr.text`,
	); err != nil {
		return fmt.Errorf("populate mentions edges: %w", err)
	}

	if _, err := db.conn.Exec(`
		INSERT OR IGNORE INTO graph_edges (source_id, target_id, relationship)
		SELECT a.id, b.id, 'precedes'
		FROM messages m1
		JOIN messages m2 ON m2.conversation_id = m1.conversation_id AND m2.ordinal = (
			SELECT MIN(ordinal) FROM messages WHERE conversation_id = m1.conversation_id AND ordinal > m1.ordinal
		)
		JOIN graph_nodes a ON a.type = 'message' AND a.source_ordinal = m1.ordinal
		JOIN graph_nodes b ON b.type = 'message' AND b.source_ordinal = m2.ordinal`,
	); err != nil {
		return fmt.Errorf("populate precedes edges: %w", err)
	}

	// related_to edges connect every pair of knowledge nodes mentioned by
	// the same message (co-mention), weighted by how many messages mention
	// both. This is the alias source extern.TermsToRelatedTerms reads at
	// query time — a plain synonym table with no hand-authored entries.
	if _, err := db.conn.Exec(`
		INSERT INTO graph_edges (source_id, target_id, relationship, weight)
		SELECT ka.id, kb.id, 'related_to', COUNT(*)
		FROM semantic_refs sr1
		JOIN semantic_refs sr2 ON sr2.message_ordinal = sr1.message_ordinal AND sr2.ordinal > sr1.ordinal
		JOIN graph_nodes ka ON ka.type = sr1.knowledge_type AND ka.name = sr1.text
		JOIN graph_nodes kb ON kb.type = sr2.knowledge_type AND kb.name = sr2.text
		WHERE ka.id != kb.id
		GROUP BY ka.id, kb.id
		ON CONFLICT(source_id, target_id, relationship) DO UPDATE SET weight = excluded.weight`,
	); err != nil {
		return fmt.Errorf("populate related_to edges: %w", err)
	}

	return nil
}

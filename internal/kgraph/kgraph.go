// Package kgraph stores the relationships between conversations, messages,
// and the semantic refs extracted from them as a typed graph, supporting
// traversal queries a pure term/property lookup can't answer directly
// ("what else mentions this entity", "what preceded this message").
package kgraph

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Node types.
const (
	NodeMessage      = "message"
	NodeConversation = "conversation"
	NodeEntity       = "entity"
	NodeTopic        = "topic"
	NodeAction       = "action"
	NodeTag          = "tag"
)

// Relationship types.
const (
	RelMentions  = "mentions"  // message -> entity/topic/action/tag
	RelRelatedTo = "related_to" // entity/topic <-> entity/topic (co-mention)
	RelPrecedes  = "precedes"  // message -> message, conversation order
	RelAbout     = "about"     // message -> conversation
	RelPartOf    = "part_of"   // conversation -> conversation (thread grouping)
)

// Node is one graph vertex: a message, conversation, or a kind of semantic
// ref (entity/topic/action/tag), keyed by (type, name) for dedup.
type Node struct {
	ID          int64
	Type        string
	Name        string
	SourceOrdinal *int64 // nullable — message ordinal or conversation id this node anchors to
	Properties  string // JSON blob
	CreatedAt   int64  // unix timestamp
}

// Edge is one directed, weighted, typed relationship between two nodes.
type Edge struct {
	ID           int64
	SourceID     int64
	TargetID     int64
	Relationship string
	Weight       float64
	Properties   string
	CreatedAt    int64
}

// DB wraps a *sql.DB for graph operations. It does not own the connection
// — the caller (internal/store.DB) owns it.
type DB struct {
	conn *sql.DB
}

// NewDB wraps conn (internal/store.DB.Conn()) for graph operations.
func NewDB(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Migrate creates the graph tables if they don't already exist.
func (db *DB) Migrate() error {
	for _, stmt := range SchemaSQL() {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("kgraph migration failed: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

// SchemaSQL returns the SQL statements that create the graph tables.
func SchemaSQL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS graph_nodes (
			id INTEGER PRIMARY KEY,
			type TEXT NOT NULL,
			name TEXT NOT NULL,
			source_ordinal INTEGER,
			properties TEXT DEFAULT '{}',
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_graph_nodes_type_name ON graph_nodes(type, name)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_nodes_type ON graph_nodes(type)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_nodes_source_ordinal ON graph_nodes(source_ordinal)`,

		`CREATE TABLE IF NOT EXISTS graph_edges (
			id INTEGER PRIMARY KEY,
			source_id INTEGER NOT NULL,
			target_id INTEGER NOT NULL,
			relationship TEXT NOT NULL,
			weight REAL DEFAULT 1.0,
			properties TEXT DEFAULT '{}',
			created_at INTEGER NOT NULL DEFAULT (unixepoch()),
			FOREIGN KEY (source_id) REFERENCES graph_nodes(id) ON DELETE CASCADE,
			FOREIGN KEY (target_id) REFERENCES graph_nodes(id) ON DELETE CASCADE
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_graph_edges_src_tgt_rel ON graph_edges(source_id, target_id, relationship)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_graph_edges_relationship ON graph_edges(relationship)`,
	}
}

// UpsertNode inserts or updates a node by (type, name).
func (db *DB) UpsertNode(node *Node) (int64, error) {
	if node.Properties == "" {
		node.Properties = "{}"
	}
	if node.CreatedAt == 0 {
		node.CreatedAt = time.Now().Unix()
	}

	query := `
		INSERT INTO graph_nodes (type, name, source_ordinal, properties, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, name) DO UPDATE SET
			source_ordinal = COALESCE(excluded.source_ordinal, graph_nodes.source_ordinal),
			properties = excluded.properties
		RETURNING id`

	var id int64
	err := db.conn.QueryRow(query, node.Type, node.Name, node.SourceOrdinal, node.Properties, node.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert node: %w", err)
	}
	return id, nil
}

// UpsertEdge inserts or updates an edge by (source, target, relationship).
func (db *DB) UpsertEdge(edge *Edge) (int64, error) {
	if edge.Properties == "" {
		edge.Properties = "{}"
	}
	if edge.CreatedAt == 0 {
		edge.CreatedAt = time.Now().Unix()
	}
	if edge.Weight == 0 {
		edge.Weight = 1.0
	}

	query := `
		INSERT INTO graph_edges (source_id, target_id, relationship, weight, properties, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, relationship) DO UPDATE SET
			weight = excluded.weight,
			properties = excluded.properties
		RETURNING id`

	var id int64
	err := db.conn.QueryRow(query, edge.SourceID, edge.TargetID, edge.Relationship, edge.Weight, edge.Properties, edge.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert edge: %w", err)
	}
	return id, nil
}

// GetNode retrieves a node by ID.
func (db *DB) GetNode(id int64) (*Node, error) {
	var n Node
	err := db.conn.QueryRow(`
		SELECT id, type, name, source_ordinal, properties, created_at
		FROM graph_nodes WHERE id = ?`, id).Scan(
		&n.ID, &n.Type, &n.Name, &n.SourceOrdinal, &n.Properties, &n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get node %d: %w", id, err)
	}
	return &n, nil
}

// FindNode retrieves a node by type and name.
func (db *DB) FindNode(nodeType, name string) (*Node, error) {
	var n Node
	err := db.conn.QueryRow(`
		SELECT id, type, name, source_ordinal, properties, created_at
		FROM graph_nodes WHERE type = ? AND name = ?`, nodeType, name).Scan(
		&n.ID, &n.Type, &n.Name, &n.SourceOrdinal, &n.Properties, &n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find node %s/%s: %w", nodeType, name, err)
	}
	return &n, nil
}

// GetNeighbors returns adjacent nodes filtered by relationship and
// direction ("forward", "reverse", or "both").
func (db *DB) GetNeighbors(nodeID int64, relationship string, direction string) ([]Node, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT n.id, n.type, n.name, n.source_ordinal, n.properties, n.created_at FROM graph_nodes n `

	switch direction {
	case "forward":
		query = baseQuery + `JOIN graph_edges e ON e.target_id = n.id WHERE e.source_id = ?`
		args = append(args, nodeID)
	case "reverse":
		query = baseQuery + `JOIN graph_edges e ON e.source_id = n.id WHERE e.target_id = ?`
		args = append(args, nodeID)
	case "both":
		query = baseQuery + `
			JOIN graph_edges e ON (e.target_id = n.id AND e.source_id = ?) OR (e.source_id = n.id AND e.target_id = ?)
			WHERE n.id != ?`
		args = append(args, nodeID, nodeID, nodeID)
	default:
		return nil, fmt.Errorf("invalid direction: %s", direction)
	}

	if relationship != "" {
		query += ` AND e.relationship = ?`
		args = append(args, relationship)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("get neighbors of node %d: %w", nodeID, err)
	}
	defer rows.Close()

	var nodes []Node
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &n.SourceOrdinal, &n.Properties, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// Path is one traversal result: the node/edge sequence QueryGraph walked
// from the start node, plus the sum of edge weights along it.
type Path struct {
	Nodes       []Node
	Edges       []Edge
	TotalWeight float64
}

// QueryOptions parameterizes a QueryGraph traversal.
type QueryOptions struct {
	FromNodeID   int64
	FromNodeType string
	FromNodeName string
	Relationship string  // filter by relationship type (empty = all)
	Direction    string  // "forward" or "reverse"
	MaxDepth     int     // traversal depth, default 5, max 10
	MinWeight    float64 // filter by edge weight
}

// QueryGraph performs a recursive traversal using a CTE to find every path
// reachable from the start node within MaxDepth hops. It backs ad hoc
// exploration (a CLI "graph" subcommand) rather than the query engine
// itself, which reads the graph only through LookupRelatedTerms.
func (db *DB) QueryGraph(opts QueryOptions) ([]Path, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 5
	}
	if opts.MaxDepth > 10 {
		opts.MaxDepth = 10
	}

	startNodeID := opts.FromNodeID
	if startNodeID == 0 && opts.FromNodeType != "" && opts.FromNodeName != "" {
		n, err := db.FindNode(opts.FromNodeType, opts.FromNodeName)
		if err != nil {
			return nil, fmt.Errorf("start node not found: %w", err)
		}
		startNodeID = n.ID
	}
	if startNodeID == 0 {
		return nil, fmt.Errorf("start node required")
	}

	if opts.Direction != "forward" && opts.Direction != "reverse" {
		return nil, fmt.Errorf("direction %q not supported for recursive traversal", opts.Direction)
	}

	nextCol := map[string]string{"forward": "e.target_id", "reverse": "e.source_id"}[opts.Direction]
	joinCol := map[string]string{"forward": "t.target_id = e.source_id", "reverse": "t.source_id = e.target_id"}[opts.Direction]
	baseWhere := map[string]string{"forward": "source_id = ?", "reverse": "target_id = ?"}[opts.Direction]

	cte := `
	WITH RECURSIVE traversal(id, source_id, target_id, relationship, weight, depth, path_ids, path_edge_ids) AS (
		SELECT id, source_id, target_id, relationship, weight, 1,
			cast(source_id as text) || ',' || cast(target_id as text),
			cast(id as text)
		FROM graph_edges
		WHERE ` + baseWhere + `
		  AND (? = '' OR relationship = ?)
		  AND weight >= ?

		UNION ALL

		SELECT e.id, e.source_id, e.target_id, e.relationship, e.weight, t.depth + 1,
			t.path_ids || ',' || cast(` + nextCol + ` as text),
			t.path_edge_ids || ',' || cast(e.id as text)
		FROM graph_edges e
		JOIN traversal t ON ` + joinCol + `
		WHERE t.depth < ?
		  AND (? = '' OR e.relationship = ?)
		  AND e.weight >= ?
		  AND instr(',' || t.path_ids || ',', ',' || cast(` + nextCol + ` as text) || ',') = 0
	)
	SELECT id, source_id, target_id, relationship, weight, depth, path_ids, path_edge_ids FROM traversal
	LIMIT 1000`

	rows, err := db.conn.Query(cte,
		startNodeID,
		opts.Relationship, opts.Relationship,
		opts.MinWeight,
		opts.MaxDepth,
		opts.Relationship, opts.Relationship,
		opts.MinWeight,
	)
	if err != nil {
		return nil, fmt.Errorf("query graph: %w", err)
	}
	defer rows.Close()

	type traversalRow struct {
		EdgeID      int64
		SourceID    int64
		TargetID    int64
		Rel         string
		Weight      float64
		Depth       int
		PathIDs     string
		PathEdgeIDs string
	}

	var rowsData []traversalRow
	nodeIDs := map[int64]bool{startNodeID: true}
	edgeIDs := map[int64]bool{}

	for rows.Next() {
		var r traversalRow
		if err := rows.Scan(&r.EdgeID, &r.SourceID, &r.TargetID, &r.Rel, &r.Weight, &r.Depth, &r.PathIDs, &r.PathEdgeIDs); err != nil {
			return nil, fmt.Errorf("scan traversal row: %w", err)
		}
		rowsData = append(rowsData, r)
		nodeIDs[r.SourceID] = true
		nodeIDs[r.TargetID] = true
		edgeIDs[r.EdgeID] = true
		for _, id := range parseIDList(r.PathEdgeIDs) {
			edgeIDs[id] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	nodes, err := db.fetchNodes(nodeIDs)
	if err != nil {
		return nil, err
	}
	edges, err := db.fetchEdges(edgeIDs)
	if err != nil {
		return nil, err
	}

	var paths []Path
	seen := map[string]bool{}
	for _, r := range rowsData {
		nodeSeq := parseIDList(r.PathIDs)
		if len(nodeSeq) < 2 {
			continue
		}
		edgeSeq := parseIDList(r.PathEdgeIDs)
		key := r.PathIDs + "|" + r.PathEdgeIDs
		if seen[key] {
			continue
		}
		seen[key] = true

		path := Path{Nodes: make([]Node, 0, len(nodeSeq)), Edges: make([]Edge, 0, len(edgeSeq))}
		for _, id := range nodeSeq {
			if n, ok := nodes[id]; ok {
				path.Nodes = append(path.Nodes, n)
			}
		}
		for _, id := range edgeSeq {
			if e, ok := edges[id]; ok {
				path.Edges = append(path.Edges, e)
				path.TotalWeight += e.Weight
			}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (db *DB) fetchNodes(ids map[int64]bool) (map[int64]Node, error) {
	nodes := map[int64]Node{}
	if len(ids) == 0 {
		return nodes, nil
	}
	placeholders := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids))
	for id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	q := "SELECT id, type, name, source_ordinal, properties, created_at FROM graph_nodes WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Type, &n.Name, &n.SourceOrdinal, &n.Properties, &n.CreatedAt); err != nil {
			return nil, err
		}
		nodes[n.ID] = n
	}
	return nodes, rows.Err()
}

func (db *DB) fetchEdges(ids map[int64]bool) (map[int64]Edge, error) {
	edges := map[int64]Edge{}
	if len(ids) == 0 {
		return edges, nil
	}
	placeholders := make([]string, 0, len(ids))
	args := make([]interface{}, 0, len(ids))
	for id := range ids {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	q := "SELECT id, source_id, target_id, relationship, weight, properties, created_at FROM graph_edges WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &e.Relationship, &e.Weight, &e.Properties, &e.CreatedAt); err != nil {
			return nil, err
		}
		edges[e.ID] = e
	}
	return edges, rows.Err()
}

func parseIDList(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// Stats summarizes the current graph's size and shape.
type Stats struct {
	TotalNodes          int
	TotalEdges          int
	NodesByType         map[string]int
	EdgesByRelationship map[string]int
}

// GetStats computes the current graph's Stats.
func (db *DB) GetStats() (Stats, error) {
	stats := Stats{NodesByType: map[string]int{}, EdgesByRelationship: map[string]int{}}

	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM graph_nodes`).Scan(&stats.TotalNodes); err != nil {
		return stats, fmt.Errorf("count nodes: %w", err)
	}
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM graph_edges`).Scan(&stats.TotalEdges); err != nil {
		return stats, fmt.Errorf("count edges: %w", err)
	}

	rows, err := db.conn.Query(`SELECT type, COUNT(*) FROM graph_nodes GROUP BY type`)
	if err != nil {
		return stats, fmt.Errorf("count nodes by type: %w", err)
	}
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.NodesByType[t] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = db.conn.Query(`SELECT relationship, COUNT(*) FROM graph_edges GROUP BY relationship`)
	if err != nil {
		return stats, fmt.Errorf("count edges by relationship: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r string
		var n int
		if err := rows.Scan(&r, &n); err != nil {
			return stats, err
		}
		stats.EdgesByRelationship[r] = n
	}
	return stats, rows.Err()
}

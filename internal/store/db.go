// Package store provides the SQLite + sqlite-vec backed implementations of
// the query engine's external interfaces (internal/extern): term and
// property indices, the semantic-ref and message collections, and the
// message similarity index. Schema and migration plumbing is ported from
// the teacher's vault-note store, renamed to the conversation/message/
// semantic-ref domain this engine searches.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sgx-labs/convsearch/internal/config"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// DB wraps a SQLite connection with sqlite-vec support, plus the term,
// property, and message-similarity indices the core query engine depends
// on via internal/extern.
type DB struct {
	conn         *sql.DB
	mu           sync.Mutex // serialize writes
	ftsAvailable bool       // true if FTS5 module is available
}

// Open opens or creates the database at the configured path.
func Open() (*DB, error) {
	return OpenPath(config.DBPath())
}

// OpenPath opens or creates the database at the given path.
func OpenPath(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// OpenMemory opens an in-memory database for testing.
func OpenMemory() (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for direct queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL DEFAULT '',
			source_path TEXT DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			ordinal INTEGER PRIMARY KEY,
			conversation_id INTEGER NOT NULL,
			text TEXT NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp)`,

		`CREATE TABLE IF NOT EXISTS semantic_refs (
			ordinal INTEGER PRIMARY KEY,
			message_ordinal INTEGER NOT NULL,
			chunk_ordinal INTEGER NOT NULL DEFAULT 0,
			knowledge_type TEXT NOT NULL,
			text TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_refs_message ON semantic_refs(message_ordinal)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_refs_type ON semantic_refs(knowledge_type)`,

		`CREATE TABLE IF NOT EXISTS semantic_ref_terms (
			term_text TEXT NOT NULL,
			semantic_ref_ordinal INTEGER NOT NULL,
			weight REAL NOT NULL DEFAULT 1.0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_ref_terms_text ON semantic_ref_terms(term_text)`,

		`CREATE TABLE IF NOT EXISTS semantic_ref_properties (
			property_name TEXT NOT NULL,
			value_text TEXT NOT NULL,
			semantic_ref_ordinal INTEGER NOT NULL,
			weight REAL NOT NULL DEFAULT 1.0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_semantic_ref_properties_lookup ON semantic_ref_properties(property_name, value_text)`,

		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS message_vec USING vec0(
			message_ordinal INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, config.EmbeddingDim()),

		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS term_vec USING vec0(
			term_rowid INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, config.EmbeddingDim()),
		`CREATE TABLE IF NOT EXISTS term_vec_text (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			term_text TEXT NOT NULL UNIQUE
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	currentVersion := db.SchemaVersion()
	versionedMigrations := []struct {
		version int
		fn      func() error
	}{
		{1, db.migrateV1}, // establishes version tracking baseline
		{2, db.migrateV2}, // FTS5 full-text search over message text
	}
	for _, m := range versionedMigrations {
		if currentVersion < m.version {
			if err := m.fn(); err != nil {
				return fmt.Errorf("migration v%d: %w", m.version, err)
			}
			if err := db.SetMeta("schema_version", strconv.Itoa(m.version)); err != nil {
				return fmt.Errorf("record migration v%d: %w", m.version, err)
			}
		}
	}

	return nil
}

// migrateV1 is a no-op that establishes version 1 as the baseline.
func (db *DB) migrateV1() error {
	return nil
}

// migrateV2 creates an FTS5 virtual table over message text. Nothing in
// this module queries it. FTS5 may not be available on all SQLite builds —
// best-effort, non-fatal.
func (db *DB) migrateV2() error {
	_, err := db.conn.Exec(`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		text,
		content=messages, content_rowid=ordinal
	)`)
	if err != nil {
		db.ftsAvailable = false
		return nil
	}
	db.ftsAvailable = true
	_, _ = db.conn.Exec(`INSERT INTO messages_fts(messages_fts) VALUES('rebuild')`)
	return nil
}

// SchemaVersion returns the current schema version (0 if unset).
func (db *DB) SchemaVersion() int {
	v, ok := db.GetMeta("schema_version")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// GetMeta reads a value from the schema_meta table. Returns ("", false) if not found.
func (db *DB) GetMeta(key string) (string, bool) {
	var value string
	err := db.conn.QueryRow(`SELECT value FROM schema_meta WHERE key = ?`, key).Scan(&value)
	if err != nil {
		return "", false
	}
	return value, true
}

// SetMeta writes a key-value pair to the schema_meta table.
func (db *DB) SetMeta(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO schema_meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// FTSAvailable returns true if the FTS5 module is available.
func (db *DB) FTSAvailable() bool {
	return db.ftsAvailable
}

// RebuildFTS rebuilds the FTS5 index from the messages table. The ingest
// pipeline does not call it. No-op if FTS5 is unavailable.
func (db *DB) RebuildFTS() error {
	if !db.ftsAvailable {
		return nil
	}
	_, err := db.conn.Exec(`INSERT INTO messages_fts(messages_fts) VALUES('rebuild')`)
	return err
}

// IntegrityCheck runs SQLite PRAGMA integrity_check and returns an error if corruption is detected.
func (db *DB) IntegrityCheck() error {
	var result string
	err := db.conn.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}
	return nil
}

// SetEmbeddingMeta records the current embedding provider, model, and dimensions.
func (db *DB) SetEmbeddingMeta(provider, model string, dims int) error {
	if err := db.SetMeta("embed_provider", provider); err != nil {
		return err
	}
	if err := db.SetMeta("embed_model", model); err != nil {
		return err
	}
	return db.SetMeta("embed_dims", strconv.Itoa(dims))
}

// CheckEmbeddingMeta compares the given embedding config against what was used
// at last reindex. Returns an error if there's a mismatch. Returns nil if no
// stored metadata exists (pre-migration DB or first ingest).
func (db *DB) CheckEmbeddingMeta(provider, model string, dims int) error {
	storedProvider, hasProvider := db.GetMeta("embed_provider")
	storedModel, hasModel := db.GetMeta("embed_model")
	storedDimsStr, hasDims := db.GetMeta("embed_dims")

	if !hasProvider && !hasModel && !hasDims {
		return nil
	}

	storedDims, _ := strconv.Atoi(storedDimsStr)

	if hasDims && dims > 0 && storedDims > 0 && storedDims != dims {
		return fmt.Errorf("embedding dimensions changed from %d to %d — run 'convsearch ingest --force' to rebuild", storedDims, dims)
	}

	if hasProvider && hasModel && (storedProvider != provider || storedModel != model) {
		return fmt.Errorf("embedding model changed from %s/%s to %s/%s — run 'convsearch ingest --force' to rebuild",
			storedProvider, storedModel, provider, model)
	}

	return nil
}

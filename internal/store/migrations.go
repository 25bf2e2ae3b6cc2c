package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: records with embeddings and supersession lifecycle",
		SQL: `
CREATE TABLE memories (
    id                TEXT PRIMARY KEY,
    content           TEXT NOT NULL,
    category          TEXT NOT NULL CHECK (category IN ('fact', 'observation', 'action', 'plan')),
    importance        REAL NOT NULL DEFAULT 0.5,

    -- Embedding representations
    embedding         BLOB,
    embedding_int8    BLOB,
    embedding_binary  BLOB,

    -- Access & decay
    access_count      INTEGER NOT NULL DEFAULT 0,
    last_accessed_at  INTEGER,
    decay_rate        REAL NOT NULL DEFAULT 0.01,
    protected         INTEGER NOT NULL DEFAULT 0,

    -- Supersession chain
    supersedes_id     TEXT,
    superseded_at     INTEGER,
    supersession_type TEXT CHECK (supersession_type IN ('update', 'correction', 'refinement', 'merge')),

    -- Validity window: valid_from inclusive, valid_until exclusive
    valid_from        INTEGER,
    valid_until       INTEGER,

    inserted_at       INTEGER NOT NULL,

    CHECK (id != supersedes_id)
);

CREATE INDEX idx_memories_active_category ON memories(category) WHERE superseded_at IS NULL;
CREATE INDEX idx_memories_decay           ON memories(protected, importance, last_accessed_at);
CREATE INDEX idx_memories_supersedes      ON memories(supersedes_id);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

package store

import (
	"database/sql"
	"fmt"
)

// ensureSchema creates the reports table, its indices, the latest-per-entity
// cache and the refresh counter if they don't exist. Uses IF NOT EXISTS —
// safe to call on every startup, grounded on cmd/dplaned/schema.go's
// initSchema idiom.
func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS reports (
			id          TEXT PRIMARY KEY,
			node_id     TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			lat         REAL NOT NULL,
			lon         REAL NOT NULL,
			alt         REAL,
			accuracy    REAL,
			metadata    TEXT NOT NULL DEFAULT '{}',
			created_at  INTEGER NOT NULL CHECK (created_at > 0)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_entity_id ON reports(entity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_entity_type ON reports(entity_type)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_node_id ON reports(node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reports_entity_created ON reports(entity_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS latest_per_entity (
			entity_id  TEXT PRIMARY KEY,
			report_id  TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS refresh_counter (
			id    INTEGER PRIMARY KEY CHECK (id = 1),
			count INTEGER NOT NULL DEFAULT 0
		)`,
		`INSERT OR IGNORE INTO refresh_counter (id, count) VALUES (1, 0)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store schema init failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

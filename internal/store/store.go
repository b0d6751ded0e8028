// Package store implements the Location Store (spec.md §4.2, component
// C2): durable storage of LocationReport rows plus the LatestPerEntity
// cache and the RefreshCounter singleton.
//
// Schema and pragma choices are grounded on cmd/dplaned/schema.go and
// cmd/dplaned/main.go's sqlite3 DSN (WAL mode, busy timeout) — the same
// durability posture the teacher daemon applies to its own SQLite store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"meshnode/internal/merr"
)

// Store is the Location Store. All writes serialize on mu — the store's
// own invariant ("writes to the same id serialize") is satisfied by
// serializing all writes, which is simpler than per-id locking and,
// since SQLite accepts one writer at a time regardless, costs nothing
// under WAL mode.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open wraps an already-configured *sql.DB (WAL mode, busy_timeout, etc.
// set by the caller the way cmd/meshnoded/main.go sets them) and ensures
// the store's schema exists.
func Open(db *sql.DB) (*Store, error) {
	if err := ensureSchema(db); err != nil {
		return nil, merr.Storage("schema init", err)
	}
	return &Store{db: db}, nil
}

// Insert applies the single-insert contract of spec.md §4.2.
func (s *Store) Insert(r LocationReport) (InsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(r)
}

func (s *Store) insertLocked(r LocationReport) (InsertOutcome, error) {
	existing, found, err := s.getByID(r.ID)
	if err != nil {
		return "", merr.Storage("lookup existing report", err)
	}
	if found {
		if reportsEqual(existing, r) {
			return AlreadyPresent, nil
		}
		return "", merr.ReportConflict(fmt.Sprintf("id %q already present with different contents", r.ID))
	}

	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return "", merr.InvalidParameter("metadata is not valid JSON: " + err.Error())
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", merr.Storage("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO reports (id, node_id, entity_id, entity_type, lat, lon, alt, accuracy, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.NodeID, r.EntityID, r.EntityType, r.Position.Lat, r.Position.Lon,
		r.Position.Alt, r.Position.Accuracy, string(metaJSON), r.CreatedAt,
	)
	if err != nil {
		return "", merr.Storage("insert report", err)
	}

	var cachedCreatedAt int64
	row := tx.QueryRow(`SELECT created_at FROM latest_per_entity WHERE entity_id = ?`, r.EntityID)
	scanErr := row.Scan(&cachedCreatedAt)
	switch {
	case scanErr == sql.ErrNoRows:
		if _, err := tx.Exec(
			`INSERT INTO latest_per_entity (entity_id, report_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			r.EntityID, r.ID, r.CreatedAt, nowMillis(),
		); err != nil {
			return "", merr.Storage("seed latest cache", err)
		}
	case scanErr != nil:
		return "", merr.Storage("read latest cache", scanErr)
	case r.CreatedAt > cachedCreatedAt:
		if _, err := tx.Exec(
			`UPDATE latest_per_entity SET report_id = ?, created_at = ?, updated_at = ? WHERE entity_id = ?`,
			r.ID, r.CreatedAt, nowMillis(), r.EntityID,
		); err != nil {
			return "", merr.Storage("refresh latest cache", err)
		}
	}

	if _, err := tx.Exec(`UPDATE refresh_counter SET count = count + 1 WHERE id = 1`); err != nil {
		return "", merr.Storage("increment refresh counter", err)
	}

	if err := tx.Commit(); err != nil {
		return "", merr.Storage("commit insert", err)
	}
	return Inserted, nil
}

// InsertBatch applies each element's single-insert contract; the batch
// itself is not atomic across elements (spec.md §4.2).
func (s *Store) InsertBatch(reports []LocationReport) BatchResult {
	var res BatchResult
	for i, r := range reports {
		outcome, err := s.Insert(r)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, BatchError{Index: i, Reason: err.Error()})
			continue
		}
		if outcome == Inserted {
			res.Created++
		}
	}
	return res
}

// ListBetween returns reports with from_ms <= created_at <= to_ms,
// ascending, optionally filtered to one origin node (spec.md §4.2).
func (s *Store) ListBetween(nodeID *string, fromMs, toMs int64) ([]LocationReport, error) {
	query := `SELECT id, node_id, entity_id, entity_type, lat, lon, alt, accuracy, metadata, created_at
	          FROM reports WHERE created_at >= ? AND created_at <= ?`
	args := []interface{}{fromMs, toMs}
	if nodeID != nil {
		query += " AND node_id = ?"
		args = append(args, *nodeID)
	}
	query += " ORDER BY created_at ASC"
	return s.query(query, args...)
}

// ListSince returns reports with created_at > sinceMs, ascending,
// optionally filtered to one origin node.
//
// spec.md §9 flags that the source's "since" semantics differ between
// ">" and ">=" across code paths and mandates one uniform convention.
// This implementation standardizes on strict "greater than", matching
// spec.md §6's literal description of the HTTP endpoint — see
// DESIGN.md's Open Question decision.
func (s *Store) ListSince(nodeID *string, sinceMs int64) ([]LocationReport, error) {
	query := `SELECT id, node_id, entity_id, entity_type, lat, lon, alt, accuracy, metadata, created_at
	          FROM reports WHERE created_at > ?`
	args := []interface{}{sinceMs}
	if nodeID != nil {
		query += " AND node_id = ?"
		args = append(args, *nodeID)
	}
	query += " ORDER BY created_at ASC"
	return s.query(query, args...)
}

// LatestFor returns the LatestPerEntity cache rows, optionally filtered
// to the given entity types.
func (s *Store) LatestFor(entityTypes []string) ([]LocationReport, error) {
	query := `SELECT r.id, r.node_id, r.entity_id, r.entity_type, r.lat, r.lon, r.alt, r.accuracy, r.metadata, r.created_at
	          FROM latest_per_entity l JOIN reports r ON r.id = l.report_id`
	var args []interface{}
	if len(entityTypes) > 0 {
		placeholders := make([]string, len(entityTypes))
		for i, t := range entityTypes {
			placeholders[i] = "?"
			args = append(args, t)
		}
		query += " WHERE r.entity_type IN (" + strings.Join(placeholders, ",") + ")"
	}
	query += " ORDER BY r.entity_id ASC"
	return s.query(query, args...)
}

// HistoryFor returns up to limit reports for one entity, newest first,
// optionally bounded below by sinceMs (spec.md §4.2).
func (s *Store) HistoryFor(entityID string, sinceMs *int64, limit int) ([]LocationReport, error) {
	query := `SELECT id, node_id, entity_id, entity_type, lat, lon, alt, accuracy, metadata, created_at
	          FROM reports WHERE entity_id = ?`
	args := []interface{}{entityID}
	if sinceMs != nil {
		query += " AND created_at >= ?"
		args = append(args, *sinceMs)
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.query(query, args...)
}

// Stats returns aggregate counts (spec.md §4.2).
func (s *Store) Stats() (Stats, error) {
	st := Stats{PerType: map[string]int{}, PerNode: map[string]int{}}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reports`).Scan(&st.Total); err != nil {
		return Stats{}, merr.Storage("count reports", err)
	}

	rows, err := s.db.Query(`SELECT entity_type, COUNT(*) FROM reports GROUP BY entity_type`)
	if err != nil {
		return Stats{}, merr.Storage("per-type stats", err)
	}
	for rows.Next() {
		var t string
		var c int
		if err := rows.Scan(&t, &c); err != nil {
			rows.Close()
			return Stats{}, merr.Storage("scan per-type stats", err)
		}
		st.PerType[t] = c
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT node_id, COUNT(*) FROM reports GROUP BY node_id`)
	if err != nil {
		return Stats{}, merr.Storage("per-node stats", err)
	}
	for rows.Next() {
		var n string
		var c int
		if err := rows.Scan(&n, &c); err != nil {
			rows.Close()
			return Stats{}, merr.Storage("scan per-node stats", err)
		}
		st.PerNode[n] = c
	}
	rows.Close()

	return st, nil
}

// RefreshCount returns the current RefreshCounter value.
func (s *Store) RefreshCount() (int64, error) {
	var c int64
	if err := s.db.QueryRow(`SELECT count FROM refresh_counter WHERE id = 1`).Scan(&c); err != nil {
		return 0, merr.Storage("read refresh counter", err)
	}
	return c, nil
}

// AcknowledgeRefresh resets the RefreshCounter to zero. Called by the
// (out-of-scope) rendering collaborator when it has consumed the
// pending inserts; the core never calls this itself.
func (s *Store) AcknowledgeRefresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE refresh_counter SET count = 0 WHERE id = 1`)
	if err != nil {
		return merr.Storage("reset refresh counter", err)
	}
	return nil
}

func (s *Store) getByID(id string) (LocationReport, bool, error) {
	row := s.db.QueryRow(
		`SELECT id, node_id, entity_id, entity_type, lat, lon, alt, accuracy, metadata, created_at
		 FROM reports WHERE id = ?`, id,
	)
	r, err := scanReport(row)
	if err == sql.ErrNoRows {
		return LocationReport{}, false, nil
	}
	if err != nil {
		return LocationReport{}, false, err
	}
	return r, true, nil
}

func (s *Store) query(query string, args ...interface{}) ([]LocationReport, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, merr.Storage("query reports", err)
	}
	defer rows.Close()

	var out []LocationReport
	for rows.Next() {
		r, err := scanReportRows(rows)
		if err != nil {
			return nil, merr.Storage("scan report", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, merr.Storage("iterate reports", err)
	}
	return out, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (LocationReport, error) {
	return scanInto(row)
}

func scanReportRows(rows *sql.Rows) (LocationReport, error) {
	return scanInto(rows)
}

func scanInto(row rowScanner) (LocationReport, error) {
	var r LocationReport
	var metaJSON string
	if err := row.Scan(
		&r.ID, &r.NodeID, &r.EntityID, &r.EntityType,
		&r.Position.Lat, &r.Position.Lon, &r.Position.Alt, &r.Position.Accuracy,
		&metaJSON, &r.CreatedAt,
	); err != nil {
		return LocationReport{}, err
	}
	if metaJSON != "" {
		if err := json.Unmarshal([]byte(metaJSON), &r.Metadata); err != nil {
			return LocationReport{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return r, nil
}

// reportsEqual compares two reports for the "identical contents" test
// insert() needs to distinguish idempotent re-inserts from conflicts.
func reportsEqual(a, b LocationReport) bool {
	if a.NodeID != b.NodeID || a.EntityID != b.EntityID || a.EntityType != b.EntityType {
		return false
	}
	if a.CreatedAt != b.CreatedAt {
		return false
	}
	if a.Position.Lat != b.Position.Lat || a.Position.Lon != b.Position.Lon {
		return false
	}
	if !floatPtrEqual(a.Position.Alt, b.Position.Alt) || !floatPtrEqual(a.Position.Accuracy, b.Position.Accuracy) {
		return false
	}
	aMeta, _ := json.Marshal(a.Metadata)
	bMeta, _ := json.Marshal(b.Metadata)
	return string(aMeta) == string(bMeta)
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Package synclog implements the Sync Log (spec.md §4.4, component C4):
// per-peer forward/backward cursor bookkeeping that the Pull Scheduler
// advances as it walks each peer's report history.
//
// The upsert is grounded on internal/ha/cluster.go's persistNode, which
// uses the same INSERT ... ON CONFLICT DO UPDATE idiom to keep one row
// per peer current without a separate exists-check round trip.
package synclog

import (
	"database/sql"

	"meshnode/internal/merr"
)

// PeerSyncState is one peer's cursor pair (spec.md §4.4).
type PeerSyncState struct {
	PeerID         string
	ForwardCursor  int64
	BackwardCursor int64
	LastSyncedAt   int64
	LastOutcome    string
}

// Log is the Sync Log.
type Log struct {
	db *sql.DB
}

// Open wraps an already-configured *sql.DB and ensures the sync log's
// schema exists.
func Open(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS peer_sync_state (
			peer_id         TEXT PRIMARY KEY,
			forward_cursor  INTEGER NOT NULL DEFAULT 0,
			backward_cursor INTEGER NOT NULL DEFAULT 0,
			last_synced_at  INTEGER NOT NULL DEFAULT 0,
			last_outcome    TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return nil, merr.Storage("sync log schema init", err)
	}
	return &Log{db: db}, nil
}

// Get returns a peer's cursor state, or the zero state if the peer has
// never been synced (spec.md §4.4: an absent row means forward_cursor=0,
// backward_cursor=0 — "sync everything").
func (l *Log) Get(peerID string) (PeerSyncState, error) {
	st := PeerSyncState{PeerID: peerID}
	row := l.db.QueryRow(
		`SELECT forward_cursor, backward_cursor, last_synced_at, last_outcome
		 FROM peer_sync_state WHERE peer_id = ?`, peerID,
	)
	err := row.Scan(&st.ForwardCursor, &st.BackwardCursor, &st.LastSyncedAt, &st.LastOutcome)
	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return PeerSyncState{}, merr.Storage("read peer sync state", err)
	}
	return st, nil
}

// Put persists a peer's cursor state. The scheduler must only call this
// after the corresponding reports have been committed to the Location
// Store — cursors must never advance past data that isn't durable yet
// (spec.md §4.4).
func (l *Log) Put(st PeerSyncState) error {
	_, err := l.db.Exec(`
		INSERT INTO peer_sync_state (peer_id, forward_cursor, backward_cursor, last_synced_at, last_outcome)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(peer_id) DO UPDATE SET
			forward_cursor=excluded.forward_cursor,
			backward_cursor=excluded.backward_cursor,
			last_synced_at=excluded.last_synced_at,
			last_outcome=excluded.last_outcome
	`, st.PeerID, st.ForwardCursor, st.BackwardCursor, st.LastSyncedAt, st.LastOutcome)
	if err != nil {
		return merr.Storage("persist peer sync state", err)
	}
	return nil
}

// All returns every tracked peer's cursor state, for the status surface
// (spec.md §6 GET /api/sync/status).
func (l *Log) All() ([]PeerSyncState, error) {
	rows, err := l.db.Query(
		`SELECT peer_id, forward_cursor, backward_cursor, last_synced_at, last_outcome FROM peer_sync_state`,
	)
	if err != nil {
		return nil, merr.Storage("list peer sync state", err)
	}
	defer rows.Close()

	var out []PeerSyncState
	for rows.Next() {
		var st PeerSyncState
		if err := rows.Scan(&st.PeerID, &st.ForwardCursor, &st.BackwardCursor, &st.LastSyncedAt, &st.LastOutcome); err != nil {
			return nil, merr.Storage("scan peer sync state", err)
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, merr.Storage("iterate peer sync state", err)
	}
	return out, nil
}

// Forget removes a peer's cursor state, used when a peer is permanently
// deregistered (spec.md §4.3 deregister_peer).
func (l *Log) Forget(peerID string) error {
	if _, err := l.db.Exec(`DELETE FROM peer_sync_state WHERE peer_id = ?`, peerID); err != nil {
		return merr.Storage("forget peer sync state", err)
	}
	return nil
}

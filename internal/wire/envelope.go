// Package wire defines the JSON envelope shared by the Sync HTTP
// Surface (server side, internal/syncapi) and the Pull Scheduler's
// peer client (internal/scheduler) — spec.md §4.6: "All responses are
// JSON of the envelope {status, data, message?}."
package wire

// Envelope is the response shape every sync endpoint uses.
type Envelope struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NodeListData is the payload of GET /api/sync/node/list.
type NodeListData struct {
	NodeIDs []string `json:"node_ids"`
}

// SyncRoundError is one peer's failure entry in an aggregate round result.
type SyncRoundError struct {
	NodeID string `json:"node_id"`
	Error  string `json:"error"`
}

// AggregateSyncResult is the payload of POST /api/sync.
type AggregateSyncResult struct {
	Synced     int              `json:"synced"`
	Total      int              `json:"total"`
	TotalCount int              `json:"total_count"`
	Errors     []SyncRoundError `json:"errors"`
}

// PeerStatus is one peer's row in GET /api/sync/status.
type PeerStatus struct {
	PeerID        string `json:"peer_id"`
	ForwardCursor int64  `json:"forward_cursor_ms"`
	BackwardCursor int64 `json:"backward_cursor_ms"`
	LastSyncedAt  int64  `json:"last_synced_at"`
	LastOutcome   string `json:"last_outcome"`
}

// BatchIngestResult is the payload of POST /api/locations/batch.
type BatchIngestResult struct {
	Created int           `json:"created"`
	Failed  int           `json:"failed"`
	Errors  []BatchError  `json:"errors"`
}

// BatchError mirrors store.BatchError on the wire.
type BatchError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

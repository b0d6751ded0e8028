package syncapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"meshnode/internal/ingest"
	"meshnode/internal/merr"
	"meshnode/internal/store"
	"meshnode/internal/wire"
)

func parseSince(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, merr.InvalidParameter("since must be a non-negative integer")
	}
	return v, nil
}

func parseRange(vars map[string]string) (fromMs, toMs int64, err error) {
	fromMs, err = strconv.ParseInt(vars["from_ms"], 10, 64)
	if err != nil || fromMs < 0 {
		return 0, 0, merr.InvalidParameter("from_ms must be a non-negative integer")
	}
	toMs, err = strconv.ParseInt(vars["to_ms"], 10, 64)
	if err != nil || toMs < 0 {
		return 0, 0, merr.InvalidParameter("to_ms must be a non-negative integer")
	}
	if fromMs > toMs {
		return 0, 0, merr.InvalidParameter("from_ms must not exceed to_ms")
	}
	return fromMs, toMs, nil
}

// HandleHealth serves GET /api/health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UnixMilli(),
	})
}

// HandleSyncSince serves GET /api/sync?since=<ms>: this node's own
// reports with created_at > since (spec.md §6).
func (s *Server) HandleSyncSince(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	reports, err := s.store.ListSince(&s.selfNodeID, since)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// HandleSelfRange serves GET /api/sync/node/sync/from/{from_ms}/to/{to_ms}:
// this node's own reports in an inclusive range — the shape the Pull
// Scheduler's peer client calls against every peer (spec.md §4.5).
func (s *Server) HandleSelfRange(w http.ResponseWriter, r *http.Request) {
	fromMs, toMs, err := parseRange(mux.Vars(r))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	reports, err := s.store.ListBetween(&s.selfNodeID, fromMs, toMs)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// HandleNodeData serves GET /api/sync/node/{node_id}/data?since=<ms>:
// reports authored by an arbitrary node_id, with created_at > since.
func (s *Server) HandleNodeData(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["node_id"]
	since, err := parseSince(r)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	reports, err := s.store.ListSince(&nodeID, since)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// HandleNodeRange serves GET /api/sync/node/{node_id}/from/{from_ms}/to/{to_ms}:
// an inclusive-range pull for reports authored by node_id — used by
// peers chaining custody of data originated elsewhere (spec.md §4.6).
func (s *Server) HandleNodeRange(w http.ResponseWriter, r *http.Request) {
	nodeID := mux.Vars(r)["node_id"]
	fromMs, toMs, err := parseRange(mux.Vars(r))
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	reports, err := s.store.ListBetween(&nodeID, fromMs, toMs)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

// HandleNodeList serves GET /api/sync/node/list.
func (s *Server) HandleNodeList(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, wire.NodeListData{NodeIDs: s.dir.NodeList()})
}

// HandleTriggerSync serves POST /api/sync: run one incremental round
// synchronously over every peer and return the aggregate result.
func (s *Server) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.sched.RunIncrementalRound(r.Context())
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleStatus serves GET /api/sync/status: the Sync Log's snapshot.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	states, err := s.log.All()
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	out := make([]wire.PeerStatus, 0, len(states))
	for _, st := range states {
		out = append(out, wire.PeerStatus{
			PeerID:         st.PeerID,
			ForwardCursor:  st.ForwardCursor,
			BackwardCursor: st.BackwardCursor,
			LastSyncedAt:   st.LastSyncedAt,
			LastOutcome:    st.LastOutcome,
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// HandleIngestOne serves POST /api/locations/.
func (s *Server) HandleIngestOne(w http.ResponseWriter, r *http.Request) {
	var req ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, s.logger, merr.InvalidParameter("malformed request body: "+err.Error()))
		return
	}

	report, err := ingest.Validate(req, s.selfNodeID)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}

	outcome, err := s.store.Insert(report)
	if err != nil {
		respondError(w, s.logger, err)
		return
	}
	if s.met != nil && outcome == store.Inserted {
		s.met.ReportsTotal.Inc()
	}
	respondJSON(w, http.StatusOK, report)
}

// HandleIngestBatch serves POST /api/locations/batch.
func (s *Server) HandleIngestBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []ingest.Request
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		respondError(w, s.logger, merr.InvalidParameter("malformed request body: "+err.Error()))
		return
	}

	reports, origIndex, validationErrors := ingest.ValidateBatch(reqs, s.selfNodeID, s.cfg.MaxBatchSize)
	if reports == nil && origIndex == nil {
		// Top-level failure (e.g. batch too large) carries index -1.
		out := wire.BatchIngestResult{Failed: len(validationErrors)}
		for _, ve := range validationErrors {
			out.Errors = append(out.Errors, wire.BatchError{Index: ve.Index, Reason: ve.Reason})
		}
		respondJSON(w, http.StatusOK, out)
		return
	}

	insertResult := s.store.InsertBatch(reports)
	if s.met != nil {
		s.met.ReportsTotal.Add(float64(insertResult.Created))
	}

	out := wire.BatchIngestResult{
		Created: insertResult.Created,
		Failed:  insertResult.Failed + len(validationErrors),
	}
	for _, ve := range validationErrors {
		out.Errors = append(out.Errors, wire.BatchError{Index: ve.Index, Reason: ve.Reason})
	}
	for _, ie := range insertResult.Errors {
		out.Errors = append(out.Errors, wire.BatchError{Index: origIndex[ie.Index], Reason: ie.Reason})
	}
	respondJSON(w, http.StatusOK, out)
}

// Package ingest implements the thin ingestion boundary spec.md §1
// names as an out-of-scope collaborator but §6 still lists on the wire:
// POST /api/locations/ and POST /api/locations/batch. Validation here
// is deliberately shallow — entity_type enum membership, coordinate
// ranges, a positive timestamp — the Location Store enforces everything
// else (id uniqueness, conflict detection) on insert.
package ingest

import (
	"fmt"

	"github.com/google/uuid"

	"meshnode/internal/merr"
	"meshnode/internal/store"
)

var validEntityTypes = map[string]bool{
	"responder": true,
	"civilian":  true,
	"incident":  true,
	"resource":  true,
	"hazard":    true,
}

// Request is the body shape of a single-report ingest call. ID is
// optional — if absent, one is assigned here (spec.md §3: "assigned on
// first write by the origin node, e.g. UUIDv4").
type Request struct {
	ID         string                 `json:"id,omitempty"`
	EntityID   string                 `json:"entity_id"`
	EntityType string                 `json:"entity_type"`
	Position   store.Position         `json:"position"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  int64                  `json:"created_at"`
}

// Validate checks the thin-validation contract and returns a ready-to-
// insert LocationReport attributed to selfNodeID.
func Validate(req Request, selfNodeID string) (store.LocationReport, error) {
	if req.EntityID == "" {
		return store.LocationReport{}, merr.InvalidParameter("entity_id is required")
	}
	if !validEntityTypes[req.EntityType] {
		return store.LocationReport{}, merr.InvalidParameter(fmt.Sprintf("unknown entity_type %q", req.EntityType))
	}
	if req.Position.Lat < -90 || req.Position.Lat > 90 {
		return store.LocationReport{}, merr.InvalidParameter("position.lat out of range [-90,90]")
	}
	if req.Position.Lon < -180 || req.Position.Lon > 180 {
		return store.LocationReport{}, merr.InvalidParameter("position.lon out of range [-180,180]")
	}
	if req.CreatedAt <= 0 {
		return store.LocationReport{}, merr.InvalidParameter("created_at must be a positive UTC millisecond timestamp")
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	return store.LocationReport{
		ID:         id,
		NodeID:     selfNodeID,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Position:   req.Position,
		Metadata:   req.Metadata,
		CreatedAt:  req.CreatedAt,
	}, nil
}

// ValidateBatch validates each element independently, mirroring
// store.InsertBatch's per-element contract; maxBatchSize enforces
// spec.md §6's max_batch_size option before any validation runs.
//
// origIndex[i] names which request produced reports[i], so a caller
// that runs reports through store.InsertBatch can translate the
// resulting batch-local error indices back to the caller's original
// request indices.
func ValidateBatch(reqs []Request, selfNodeID string, maxBatchSize int) (reports []store.LocationReport, origIndex []int, validationErrors []store.BatchError) {
	if len(reqs) > maxBatchSize {
		return nil, nil, []store.BatchError{{Index: -1, Reason: fmt.Sprintf("batch of %d exceeds max_batch_size %d", len(reqs), maxBatchSize)}}
	}

	reports = make([]store.LocationReport, 0, len(reqs))
	origIndex = make([]int, 0, len(reqs))
	for i, req := range reqs {
		r, err := Validate(req, selfNodeID)
		if err != nil {
			validationErrors = append(validationErrors, store.BatchError{Index: i, Reason: err.Error()})
			continue
		}
		reports = append(reports, r)
		origIndex = append(origIndex, i)
	}
	return reports, origIndex, validationErrors
}

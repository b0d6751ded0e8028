package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"meshnode/internal/merr"
	"meshnode/internal/store"
	"meshnode/internal/wire"
)

type pullResponse struct {
	Status  string                  `json:"status"`
	Data    []store.LocationReport  `json:"data"`
	Message string                  `json:"message,omitempty"`
}

// pullOwnRange fetches a peer's own-authored reports in [fromMs, toMs]
// via the "node/sync" shape of spec.md §6 — the peer serving its own
// data is exactly what C5's forward/backward walk needs per §4.5.
func (s *Scheduler) pullOwnRange(ctx context.Context, peerBaseURL string, fromMs, toMs int64) ([]store.LocationReport, error) {
	url := fmt.Sprintf("%s/api/sync/node/sync/from/%d/to/%d", peerBaseURL, fromMs, toMs)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, merr.PeerProtocol("build request: " + err.Error())
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, merr.PeerUnreachable(err.Error(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, merr.PeerProtocol(fmt.Sprintf("peer returned %d", resp.StatusCode))
	}

	var out pullResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, merr.PeerProtocol("malformed response body: " + err.Error())
	}
	if out.Status != wire.StatusSuccess {
		return nil, merr.PeerProtocol("peer reported error: " + out.Message)
	}
	return out.Data, nil
}

package syncapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"meshnode/internal/config"
	"meshnode/internal/peers"
	"meshnode/internal/scheduler"
	"meshnode/internal/store"
	"meshnode/internal/synclog"
	"meshnode/internal/wire"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := store.Open(db)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	sl, err := synclog.Open(db)
	if err != nil {
		t.Fatalf("synclog.Open: %v", err)
	}
	dir, err := peers.Open(db, "169.254.1.1")
	if err != nil {
		t.Fatalf("peers.Open: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(nopWriter{})

	sched := scheduler.New("169.254.1.1", config.Default(), st, sl, dir, nil, nil, logger)
	return New("169.254.1.1", config.Default(), st, sl, dir, sched, nil, nil, logger), st
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var env wire.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if env.Status != wire.StatusSuccess {
		t.Fatalf("status = %q, want success", env.Status)
	}
}

func TestIngestThenRangeQueryRoundTrips(t *testing.T) {
	s, _ := newTestServer(t)

	body := `{"entity_id":"e1","entity_type":"civilian","position":{"lat":52.52,"lon":13.405},"created_at":1000}`
	req := httptest.NewRequest("POST", "/api/locations/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest status = %d, body=%s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/sync/node/sync/from/0/to/2000", nil)
	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("range query status = %d, body=%s", rec.Code, rec.Body.String())
	}

	var env struct {
		Status string                   `json:"status"`
		Data   []store.LocationReport   `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(env.Data) != 1 {
		t.Fatalf("len(Data) = %d, want 1", len(env.Data))
	}
	if env.Data[0].EntityID != "e1" {
		t.Fatalf("EntityID = %q, want e1", env.Data[0].EntityID)
	}
}

func TestInvalidRangeReturns400(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/sync/node/sync/from/2000/to/1000", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestNodeListIncludesSelf(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("GET", "/api/sync/node/list", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	var env struct {
		Data wire.NodeListData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(env.Data.NodeIDs) != 1 || env.Data.NodeIDs[0] != "169.254.1.1" {
		t.Fatalf("NodeIDs = %v, want [169.254.1.1]", env.Data.NodeIDs)
	}
}

func TestIngestRejectsBadEntityType(t *testing.T) {
	s, _ := newTestServer(t)
	body := `{"entity_id":"e1","entity_type":"spaceship","position":{"lat":1,"lon":1},"created_at":1000}`
	req := httptest.NewRequest("POST", "/api/locations/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body=%s", rec.Code, rec.Body.String())
	}
}

func TestTriggerSyncWithNoPeersReturnsZeroTotal(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/api/sync", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rec.Code, rec.Body.String())
	}
	var env struct {
		Data wire.AggregateSyncResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if env.Data.Total != 0 {
		t.Fatalf("Total = %d, want 0", env.Data.Total)
	}
}

package store

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"meshnode/internal/merr"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func sampleReport(id string) LocationReport {
	return LocationReport{
		ID:         id,
		NodeID:     "169.254.1.2",
		EntityID:   "drone-1",
		EntityType: "drone",
		Position:   Position{Lat: 12.5, Lon: 45.25},
		Metadata:   map[string]interface{}{"heading": 180.0},
		CreatedAt:  1000,
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	r := sampleReport("r1")

	outcome, err := s.Insert(r)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if outcome != Inserted {
		t.Fatalf("first insert outcome = %v, want Inserted", outcome)
	}

	outcome, err = s.Insert(r)
	if err != nil {
		t.Fatalf("second identical insert: %v", err)
	}
	if outcome != AlreadyPresent {
		t.Fatalf("second insert outcome = %v, want AlreadyPresent", outcome)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("Total = %d, want 1 (duplicate absorbed, not double-counted)", stats.Total)
	}
}

func TestInsertRejectsConflictingSameID(t *testing.T) {
	s := openTestStore(t)
	r := sampleReport("r1")
	if _, err := s.Insert(r); err != nil {
		t.Fatalf("initial insert: %v", err)
	}

	conflicting := r
	conflicting.Position.Lat = 99.0
	_, err := s.Insert(conflicting)
	if err == nil {
		t.Fatal("expected conflict error for same id, different contents")
	}
	if k, ok := merr.KindOf(err); !ok || k != merr.KindReportConflict {
		t.Fatalf("expected ReportConflict, got %v", err)
	}
}

func TestLatestForTracksMostRecentPerEntity(t *testing.T) {
	s := openTestStore(t)
	older := sampleReport("r1")
	older.CreatedAt = 1000

	newer := sampleReport("r2")
	newer.CreatedAt = 2000
	newer.Position.Lat = 1.0

	if _, err := s.Insert(older); err != nil {
		t.Fatalf("insert older: %v", err)
	}
	if _, err := s.Insert(newer); err != nil {
		t.Fatalf("insert newer: %v", err)
	}

	latest, err := s.LatestFor(nil)
	if err != nil {
		t.Fatalf("LatestFor: %v", err)
	}
	if len(latest) != 1 {
		t.Fatalf("len(latest) = %d, want 1", len(latest))
	}
	if latest[0].ID != "r2" {
		t.Fatalf("latest report id = %q, want r2", latest[0].ID)
	}

	// An out-of-order older insert must not clobber the cache.
	stale := sampleReport("r3")
	stale.CreatedAt = 500
	if _, err := s.Insert(stale); err != nil {
		t.Fatalf("insert stale: %v", err)
	}
	latest, err = s.LatestFor(nil)
	if err != nil {
		t.Fatalf("LatestFor after stale insert: %v", err)
	}
	if latest[0].ID != "r2" {
		t.Fatalf("latest report id after stale insert = %q, want r2", latest[0].ID)
	}
}

func TestListSinceIsStrictlyExclusive(t *testing.T) {
	s := openTestStore(t)
	r1 := sampleReport("r1")
	r1.CreatedAt = 1000
	r2 := sampleReport("r2")
	r2.CreatedAt = 1000
	r2.EntityID = "drone-2"
	r3 := sampleReport("r3")
	r3.CreatedAt = 1500
	r3.EntityID = "drone-3"

	for _, r := range []LocationReport{r1, r2, r3} {
		if _, err := s.Insert(r); err != nil {
			t.Fatalf("insert %s: %v", r.ID, err)
		}
	}

	got, err := s.ListSince(nil, 1000)
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	if len(got) != 1 || got[0].ID != "r3" {
		t.Fatalf("ListSince(1000) = %+v, want only r3 (created_at > since)", got)
	}
}

func TestHistoryForIsNewestFirstAndLimited(t *testing.T) {
	s := openTestStore(t)
	for i, ts := range []int64{1000, 2000, 3000} {
		r := sampleReport("hist-" + string(rune('a'+i)))
		r.CreatedAt = ts
		if _, err := s.Insert(r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	hist, err := s.HistoryFor("drone-1", nil, 2)
	if err != nil {
		t.Fatalf("HistoryFor: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("len(hist) = %d, want 2", len(hist))
	}
	if hist[0].CreatedAt != 3000 || hist[1].CreatedAt != 2000 {
		t.Fatalf("HistoryFor not newest-first: %+v", hist)
	}
}

func TestInsertBatchReportsPerElementFailures(t *testing.T) {
	s := openTestStore(t)
	ok := sampleReport("batch-ok")
	if _, err := s.Insert(ok); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	conflicting := ok
	conflicting.Position.Lat = 77.0

	res := s.InsertBatch([]LocationReport{
		sampleReport("batch-new"),
		conflicting,
	})
	if res.Created != 1 {
		t.Fatalf("Created = %d, want 1", res.Created)
	}
	if res.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", res.Failed)
	}
	if len(res.Errors) != 1 || res.Errors[0].Index != 1 {
		t.Fatalf("Errors = %+v, want one entry at index 1", res.Errors)
	}
}

func TestRefreshCounterIncrementsAndAcknowledges(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Insert(sampleReport("rc1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := s.Insert(sampleReport("rc2")); err != nil {
		t.Fatalf("insert: %v", err)
	}

	count, err := s.RefreshCount()
	if err != nil {
		t.Fatalf("RefreshCount: %v", err)
	}
	if count != 2 {
		t.Fatalf("RefreshCount = %d, want 2", count)
	}

	if err := s.AcknowledgeRefresh(); err != nil {
		t.Fatalf("AcknowledgeRefresh: %v", err)
	}
	count, err = s.RefreshCount()
	if err != nil {
		t.Fatalf("RefreshCount after ack: %v", err)
	}
	if count != 0 {
		t.Fatalf("RefreshCount after ack = %d, want 0", count)
	}
}

package synclog

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	l, err := Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return l
}

func TestGetUnknownPeerReturnsZeroState(t *testing.T) {
	l := openTestLog(t)
	st, err := l.Get("169.254.9.9")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.ForwardCursor != 0 || st.BackwardCursor != 0 {
		t.Fatalf("expected zero cursors for unknown peer, got %+v", st)
	}
}

func TestPutThenGetRoundTrips(t *testing.T) {
	l := openTestLog(t)
	st := PeerSyncState{PeerID: "169.254.1.1", ForwardCursor: 1000, BackwardCursor: 500, LastSyncedAt: 1700, LastOutcome: "ok"}
	if err := l.Put(st); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := l.Get("169.254.1.1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != st {
		t.Fatalf("Get() = %+v, want %+v", got, st)
	}
}

func TestPutOverwritesExistingState(t *testing.T) {
	l := openTestLog(t)
	peer := "169.254.2.2"
	if err := l.Put(PeerSyncState{PeerID: peer, ForwardCursor: 100}); err != nil {
		t.Fatalf("first Put: %v", err)
	}
	if err := l.Put(PeerSyncState{PeerID: peer, ForwardCursor: 200, BackwardCursor: 50}); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, err := l.Get(peer)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ForwardCursor != 200 || got.BackwardCursor != 50 {
		t.Fatalf("Get() after overwrite = %+v", got)
	}
}

func TestAllListsEveryTrackedPeer(t *testing.T) {
	l := openTestLog(t)
	for _, p := range []string{"169.254.1.1", "169.254.1.2", "169.254.1.3"} {
		if err := l.Put(PeerSyncState{PeerID: p}); err != nil {
			t.Fatalf("Put(%s): %v", p, err)
		}
	}
	all, err := l.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len(All()) = %d, want 3", len(all))
	}
}

func TestForgetRemovesState(t *testing.T) {
	l := openTestLog(t)
	peer := "169.254.3.3"
	if err := l.Put(PeerSyncState{PeerID: peer, ForwardCursor: 42}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := l.Forget(peer); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	got, err := l.Get(peer)
	if err != nil {
		t.Fatalf("Get after Forget: %v", err)
	}
	if got.ForwardCursor != 0 {
		t.Fatalf("expected zero state after Forget, got %+v", got)
	}
}

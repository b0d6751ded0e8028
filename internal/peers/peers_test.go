package peers

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDirectory(t *testing.T, localID string) *Directory {
	t.Helper()
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	d, err := Open(db, localID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return d
}

func TestRegisterRejectsSelf(t *testing.T) {
	d := openTestDirectory(t, "169.254.1.1")
	if err := d.Register("169.254.1.1", "169.254.1.1"); err == nil {
		t.Fatal("expected error registering self as peer")
	}
}

func TestRegisterThenListIncludesPeer(t *testing.T) {
	d := openTestDirectory(t, "169.254.1.1")
	if err := d.Register("169.254.2.2", "169.254.2.2"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	list := d.List()
	if len(list) != 1 || list[0] != "169.254.2.2" {
		t.Fatalf("List() = %v, want [169.254.2.2]", list)
	}
}

func TestNodeListIncludesSelfAndPeers(t *testing.T) {
	d := openTestDirectory(t, "169.254.1.1")
	if err := d.Register("169.254.2.2", "169.254.2.2"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	nodes := d.NodeList()
	if len(nodes) != 2 {
		t.Fatalf("NodeList() = %v, want 2 entries", nodes)
	}
	var hasSelf, hasPeer bool
	for _, n := range nodes {
		if n == "169.254.1.1" {
			hasSelf = true
		}
		if n == "169.254.2.2" {
			hasPeer = true
		}
	}
	if !hasSelf || !hasPeer {
		t.Fatalf("NodeList() = %v, missing self or peer", nodes)
	}
}

func TestDeregisterRemovesPeer(t *testing.T) {
	d := openTestDirectory(t, "169.254.1.1")
	if err := d.Register("169.254.2.2", "169.254.2.2"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Deregister("169.254.2.2"); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
	if len(d.List()) != 0 {
		t.Fatalf("List() after Deregister = %v, want empty", d.List())
	}
}

func TestPersistedPeersSurviveReopen(t *testing.T) {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	d1, err := Open(db, "169.254.1.1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d1.Register("169.254.2.2", "169.254.2.2"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	d2, err := Open(db, "169.254.1.1")
	if err != nil {
		t.Fatalf("reopen Open: %v", err)
	}
	if len(d2.List()) != 1 {
		t.Fatalf("List() after reopen = %v, want 1 peer", d2.List())
	}
}

// Package peers implements the Peer Directory (spec.md §4.3, component
// C3): the set of other mesh nodes this node will pull from.
//
// Adapted from internal/ha/cluster.go's Manager: same in-memory map
// guarded by a mutex, same persist-on-change-to-SQLite pattern, same
// node-id-is-the-key design. Unlike the HA manager, a peer here has no
// role or quorum semantics — membership is derived two ways instead of
// one: operator registration (persisted, like ha_nodes) and passive
// discovery from the mesh interface's resolved neighbor table
// (internal/netlinkx's /proc/net/arp reader).
package peers

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"meshnode/internal/merr"
	"meshnode/internal/netlinkx"
)

// Source records how a peer entry was learned.
type Source string

const (
	SourceManual     Source = "manual"
	SourceDiscovered Source = "discovered"
)

// Peer is one entry in the directory.
type Peer struct {
	NodeID       string
	Address      string // e.g. "169.254.3.4" — reachable over the mesh at this IP
	Source       Source
	RegisteredAt time.Time
	LastSeen     time.Time
}

// Directory is the Peer Directory.
type Directory struct {
	db      *sql.DB
	localID string

	mu    sync.RWMutex
	peers map[string]*Peer
}

// Open wraps an already-configured *sql.DB, ensures the directory's
// schema exists, and loads previously-registered peers.
func Open(db *sql.DB, localID string) (*Directory, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS peer_directory (
			node_id       TEXT PRIMARY KEY,
			address       TEXT NOT NULL,
			source        TEXT NOT NULL DEFAULT 'manual',
			registered_at INTEGER NOT NULL,
			last_seen     INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return nil, merr.Storage("peer directory schema init", err)
	}

	d := &Directory{db: db, localID: localID, peers: make(map[string]*Peer)}
	if err := d.loadPersisted(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) loadPersisted() error {
	rows, err := d.db.Query(`SELECT node_id, address, source, registered_at, last_seen FROM peer_directory`)
	if err != nil {
		return merr.Storage("load persisted peers", err)
	}
	defer rows.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	for rows.Next() {
		p := &Peer{}
		var registeredAt, lastSeen int64
		if err := rows.Scan(&p.NodeID, &p.Address, &p.Source, &registeredAt, &lastSeen); err != nil {
			return merr.Storage("scan persisted peer", err)
		}
		p.RegisteredAt = time.Unix(registeredAt, 0)
		p.LastSeen = time.Unix(lastSeen, 0)
		d.peers[p.NodeID] = p
	}
	return rows.Err()
}

// Register manually adds or updates a peer (spec.md §4.3 register_peer).
// Registering self is rejected, mirroring ha.Manager.RegisterPeer.
func (d *Directory) Register(nodeID, address string) error {
	if nodeID == "" || address == "" {
		return merr.InvalidParameter("peer node_id and address are required")
	}
	if nodeID == d.localID {
		return merr.InvalidParameter("cannot register self as a peer")
	}

	p := &Peer{NodeID: nodeID, Address: address, Source: SourceManual, RegisteredAt: time.Now()}

	d.mu.Lock()
	if existing, ok := d.peers[nodeID]; ok {
		p.LastSeen = existing.LastSeen
	}
	d.peers[nodeID] = p
	d.mu.Unlock()

	return d.persist(p)
}

// Deregister removes a peer entirely (spec.md §4.3 deregister_peer).
func (d *Directory) Deregister(nodeID string) error {
	d.mu.Lock()
	delete(d.peers, nodeID)
	d.mu.Unlock()
	if _, err := d.db.Exec(`DELETE FROM peer_directory WHERE node_id = ?`, nodeID); err != nil {
		return merr.Storage("deregister peer", err)
	}
	return nil
}

// DiscoverFromInterface reconciles the directory against the mesh
// interface's current neighbor table: new neighbors are added with
// SourceDiscovered, and previously-discovered peers still present get
// LastSeen refreshed. Manually-registered peers are never overwritten by
// discovery — an operator's explicit entry always wins (spec.md §4.3
// leaves discovery mechanics open; this node treats manual registration
// as authoritative over passive discovery).
func (d *Directory) DiscoverFromInterface(ifaceName string) error {
	neighbors, err := netlinkx.NeighborList(ifaceName)
	if err != nil {
		return fmt.Errorf("discover peers: %w", err)
	}

	now := time.Now()
	for _, n := range neighbors {
		nodeID := n.IP.String()
		if nodeID == d.localID {
			continue
		}

		d.mu.Lock()
		existing, known := d.peers[nodeID]
		if known {
			existing.LastSeen = now
			d.mu.Unlock()
			if err := d.persist(existing); err != nil {
				return err
			}
			continue
		}
		p := &Peer{
			NodeID:       nodeID,
			Address:      nodeID,
			Source:       SourceDiscovered,
			RegisteredAt: now,
			LastSeen:     now,
		}
		d.peers[nodeID] = p
		d.mu.Unlock()
		if err := d.persist(p); err != nil {
			return err
		}
	}
	return nil
}

func (d *Directory) persist(p *Peer) error {
	_, err := d.db.Exec(`
		INSERT INTO peer_directory (node_id, address, source, registered_at, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			address=excluded.address, source=excluded.source, last_seen=excluded.last_seen
	`, p.NodeID, p.Address, string(p.Source), p.RegisteredAt.Unix(), p.LastSeen.Unix())
	if err != nil {
		return merr.Storage("persist peer", err)
	}
	return nil
}

// List returns every known peer's node id, excluding self.
func (d *Directory) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ids := make([]string, 0, len(d.peers))
	for id := range d.peers {
		ids = append(ids, id)
	}
	return ids
}

// NodeList returns self plus every known peer, for the
// GET /api/sync/node/list surface (spec.md §6).
func (d *Directory) NodeList() []string {
	return append([]string{d.localID}, d.List()...)
}

// Get returns one peer's full record.
func (d *Directory) Get(nodeID string) (Peer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[nodeID]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Address resolves a peer's reachable address, or "" if unknown.
func (d *Directory) Address(nodeID string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if p, ok := d.peers[nodeID]; ok {
		return p.Address
	}
	return ""
}

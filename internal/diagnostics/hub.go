// Package diagnostics broadcasts sync-round events over a websocket hub
// and debounces peer-degradation alerts.
//
// The hub is adapted from internal/websocket/monitor.go's MonitorHub —
// same register/unregister/broadcast channel trio, same non-blocking
// send with a bounded buffer — retargeted to carry RoundEvent instead of
// MonitorEvent. The debounce logic is adapted from
// internal/monitoring/background.go's maybeAlert: hysteresis before
// firing, cooldown before re-firing, immediate pass-through on recovery.
package diagnostics

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// RoundEvent is broadcast once per completed per-peer sync round
// (spec.md §7: operators must see, per round, the tuple
// (peer_id, forward_range, backward_range, received_count, duration_ms, outcome)).
type RoundEvent struct {
	PeerID         string `json:"peer_id"`
	ForwardFrom    int64  `json:"forward_from_ms"`
	ForwardTo      int64  `json:"forward_to_ms"`
	BackwardFrom   int64  `json:"backward_from_ms"`
	BackwardTo     int64  `json:"backward_to_ms"`
	ReceivedCount  int    `json:"received_count"`
	DurationMillis int64  `json:"duration_ms"`
	Outcome        string `json:"outcome"`
	Timestamp      time.Time `json:"timestamp"`
}

// Hub fans out RoundEvents to connected websocket clients.
type Hub struct {
	log *logrus.Logger

	clients    map[*websocket.Conn]bool
	broadcast  chan RoundEvent
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex

	degradation *degradationMonitor
}

// NewHub builds a diagnostics hub. log is used both for the hub's own
// connection lifecycle messages and for the degradation monitor's
// cooldown-gated warnings.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:         log,
		clients:     make(map[*websocket.Conn]bool),
		broadcast:   make(chan RoundEvent, 256),
		register:    make(chan *websocket.Conn),
		unregister:  make(chan *websocket.Conn),
		degradation: newDegradationMonitor(log),
	}
}

// Run drives the hub's event loop. Call it in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.WithField("clients", len(h.clients)).Debug("diagnostics client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mu.Unlock()
			h.log.WithField("clients", len(h.clients)).Debug("diagnostics client disconnected")

		case event := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.WriteJSON(event); err != nil {
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Register adds a client connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) { h.register <- conn }

// Unregister removes a client connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) { h.unregister <- conn }

// PublishRound records a completed round: logs it structurally, pushes
// it to websocket subscribers, and feeds the degradation monitor.
func (h *Hub) PublishRound(ev RoundEvent) {
	ev.Timestamp = time.Now()

	fields := logrus.Fields{
		"peer":            ev.PeerID,
		"forward_range":   [2]int64{ev.ForwardFrom, ev.ForwardTo},
		"backward_range":  [2]int64{ev.BackwardFrom, ev.BackwardTo},
		"received_count":  ev.ReceivedCount,
		"duration_ms":     ev.DurationMillis,
		"outcome":         ev.Outcome,
	}
	if ev.Outcome == "error" {
		h.log.WithFields(fields).Warn("sync round failed")
	} else {
		h.log.WithFields(fields).Info("sync round complete")
	}

	select {
	case h.broadcast <- ev:
	default:
		h.log.Warn("diagnostics broadcast channel full, event dropped")
	}

	h.degradation.observe(ev.PeerID, ev.Outcome)
}

// Package syncapi implements the Sync HTTP Surface (spec.md §4.6,
// component C6): the literal endpoint set of §6, served with
// gorilla/mux the way cmd/dplaned/main.go wires its own router, one
// route per concern rather than one catch-all multiplexer.
package syncapi

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"meshnode/internal/config"
	"meshnode/internal/diagnostics"
	"meshnode/internal/metrics"
	"meshnode/internal/peers"
	"meshnode/internal/scheduler"
	"meshnode/internal/store"
	"meshnode/internal/synclog"
)

// Server wires the Sync HTTP Surface to its collaborators.
type Server struct {
	selfNodeID string
	cfg        config.Config

	store *store.Store
	log   *synclog.Log
	dir   *peers.Directory
	sched *scheduler.Scheduler
	met   *metrics.Metrics
	diag  *diagnostics.Hub
	logger *logrus.Logger

	upgrader websocket.Upgrader
}

// New builds a Server.
func New(selfNodeID string, cfg config.Config, st *store.Store, sl *synclog.Log, dir *peers.Directory,
	sched *scheduler.Scheduler, met *metrics.Metrics, diag *diagnostics.Hub, logger *logrus.Logger) *Server {
	return &Server{
		selfNodeID: selfNodeID,
		cfg:        cfg,
		store:      st,
		log:        sl,
		dir:        dir,
		sched:      sched,
		met:        met,
		diag:       diag,
		logger:     logger,
		upgrader:   websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
	}
}

// Router assembles the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/health", s.HandleHealth).Methods("GET")
	r.HandleFunc("/api/sync", s.HandleSyncSince).Methods("GET")
	r.HandleFunc("/api/sync", s.HandleTriggerSync).Methods("POST")
	r.HandleFunc("/api/sync/node/list", s.HandleNodeList).Methods("GET")
	r.HandleFunc("/api/sync/node/sync/from/{from_ms}/to/{to_ms}", s.HandleSelfRange).Methods("GET")
	r.HandleFunc("/api/sync/node/{node_id}/data", s.HandleNodeData).Methods("GET")
	r.HandleFunc("/api/sync/node/{node_id}/from/{from_ms}/to/{to_ms}", s.HandleNodeRange).Methods("GET")
	r.HandleFunc("/api/sync/status", s.HandleStatus).Methods("GET")

	r.HandleFunc("/api/locations/", s.HandleIngestOne).Methods("POST")
	r.HandleFunc("/api/locations/batch", s.HandleIngestBatch).Methods("POST")

	if s.met != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.met.Registry, promhttp.HandlerOpts{})).Methods("GET")
	}
	r.HandleFunc("/ws/diagnostics", s.HandleDiagnosticsWS).Methods("GET")

	return r
}

func (s *Server) HandleDiagnosticsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("diagnostics websocket upgrade failed")
		return
	}
	if s.diag == nil {
		conn.Close()
		return
	}
	s.diag.Register(conn)

	go func() {
		defer s.diag.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Command meshnoded runs one node of the mesh location-sync fleet:
// it derives this node's identity from its mesh interface (spec.md
// §4.1), serves the Sync HTTP Surface (§4.6), and drives the Pull
// Scheduler's incremental rounds (§4.5) against the Peer Directory
// (§4.2) in the background — the daemon loop follows
// cmd/dplaned/main.go's own flag/router/signal wiring.
package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"meshnode/internal/config"
	"meshnode/internal/diagnostics"
	"meshnode/internal/identity"
	"meshnode/internal/merr"
	"meshnode/internal/metrics"
	"meshnode/internal/peers"
	"meshnode/internal/scheduler"
	"meshnode/internal/store"
	"meshnode/internal/syncapi"
	"meshnode/internal/synclog"
)

const discoveryInterval = 30 * time.Second

func main() {
	cfg := config.Default()

	ifaceName := flag.String("iface", cfg.MeshInterfaceName, "BATMAN-adv mesh interface to derive identity and discover neighbors from")
	listenPort := flag.Int("port", cfg.ListenPort, "HTTP listen port for the sync surface")
	dbPath := flag.String("db", cfg.DBPath, "Path to SQLite database")
	tick := flag.Duration("tick-interval", cfg.TickInterval, "Interval between incremental sync rounds")
	window := flag.Duration("sliding-window", cfg.SlidingWindow, "Sliding window size for forward/backward cursor walks")
	roundTimeout := flag.Duration("round-timeout", cfg.PerRoundTimeout, "Per-peer-round timeout")
	requestTimeout := flag.Duration("request-timeout", cfg.PerRequestTimeout, "Per-HTTP-request timeout")
	maxBatch := flag.Int("max-batch-size", cfg.MaxBatchSize, "Maximum reports accepted per batch ingest call")
	maxParallel := flag.Int("max-parallel-syncs", cfg.MaxParallelPeerSyncs, "Maximum peers synced concurrently per round")
	deepPullFrom := flag.Int64("deep-pull-from-ms", -1, "Operator-triggered deep pull: run one saturating fetch of [from,to] over every peer at startup, then run normally")
	deepPullTo := flag.Int64("deep-pull-to-ms", -1, "End of the deep-pull range; required with -deep-pull-from-ms")
	flag.Parse()

	cfg.MeshInterfaceName = *ifaceName
	cfg.ListenPort = *listenPort
	cfg.DBPath = *dbPath
	cfg.TickInterval = *tick
	cfg.SlidingWindow = *window
	cfg.PerRoundTimeout = *roundTimeout
	cfg.PerRequestTimeout = *requestTimeout
	cfg.MaxBatchSize = *maxBatch
	cfg.MaxParallelPeerSyncs = *maxParallel

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	id, err := identity.Derive(cfg.MeshInterfaceName, identity.LookupMAC)
	if err != nil {
		if k, ok := merr.KindOf(err); ok {
			logger.WithField("kind", k).Fatal(err.Error())
		}
		logger.Fatal(err.Error())
	}
	selfNodeID := id.NodeID()
	logger.WithFields(logrus.Fields{
		"node_id":   selfNodeID,
		"interface": cfg.MeshInterfaceName,
		"mac":       id.MAC.String(),
	}).Info("identity derived")

	// WAL mode plus a generous busy_timeout: concurrent reads from the
	// sync surface while the scheduler's rounds are writing (spec.md §7).
	dsn := cfg.DBPath + "?_journal_mode=WAL&_busy_timeout=30000&cache=shared&_cache_size=-65536&_wal_autocheckpoint=1000&_synchronous=FULL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		logger.WithError(err).Warn("initial WAL checkpoint failed")
	}

	st, err := store.Open(db)
	if err != nil {
		logger.WithError(err).Fatal("report store schema init failed")
	}
	sl, err := synclog.Open(db)
	if err != nil {
		logger.WithError(err).Fatal("sync log schema init failed")
	}
	dir, err := peers.Open(db, selfNodeID)
	if err != nil {
		logger.WithError(err).Fatal("peer directory schema init failed")
	}

	met := metrics.New()
	diag := diagnostics.NewHub(logger)
	go diag.Run()

	sched := scheduler.New(selfNodeID, cfg, st, sl, dir, met, diag, logger)

	srv := syncapi.New(selfNodeID, cfg, st, sl, dir, sched, met, diag, logger)

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.ListenPort),
		Handler:      srv.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stopDiscovery := make(chan struct{})
	go runDiscoveryLoop(dir, cfg.MeshInterfaceName, logger, stopDiscovery)

	if *deepPullFrom >= 0 && *deepPullTo >= 0 {
		logger.WithFields(logrus.Fields{"from_ms": *deepPullFrom, "to_ms": *deepPullTo}).Info("running operator-triggered deep pull")
		result, err := sched.DeepPull(context.Background(), *deepPullFrom, *deepPullTo)
		if err != nil {
			logger.WithError(err).Warn("deep pull failed")
		} else {
			logger.WithFields(logrus.Fields{"synced": result.Synced, "total": result.Total}).Info("deep pull complete")
		}
	}

	sched.Start()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("sync surface listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	close(stopDiscovery)
	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("http server shutdown error")
	}

	logger.Info("stopped")
}

// runDiscoveryLoop periodically refreshes the Peer Directory from the
// mesh interface's neighbor table (spec.md §4.2's "discovered" source),
// independent of the sync scheduler's own tick cadence.
func runDiscoveryLoop(dir *peers.Directory, ifaceName string, logger *logrus.Logger, stop chan struct{}) {
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	for {
		if err := dir.DiscoverFromInterface(ifaceName); err != nil {
			logger.WithError(err).Warn("peer discovery failed")
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

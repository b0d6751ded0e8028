// Package scheduler implements the Pull Scheduler (spec.md §4.5,
// component C5): the cooperative tick loop that drives one sync round
// per peer per tick, sequencing forward then backward windowed pulls
// against each peer's Sync HTTP Surface.
//
// The tick/fan-out/wait shape is grounded on internal/ha/cluster.go's
// heartbeatLoop and pingAllPeers: a ticker drives one round, each round
// spawns one goroutine per peer, the round blocks on a WaitGroup before
// the next tick is scheduled. This implementation adds the things the
// teacher's heartbeat loop does not need: a bounded semaphore (spec.md
// §5's parallelism cap), in-flight dedup so a round never re-enters a
// peer already being synced by a concurrent invocation, and per-round
// timeouts via context.
package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"meshnode/internal/config"
	"meshnode/internal/diagnostics"
	"meshnode/internal/merr"
	"meshnode/internal/metrics"
	"meshnode/internal/peers"
	"meshnode/internal/store"
	"meshnode/internal/synclog"
	"meshnode/internal/wire"
)

// Scheduler is the Pull Scheduler.
type Scheduler struct {
	selfNodeID string
	cfg        config.Config

	store *store.Store
	log   *synclog.Log
	dir   *peers.Directory

	client *http.Client
	logger *logrus.Logger
	met    *metrics.Metrics
	diag   *diagnostics.Hub

	mu       sync.Mutex
	inFlight map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup

	now func() int64
}

// New builds a Scheduler. The caller owns starting and stopping it.
func New(selfNodeID string, cfg config.Config, st *store.Store, sl *synclog.Log, dir *peers.Directory,
	met *metrics.Metrics, diag *diagnostics.Hub, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		selfNodeID: selfNodeID,
		cfg:        cfg,
		store:      st,
		log:        sl,
		dir:        dir,
		client:     &http.Client{Timeout: cfg.PerRequestTimeout},
		logger:     logger,
		met:        met,
		diag:       diag,
		inFlight:   make(map[string]bool),
		stopCh:     make(chan struct{}),
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

// Start launches the incremental tick loop in its own goroutine.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.tickLoop()
}

// Stop signals the tick loop to exit and waits for the in-flight round
// to finish committing (spec.md §5 cancellation semantics): it does not
// roll back completed inserts, it just stops scheduling new rounds.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if _, err := s.RunIncrementalRound(context.Background()); err != nil {
			s.logger.WithError(err).Warn("incremental sync round failed")
		}

		select {
		case <-s.stopCh:
			return
		case <-time.After(s.cfg.TickInterval):
		}
	}
}

// RunIncrementalRound performs one incremental tick over every known
// peer, fanning out bounded by MaxParallelPeerSyncs. It is called both
// by the tick loop and by POST /api/sync (spec.md §6's synchronous
// trigger) — in-flight dedup prevents the two from double-syncing the
// same peer concurrently.
func (s *Scheduler) RunIncrementalRound(ctx context.Context) (wire.AggregateSyncResult, error) {
	peerIDs := s.dir.List()
	result := wire.AggregateSyncResult{Total: len(peerIDs), TotalCount: len(peerIDs)}
	if len(peerIDs) == 0 {
		return result, nil
	}

	parallelCap := s.cfg.MaxParallelPeerSyncs
	if parallelCap <= 0 || parallelCap > 64 {
		parallelCap = 64
	}
	sem := make(chan struct{}, parallelCap)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, peerID := range peerIDs {
		if !s.tryMarkInFlight(peerID) {
			continue // previous round for this peer still outstanding; skip this tick
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(peerID string) {
			defer wg.Done()
			defer func() { <-sem }()
			defer s.clearInFlight(peerID)

			roundCtx, cancel := context.WithTimeout(ctx, s.cfg.PerRoundTimeout)
			defer cancel()

			outcome, err := s.syncPeer(roundCtx, peerID)
			mu.Lock()
			if err != nil {
				result.Errors = append(result.Errors, wire.SyncRoundError{NodeID: peerID, Error: err.Error()})
			} else if outcome == "ok" {
				result.Synced++
			}
			mu.Unlock()
		}(peerID)
	}
	wg.Wait()

	return result, nil
}

func (s *Scheduler) tryMarkInFlight(peerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inFlight[peerID] {
		return false
	}
	s.inFlight[peerID] = true
	return true
}

func (s *Scheduler) clearInFlight(peerID string) {
	s.mu.Lock()
	delete(s.inFlight, peerID)
	s.mu.Unlock()
}

// syncPeer runs one (self, peer) round: forward pull, backward pull,
// then a single commit of both (spec.md §4.5). Failure on either pull
// aborts the round for this peer and leaves its cursors untouched.
func (s *Scheduler) syncPeer(ctx context.Context, peerID string) (string, error) {
	start := time.Now()

	st, err := s.log.Get(peerID)
	if err != nil {
		return "error", err
	}
	if st.BackwardCursor == 0 && st.LastSyncedAt == 0 {
		st.BackwardCursor = s.now() // "now_at_first_contact_ms" (spec.md §4.5)
	}

	addr := s.dir.Address(peerID)
	if addr == "" {
		addr = peerID
	}
	base := fmt.Sprintf("http://%s:%d", addr, s.cfg.ListenPort)

	now := s.now()
	w := s.cfg.SlidingWindow.Milliseconds()

	forwardTo := min64(st.ForwardCursor+w, now)
	forwardReports, ferr := s.pullOwnRange(ctx, base, st.ForwardCursor, forwardTo)
	if ferr != nil {
		s.finishRound(peerID, "error", st.ForwardCursor, forwardTo, st.BackwardCursor, st.BackwardCursor, 0, start)
		return "error", ferr
	}

	backwardFrom := max64(0, st.BackwardCursor-w)
	backwardReports, berr := s.pullOwnRange(ctx, base, backwardFrom, st.BackwardCursor)
	if berr != nil {
		s.finishRound(peerID, "error", st.ForwardCursor, forwardTo, backwardFrom, st.BackwardCursor, 0, start)
		return "error", berr
	}

	newForward := advanceForward(st.ForwardCursor, forwardTo, forwardReports)
	newBackward := advanceBackward(st.BackwardCursor, backwardFrom, backwardReports)

	all := append(append([]store.LocationReport{}, forwardReports...), backwardReports...)
	batchResult := s.store.InsertBatch(all)
	for _, be := range batchResult.Errors {
		s.logger.WithFields(logrus.Fields{"peer": peerID, "index": be.Index, "reason": be.Reason}).
			Warn("rejected a report received from peer")
	}

	if err := s.log.Put(synclog.PeerSyncState{
		PeerID:         peerID,
		ForwardCursor:  newForward,
		BackwardCursor: newBackward,
		LastSyncedAt:   now,
		LastOutcome:    "ok",
	}); err != nil {
		return "error", err
	}

	if s.met != nil {
		s.met.ReportsTotal.Add(float64(batchResult.Created))
		s.met.PeerForwardCursorAge.WithLabelValues(peerID).Set(float64(now - newForward))
		s.met.PeerBackwardCursorAge.WithLabelValues(peerID).Set(float64(newBackward))
	}

	s.finishRound(peerID, "ok", st.ForwardCursor, newForward, newBackward, st.BackwardCursor, len(all), start)
	return "ok", nil
}

func (s *Scheduler) finishRound(peerID, outcome string, forwardFrom, forwardTo, backwardFrom, backwardTo int64, received int, start time.Time) {
	duration := time.Since(start)
	if s.met != nil {
		s.met.SyncRoundsTotal.WithLabelValues(peerID, outcome).Inc()
		s.met.SyncRoundDuration.WithLabelValues(peerID).Observe(duration.Seconds())
	}
	if s.diag != nil {
		s.diag.PublishRound(diagnostics.RoundEvent{
			PeerID:         peerID,
			ForwardFrom:    forwardFrom,
			ForwardTo:      forwardTo,
			BackwardFrom:   backwardFrom,
			BackwardTo:     backwardTo,
			ReceivedCount:  received,
			DurationMillis: duration.Milliseconds(),
			Outcome:        outcome,
		})
	}
}

// DeepPull performs an operator-triggered full-range pull (spec.md §4.5
// "deep pull"): for each peer, one saturating fetch of [startMs, endMs],
// bypassing the incremental sliding window entirely.
func (s *Scheduler) DeepPull(ctx context.Context, startMs, endMs int64) (wire.AggregateSyncResult, error) {
	if startMs > endMs {
		return wire.AggregateSyncResult{}, merr.InvalidParameter("start_ms must not exceed end_ms")
	}

	peerIDs := s.dir.List()
	result := wire.AggregateSyncResult{Total: len(peerIDs), TotalCount: len(peerIDs)}
	if len(peerIDs) == 0 {
		return result, nil
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, peerID := range peerIDs {
		wg.Add(1)
		go func(peerID string) {
			defer wg.Done()

			addr := s.dir.Address(peerID)
			if addr == "" {
				addr = peerID
			}
			base := fmt.Sprintf("http://%s:%d", addr, s.cfg.ListenPort)

			reports, err := s.pullOwnRange(ctx, base, startMs, endMs)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, wire.SyncRoundError{NodeID: peerID, Error: err.Error()})
				return
			}

			s.store.InsertBatch(reports)

			newForward, newBackward := endMs, startMs
			if len(reports) > 0 {
				newForward = advanceForward(startMs, endMs, reports)
				newBackward = advanceBackward(endMs, startMs, reports)
			}
			if err := s.log.Put(synclog.PeerSyncState{
				PeerID: peerID, ForwardCursor: newForward, BackwardCursor: newBackward,
				LastSyncedAt: s.now(), LastOutcome: "ok",
			}); err != nil {
				result.Errors = append(result.Errors, wire.SyncRoundError{NodeID: peerID, Error: err.Error()})
				return
			}
			result.Synced++
		}(peerID)
	}
	wg.Wait()
	return result, nil
}

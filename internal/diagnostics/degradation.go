package diagnostics

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Debounce configuration for peer-degradation warnings, same shape as
// internal/monitoring/background.go's alertCooldown/hysteresisWindow
// pair: a peer must fail consecutively for hysteresisWindow before the
// first warning fires, and repeat warnings are suppressed for cooldown.
const (
	degradationHysteresis = 30 * time.Second
	degradationCooldown   = 5 * time.Minute
)

type peerFailureState struct {
	firstFailureAt time.Time
	lastWarnedAt   time.Time
	failing        bool
}

// degradationMonitor watches per-peer round outcomes and logs a warning
// once a peer has been failing for longer than the hysteresis window,
// without repeating the warning inside the cooldown period.
type degradationMonitor struct {
	log *logrus.Logger

	mu     sync.Mutex
	states map[string]*peerFailureState
}

func newDegradationMonitor(log *logrus.Logger) *degradationMonitor {
	return &degradationMonitor{log: log, states: make(map[string]*peerFailureState)}
}

func (d *degradationMonitor) observe(peerID, outcome string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[peerID]
	if !ok {
		st = &peerFailureState{}
		d.states[peerID] = st
	}

	now := time.Now()
	if outcome != "error" {
		if st.failing {
			st.failing = false
			d.log.WithField("peer", peerID).Info("peer recovered")
		}
		return
	}

	if !st.failing {
		st.failing = true
		st.firstFailureAt = now
		return
	}

	if now.Sub(st.firstFailureAt) < degradationHysteresis {
		return
	}
	if !st.lastWarnedAt.IsZero() && now.Sub(st.lastWarnedAt) < degradationCooldown {
		return
	}

	st.lastWarnedAt = now
	d.log.WithField("peer", peerID).Warn("peer has been failing sync rounds")
}

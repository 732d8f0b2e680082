// Package refresh runs the state-refresh loop: a ticker-driven worker
// that polls the bridge for inventory, applies it under the fleet
// lock, and reconciles reservations, grounded on the teacher's
// pkg/reconciler ticker/Start/Stop/run structure and generalized from
// container reconciliation to CraySystem's update_node_state.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/opensched/fleetsched/pkg/bridge"
	"github.com/opensched/fleetsched/pkg/fleet"
	"github.com/opensched/fleetsched/pkg/log"
	"github.com/opensched/fleetsched/pkg/metrics"
	"github.com/opensched/fleetsched/pkg/reservation"
	"github.com/opensched/fleetsched/pkg/resource"
)

// DefaultInterval is UPDATE_THREAD_TIMEOUT from the original
// configuration.
const DefaultInterval = 10 * time.Second

// Loop drives periodic inventory refresh against a Bridge. Locker is
// the fleet-wide exclusive lock also held by the placement engine;
// the loop never performs the bridge RPC while holding it.
type Loop struct {
	Fleet        *fleet.ResourceSet
	Bridge       bridge.Bridge
	Reservations *reservation.Controller
	Interval     time.Duration
	Locker       sync.Locker

	logger zerolog.Logger
	stopCh chan struct{}
}

// New returns a refresh loop with the default tick interval.
func New(set *fleet.ResourceSet, br bridge.Bridge, ctrl *reservation.Controller, locker sync.Locker) *Loop {
	return &Loop{
		Fleet:        set,
		Bridge:       br,
		Reservations: ctrl,
		Interval:     DefaultInterval,
		Locker:       locker,
		logger:       log.WithComponent("refresh"),
		stopCh:       make(chan struct{}),
	}
}

// Start begins the refresh loop in its own goroutine.
func (l *Loop) Start() {
	go l.run()
}

// Stop terminates the loop.
func (l *Loop) Stop() {
	close(l.stopCh)
}

func (l *Loop) run() {
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()

	l.logger.Info().Dur("interval", l.Interval).Msg("refresh loop started")

	for {
		select {
		case <-ticker.C:
			l.Tick(context.Background())
		case <-l.stopCh:
			l.logger.Info().Msg("refresh loop stopped")
			return
		}
	}
}

// Tick fetches inventory outside the lock, then applies it and
// reconciles reservations while holding the exclusive fleet lock. It
// is also exposed directly as the scheduler facade's update_node_state
// operation, so a caller can force a cycle between ticks.
func (l *Loop) Tick(ctx context.Context) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.RefreshCycleDuration)
		metrics.RefreshCyclesTotal.Inc()
	}()

	inv, err := l.Bridge.FetchInventory(ctx, true)
	if err != nil {
		l.logger.Warn().Err(err).Msg("bridge unavailable this tick, retrying next cycle")
		return
	}

	l.Locker.Lock()
	defer l.Locker.Unlock()

	reported := make(map[string]resource.Status, len(inv.Nodes))
	for _, n := range inv.Nodes {
		reported[n.Name] = n.State
	}
	mismatches := l.Fleet.ApplyInventory(reported)
	if mismatches > 0 {
		metrics.InventoryMismatchesTotal.Add(float64(mismatches))
	}

	bridgeIDs := make(map[string]struct{}, len(inv.Reservations))
	for _, r := range inv.Reservations {
		bridgeIDs[r.ReservationID] = struct{}{}
	}
	l.Reservations.ReconcileBridge(bridgeIDs, time.Now())
	l.Reservations.Reap(l.Fleet)
}

// Package reservation implements reserve_resources_until and the
// bridge-mirrored Reservation lifecycle, grounded on CraySystem's
// reserve_resources_until and the unconfirmed/confirmed/releasing/dead
// state machine from spec.md §4.6/§4.7.
package reservation

import (
	"fmt"
	"sync"
	"time"

	"github.com/opensched/fleetsched/pkg/fleet"
	"github.com/opensched/fleetsched/pkg/log"
	"github.com/opensched/fleetsched/pkg/metrics"
)

// ReserveUntil installs a hold with expiration until on every named
// node, owned by (user, jobid). Per-node failures are logged and do
// not abort the call; it returns true iff every node succeeded.
// Existing holds owned by the same (user, jobid) are extended
// idempotently — calling ReserveUntil twice with a later until for the
// same owner simply moves the expiration forward.
func ReserveUntil(set *fleet.ResourceSet, nodes []string, until time.Time, user string, jobid int) bool {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReservationApplyDuration)

	ok := true
	for _, name := range nodes {
		r, found := set.ByName(name)
		if !found {
			ok = false
			metrics.ReservationFailuresTotal.Inc()
			log.WithNode(name).Error().Int("jobid", jobid).Msg("reserve: node not in fleet")
			continue
		}
		if err := r.Reserve(until, user, jobid); err != nil {
			ok = false
			metrics.ReservationFailuresTotal.Inc()
			log.WithNode(name).Error().Err(err).Int("jobid", jobid).Msg("reserve_resources_until failed")
		}
	}
	return ok
}

// ReleaseNodes clears holds owned by (user, jobid) on every named
// node, ignoring nodes that are already unreserved, and marks each
// released node cleanup-pending.
func ReleaseNodes(set *fleet.ResourceSet, nodes []string, user string, jobid int) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReservationApplyDuration)

	for _, name := range nodes {
		r, found := set.ByName(name)
		if !found {
			continue
		}
		r.Release(user, jobid, false)
	}
}

// State is a Reservation's position in the bridge-mirror state
// machine: unconfirmed -> confirmed -> releasing -> dead, or
// unconfirmed -> dead directly on a missed extension.
type State string

const (
	StateUnconfirmed State = "unconfirmed"
	StateConfirmed   State = "confirmed"
	StateReleasing   State = "releasing"
	StateDead        State = "dead"
)

// Reservation mirrors one external placement-service allocation.
type Reservation struct {
	AllocationID      string
	JobID             int
	Nodes             []string
	State             State
	Expires           time.Time
	ProcessGroupHandle string
}

// Controller tracks the set of live Reservations and reconciles them
// against the bridge on each refresh tick. It is accessed only while
// the caller holds the fleet lock (see pkg/scheduler), so its own
// mutex exists only to guard against accidental concurrent use.
type Controller struct {
	mu    sync.Mutex
	byID  map[string]*Reservation
}

// NewController returns an empty reservation controller.
func NewController() *Controller {
	return &Controller{byID: make(map[string]*Reservation)}
}

// Create records a fresh unconfirmed reservation for an allocation the
// placement engine just produced.
func (c *Controller) Create(allocationID string, jobid int, nodes []string, expires time.Time) *Reservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := &Reservation{
		AllocationID: allocationID,
		JobID:        jobid,
		Nodes:        append([]string(nil), nodes...),
		State:        StateUnconfirmed,
		Expires:      expires,
	}
	c.byID[allocationID] = r
	metrics.ReservationsTotal.Set(float64(len(c.byID)))
	return r
}

// Confirm marks a reservation confirmed once the forker reports a
// successful process-group launch. Invariant: a confirmed reservation
// always carries a non-empty process-group handle.
func (c *Controller) Confirm(allocationID, processGroupHandle string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byID[allocationID]
	if !ok {
		return fmt.Errorf("reservation %s: not found", allocationID)
	}
	r.State = StateConfirmed
	r.ProcessGroupHandle = processGroupHandle
	return nil
}

// Extend pushes a reservation's local expiration forward. The refresh
// loop does not call it and nothing is sent to the bridge; an
// unconfirmed reservation whose expiration passes is marked dead by
// ReconcileBridge.
func (c *Controller) Extend(allocationID string, until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.byID[allocationID]; ok {
		r.Expires = until
	}
}

// BeginRelease transitions a reservation to releasing, called when the
// job exits, is killed, or its hold lapses.
func (c *Controller) BeginRelease(allocationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.byID[allocationID]; ok {
		r.State = StateReleasing
	}
}

// Reap removes dead and releasing reservations and releases the
// fleet-side holds they still carry, returning the ids it removed.
func (c *Controller) Reap(set *fleet.ResourceSet) []string {
	c.mu.Lock()
	var dead []*Reservation
	for id, r := range c.byID {
		if r.State == StateDead || r.State == StateReleasing {
			dead = append(dead, r)
			delete(c.byID, id)
		}
	}
	metrics.ReservationsTotal.Set(float64(len(c.byID)))
	c.mu.Unlock()

	ids := make([]string, 0, len(dead))
	for _, r := range dead {
		ReleaseNodes(set, r.Nodes, "", r.JobID)
		ids = append(ids, r.AllocationID)
		metrics.DeadReservationsTotal.Inc()
	}
	return ids
}

// ReconcileBridge marks dead every local reservation whose id is absent
// from bridgeIDs, and every unconfirmed reservation whose expiration
// has passed. Bridge-reported ids with no local record are ignored
// (not ours).
func (c *Controller) ReconcileBridge(bridgeIDs map[string]struct{}, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, r := range c.byID {
		if _, onBridge := bridgeIDs[id]; !onBridge && r.State != StateDead {
			log.Logger.Warn().Str("reservation_id", id).Int("jobid", r.JobID).
				Msg("local reservation absent from bridge, marking dead")
			r.State = StateDead
			continue
		}
		if r.State == StateUnconfirmed && now.After(r.Expires) {
			log.Logger.Warn().Str("reservation_id", id).Int("jobid", r.JobID).
				Msg("reservation missed extension before expiry, marking dead")
			r.State = StateDead
		}
	}
}

// Get returns a reservation by allocation id.
func (c *Controller) Get(allocationID string) (*Reservation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byID[allocationID]
	return r, ok
}

// All returns every live reservation. Order is not guaranteed.
func (c *Controller) All() []*Reservation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Reservation, 0, len(c.byID))
	for _, r := range c.byID {
		out = append(out, r)
	}
	return out
}

// Package placement implements find_job_location: the per-equivalence-
// class immediate-run, drain, and backfill passes. It is grounded on
// CraySystem.find_job_location and _ALPS_reserve_resources, generalized
// to the full three-phase design in spec.md §4.5 (the Python source
// only implements Phase A, leaving "TODO: draining/backfill" markers).
package placement

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/opensched/fleetsched/pkg/bridge"
	"github.com/opensched/fleetsched/pkg/drain"
	"github.com/opensched/fleetsched/pkg/fleet"
	"github.com/opensched/fleetsched/pkg/job"
	"github.com/opensched/fleetsched/pkg/log"
	"github.com/opensched/fleetsched/pkg/metrics"
	"github.com/opensched/fleetsched/pkg/reservation"
	"github.com/opensched/fleetsched/pkg/resource"
)

// DefaultTempReservation is TEMP_RESERVATION_TIME from the original
// configuration: the duration a Phase A/C allocation is held before
// the forker must confirm it.
const DefaultTempReservation = 300 * time.Second

// Engine runs find_job_location over one equivalence class at a time.
// Callers must hold the fleet lock across the call (see pkg/scheduler).
type Engine struct {
	Fleet           *fleet.ResourceSet
	Bridge          bridge.Bridge
	Reservations    *reservation.Controller
	TempReservation time.Duration
}

// New returns a placement engine with the default temporary
// reservation duration.
func New(set *fleet.ResourceSet, br bridge.Bridge, ctrl *reservation.Controller) *Engine {
	return &Engine{
		Fleet:           set,
		Bridge:          br,
		Reservations:    ctrl,
		TempReservation: DefaultTempReservation,
	}
}

// FindJobLocation runs Phase A (immediate run), Phase B (drain), and
// Phase C (backfill) for one equivalence class's node set. jobs must
// already be sorted score-descending, equal score broken by lower
// jobid first (an equal-score equal-jobid input is a caller bug).
func (e *Engine) FindJobLocation(ctx context.Context, jobs []job.Descriptor, classNodes []string, endTimes []job.EndTime, now time.Time) map[int][]string {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PlacementDuration)

	result := make(map[int][]string)

	for _, name := range classNodes {
		if r, ok := e.Fleet.ByName(name); ok {
			r.ClearDrain()
		}
	}

	if e.allDown(classNodes) {
		return result
	}

	table := e.buildDrainTable(classNodes, endTimes)

	var drainTarget time.Time
	var drainJobID int
	phaseBDone := false

	for _, j := range jobs {
		if j.NodeCount > len(classNodes) {
			log.Logger.Info().Int("jobid", j.JobID).Int("nodecount", j.NodeCount).
				Msg("job rejected from this tick, exceeds class size")
			continue
		}
		if j.InCleanup {
			continue
		}

		idle := e.idleExcludingDrained(classNodes)
		if !phaseBDone && len(idle) >= j.NodeCount {
			if nodes, ok := e.allocate(ctx, j, idle, now); ok {
				result[j.JobID] = nodes
				metrics.ImmediatePlacementsTotal.Inc()
			} else {
				metrics.PlacementFailuresTotal.Inc()
			}
			continue
		}

		if phaseBDone {
			continue
		}

		tp, ok := table.EarliestTimeWithAtLeast(j.NodeCount)
		if !ok {
			continue
		}
		for _, n := range table.NodesAtOrBefore(tp) {
			if r, found := e.Fleet.ByName(n); found {
				r.MarkDrain(time.Unix(tp, 0), j.JobID, j.Score)
			}
		}
		drainTarget = time.Unix(tp, 0)
		drainJobID = j.JobID
		phaseBDone = true
		log.WithJobID(j.JobID).Info().Time("drain_until", drainTarget).Msg("drain started for job")
	}

	if phaseBDone {
		e.backfill(ctx, jobs, classNodes, drainJobID, drainTarget, now, result)
	}

	return result
}

// backfill walks the remaining unplaced jobs in score order; the first
// whose walltime fits inside the drain window and for which the idle
// pool (drained nodes included) can satisfy its nodecount wins. It never displaces Phase A
// winners and places at most one job.
func (e *Engine) backfill(ctx context.Context, jobs []job.Descriptor, classNodes []string, drainJobID int, drainUntil time.Time, now time.Time, result map[int][]string) {
	window := drainUntil.Sub(now)
	for _, j := range jobs {
		if _, placed := result[j.JobID]; placed {
			continue
		}
		if j.JobID == drainJobID || j.InCleanup {
			continue
		}
		if time.Duration(j.Walltime)*time.Minute > window {
			continue
		}
		// A node marked draining for the head job is still physically
		// idle right now; backfilling it is safe exactly because the
		// walltime check above guarantees this job finishes before the
		// head job's drain deadline.
		idle := e.idleIgnoringDrain(classNodes)
		if len(idle) < j.NodeCount {
			continue
		}
		if nodes, ok := e.allocate(ctx, j, idle, now); ok {
			result[j.JobID] = nodes
			metrics.BackfillPlacementsTotal.Inc()
		}
		return
	}
}

// allocate consults the bridge for nodecount nodes, falling back to a
// sorted first-fit over idle if the bridge declines, then applies the
// temporary reservation. Returns ok=false on any failure, logged but
// not propagated past this boundary.
func (e *Engine) allocate(ctx context.Context, j job.Descriptor, idle []string, now time.Time) ([]string, bool) {
	until := now.Add(e.TempReservation)

	var nodes []string
	var resID string
	if e.Bridge != nil {
		alloc, err := e.Bridge.Reserve(ctx, j.User, j.JobID, j.NodeCount)
		if err != nil {
			log.WithJobID(j.JobID).Warn().Err(err).Msg("bridge reserve failed, falling back to local first-fit")
		} else if alloc != nil && len(alloc.Nodes) == j.NodeCount {
			nodes = alloc.Nodes
			resID = alloc.ReservationID
		}
	}
	if nodes == nil {
		if len(idle) < j.NodeCount {
			return nil, false
		}
		nodes = append([]string(nil), idle[:j.NodeCount]...)
	}
	// The Controller's allocation id must match whatever the bridge
	// calls this reservation, so ReconcileBridge can recognize it on
	// the next refresh tick. When no bridge reservation exists (pure
	// local first-fit), mint an opaque id of our own.
	if resID == "" {
		resID = allocationID()
	}

	if !reservation.ReserveUntil(e.Fleet, nodes, until, j.User, j.JobID) {
		return nil, false
	}
	e.Reservations.Create(resID, j.JobID, nodes, until)
	return nodes, true
}

// allocationID mints an opaque reservation identifier, the same way the
// bridge itself would hand one back from a real reservation call.
func allocationID() string {
	return uuid.NewString()
}

func (e *Engine) allDown(classNodes []string) bool {
	for _, name := range classNodes {
		r, ok := e.Fleet.ByName(name)
		if !ok || r.Status() != resource.StatusDown {
			return false
		}
	}
	return true
}

func (e *Engine) idleExcludingDrained(classNodes []string) []string {
	var out []string
	for _, name := range classNodes {
		r, ok := e.Fleet.ByName(name)
		if !ok || !r.Managed || r.Status() != resource.StatusIdle || r.Reserved() {
			continue
		}
		if r.DrainInfo() != nil {
			continue
		}
		if e.Fleet.Blocked(name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// idleIgnoringDrain is idleExcludingDrained without the drain-mark
// filter, used by backfill: a node set aside for a future job is still
// physically idle now.
func (e *Engine) idleIgnoringDrain(classNodes []string) []string {
	var out []string
	for _, name := range classNodes {
		r, ok := e.Fleet.ByName(name)
		if !ok || !r.Managed || r.Status() != resource.StatusIdle || r.Reserved() {
			continue
		}
		if e.Fleet.Blocked(name) {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (e *Engine) buildDrainTable(classNodes []string, endTimes []job.EndTime) *drain.Table {
	inClass := make(map[string]struct{}, len(classNodes))
	for _, n := range classNodes {
		inClass[n] = struct{}{}
	}

	idleNow := e.idleExcludingDrained(classNodes)

	var running []drain.RunningEndTime
	for _, et := range endTimes {
		var nodes []string
		for _, n := range et.Nodes {
			if _, ok := inClass[n]; ok {
				nodes = append(nodes, n)
			}
		}
		if len(nodes) > 0 {
			running = append(running, drain.RunningEndTime{Nodes: nodes, EndTime: et.AtEpoch})
		}
	}

	table := drain.New()
	table.Init(idleNow, running)
	return table
}

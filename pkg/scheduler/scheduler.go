// Package scheduler exposes the facade operations spec.md §4.8 names
// and holds the single process-wide exclusive fleet lock every
// subsystem mutation proceeds under. It is grounded on the teacher's
// scheduler loop for its lock/logger structure, fully replaced in
// substance by the resource-and-job scheduling core.
//
// Go has no native recursive mutex. Rather than fight that, every
// method below is a thin locking wrapper around the unexported
// subsystems' own lock-free logic: public methods never call each
// other, so no method ever needs to re-acquire a lock it already
// holds.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/opensched/fleetsched/pkg/bridge"
	"github.com/opensched/fleetsched/pkg/equivalence"
	"github.com/opensched/fleetsched/pkg/fleet"
	"github.com/opensched/fleetsched/pkg/job"
	"github.com/opensched/fleetsched/pkg/log"
	"github.com/opensched/fleetsched/pkg/placement"
	"github.com/opensched/fleetsched/pkg/procgroup"
	"github.com/opensched/fleetsched/pkg/refresh"
	"github.com/opensched/fleetsched/pkg/reservation"
	"github.com/opensched/fleetsched/pkg/resource"
)

// Manager is the scheduler facade. It is safe for concurrent use by
// any number of RPC-handler goroutines plus the background refresh
// loop; all of them serialize on mu.
type Manager struct {
	mu sync.Mutex

	fleet        *fleet.ResourceSet
	placement    *placement.Engine
	reservations *reservation.Controller
	procGroups   *procgroup.Manager
	refresh      *refresh.Loop
}

// New wires a Manager over the given fleet and bridge, with the
// default temporary-reservation and refresh-interval durations.
func New(set *fleet.ResourceSet, br bridge.Bridge) *Manager {
	ctrl := reservation.NewController()
	m := &Manager{
		fleet:        set,
		placement:    placement.New(set, br, ctrl),
		reservations: ctrl,
		procGroups:   procgroup.NewManager(),
	}
	m.refresh = refresh.New(set, br, ctrl, &m.mu)
	return m
}

// Reservations exposes the reservation controller so callers (the
// metrics collector) can sample it without the facade needing a gauge
// method of its own.
func (m *Manager) Reservations() *reservation.Controller {
	return m.reservations
}

// StartRefreshLoop begins the background state-refresh ticker.
func (m *Manager) StartRefreshLoop() {
	m.refresh.Start()
}

// StopRefreshLoop stops the background ticker.
func (m *Manager) StopRefreshLoop() {
	m.refresh.Stop()
}

// GetNodes returns the named resources, or every resource in the fleet
// (managed or not) if nodeNames is empty.
func (m *Manager) GetNodes(nodeNames []string) []*resource.Resource {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(nodeNames) == 0 {
		return m.fleet.All()
	}
	out := make([]*resource.Resource, 0, len(nodeNames))
	for _, n := range nodeNames {
		if r, ok := m.fleet.ByName(n); ok {
			out = append(out, r)
		}
	}
	return out
}

// FindQueueEquivalenceClasses partitions the fleet's schedulable nodes
// into equivalence classes for the given active queues and
// administrative reservation map (reservation name -> node-list).
func (m *Manager) FindQueueEquivalenceClasses(activeQueues []string, reservationNodes map[string][]string) []equivalence.Class {
	m.mu.Lock()
	defer m.mu.Unlock()

	var nodes []equivalence.Node
	for _, r := range m.fleet.All() {
		if !r.Managed {
			continue
		}
		var queues []string
		if q, ok := r.Attributes["queues"]; ok {
			queues = splitQueues(q)
		}
		nodes = append(nodes, equivalence.Node{Name: r.Name, Queues: queues})
	}
	return equivalence.Build(nodes, activeQueues, reservationNodes)
}

func splitQueues(csv string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if i > start {
				out = append(out, csv[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// FindJobLocation runs the placement engine for one equivalence
// class's node set, holding the fleet lock for the whole call so the
// decision observes a single consistent snapshot.
func (m *Manager) FindJobLocation(ctx context.Context, jobs []job.Descriptor, classNodes []string, endTimes []job.EndTime) map[int][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.placement.FindJobLocation(ctx, jobs, classNodes, endTimes, time.Now())
}

// ReserveResourcesUntil applies or releases holds on the given nodes
// for (user, jobid). newTime nil means release.
func (m *Manager) ReserveResourcesUntil(nodes []string, newTime *time.Time, user string, jobid int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if newTime == nil {
		reservation.ReleaseNodes(m.fleet, nodes, user, jobid)
		return true
	}
	return reservation.ReserveUntil(m.fleet, nodes, *newTime, user, jobid)
}

// UpdateNodeState forces one state-refresh cycle outside of the
// regular tick, exposed as its own facade operation per spec.md §4.8.
func (m *Manager) UpdateNodeState(ctx context.Context) {
	m.refresh.Tick(ctx)
}

// AddProcessGroups creates and starts new process groups.
func (m *Manager) AddProcessGroups(specs []procgroup.Spec, start func(*procgroup.ProcessGroup)) ([]*procgroup.ProcessGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.procGroups.Add(specs, start)
}

// GetProcessGroups returns process groups matching ids, or all of them
// if ids is empty.
func (m *Manager) GetProcessGroups(ids []int) []*procgroup.ProcessGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.procGroups.Get(ids)
}

// WaitProcessGroups returns and removes finished process groups
// matching ids.
func (m *Manager) WaitProcessGroups(ids []int) []*procgroup.ProcessGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.procGroups.Wait(ids)
}

// SignalProcessGroups appends a signal to every matching process
// group.
func (m *Manager) SignalProcessGroups(ids []int, signame string) []*procgroup.ProcessGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.procGroups.Signal(ids, signame)
}

// ConfirmReservation marks a reservation confirmed once the forker
// reports a process-group handle for it.
func (m *Manager) ConfirmReservation(allocationID, processGroupHandle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.reservations.Confirm(allocationID, processGroupHandle); err != nil {
		log.Logger.Warn().Err(err).Str("reservation_id", allocationID).Msg("confirm failed")
		return err
	}
	return nil
}

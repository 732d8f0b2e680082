// Package procgroup owns the process-group table behind
// add_process_groups/get_process_groups/wait_process_groups/
// signal_process_groups, grounded on simulator.py's
// ProcessGroupDict/ProcessGroup. Unlike the teacher's module-level
// self.process_groups, the table here is owned by Manager and reached
// only through its facade methods, per spec.md §9's "Global mutable
// process_groups" redesign note.
package procgroup

import (
	"fmt"
	"sync"

	"github.com/opensched/fleetsched/pkg/schederr"
)

// Spec describes a process group to launch, mirroring ProcessGroup's
// required_fields (user, executable, args, location, size, cwd).
type Spec struct {
	User       string
	Executable string
	Args       []string
	Location   []string
	Size       int
	Cwd        string
	Env        map[string]string
}

// State is the lifecycle state of a process group.
type State string

const (
	StateRunning    State = "running"
	StateTerminated State = "terminated"
)

// ProcessGroup is a launched (or simulated) job instance.
type ProcessGroup struct {
	ID         int
	Spec       Spec
	ExitStatus *int
	Signals    []string
}

// State derives from whether ExitStatus has landed.
func (pg *ProcessGroup) State() State {
	if pg.ExitStatus == nil {
		return StateRunning
	}
	return StateTerminated
}

// Manager owns the process-group table, keyed by id, with its own
// monotonic id generator.
type Manager struct {
	mu     sync.Mutex
	nextID int
	groups map[int]*ProcessGroup
}

// NewManager returns an empty process-group manager.
func NewManager() *Manager {
	return &Manager{groups: make(map[int]*ProcessGroup)}
}

// Add validates and registers new process groups, starting each one.
// A spec with an empty Location is rejected with ErrDataCreation,
// mirroring ProcessGroupCreationError("location") from _get_argv.
func (m *Manager) Add(specs []Spec, start func(*ProcessGroup)) ([]*ProcessGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*ProcessGroup, 0, len(specs))
	for _, spec := range specs {
		if len(spec.Location) == 0 {
			return nil, fmt.Errorf("process group for %s: missing location: %w", spec.User, schederr.ErrDataCreation)
		}
		m.nextID++
		pg := &ProcessGroup{ID: m.nextID, Spec: spec}
		m.groups[pg.ID] = pg
		out = append(out, pg)
	}

	for _, pg := range out {
		if start != nil {
			start(pg)
		}
	}
	return out, nil
}

// Get returns the process groups matching any of the given ids. An
// empty ids slice returns every live process group.
func (m *Manager) Get(ids []int) []*ProcessGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(ids) == 0 {
		out := make([]*ProcessGroup, 0, len(m.groups))
		for _, pg := range m.groups {
			out = append(out, pg)
		}
		return out
	}
	out := make([]*ProcessGroup, 0, len(ids))
	for _, id := range ids {
		if pg, ok := m.groups[id]; ok {
			out = append(out, pg)
		}
	}
	return out
}

// Wait returns process groups matching ids that have already finished
// (ExitStatus set) and removes them from the table, mirroring
// wait_process_groups' "del self.process_groups[id]".
func (m *Manager) Wait(ids []int) []*ProcessGroup {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := ids
	if len(candidates) == 0 {
		candidates = make([]int, 0, len(m.groups))
		for id := range m.groups {
			candidates = append(candidates, id)
		}
	}

	var done []*ProcessGroup
	for _, id := range candidates {
		pg, ok := m.groups[id]
		if !ok || pg.ExitStatus == nil {
			continue
		}
		done = append(done, pg)
		delete(m.groups, id)
	}
	return done
}

// Signal appends a signal name to every matching process group's
// pending-signal list.
func (m *Manager) Signal(ids []int, signame string) []*ProcessGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ProcessGroup
	for _, id := range ids {
		pg, ok := m.groups[id]
		if !ok {
			continue
		}
		pg.Signals = append(pg.Signals, signame)
		out = append(out, pg)
	}
	return out
}

// Finish marks a process group exited with the given status, called by
// the launch backend (or simulator) when a job completes.
func (m *Manager) Finish(id int, exitStatus int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pg, ok := m.groups[id]; ok {
		pg.ExitStatus = &exitStatus
	}
}

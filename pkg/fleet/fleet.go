// Package fleet holds the ResourceSet: the keyed collection of all
// resources under the scheduler's control. It is grounded on Cobalt's
// CraySystem node dictionary (self.nodes, get_nodes, update_node_state)
// and simulator.py's update_relatives, adapted to an in-memory,
// non-persistent store per the core's single-process design.
package fleet

import (
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/opensched/fleetsched/pkg/log"
	"github.com/opensched/fleetsched/pkg/resource"
)

// ResourceSet is a keyed collection of resources, indexed by both name
// and id. It is guarded by a single exclusive lock shared by every
// subsystem that touches fleet state (drain table, equivalence-class
// cache, placement, reservation controller, refresh loop) — see
// pkg/scheduler for the facade that holds this lock across calls.
//
// ResourceSet itself does not lock: callers that need atomicity across
// multiple ResourceSet calls must hold the facade's lock. The internal
// mutex here only protects the two index maps against concurrent
// Add/Remove from goroutines that bypass the facade (none should).
type ResourceSet struct {
	mu      sync.RWMutex
	byName  map[string]*resource.Resource
	byID    map[int]*resource.Resource
}

// New returns an empty ResourceSet.
func New() *ResourceSet {
	return &ResourceSet{
		byName: make(map[string]*resource.Resource),
		byID:   make(map[int]*resource.Resource),
	}
}

// Add registers a resource under both indices. Invariant: every
// managed resource must be discoverable by both name and id.
func (s *ResourceSet) Add(r *resource.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[r.Name] = r
	s.byID[r.ID] = r
}

// Remove drops a resource from both indices.
func (s *ResourceSet) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byName[name]
	if !ok {
		return
	}
	delete(s.byName, name)
	delete(s.byID, r.ID)
}

// ByName looks up a resource by its name key.
func (s *ResourceSet) ByName(name string) (*resource.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byName[name]
	return r, ok
}

// ByID looks up a resource by its integer id key.
func (s *ResourceSet) ByID(id int) (*resource.Resource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	return r, ok
}

// All returns every resource in the set, managed or not. Order is not
// guaranteed.
func (s *ResourceSet) All() []*resource.Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*resource.Resource, 0, len(s.byName))
	for _, r := range s.byName {
		out = append(out, r)
	}
	return out
}

// Len returns the number of resources in the set, managed or not.
func (s *ResourceSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byName)
}

// AddRelation records a parent/child edge between two already-added
// resources, maintaining both directions of the DAG invariant:
// parent.children contains r iff r.parents contains parent.
func (s *ResourceSet) AddRelation(parentName, childName string) {
	parent, ok := s.ByName(parentName)
	if !ok {
		return
	}
	child, ok := s.ByName(childName)
	if !ok {
		return
	}
	parent.addChild(childName)
	child.addParent(parentName)
}

// UpdateRelatives rewrites every resource's parent/child lists so they
// mention only currently-managed resources, grounded on simulator.py's
// Partition.update_relatives (p.parents = [x for x in p._parents if
// x.name in self._managed_partitions]).
func (s *ResourceSet) UpdateRelatives() {
	s.mu.RLock()
	managed := make(map[string]struct{}, len(s.byName))
	for name, r := range s.byName {
		if r.Managed {
			managed[name] = struct{}{}
		}
	}
	all := make([]*resource.Resource, 0, len(s.byName))
	for _, r := range s.byName {
		all = append(all, r)
	}
	s.mu.RUnlock()

	for _, r := range all {
		r.pruneRelatives(managed)
	}
}

// Blocked reports whether any ancestor or descendant of the named
// resource is currently busy, per the core data model's definition of
// effective status.
func (s *ResourceSet) Blocked(name string) bool {
	return s.anyBusyRelative(name, make(map[string]struct{}), true) ||
		s.anyBusyRelative(name, make(map[string]struct{}), false)
}

func (s *ResourceSet) anyBusyRelative(name string, seen map[string]struct{}, upward bool) bool {
	if _, ok := seen[name]; ok {
		return false
	}
	seen[name] = struct{}{}

	r, ok := s.ByName(name)
	if !ok {
		return false
	}

	var next []string
	if upward {
		next = r.Parents()
	} else {
		next = r.Children()
	}

	for _, n := range next {
		rel, ok := s.ByName(n)
		if !ok {
			continue
		}
		if rel.Status() == resource.StatusBusy {
			return true
		}
		if s.anyBusyRelative(n, seen, upward) {
			return true
		}
	}
	return false
}

// Free returns the names of idle, unreserved, unblocked managed
// resources — the pool the placement engine draws immediate-run
// allocations from.
func (s *ResourceSet) Free() []string {
	var out []string
	for _, r := range s.All() {
		if r.Managed && r.Status() == resource.StatusIdle && !r.Reserved() && !s.Blocked(r.Name) {
			out = append(out, r.Name)
		}
	}
	sort.Strings(out)
	return out
}

// QuerySpec is one q_get filter: attribute name to a glob-style
// pattern (supporting '*') or a numeric range "lo:hi" (inclusive).
type QuerySpec map[string]string

// Query filters the set's resources (managed or not) by attribute, grounded on Cobalt's
// generic q_get predicate matcher. A resource matches a spec if every
// key in the spec matches that resource's corresponding attribute;
// matching any one spec in specs is sufficient (OR across specs, AND
// within a spec, matching Cobalt's q_get convention). Result ordering
// is not guaranteed.
func (s *ResourceSet) Query(specs []QuerySpec) []*resource.Resource {
	var out []*resource.Resource
	for _, r := range s.All() {
		for _, spec := range specs {
			if matchesSpec(r, spec) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func matchesSpec(r *resource.Resource, spec QuerySpec) bool {
	for key, pattern := range spec {
		val := attributeValue(r, key)
		if !matchesPattern(val, pattern) {
			return false
		}
	}
	return true
}

func attributeValue(r *resource.Resource, key string) string {
	switch key {
	case "name":
		return r.Name
	case "status":
		return string(r.Status())
	default:
		return r.Attributes[key]
	}
}

func matchesPattern(val, pattern string) bool {
	if lo, hi, ok := parseRange(pattern); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return false
		}
		return n >= lo && n <= hi
	}
	ok, err := filepath.Match(pattern, val)
	return err == nil && ok
}

// parseRange parses "lo:hi" into bounds. Returns ok=false if pattern
// isn't a range expression.
func parseRange(pattern string) (lo, hi int, ok bool) {
	parts := strings.SplitN(pattern, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(parts[0])
	hi, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// ApplyInventory updates hardware status from a bridge-reported
// inventory snapshot, grounded on CraySystem.update_node_state. Nodes
// reported by the bridge but not found in the fleet are logged and
// skipped — the fleet does not add nodes on the fly.
func (s *ResourceSet) ApplyInventory(reported map[string]resource.Status) (mismatches int) {
	for name, status := range reported {
		r, ok := s.ByName(name)
		if !ok {
			log.WithNode(name).Error().Msg("bridge reports node not in fleet inventory")
			mismatches++
			continue
		}
		_ = r.SetStatus(status)
	}
	return mismatches
}

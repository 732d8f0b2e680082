// Package resource models a single schedulable fleet member: a node, or
// on partitioned hardware, a block. It is grounded on Cobalt's
// Components.system.resource.Resource, generalized with a stable
// integer id and a parent/child DAG for nested hardware blocks.
package resource

import (
	"fmt"
	"sync"
	"time"

	"github.com/opensched/fleetsched/pkg/log"
	"github.com/opensched/fleetsched/pkg/schederr"
)

// Status is one of the enumerated resource states.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusAllocated       Status = "allocated"
	StatusBusy            Status = "busy"
	StatusCleanup         Status = "cleanup"
	StatusCleanupPending  Status = "cleanup-pending"
	StatusDown            Status = "down"
)

// validStatuses mirrors Resource.RESOURCE_STATUSES.
var validStatuses = map[Status]bool{
	StatusIdle:           true,
	StatusAllocated:      true,
	StatusBusy:           true,
	StatusCleanup:        true,
	StatusCleanupPending: true,
	StatusDown:           true,
}

// Hold is the reservation a resource carries while held for a job.
// Embedded in Resource; a resource is "reserved" iff Hold is non-nil.
type Hold struct {
	User    string
	JobID   int
	Expires time.Time
}

// Resource is one schedulable unit under the fleet's control.
type Resource struct {
	mu sync.RWMutex

	Name       string
	ID         int
	Attributes map[string]string
	Managed    bool

	status Status
	hold   *Hold
	drain  *DrainMark

	parents  map[string]struct{}
	children map[string]struct{}
}

// DrainMark records that a node has been set aside to free up for a
// higher-priority job at a future time, per the placement engine's
// Phase B. It does not change the node's status.
type DrainMark struct {
	Until time.Time
	JobID int
	Score float64
}

// New constructs an unmanaged, idle resource. Callers set Managed
// themselves; the refresh loop never changes it.
func New(name string, id int) *Resource {
	return &Resource{
		Name:       name,
		ID:         id,
		Attributes: make(map[string]string),
		status:     StatusIdle,
		parents:    make(map[string]struct{}),
		children:   make(map[string]struct{}),
	}
}

// Status returns the current hardware status.
func (r *Resource) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// SetStatus validates value against the enumerated status set before
// installing it. The placement engine may not set StatusDown — that
// transition is reserved for administrative action by the caller.
func (r *Resource) SetStatus(value Status) error {
	if !validStatuses[value] {
		return fmt.Errorf("%s: %w", value, schederr.ErrInvalidStatus)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = value
	return nil
}

// MarkDrain sets aside this node for a future job, overwriting any
// existing weaker drain only when score exceeds the current holder's.
// Returns true if the mark was applied.
func (r *Resource) MarkDrain(until time.Time, jobid int, score float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drain != nil && r.drain.Score >= score {
		return false
	}
	r.drain = &DrainMark{Until: until, JobID: jobid, Score: score}
	return true
}

// ClearDrain removes any drain mark on this node.
func (r *Resource) ClearDrain() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drain = nil
}

// DrainInfo returns a copy of the current drain mark, or nil.
func (r *Resource) DrainInfo() *DrainMark {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.drain == nil {
		return nil
	}
	d := *r.drain
	return &d
}

// Reserved reports whether a hold is installed.
func (r *Resource) Reserved() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hold != nil
}

// HoldInfo returns a copy of the current hold, or nil if unreserved.
func (r *Resource) HoldInfo() *Hold {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.hold == nil {
		return nil
	}
	h := *r.hold
	return &h
}

func (r *Resource) checkManaged() error {
	if !r.Managed {
		return fmt.Errorf("%s: %w", r.Name, schederr.ErrUnmanagedResource)
	}
	return nil
}

// Reserve installs a hold until the given time, owned by (user, jobid).
// If an existing hold is owned by a different (user, jobid), it fails
// with ErrResourceReservationFailure. Re-reserving with the matching
// owner is idempotent and simply extends until.
func (r *Resource) Reserve(until time.Time, user string, jobid int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.Managed {
		return fmt.Errorf("%s: %w", r.Name, schederr.ErrUnmanagedResource)
	}

	if r.hold != nil && (r.hold.User != user || r.hold.JobID != jobid) {
		return fmt.Errorf("%s/%s/%d: unable to reserve already reserved resource: %w",
			r.Name, user, jobid, schederr.ErrResourceReservationFailure)
	}

	r.hold = &Hold{User: user, JobID: jobid, Expires: until}
	r.status = StatusAllocated
	return nil
}

// Release clears the hold and sets status to cleanup-pending. Ownership
// is enforced unless force is set; releasing an already-unreserved
// resource logs and returns false rather than erroring.
func (r *Resource) Release(user string, jobid int, force bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := false
	if r.hold == nil {
		log.WithNode(r.Name).Warn().Msg("release of already free resource attempted, ignored")
	} else if force || user == r.hold.User || jobid == r.hold.JobID {
		r.hold = nil
		released = true
	} else {
		log.WithNode(r.Name).Warn().
			Str("requesting_user", user).Int("requesting_jobid", jobid).
			Str("owner_user", r.hold.User).Int("owner_jobid", r.hold.JobID).
			Msg("attempted to release reservation owned by another user/job")
	}
	r.status = StatusCleanupPending
	return released
}

// ResetInfo copies reservation and attribute fields from a prior
// instance of this resource, used on restart-from-state paths.
func (r *Resource) ResetInfo(other *Resource) {
	other.mu.RLock()
	attrs := make(map[string]string, len(other.Attributes))
	for k, v := range other.Attributes {
		attrs[k] = v
	}
	var hold *Hold
	if other.hold != nil {
		h := *other.hold
		hold = &h
	}
	managed := other.Managed
	other.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attributes = attrs
	r.hold = hold
	r.Managed = managed
}

// addParent records a parent relation; callers must maintain the
// inverse child link on the parent resource themselves (ResourceSet
// does this via AddRelation).
func (r *Resource) addParent(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parents[name] = struct{}{}
}

func (r *Resource) addChild(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.children[name] = struct{}{}
}

// Parents returns the names of this resource's parent blocks.
func (r *Resource) Parents() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.parents))
	for n := range r.parents {
		out = append(out, n)
	}
	return out
}

// Children returns the names of this resource's child blocks.
func (r *Resource) Children() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.children))
	for n := range r.children {
		out = append(out, n)
	}
	return out
}

// pruneRelatives removes parent/child entries not present in managed,
// used by ResourceSet.UpdateRelatives to drop references to resources
// that left the fleet.
func (r *Resource) pruneRelatives(managed map[string]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.parents {
		if _, ok := managed[name]; !ok {
			delete(r.parents, name)
		}
	}
	for name := range r.children {
		if _, ok := managed[name]; !ok {
			delete(r.children, name)
		}
	}
}

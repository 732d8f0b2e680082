// Package bridge defines the external placement-service contract the
// core consults for inventory and node allocation, grounded on
// CraySystem's AlpsBridge usage (fetch_inventory, reserve, release).
// A real deployment wires an external allocator behind this interface;
// this package also ships a first-fit Simulator grounded on
// simulator.py, used when the fleet runs in simulation_mode.
package bridge

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opensched/fleetsched/pkg/resource"
)

// NodeSpec is the bridge's report of one node's hardware state.
type NodeSpec struct {
	Name   string
	NodeID int
	State  resource.Status
	Queues []string
}

// ReservationSpec is the bridge's report of one external reservation.
type ReservationSpec struct {
	ReservationID string
	JobID         int
	NodeIDs       []int
	User          string
	Account       string
}

// Inventory is the full snapshot returned by FetchInventory.
type Inventory struct {
	Nodes        []NodeSpec
	Reservations []ReservationSpec
}

// Allocation is a successful bridge-side reservation of nodecount
// nodes for one job, unconfirmed until the forker callback lands.
type Allocation struct {
	ReservationID string
	Nodes         []string
}

// Bridge is the contract the placement and reservation controller
// consult. Implementations must not block the fleet lock: callers
// invoke Bridge methods outside the lock and reconcile results under
// it afterward.
type Bridge interface {
	// FetchInventory returns the bridge's current view of hardware and
	// reservation state. resinfo controls whether reservations are
	// included, mirroring AlpsBridge.fetch_inventory(resinfo=true).
	FetchInventory(ctx context.Context, resinfo bool) (Inventory, error)

	// Reserve asks the bridge's own allocator for nodecount nodes for
	// (user, jobid). Returns (nil, nil) if placement failed rather than
	// erroring — a failed placement is not an error condition.
	Reserve(ctx context.Context, user string, jobid int, nodecount int) (*Allocation, error)

	// Release tells the bridge a reservation is no longer needed.
	// Returns the residual claim count; zero means the reservation is
	// fully gone.
	Release(ctx context.Context, reservationID string) (claims int, err error)
}

// Simulator is an in-memory first-fit Bridge, grounded on
// simulator.py's Partition/ProcessGroup bookkeeping. It treats every
// resource named in its node list as free unless currently allocated
// to an outstanding reservation it issued itself.
type Simulator struct {
	mu        sync.Mutex
	nodes     []NodeSpec
	nextResID int
	held      map[string][]string // reservation id -> node names
}

// NewSimulator builds a Simulator over the given node specs, all
// initially idle.
func NewSimulator(nodes []NodeSpec) *Simulator {
	cp := make([]NodeSpec, len(nodes))
	copy(cp, nodes)
	return &Simulator{nodes: cp, held: make(map[string][]string)}
}

// FetchInventory returns the simulator's node list and, when resinfo
// is set, one ReservationSpec per reservation the simulator currently
// holds. Those specs carry only the reservation id; job, node and owner
// fields are left empty.
func (s *Simulator) FetchInventory(ctx context.Context, resinfo bool) (Inventory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]NodeSpec, len(s.nodes))
	copy(nodes, s.nodes)

	inv := Inventory{Nodes: nodes}
	if resinfo {
		for id, held := range s.held {
			inv.Reservations = append(inv.Reservations, ReservationSpec{ReservationID: id, NodeIDs: nil, User: "", Account: ""})
			_ = held
		}
	}
	return inv, nil
}

// Reserve performs first-fit allocation over currently-unheld
// simulator nodes, grounded on _ALPS_reserve_resources' "use their
// allocator" comment — here, the built-in allocator.
func (s *Simulator) Reserve(ctx context.Context, user string, jobid int, nodecount int) (*Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	busy := make(map[string]struct{})
	for _, ns := range s.held {
		for _, n := range ns {
			busy[n] = struct{}{}
		}
	}

	var candidates []string
	for _, n := range s.nodes {
		if n.State != resource.StatusIdle {
			continue
		}
		if _, held := busy[n.Name]; held {
			continue
		}
		candidates = append(candidates, n.Name)
	}
	sort.Strings(candidates)

	if len(candidates) < nodecount {
		return nil, nil
	}

	picked := candidates[:nodecount]
	s.nextResID++
	id := fmt.Sprintf("sim-%d", s.nextResID)
	s.held[id] = picked

	return &Allocation{ReservationID: id, Nodes: picked}, nil
}

// Release drops the simulator's record of a reservation. Claims is
// always 0 on success since the simulator holds no external state.
func (s *Simulator) Release(ctx context.Context, reservationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, reservationID)
	return 0, nil
}

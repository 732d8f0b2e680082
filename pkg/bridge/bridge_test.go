package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensched/fleetsched/pkg/resource"
)

func TestSimulator_FetchInventoryReturnsCopy(t *testing.T) {
	sim := NewSimulator([]NodeSpec{{Name: "vs1", NodeID: 1, State: resource.StatusIdle}})

	inv, err := sim.FetchInventory(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, inv.Nodes, 1)

	inv.Nodes[0].Name = "mutated"

	inv2, _ := sim.FetchInventory(context.Background(), false)
	assert.Equal(t, "vs1", inv2.Nodes[0].Name)
}

func TestSimulator_ReserveFirstFit(t *testing.T) {
	sim := NewSimulator([]NodeSpec{
		{Name: "vs2", NodeID: 2, State: resource.StatusIdle},
		{Name: "vs1", NodeID: 1, State: resource.StatusIdle},
	})

	alloc, err := sim.Reserve(context.Background(), "alice", 1, 1)
	require.NoError(t, err)
	require.NotNil(t, alloc)
	assert.Equal(t, []string{"vs1"}, alloc.Nodes, "first-fit picks lowest sorted name first")
}

func TestSimulator_ReserveInsufficientCandidatesReturnsNilNoError(t *testing.T) {
	sim := NewSimulator([]NodeSpec{{Name: "vs1", NodeID: 1, State: resource.StatusIdle}})

	alloc, err := sim.Reserve(context.Background(), "alice", 1, 2)
	require.NoError(t, err)
	assert.Nil(t, alloc)
}

func TestSimulator_ReserveExcludesAlreadyHeldNodes(t *testing.T) {
	sim := NewSimulator([]NodeSpec{
		{Name: "vs1", NodeID: 1, State: resource.StatusIdle},
		{Name: "vs2", NodeID: 2, State: resource.StatusIdle},
	})

	first, err := sim.Reserve(context.Background(), "alice", 1, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"vs1"}, first.Nodes)

	second, err := sim.Reserve(context.Background(), "bob", 2, 1)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, []string{"vs2"}, second.Nodes)
}

func TestSimulator_ReleaseFreesNodesForReuse(t *testing.T) {
	sim := NewSimulator([]NodeSpec{{Name: "vs1", NodeID: 1, State: resource.StatusIdle}})

	alloc, err := sim.Reserve(context.Background(), "alice", 1, 1)
	require.NoError(t, err)

	claims, err := sim.Release(context.Background(), alloc.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, 0, claims)

	again, err := sim.Reserve(context.Background(), "bob", 2, 1)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, []string{"vs1"}, again.Nodes)
}

func TestSimulator_ReserveSkipsNonIdleNodes(t *testing.T) {
	sim := NewSimulator([]NodeSpec{{Name: "vs1", NodeID: 1, State: resource.StatusBusy}})

	alloc, err := sim.Reserve(context.Background(), "alice", 1, 1)
	require.NoError(t, err)
	assert.Nil(t, alloc)
}

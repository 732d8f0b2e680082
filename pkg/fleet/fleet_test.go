package fleet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensched/fleetsched/pkg/resource"
)

func managedResource(name string, id int, status resource.Status) *resource.Resource {
	r := resource.New(name, id)
	r.Managed = true
	_ = r.SetStatus(status)
	return r
}

func TestByNameByID(t *testing.T) {
	set := New()
	set.Add(managedResource("vs1", 1, resource.StatusIdle))

	r, ok := set.ByName("vs1")
	require.True(t, ok)
	assert.Equal(t, 1, r.ID)

	byID, ok := set.ByID(1)
	require.True(t, ok)
	assert.Equal(t, "vs1", byID.Name)
}

func TestRemove(t *testing.T) {
	set := New()
	set.Add(managedResource("vs1", 1, resource.StatusIdle))
	set.Remove("vs1")

	_, ok := set.ByName("vs1")
	assert.False(t, ok)
	_, ok = set.ByID(1)
	assert.False(t, ok)
}

func TestAddRelation_MaintainsBothDirections(t *testing.T) {
	set := New()
	set.Add(managedResource("c0-0", 1, resource.StatusIdle))
	set.Add(managedResource("c0-0n0", 2, resource.StatusIdle))

	set.AddRelation("c0-0", "c0-0n0")

	parent, _ := set.ByName("c0-0")
	child, _ := set.ByName("c0-0n0")
	assert.Equal(t, []string{"c0-0n0"}, parent.Children())
	assert.Equal(t, []string{"c0-0"}, child.Parents())
}

func TestUpdateRelatives_DropsReferencesToRemovedNodes(t *testing.T) {
	set := New()
	set.Add(managedResource("c0-0", 1, resource.StatusIdle))
	set.Add(managedResource("c0-0n0", 2, resource.StatusIdle))
	set.AddRelation("c0-0", "c0-0n0")

	set.Remove("c0-0n0")
	set.UpdateRelatives()

	parent, _ := set.ByName("c0-0")
	assert.Empty(t, parent.Children())
}

func TestBlocked_ByBusyChild(t *testing.T) {
	set := New()
	set.Add(managedResource("c0-0", 1, resource.StatusIdle))
	set.Add(managedResource("c0-0n0", 2, resource.StatusBusy))
	set.AddRelation("c0-0", "c0-0n0")

	assert.True(t, set.Blocked("c0-0"))
	assert.False(t, set.Blocked("c0-0n0"))
}

func TestBlocked_IsComputedNotStored(t *testing.T) {
	set := New()
	set.Add(managedResource("c0-0", 1, resource.StatusIdle))
	set.Add(managedResource("c0-0n0", 2, resource.StatusBusy))
	set.AddRelation("c0-0", "c0-0n0")

	require.True(t, set.Blocked("c0-0"))

	child, _ := set.ByName("c0-0n0")
	_ = child.SetStatus(resource.StatusIdle)
	assert.False(t, set.Blocked("c0-0"), "blocked must reflect live neighbor state, not a cached flag")
}

func TestFree_ExcludesReservedBlockedAndUnmanaged(t *testing.T) {
	set := New()
	set.Add(managedResource("vs1", 1, resource.StatusIdle))
	unmanaged := resource.New("vs2", 2)
	_ = unmanaged.SetStatus(resource.StatusIdle)
	set.Add(unmanaged)
	set.Add(managedResource("vs3", 3, resource.StatusBusy))

	assert.Equal(t, []string{"vs1"}, set.Free())
}

func TestQuery_MatchesGlobAndRange(t *testing.T) {
	set := New()
	a := managedResource("vs1", 1, resource.StatusIdle)
	a.Attributes["queues"] = "default"
	b := managedResource("vs2", 2, resource.StatusIdle)
	b.Attributes["queues"] = "gpu"
	set.Add(a)
	set.Add(b)

	results := set.Query([]QuerySpec{{"queues": "def*"}})
	require.Len(t, results, 1)
	assert.Equal(t, "vs1", results[0].Name)

	byID := set.Query([]QuerySpec{{"name": "vs*"}})
	assert.Len(t, byID, 2)
}

func TestApplyInventory_CountsMismatchesWithoutAddingNodes(t *testing.T) {
	set := New()
	set.Add(managedResource("vs1", 1, resource.StatusIdle))

	mismatches := set.ApplyInventory(map[string]resource.Status{
		"vs1": resource.StatusBusy,
		"vs9": resource.StatusBusy,
	})

	assert.Equal(t, 1, mismatches)
	r, _ := set.ByName("vs1")
	assert.Equal(t, resource.StatusBusy, r.Status())
	assert.Equal(t, 1, set.Len(), "bridge-only nodes must not be added to the fleet")
}

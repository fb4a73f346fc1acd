package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/schedulerd/pkg/types"
)

func scheduleJob(name string) *types.Job {
	return &types.Job{Name: name, Kind: types.ScheduleBased, Schedule: "R/2024-01-01T00:00:00Z/PT1M"}
}

func depJob(name string, parents ...string) *types.Job {
	set := make(map[string]struct{}, len(parents))
	for _, p := range parents {
		set[p] = struct{}{}
	}
	return &types.Job{Name: name, Kind: types.DependencyBased, Parents: set}
}

func TestAddVertexAndLookup(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))

	job, ok := g.LookupVertex("a")
	require.True(t, ok)
	assert.Equal(t, "a", job.Name)

	_, ok = g.LookupVertex("missing")
	assert.False(t, ok)
}

func TestAddDependencyWiresChildren(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))
	g.AddVertex(depJob("b", "a"))

	require.NoError(t, g.AddDependency("a", "b"))
	assert.ElementsMatch(t, []string{"b"}, g.GetChildren("a"))
}

func TestAddDependencyUnknownVertex(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))

	err := g.AddDependency("a", "ghost")
	assert.Error(t, err)
	var unknown *ErrUnknownJob
	assert.ErrorAs(t, err, &unknown)
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	g := New()
	g.AddVertex(depJob("a"))
	g.AddVertex(depJob("b", "a"))
	g.AddVertex(depJob("c", "b"))

	require.NoError(t, g.AddDependency("a", "b"))
	require.NoError(t, g.AddDependency("b", "c"))

	err := g.AddDependency("c", "a")
	assert.Error(t, err)
	var cyc *ErrCycle
	assert.ErrorAs(t, err, &cyc)
}

func TestAddDependencySelfCycleRejected(t *testing.T) {
	g := New()
	g.AddVertex(depJob("a"))

	err := g.AddDependency("a", "a")
	assert.Error(t, err)
}

func TestGetExecutableChildrenFiresOnlyWhenAllParentsComplete(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))
	g.AddVertex(scheduleJob("b"))
	g.AddVertex(depJob("c", "a", "b"))

	require.NoError(t, g.AddDependency("a", "c"))
	require.NoError(t, g.AddDependency("b", "c"))

	assert.Empty(t, g.GetExecutableChildren("a"))
	assert.ElementsMatch(t, []string{"c"}, g.GetExecutableChildren("b"))

	// invocation set was cleared on firing: re-running "a" alone doesn't refire.
	assert.Empty(t, g.GetExecutableChildren("a"))
}

func TestGetExecutableChildrenIgnoresNonDependencyChildren(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))
	g.AddVertex(scheduleJob("b"))
	g.children["a"]["b"] = struct{}{}

	assert.Empty(t, g.GetExecutableChildren("a"))
}

func TestResetDependencyInvocationsClearsPartialProgress(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))
	g.AddVertex(scheduleJob("b"))
	g.AddVertex(depJob("c", "a", "b"))

	require.NoError(t, g.AddDependency("a", "c"))
	require.NoError(t, g.AddDependency("b", "c"))

	assert.Empty(t, g.GetExecutableChildren("a"))
	g.ResetDependencyInvocations("c")
	assert.Empty(t, g.GetExecutableChildren("b"))
}

func TestReplaceVertexReconciliesParentSetRemoval(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))
	g.AddVertex(scheduleJob("b"))
	old := depJob("c", "a", "b")
	g.AddVertex(old)
	require.NoError(t, g.AddDependency("a", "c"))
	require.NoError(t, g.AddDependency("b", "c"))

	updated := depJob("c", "a")
	require.NoError(t, g.ReplaceVertex(old, updated))

	assert.ElementsMatch(t, []string{"c"}, g.GetChildren("a"))
	assert.Empty(t, g.GetChildren("b"))
}

func TestReplaceVertexNameMismatch(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))

	err := g.ReplaceVertex(scheduleJob("a"), scheduleJob("b"))
	assert.Error(t, err)
}

func TestRemoveVertexDetachesFromParents(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))
	child := depJob("c", "a")
	g.AddVertex(child)
	require.NoError(t, g.AddDependency("a", "c"))

	g.RemoveVertex("c")
	assert.Empty(t, g.GetChildren("a"))
	_, ok := g.LookupVertex("c")
	assert.False(t, ok)
}

func TestResetClearsAllState(t *testing.T) {
	g := New()
	g.AddVertex(scheduleJob("a"))
	g.AddVertex(depJob("b", "a"))
	require.NoError(t, g.AddDependency("a", "b"))

	g.Reset()
	_, ok := g.LookupVertex("a")
	assert.False(t, ok)
	assert.Empty(t, g.GetChildren("a"))
}

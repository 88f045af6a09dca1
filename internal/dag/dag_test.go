package dag

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("clean")
	assert.Len(t, g.nodes, 1)
	n, ok := g.nodes["clean"]
	require.True(t, ok)
	assert.Equal(t, "clean", n.id)
	assert.NotNil(t, n.deps)
	assert.NotNil(t, n.dependents)

	g.AddNode("clean") // idempotent
	assert.Len(t, g.nodes, 1)

	g.AddNode("build")
	assert.Len(t, g.nodes, 2)
	assert.Contains(t, g.nodes, "build")
	assert.NotContains(t, g.nodes, "serve")
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := New()
		g.AddNode("clean")
		g.AddNode("build")

		require.NoError(t, g.AddEdge("clean", "build")) // build depends on clean

		assert.Contains(t, g.nodes["build"].deps, "clean")

		dependents, err := g.Dependents("clean")
		require.NoError(t, err)
		assert.Equal(t, []string{"build"}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		g := New()
		g.AddNode("a")

		assert.ErrorContains(t, g.AddEdge("dne", "a"), "source node not found: dne")
		assert.ErrorContains(t, g.AddEdge("a", "dne"), "destination node not found: dne")

		err := g.AddEdge("a", "a")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrCycle))
		assert.EqualError(t, err, "cycle detected: a -> a")
	})
}

func TestDependents_UnknownNode(t *testing.T) {
	g := New()
	_, err := g.Dependents("missing")
	assert.ErrorContains(t, err, "node not found")
}

func TestDetectCycles(t *testing.T) {
	t.Run("diamond has no cycle", func(t *testing.T) {
		g := diamond(t)
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("three node cycle reports full path", func(t *testing.T) {
		g := New()
		for _, id := range []string{"a", "b", "c"} {
			g.AddNode(id)
		}
		// a depends on b, b on c, c on a.
		require.NoError(t, g.AddEdge("b", "a"))
		require.NoError(t, g.AddEdge("c", "b"))
		require.NoError(t, g.AddEdge("a", "c"))

		err := g.DetectCycles()
		require.Error(t, err)

		var cycleErr *CycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.True(t, errors.Is(err, ErrCycle))
		assert.Equal(t, []string{"a", "b", "c", "a"}, cycleErr.Path)
		assert.EqualError(t, err, "cycle detected: a -> b -> c -> a")
	})

	t.Run("cycle off the root is still found", func(t *testing.T) {
		g := New()
		for _, id := range []string{"a", "x", "y"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("x", "a"))
		require.NoError(t, g.AddEdge("y", "x"))
		require.NoError(t, g.AddEdge("x", "y"))

		var cycleErr *CycleError
		require.ErrorAs(t, g.DetectCycles(), &cycleErr)
		assert.Equal(t, []string{"x", "y", "x"}, cycleErr.Path)
	})
}

func TestClosure(t *testing.T) {
	g := diamond(t)
	g.AddNode("unrelated")

	got, err := g.Closure("build")
	require.NoError(t, err)
	want := []string{"clean", "compile:css", "compile:js", "build"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Closure() mismatch (-want +got):\n%s", diff)
	}

	got, err = g.Closure("compile:css", "compile:js")
	require.NoError(t, err)
	assert.Equal(t, []string{"clean", "compile:css", "compile:js"}, got)

	_, err = g.Closure("nope")
	assert.ErrorContains(t, err, "node not found: nope")
}

func TestTopologicalOrder(t *testing.T) {
	g := diamond(t)
	order, err := g.TopologicalOrder()
	require.NoError(t, err)
	require.Len(t, order, 4)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["clean"], pos["compile:css"])
	assert.Less(t, pos["clean"], pos["compile:js"])
	assert.Less(t, pos["compile:css"], pos["build"])
	assert.Less(t, pos["compile:js"], pos["build"])

	require.NoError(t, g.AddEdge("build", "clean"))
	_, err = g.TopologicalOrder()
	assert.ErrorIs(t, err, ErrCycle)
}

// diamond builds: build -> {compile:css, compile:js} -> clean.
func diamond(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, id := range []string{"clean", "compile:css", "compile:js", "build"} {
		g.AddNode(id)
	}
	require.NoError(t, g.AddEdge("clean", "compile:css"))
	require.NoError(t, g.AddEdge("clean", "compile:js"))
	require.NoError(t, g.AddEdge("compile:css", "build"))
	require.NoError(t, g.AddEdge("compile:js", "build"))
	return g
}

package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepGraphEdges(t *testing.T) {
	g := New()
	g.AddEdge("framing", "foundation")
	g.AddEdge("roofing", "framing")
	g.AddNode("permits")

	assert.True(t, g.HasEdge("framing", "foundation"))
	assert.False(t, g.HasEdge("foundation", "framing"))
	assert.Equal(t, []string{"foundation"}, g.Prerequisites("framing"))
	assert.Equal(t, []string{"framing"}, g.Dependents("foundation"))
	assert.Nil(t, g.Prerequisites("permits"))
	assert.Equal(t, 2, g.EdgeCount())
	assert.Equal(t, []string{"foundation", "framing", "permits", "roofing"}, g.Nodes())

	g.RemoveEdge("roofing", "framing")
	assert.Equal(t, 1, g.EdgeCount())
}

func TestWouldCycle(t *testing.T) {
	g := New()
	g.AddEdge("b", "a")
	g.AddEdge("c", "b")

	assert.True(t, g.WouldCycle("a", "c"))
	assert.True(t, g.WouldCycle("a", "a"))
	assert.False(t, g.WouldCycle("c", "a"))
	assert.True(t, g.DependsOn("c", "a"))
	assert.False(t, g.DependsOn("a", "c"))
}

func TestRemapDropsUnmappedNodes(t *testing.T) {
	g := New()
	g.AddEdge("m2", "m1")
	g.AddEdge("m3", "m2")
	g.AddEdge("m3", "inactive")

	out := g.Remap(map[string]string{"m1": "p1", "m2": "p2", "m3": "p3"})
	require.Equal(t, 2, out.EdgeCount())
	assert.True(t, out.HasEdge("p2", "p1"))
	assert.True(t, out.HasEdge("p3", "p2"))
	assert.False(t, out.HasNode("inactive"))
	assert.Equal(t, []Edge{{Node: "p2", Prereq: "p1"}, {Node: "p3", Prereq: "p2"}}, out.Edges())
}

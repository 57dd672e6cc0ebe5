// Package graph holds prerequisite graphs as adjacency sets keyed by node ID.
package graph

import "sort"

// DepGraph maps each node to the set of nodes it depends on.
type DepGraph struct {
	prereqs map[string]map[string]struct{}
}

func New() *DepGraph {
	return &DepGraph{prereqs: map[string]map[string]struct{}{}}
}

// AddNode registers a node with no edges. Adding an existing node is a no-op.
func (g *DepGraph) AddNode(id string) {
	if _, ok := g.prereqs[id]; !ok {
		g.prereqs[id] = map[string]struct{}{}
	}
}

// AddEdge records that node depends on prereq.
func (g *DepGraph) AddEdge(node, prereq string) {
	g.AddNode(node)
	g.AddNode(prereq)
	g.prereqs[node][prereq] = struct{}{}
}

func (g *DepGraph) RemoveEdge(node, prereq string) {
	if set, ok := g.prereqs[node]; ok {
		delete(set, prereq)
	}
}

func (g *DepGraph) HasNode(id string) bool {
	_, ok := g.prereqs[id]
	return ok
}

func (g *DepGraph) HasEdge(node, prereq string) bool {
	_, ok := g.prereqs[node][prereq]
	return ok
}

// Prerequisites returns the direct prerequisites of node, sorted.
func (g *DepGraph) Prerequisites(node string) []string {
	return sortedKeys(g.prereqs[node])
}

// Dependents returns the nodes that list node as a direct prerequisite, sorted.
func (g *DepGraph) Dependents(node string) []string {
	var out []string
	for n, set := range g.prereqs {
		if _, ok := set[node]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func (g *DepGraph) Nodes() []string {
	out := make([]string, 0, len(g.prereqs))
	for n := range g.prereqs {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// EdgeCount returns the number of prerequisite edges.
func (g *DepGraph) EdgeCount() int {
	n := 0
	for _, set := range g.prereqs {
		n += len(set)
	}
	return n
}

// DependsOn reports whether from reaches to by following prerequisite edges.
func (g *DepGraph) DependsOn(from, to string) bool {
	seen := map[string]struct{}{}
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for p := range g.prereqs[cur] {
			if p == to {
				return true
			}
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			stack = append(stack, p)
		}
	}
	return false
}

// WouldCycle reports whether adding node -> prereq would close a cycle.
func (g *DepGraph) WouldCycle(node, prereq string) bool {
	return node == prereq || g.DependsOn(prereq, node)
}

// Remap builds a graph over the mapped IDs. Nodes without a mapping are dropped
// together with every edge touching them.
func (g *DepGraph) Remap(mapping map[string]string) *DepGraph {
	out := New()
	for n, set := range g.prereqs {
		to, ok := mapping[n]
		if !ok {
			continue
		}
		out.AddNode(to)
		for p := range set {
			if mp, ok := mapping[p]; ok {
				out.AddEdge(to, mp)
			}
		}
	}
	return out
}

// Edge is a node/prerequisite pair.
type Edge struct {
	Node   string
	Prereq string
}

// Edges returns every edge ordered by node then prerequisite.
func (g *DepGraph) Edges() []Edge {
	var out []Edge
	for _, n := range g.Nodes() {
		for _, p := range g.Prerequisites(n) {
			out = append(out, Edge{Node: n, Prereq: p})
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

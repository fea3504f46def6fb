package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/cortex/internal/ir"
)

// WiringCycle is a set of sections that feed back into one another.
//
// The forward engine runs sections once per tick in a fixed order, and
// reverse resolution expands each section at most once, so any feedback
// loop makes a graph unusable.
type WiringCycle struct {
	Path []string `json:"path"` // ["a", "b", "a"]
}

// String renders the path as "a -> b -> a".
func (c WiringCycle) String() string {
	return strings.Join(c.Path, " -> ")
}

// FindCycles reports every feedback loop in the section wiring.
//
// It builds a section -> target graph from the connection lists, finds the
// strongly connected components with Tarjan's algorithm and reports each
// component with more than one member or a self-loop. Inputs have no
// incoming edges and can never be part of a cycle.
func FindCycles(g *ir.GraphSpec) []WiringCycle {
	graph := buildWiringGraph(g)
	sccs := tarjanSCC(graph)

	var cycles []WiringCycle
	for _, scc := range sccs {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, WiringCycle{Path: names(g, cyclePath(scc, graph))})
		}
	}
	sort.Slice(cycles, func(i, j int) bool {
		return cycles[i].String() < cycles[j].String()
	})
	return cycles
}

// wiringGraph maps a section id to the sections it feeds.
type wiringGraph map[int][]int

func buildWiringGraph(g *ir.GraphSpec) wiringGraph {
	graph := make(wiringGraph, len(g.Sections))
	for _, s := range g.Sections {
		if graph[s.ID] == nil {
			graph[s.ID] = []int{}
		}
		for _, c := range s.Connections {
			if _, ok := g.Section(c.Target); ok {
				graph[s.ID] = append(graph[s.ID], c.Target)
			}
		}
	}
	return graph
}

func hasSelfLoop(node int, graph wiringGraph) bool {
	for _, n := range graph[node] {
		if n == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in ascending id order so output is stable.
func tarjanSCC(graph wiringGraph) [][]int {
	var (
		index   = 0
		stack   []int
		indices = make(map[int]int)
		lowlink = make(map[int]int)
		onStack = make(map[int]bool)
		sccs    [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]int, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Ints(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks the component from its smallest id until it returns to
// the start. A self-loop yields [id, id].
func cyclePath(scc []int, graph wiringGraph) []int {
	members := make(map[int]bool, len(scc))
	start := scc[0]
	for _, n := range scc {
		members[n] = true
		start = min(start, n)
	}

	path := []int{start}
	visited := map[int]bool{start: true}
	current := start
	for {
		next, found := 0, false
		for _, n := range graph[current] {
			if members[n] && n == start {
				next, found = n, true
				break
			}
		}
		if !found {
			for _, n := range graph[current] {
				if members[n] && !visited[n] {
					next, found = n, true
					break
				}
			}
		}
		if !found {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}

func names(g *ir.GraphSpec, ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		if s, ok := g.Section(id); ok && s.Name != "" {
			out[i] = s.Name
		} else {
			out[i] = fmt.Sprintf("#%d", id)
		}
	}
	return out
}

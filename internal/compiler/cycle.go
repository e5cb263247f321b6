package compiler

import "slices"

// superGraph maps kind -> super-kinds declared in the same catalogue.
type superGraph map[string][]string

func buildSuperGraph(c *Catalogue) superGraph {
	graph := make(superGraph, len(c.Kinds))
	for _, d := range c.Kinds {
		// Ensure every node exists, even without edges
		graph[string(d.Name)] = []string{}
		for _, s := range d.Supers {
			if _, ok := c.Lookup(s); ok {
				graph[string(d.Name)] = append(graph[string(d.Name)], string(s))
			}
		}
	}
	return graph
}

// superCycle returns one super-kind cycle as a path that starts and ends
// at the same kind, or nil when the hierarchy is acyclic.
func superCycle(c *Catalogue) []string {
	graph := buildSuperGraph(c)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		return cyclePath(scc, graph)
	}
	return nil
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
func tarjanSCC(graph superGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
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

		// If v is a root node, pop the stack and create an SCC
		if lowlink[v] == indices[v] {
			var scc []string
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

	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

// cyclePath walks from the smallest node of an SCC until it returns.
func cyclePath(scc []string, graph superGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)
	path := []string{start}
	seen := map[string]bool{start: true}
	cur := start
	for {
		var next string
		for _, w := range graph[cur] {
			if members[w] {
				next = w
				break
			}
		}
		path = append(path, next)
		if next == start || seen[next] {
			return path
		}
		seen[next] = true
		cur = next
	}
}

package plugin

import (
	"maps"
	"slices"
)

// dependencyGraph maps a plugin name to the plugins it depends on.
type dependencyGraph map[string][]string

// findCycles returns every dependency cycle in g: strongly connected
// components with more than one plugin, or a plugin depending on itself.
// Each cycle is sorted and closed by repeating its first element.
func findCycles(g dependencyGraph) [][]string {
	var cycles [][]string
	for _, comp := range components(g) {
		if len(comp) > 1 || slices.Contains(g[comp[0]], comp[0]) {
			slices.Sort(comp)
			cycles = append(cycles, append(comp, comp[0]))
		}
	}
	slices.SortFunc(cycles, slices.Compare)
	return cycles
}

// components returns the strongly connected components of g (Tarjan).
// Roots are visited in name order so the output is stable.
func components(g dependencyGraph) [][]string {
	s := &sccSearch{graph: g, order: make(map[string]int), low: make(map[string]int), open: make(map[string]bool)}
	for _, name := range slices.Sorted(maps.Keys(g)) {
		if _, seen := s.order[name]; !seen {
			s.visit(name)
		}
	}
	return s.found
}

type sccSearch struct {
	graph dependencyGraph
	next  int
	order map[string]int // discovery index
	low   map[string]int // lowest index reachable
	open  map[string]bool
	path  []string
	found [][]string
}

func (s *sccSearch) visit(name string) {
	s.order[name], s.low[name] = s.next, s.next
	s.next++
	s.path = append(s.path, name)
	s.open[name] = true

	for _, dep := range s.graph[name] {
		if _, seen := s.order[dep]; !seen {
			s.visit(dep)
			s.low[name] = min(s.low[name], s.low[dep])
		} else if s.open[dep] {
			s.low[name] = min(s.low[name], s.order[dep])
		}
	}
	if s.low[name] != s.order[name] {
		return
	}

	i := slices.Index(s.path, name)
	comp := slices.Clone(s.path[i:])
	for _, member := range comp {
		s.open[member] = false
	}
	s.path = s.path[:i]
	s.found = append(s.found, comp)
}

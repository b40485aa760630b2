package callgraph

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrDanglingEdge is returned by Order when a callee is not a node of the
// graph. Prune removes such edges.
var ErrDanglingEdge = errors.New("callee is not a node of the call graph")

// CycleError reports a dependency cycle. Members lists the functions of one
// cycle in call order, starting from its lexicographically smallest member.
type CycleError struct {
	Members []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("call graph contains a cycle: %s -> %s", strings.Join(e.Members, " -> "), e.Members[0])
}

// AsCycleError returns the *CycleError wrapped in err, or nil.
func AsCycleError(err error) *CycleError {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// Order returns every node of g such that each callee comes before all of its
// callers. Among functions whose callees are all done, the lexicographically
// smallest goes first, so the order is reproducible for a given graph.
// Cyclic graphs are rejected with a *CycleError.
func Order(g Graph) ([]string, error) {
	pending := make(map[string]int, len(g))
	callers := make(map[string][]string, len(g))
	for _, name := range g.Names() {
		seen := make(map[string]bool)
		for _, callee := range g[name] {
			if callee == name || seen[callee] {
				continue
			}
			if _, ok := g[callee]; !ok {
				return nil, fmt.Errorf("%s calls %s: %w", name, callee, ErrDanglingEdge)
			}
			seen[callee] = true
			pending[name]++
			callers[callee] = append(callers[callee], name)
		}
	}

	var ready []string
	for _, name := range g.Names() {
		if pending[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, caller := range callers[name] {
			pending[caller]--
			if pending[caller] == 0 {
				i, _ := slices.BinarySearch(ready, caller)
				ready = slices.Insert(ready, i, caller)
			}
		}
	}

	if len(order) != len(g) {
		return nil, &CycleError{Members: findCycle(g, pending)}
	}
	return order, nil
}

// findCycle walks callee edges among the unscheduled nodes until a node
// repeats. Every unscheduled node has an unscheduled callee, so the walk
// always closes a cycle.
func findCycle(g Graph, pending map[string]int) []string {
	var start string
	for _, name := range g.Names() {
		if pending[name] > 0 {
			start = name
			break
		}
	}
	pos := make(map[string]int)
	var path []string
	cur := start
	for {
		if i, ok := pos[cur]; ok {
			return rotateToMin(path[i:])
		}
		pos[cur] = len(path)
		path = append(path, cur)
		next := ""
		for _, callee := range g[cur] {
			if callee != cur && pending[callee] > 0 {
				next = callee
				break
			}
		}
		if next == "" {
			return []string{cur}
		}
		cur = next
	}
}

func rotateToMin(cycle []string) []string {
	lo := 0
	for i, name := range cycle {
		if name < cycle[lo] {
			lo = i
		}
	}
	out := make([]string, 0, len(cycle))
	out = append(out, cycle[lo:]...)
	return append(out, cycle[:lo]...)
}

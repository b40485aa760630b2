package callgraph

import (
	"fmt"
	"io"
	"slices"
	"strings"
)

// TransitiveDeps returns every function reachable from root by following
// callee edges. Root itself is included only when it is reachable through a
// cycle.
func TransitiveDeps(g Graph, root string) map[string]struct{} {
	deps := make(map[string]struct{})
	var visit func(name string)
	visit = func(name string) {
		for _, callee := range g[name] {
			if _, seen := deps[callee]; seen {
				continue
			}
			deps[callee] = struct{}{}
			visit(callee)
		}
	}
	visit(root)
	return deps
}

// Subgraph restricts g to root and its transitive callees. Each kept node
// maps to its original callee list.
func Subgraph(g Graph, root string) (Graph, error) {
	callees, ok := g[root]
	if !ok {
		return nil, fmt.Errorf("subgraph %q: %w", root, ErrUnknownRoot)
	}
	out := Graph{root: slices.Clone(callees)}
	for name := range TransitiveDeps(g, root) {
		out[name] = slices.Clone(g[name])
	}
	return out, nil
}

// PrintTree writes an indented call tree rooted at root. A callee already on
// the current path is printed once with a marker instead of being expanded.
func PrintTree(w io.Writer, g Graph, root string) error {
	onPath := make(map[string]bool)
	var walk func(name string, depth int) error
	walk = func(name string, depth int) error {
		indent := strings.Repeat("  ", depth)
		if onPath[name] {
			_, err := fmt.Fprintf(w, "%s%s (recursive)\n", indent, name)
			return err
		}
		if _, err := fmt.Fprintf(w, "%s%s\n", indent, name); err != nil {
			return err
		}
		onPath[name] = true
		defer delete(onPath, name)
		for _, callee := range g[name] {
			if err := walk(callee, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root, 0)
}

// Roots returns the functions no other function calls, sorted by name.
func Roots(g Graph) []string {
	called := make(map[string]bool, len(g))
	for name, callees := range g {
		for _, c := range callees {
			if c != name {
				called[c] = true
			}
		}
	}
	var roots []string
	for _, name := range g.Names() {
		if !called[name] {
			roots = append(roots, name)
		}
	}
	return roots
}

package callgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
)

// Graph maps a function name to the ordered list of functions it calls.
// Duplicate callees are kept as extracted; self-edges are not expected.
type Graph map[string][]string

// Decompilations maps a function name to its decompiled source text.
type Decompilations map[string]string

// ErrUnknownRoot is returned when a single-function run names a function that
// is not part of the call graph.
var ErrUnknownRoot = errors.New("function not in call graph")

// LoadGraph reads a JSON object of function name to callee names.
func LoadGraph(path string) (Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read call graph: %w", err)
	}
	var g Graph
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("parse call graph %s: %w", path, err)
	}
	if g == nil {
		g = Graph{}
	}
	return g, nil
}

// LoadDecompilations reads a JSON object of function name to decompiled code.
func LoadDecompilations(path string) (Decompilations, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read decompilations: %w", err)
	}
	var d Decompilations
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("parse decompilations %s: %w", path, err)
	}
	if d == nil {
		d = Decompilations{}
	}
	return d, nil
}

// Names returns the graph's function names in lexicographic order.
func (g Graph) Names() []string {
	names := make([]string, 0, len(g))
	for name := range g {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the graph.
func (g Graph) Clone() Graph {
	out := make(Graph, len(g))
	for name, callees := range g {
		out[name] = slices.Clone(callees)
	}
	return out
}

// Prune removes every function without a decompilation, both as a node and as
// a callee reference of every other node. Self-edges and references to names
// that are not nodes are dropped as well, so that the result is closed under
// its edges. It returns the names of the removed nodes, sorted.
func Prune(g Graph, decomps Decompilations) (Graph, []string) {
	out := make(Graph, len(g))
	var missing []string
	for name, callees := range g {
		if _, ok := decomps[name]; !ok {
			missing = append(missing, name)
			continue
		}
		out[name] = callees
	}
	for name, callees := range out {
		kept := make([]string, 0, len(callees))
		for _, c := range callees {
			if c == name {
				continue
			}
			if _, ok := out[c]; !ok {
				continue
			}
			kept = append(kept, c)
		}
		out[name] = kept
	}
	sort.Strings(missing)
	return out, missing
}

// Code returns the normalized decompilation of name: surrounding newlines
// trimmed and exactly one trailing newline appended.
func (d Decompilations) Code(name string) string {
	return strings.Trim(d[name], "\n") + "\n"
}

// LineCount reports the number of lines of the normalized code of name.
func (d Decompilations) LineCount(name string) int {
	return strings.Count(d.Code(name), "\n")
}

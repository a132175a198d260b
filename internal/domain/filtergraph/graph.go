// Package filtergraph models an ffmpeg -filter_complex graph as a value.
//
// Nodes are added in topological order: every input label must be a declared
// source stream or an output of an earlier node. Produced labels are link
// labels and can be consumed once; source labels (such as "0:v") can be read
// by any number of nodes. The graph is serialized only by String.
package filtergraph

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a node for diagnostics and tests.
type Kind string

const (
	KindSource   Kind = "source"
	KindOverlay  Kind = "overlay"
	KindDrawText Kind = "drawtext"
	KindScale    Kind = "scale"
	KindTrim     Kind = "trim"
	KindSplit    Kind = "split"
	KindConcat   Kind = "concat"
	KindVolume   Kind = "volume"
	KindMix      Kind = "mix"
	KindFormat   Kind = "format"
)

// Node is one filter chain: inputs, a non-empty list of filters applied in
// order, and the labels it produces.
type Node struct {
	Name    string
	Kind    Kind
	Inputs  []string
	Filters []Filter
	Outputs []string
}

// Graph is built with Add and rendered with String.
type Graph struct {
	sources  map[string]bool
	produced map[string]bool
	consumed map[string]bool
	nodes    []Node
	seq      map[string]int
}

// New returns an empty graph that may read the given source streams.
func New(sources ...string) *Graph {
	g := &Graph{
		sources:  make(map[string]bool),
		produced: make(map[string]bool),
		consumed: make(map[string]bool),
		seq:      make(map[string]int),
	}
	for _, s := range sources {
		g.sources[s] = true
	}
	return g
}

// AddSource declares another readable input stream, e.g. "2:v".
func (g *Graph) AddSource(label string) { g.sources[label] = true }

// Label returns a fresh link label with the given prefix.
func (g *Graph) Label(prefix string) string {
	for {
		g.seq[prefix]++
		l := fmt.Sprintf("%s%d", prefix, g.seq[prefix])
		if !g.produced[l] && !g.sources[l] {
			return l
		}
	}
}

// Add appends n after checking that its inputs exist and are still free and
// that its outputs are new.
func (g *Graph) Add(n Node) error {
	if len(n.Filters) == 0 {
		return fmt.Errorf("filtergraph: node %q has no filters", n.Name)
	}
	if len(n.Outputs) == 0 {
		return fmt.Errorf("filtergraph: node %q has no outputs", n.Name)
	}
	seen := make(map[string]bool, len(n.Inputs))
	for _, in := range n.Inputs {
		switch {
		case g.sources[in]:
			continue
		case !g.produced[in]:
			return fmt.Errorf("filtergraph: node %q reads [%s] before it is produced", n.Name, in)
		case g.consumed[in] || seen[in]:
			return fmt.Errorf("filtergraph: node %q reads [%s] which is already consumed", n.Name, in)
		}
		seen[in] = true
	}
	for _, out := range n.Outputs {
		if out == "" || strings.ContainsAny(out, "[];, ") {
			return fmt.Errorf("filtergraph: node %q has invalid output label %q", n.Name, out)
		}
		if g.produced[out] || g.sources[out] {
			return fmt.Errorf("filtergraph: node %q redefines [%s]", n.Name, out)
		}
	}
	for in := range seen {
		g.consumed[in] = true
	}
	for _, out := range n.Outputs {
		g.produced[out] = true
	}
	g.nodes = append(g.nodes, n)
	return nil
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *Graph) Empty() bool { return len(g.nodes) == 0 }

// Validate checks that each terminal is readable and that no produced label
// other than the terminals is left dangling.
func (g *Graph) Validate(terminals ...string) error {
	want := make(map[string]bool, len(terminals))
	for _, t := range terminals {
		if t == "" {
			continue
		}
		if !g.sources[t] && !g.produced[t] {
			return fmt.Errorf("filtergraph: terminal [%s] is not produced", t)
		}
		if g.consumed[t] {
			return fmt.Errorf("filtergraph: terminal [%s] is consumed inside the graph", t)
		}
		want[t] = true
	}
	var dangling []string
	for l := range g.produced {
		if !g.consumed[l] && !want[l] {
			dangling = append(dangling, l)
		}
	}
	if len(dangling) > 0 {
		sort.Strings(dangling)
		return fmt.Errorf("filtergraph: unused outputs %v", dangling)
	}
	return nil
}

// String renders the graph in -filter_complex syntax.
func (g *Graph) String() string {
	chains := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		var b strings.Builder
		for _, in := range n.Inputs {
			b.WriteString("[" + in + "]")
		}
		for i, f := range n.Filters {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(f.String())
		}
		for _, out := range n.Outputs {
			b.WriteString("[" + out + "]")
		}
		chains = append(chains, b.String())
	}
	return strings.Join(chains, ";")
}
